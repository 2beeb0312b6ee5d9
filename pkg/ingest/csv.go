package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/backlab/ticksim/pkg/candle"
)

// defaultBarMs is assumed when only one of the two bar timestamps is
// present: the missing one sits one minute away.
const defaultBarMs = 60_000

// headerMap resolves flexible, case-insensitive column aliases to field
// indices. -1 means the column is absent.
type headerMap struct {
	tsOpen  int
	tsClose int
	open    int
	high    int
	low     int
	close   int
	volume  int
	trades  int
}

func buildHeaderMap(headers []string) (headerMap, error) {
	m := headerMap{tsOpen: -1, tsClose: -1, open: -1, high: -1, low: -1, close: -1, volume: -1, trades: -1}

	for i, h := range headers {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "timestamp", "ts", "time", "ts_open", "open_time":
			m.tsOpen = i
		case "ts_close", "close_time", "timestamp_close":
			m.tsClose = i
		case "open", "o", "open_price":
			m.open = i
		case "high", "h", "high_price":
			m.high = i
		case "low", "l", "low_price":
			m.low = i
		case "close", "c", "close_price":
			m.close = i
		case "volume", "v", "vol", "base_volume":
			m.volume = i
		case "trades", "trade_count", "num_trades", "count":
			m.trades = i
		}
		// Unknown columns are ignored.
	}

	for name, idx := range map[string]int{
		"open": m.open, "high": m.high, "low": m.low, "close": m.close, "volume": m.volume,
	} {
		if idx < 0 {
			return m, fmt.Errorf("missing %q column", name)
		}
	}
	if m.tsOpen < 0 && m.tsClose < 0 {
		return m, fmt.Errorf("missing timestamp column")
	}
	return m, nil
}

// CSVParser streams OHLC bars from tabular text with flexible headers.
type CSVParser struct {
	r        *csv.Reader
	tickSize float64
	hm       headerMap
	record   int
}

// NewCSVParser reads and maps the header row immediately; an unmappable
// header is a fatal error, not a record error.
func NewCSVParser(r io.Reader, tickSize float64) (*CSVParser, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	headers, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	hm, err := buildHeaderMap(headers)
	if err != nil {
		return nil, fmt.Errorf("map header: %w", err)
	}

	return &CSVParser{r: cr, tickSize: tickSize, hm: hm}, nil
}

func (p *CSVParser) TickSize() float64 { return p.tickSize }

func (p *CSVParser) Next() (candle.Candle, error) {
	rec, err := p.r.Read()
	if err == io.EOF {
		return candle.Candle{}, io.EOF
	}
	p.record++
	if err != nil {
		// Malformed line; the reader stays usable for the next one.
		return candle.Candle{}, &RecordError{Record: p.record, Err: err}
	}

	bar, err := p.parseRecord(rec)
	if err != nil {
		return candle.Candle{}, &RecordError{Record: p.record, Err: err}
	}
	if err := bar.Validate(); err != nil {
		return candle.Candle{}, &RecordError{Record: p.record, Validation: true, Err: err}
	}

	c := candle.Quantize(bar, p.tickSize)
	if err := c.Validate(); err != nil {
		// Quantization can collapse a barely-valid bar.
		return candle.Candle{}, &RecordError{Record: p.record, Validation: true, Err: err}
	}
	return c, nil
}

func (p *CSVParser) parseRecord(rec []string) (candle.Bar, error) {
	var bar candle.Bar
	var err error

	if bar.Open, err = fieldFloat(rec, p.hm.open, "open"); err != nil {
		return bar, err
	}
	if bar.High, err = fieldFloat(rec, p.hm.high, "high"); err != nil {
		return bar, err
	}
	if bar.Low, err = fieldFloat(rec, p.hm.low, "low"); err != nil {
		return bar, err
	}
	if bar.Close, err = fieldFloat(rec, p.hm.close, "close"); err != nil {
		return bar, err
	}
	if bar.Volume, err = fieldFloat(rec, p.hm.volume, "volume"); err != nil {
		return bar, err
	}

	switch {
	case p.hm.tsOpen >= 0:
		if bar.TsOpen, err = fieldInt(rec, p.hm.tsOpen, "ts_open"); err != nil {
			return bar, err
		}
	case p.hm.tsClose >= 0:
		tsClose, err := fieldInt(rec, p.hm.tsClose, "ts_close")
		if err != nil {
			return bar, err
		}
		bar.TsOpen = tsClose - defaultBarMs
	}

	if p.hm.tsClose >= 0 {
		if bar.TsClose, err = fieldInt(rec, p.hm.tsClose, "ts_close"); err != nil {
			return bar, err
		}
	} else {
		bar.TsClose = bar.TsOpen + defaultBarMs
	}

	if p.hm.trades >= 0 {
		if bar.TradeCount, err = fieldInt(rec, p.hm.trades, "trade_count"); err != nil {
			return bar, err
		}
	}
	return bar, nil
}

func fieldFloat(rec []string, idx int, name string) (float64, error) {
	if idx >= len(rec) {
		return 0, fmt.Errorf("missing field %q", name)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(rec[idx]), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q", name, rec[idx])
	}
	return v, nil
}

func fieldInt(rec []string, idx int, name string) (int64, error) {
	if idx >= len(rec) {
		return 0, fmt.Errorf("missing field %q", name)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(rec[idx]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q", name, rec[idx])
	}
	return v, nil
}
