package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/backlab/ticksim/pkg/candle"
)

// NDJSONParser streams bars from newline-delimited JSON objects, one bar
// per line, with the same key aliases the CSV parser accepts.
type NDJSONParser struct {
	sc       *bufio.Scanner
	tickSize float64
	record   int
}

func NewNDJSONParser(r io.Reader, tickSize float64) *NDJSONParser {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &NDJSONParser{sc: sc, tickSize: tickSize}
}

func (p *NDJSONParser) TickSize() float64 { return p.tickSize }

func (p *NDJSONParser) Next() (candle.Candle, error) {
	for p.sc.Scan() {
		line := strings.TrimSpace(p.sc.Text())
		if line == "" {
			continue
		}
		p.record++

		bar, err := parseBarObject([]byte(line))
		if err != nil {
			return candle.Candle{}, &RecordError{Record: p.record, Err: err}
		}
		if err := bar.Validate(); err != nil {
			return candle.Candle{}, &RecordError{Record: p.record, Validation: true, Err: err}
		}
		c := candle.Quantize(bar, p.tickSize)
		if err := c.Validate(); err != nil {
			return candle.Candle{}, &RecordError{Record: p.record, Validation: true, Err: err}
		}
		return c, nil
	}
	if err := p.sc.Err(); err != nil {
		return candle.Candle{}, err
	}
	return candle.Candle{}, io.EOF
}

// Key alias sets for JSON bar objects, matched case-insensitively.
var (
	tsOpenKeys  = []string{"ts_open", "ts", "timestamp", "time", "open_time"}
	tsCloseKeys = []string{"ts_close", "timestamp_close", "close_time"}
	openKeys    = []string{"open", "o", "open_price"}
	highKeys    = []string{"high", "h", "high_price"}
	lowKeys     = []string{"low", "l", "low_price"}
	closeKeys   = []string{"close", "c", "close_price"}
	volumeKeys  = []string{"volume", "v", "vol", "base_volume"}
	tradesKeys  = []string{"trades", "trade_count", "num_trades", "count"}
)

// parseBarObject decodes one JSON object into a float bar, resolving key
// aliases and applying the timestamp/trade-count defaults. Shared by the
// NDJSON file parser and the websocket source.
func parseBarObject(data []byte) (candle.Bar, error) {
	var bar candle.Bar

	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return bar, fmt.Errorf("invalid JSON object: %w", err)
	}

	// Case-insensitive key lookup.
	fields := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		fields[strings.ToLower(k)] = v
	}

	var err error
	if bar.Open, err = requireFloat(fields, openKeys, "open"); err != nil {
		return bar, err
	}
	if bar.High, err = requireFloat(fields, highKeys, "high"); err != nil {
		return bar, err
	}
	if bar.Low, err = requireFloat(fields, lowKeys, "low"); err != nil {
		return bar, err
	}
	if bar.Close, err = requireFloat(fields, closeKeys, "close"); err != nil {
		return bar, err
	}
	if bar.Volume, err = requireFloat(fields, volumeKeys, "volume"); err != nil {
		return bar, err
	}

	tsOpen, hasOpen, err := optionalInt(fields, tsOpenKeys, "ts_open")
	if err != nil {
		return bar, err
	}
	tsClose, hasClose, err := optionalInt(fields, tsCloseKeys, "ts_close")
	if err != nil {
		return bar, err
	}
	switch {
	case hasOpen && hasClose:
		bar.TsOpen, bar.TsClose = tsOpen, tsClose
	case hasOpen:
		bar.TsOpen, bar.TsClose = tsOpen, tsOpen+defaultBarMs
	case hasClose:
		bar.TsOpen, bar.TsClose = tsClose-defaultBarMs, tsClose
	default:
		return bar, fmt.Errorf("missing timestamp key")
	}

	if trades, ok, err := optionalInt(fields, tradesKeys, "trade_count"); err != nil {
		return bar, err
	} else if ok {
		bar.TradeCount = trades
	}
	return bar, nil
}

func requireFloat(fields map[string]json.RawMessage, keys []string, name string) (float64, error) {
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			var f float64
			if err := json.Unmarshal(v, &f); err != nil {
				return 0, fmt.Errorf("invalid %s value %s", name, v)
			}
			return f, nil
		}
	}
	return 0, fmt.Errorf("missing %q key", name)
}

func optionalInt(fields map[string]json.RawMessage, keys []string, name string) (int64, bool, error) {
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			var n int64
			if err := json.Unmarshal(v, &n); err != nil {
				return 0, false, fmt.Errorf("invalid %s value %s", name, v)
			}
			return n, true, nil
		}
	}
	return 0, false, nil
}
