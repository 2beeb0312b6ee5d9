package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/backlab/ticksim/pkg/engine"
)

// AggTradesParser streams Binance-style aggregate trades from CSV:
// timestamp,price,qty,is_buyer_maker. Each row becomes one engine tick.
//
// Side mapping: is_buyer_maker=true means the passive side was buying, so
// the aggressive taker sold — the print is SELL-initiated.
type AggTradesParser struct {
	r        *csv.Reader
	tickSize decimal.Decimal
	tsIdx    int
	priceIdx int
	qtyIdx   int
	makerIdx int
	record   int
}

func NewAggTradesParser(r io.Reader, tickSize float64) (*AggTradesParser, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	headers, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	p := &AggTradesParser{
		r:        cr,
		tickSize: decimal.NewFromFloat(tickSize),
		tsIdx:    -1, priceIdx: -1, qtyIdx: -1, makerIdx: -1,
	}
	for i, h := range headers {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "timestamp", "ts", "time":
			p.tsIdx = i
		case "price", "p":
			p.priceIdx = i
		case "qty", "quantity", "q":
			p.qtyIdx = i
		case "is_buyer_maker", "buyer_maker", "m":
			p.makerIdx = i
		}
	}
	for name, idx := range map[string]int{
		"timestamp": p.tsIdx, "price": p.priceIdx, "qty": p.qtyIdx, "is_buyer_maker": p.makerIdx,
	} {
		if idx < 0 {
			return nil, fmt.Errorf("map header: missing %q column", name)
		}
	}
	return p, nil
}

// Next returns the next tick, io.EOF at end of stream, or a *RecordError
// for a bad row.
func (p *AggTradesParser) Next() (engine.Tick, error) {
	rec, err := p.r.Read()
	if err == io.EOF {
		return engine.Tick{}, io.EOF
	}
	p.record++
	if err != nil {
		return engine.Tick{}, &RecordError{Record: p.record, Err: err}
	}

	tick, err := p.parseRow(rec)
	if err != nil {
		return engine.Tick{}, &RecordError{Record: p.record, Err: err}
	}
	return tick, nil
}

func (p *AggTradesParser) parseRow(rec []string) (engine.Tick, error) {
	var t engine.Tick

	ts, err := strconv.ParseInt(strings.TrimSpace(rec[p.tsIdx]), 10, 64)
	if err != nil {
		return t, fmt.Errorf("invalid timestamp %q", rec[p.tsIdx])
	}

	// Decimal keeps the price/tick division exact before rounding.
	price, err := decimal.NewFromString(strings.TrimSpace(rec[p.priceIdx]))
	if err != nil {
		return t, fmt.Errorf("invalid price %q", rec[p.priceIdx])
	}
	qty, err := decimal.NewFromString(strings.TrimSpace(rec[p.qtyIdx]))
	if err != nil {
		return t, fmt.Errorf("invalid qty %q", rec[p.qtyIdx])
	}

	maker, err := parseBool(strings.TrimSpace(rec[p.makerIdx]))
	if err != nil {
		return t, err
	}

	t.TsMs = ts
	t.PriceTick = price.Div(p.tickSize).Round(0).IntPart()
	t.QtyScaled = qty.Mul(decimal.NewFromInt(engine.QtyScale)).Round(0).IntPart()
	if maker {
		t.Side = engine.Sell
	} else {
		t.Side = engine.Buy
	}
	return t, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "true", "t", "yes":
		return true, nil
	case "0", "false", "f", "no":
		return false, nil
	default:
		return false, fmt.Errorf("invalid is_buyer_maker value %q", s)
	}
}

// OpenAggTrades opens an aggregate-trades CSV file.
func OpenAggTrades(path string, tickSize float64) (*AggTradesParser, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	p, err := NewAggTradesParser(f, tickSize)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return p, f, nil
}
