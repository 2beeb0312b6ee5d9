package ingest

import (
	"errors"
	"io"
	"sync/atomic"

	"github.com/backlab/ticksim/pkg/candle"
	"github.com/backlab/ticksim/pkg/engine"
)

// Event is one unit of market data flowing toward the engine.
type Event interface {
	Timestamp() int64
}

// TradeEvent is a single trade print.
type TradeEvent engine.Tick

func (e TradeEvent) Timestamp() int64 { return e.TsMs }

// BarEvent is one OHLC candle.
type BarEvent candle.Candle

func (e BarEvent) Timestamp() int64 { return e.TsOpen }

// Metrics counts ingestion outcomes. The counters belong to one adapter,
// not the process; atomics make them readable from a monitoring goroutine
// while the feed runs. No ordering between counters is guaranteed.
type Metrics struct {
	processed   atomic.Uint64
	rejected    atomic.Uint64
	parseErrors atomic.Uint64
}

type MetricsSnapshot struct {
	Processed   uint64 `json:"processed"`
	Rejected    uint64 `json:"rejected"`
	ParseErrors uint64 `json:"parse_errors"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Processed:   m.processed.Load(),
		Rejected:    m.rejected.Load(),
		ParseErrors: m.parseErrors.Load(),
	}
}

// Adapter converts a candle Parser into an Event stream, counting
// processed bars, rejected bars (failed validation) and parse errors.
type Adapter struct {
	parser  Parser
	metrics Metrics
}

func NewAdapter(p Parser) *Adapter {
	return &Adapter{parser: p}
}

func (a *Adapter) Metrics() *Metrics { return &a.metrics }

func (a *Adapter) TickSize() float64 { return a.parser.TickSize() }

// Next returns the next event, io.EOF at end, or a *RecordError that the
// caller may skip.
func (a *Adapter) Next() (Event, error) {
	c, err := a.parser.Next()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		var re *RecordError
		if errors.As(err, &re) && re.Validation {
			a.metrics.rejected.Add(1)
		} else {
			a.metrics.parseErrors.Add(1)
		}
		return nil, err
	}
	a.metrics.processed.Add(1)
	return BarEvent(c), nil
}

// Process drains the parser, invoking fn for each good event and
// skipping past record errors. It returns the final counters; only a
// fatal stream error aborts the loop.
func (a *Adapter) Process(fn func(Event) error) (MetricsSnapshot, error) {
	for {
		ev, err := a.Next()
		if err == io.EOF {
			return a.metrics.Snapshot(), nil
		}
		if err != nil {
			if IsRecordError(err) {
				continue
			}
			return a.metrics.Snapshot(), err
		}
		if err := fn(ev); err != nil {
			return a.metrics.Snapshot(), err
		}
	}
}
