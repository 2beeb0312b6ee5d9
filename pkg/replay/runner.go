// Package replay drives the execution engine from recorded market data:
// it expands candles into synthetic prints, invokes a strategy between
// events, and collects the equity curve and run metrics.
package replay

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/backlab/ticksim/pkg/candle"
	"github.com/backlab/ticksim/pkg/engine"
	"github.com/backlab/ticksim/pkg/ingest"
)

// Journal receives fills as the run produces them.
type Journal interface {
	Append(f engine.Fill)
}

// Runner owns the engine exclusively for the duration of a run. It is
// the single goroutine the engine's concurrency contract requires.
type Runner struct {
	eng     *engine.Engine
	strat   Strategy
	log     *zap.Logger
	journal Journal

	history   []engine.Snapshot
	processed uint64
	rejected  uint64
	journaled int
}

func NewRunner(eng *engine.Engine, strat Strategy, log *zap.Logger) *Runner {
	if strat == nil {
		strat = HoldStrategy{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{eng: eng, strat: strat, log: log}
}

// SetJournal routes every fill to j as it happens.
func (r *Runner) SetJournal(j Journal) { r.journal = j }

// Engine exposes the underlying engine for pre-run setup, e.g. resting
// orders before the data starts.
func (r *Runner) Engine() *engine.Engine { return r.eng }

// StepTick feeds one print through the engine, snapshots the resulting
// state, and gives the strategy its turn.
func (r *Runner) StepTick(t engine.Tick) error {
	if err := r.eng.StepTick(t); err != nil {
		r.rejected++
		return err
	}
	r.processed++
	r.flushFills()

	snap := r.eng.GetSnapshot()
	snap.TsMs = t.TsMs
	r.history = append(r.history, snap)

	if err := r.strat.OnTick(r.eng, t); err != nil {
		return err
	}
	r.flushFills()
	return nil
}

// StepCandle expands one bar into four synthetic prints in the fixed
// intrabar order open, high, low, close, and feeds them through
// StepTick. Volume is split evenly with the remainder on the close;
// print sides follow price direction against the previous print.
func (r *Runner) StepCandle(c candle.Candle) error {
	prices := [4]int64{c.OpenTick, c.HighTick, c.LowTick, c.CloseTick}
	qty := c.VolumeScaled / 4

	prev := c.OpenTick
	for i, price := range prices {
		q := qty
		if i == len(prices)-1 {
			q = c.VolumeScaled - 3*qty
		}
		side := engine.Buy
		if price < prev {
			side = engine.Sell
		}
		prev = price

		if err := r.StepTick(engine.Tick{
			TsMs:      c.TsOpen,
			PriceTick: price,
			QtyScaled: q,
			Side:      side,
		}); err != nil {
			return err
		}
	}
	return nil
}

// RunCandles replays a bar slice to completion.
func (r *Runner) RunCandles(candles []candle.Candle) error {
	for _, c := range candles {
		if err := r.StepCandle(c); err != nil {
			return err
		}
	}
	return nil
}

// RunTicks replays a tick slice to completion. Ticks the engine rejects
// are counted and skipped.
func (r *Runner) RunTicks(ticks []engine.Tick) error {
	for _, t := range ticks {
		if err := r.StepTick(t); err != nil {
			if errors.Is(err, engine.ErrInvalidSide) {
				continue
			}
			return err
		}
	}
	return nil
}

// RunFeed consumes a feed channel until it closes or ctx is cancelled.
// Record errors in the feed are logged and skipped.
func (r *Runner) RunFeed(ctx context.Context, feed <-chan ingest.FeedResult) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res, ok := <-feed:
			if !ok {
				return nil
			}
			if res.Err != nil {
				if ingest.IsRecordError(res.Err) {
					r.log.Warn("skipping bad record", zap.Error(res.Err))
					continue
				}
				return res.Err
			}
			if err := r.step(res.Event); err != nil {
				return err
			}
		}
	}
}

func (r *Runner) step(ev ingest.Event) error {
	switch e := ev.(type) {
	case ingest.TradeEvent:
		return r.StepTick(engine.Tick(e))
	case ingest.BarEvent:
		return r.StepCandle(candle.Candle(e))
	default:
		return nil
	}
}

// flushFills forwards fills produced since the last flush to the journal.
func (r *Runner) flushFills() {
	if r.journal == nil {
		return
	}
	fills := r.eng.Fills()
	for ; r.journaled < len(fills); r.journaled++ {
		r.journal.Append(fills[r.journaled])
	}
}

// History returns the per-event snapshot sequence.
func (r *Runner) History() []engine.Snapshot {
	out := make([]engine.Snapshot, len(r.history))
	copy(out, r.history)
	return out
}

// Processed and Rejected report event counts for the run so far.
func (r *Runner) Processed() uint64 { return r.processed }
func (r *Runner) Rejected() uint64  { return r.rejected }

// Result assembles the run report from the state accumulated so far.
func (r *Runner) Result() *Result {
	return NewResult(r.eng.Config(), r.strat.Name(), r.History(), r.eng.Fills())
}
