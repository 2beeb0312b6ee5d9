package ingest

import (
	"context"
	"io"

	"go.uber.org/zap"
)

// FeedResult carries one event or one non-fatal error off the feed
// goroutine. Exactly one of the fields is set.
type FeedResult struct {
	Event Event
	Err   error
}

// Feeder drains an Adapter on a background goroutine and delivers
// results over a buffered channel so parsing overlaps replay.
type Feeder struct {
	adapter *Adapter
	out     chan FeedResult
	log     *zap.Logger
}

// NewFeeder wraps the adapter with a channel of the given buffer size.
func NewFeeder(a *Adapter, buffer int, log *zap.Logger) *Feeder {
	if buffer <= 0 {
		buffer = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Feeder{
		adapter: a,
		out:     make(chan FeedResult, buffer),
		log:     log,
	}
}

// Events returns the channel of feed results. It is closed when the
// source is exhausted or the feed context is cancelled.
func (f *Feeder) Events() <-chan FeedResult {
	return f.out
}

// Start launches the feed goroutine. Returns a cancel function that
// stops the feed; the channel is closed either way. Record errors are
// forwarded so the consumer can decide whether to skip; a fatal stream
// error is forwarded and ends the feed.
func (f *Feeder) Start(ctx context.Context) context.CancelFunc {
	feedCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(f.out)

		total := 0
		for {
			ev, err := f.adapter.Next()
			if err == io.EOF {
				m := f.adapter.Metrics().Snapshot()
				f.log.Info("feed complete",
					zap.Int("events", total),
					zap.Uint64("rejected", m.Rejected),
					zap.Uint64("parse_errors", m.ParseErrors))
				return
			}

			var res FeedResult
			if err != nil {
				res = FeedResult{Err: err}
			} else {
				res = FeedResult{Event: ev}
				total++
			}

			select {
			case <-feedCtx.Done():
				f.log.Info("feed cancelled", zap.Int("events", total))
				return
			case f.out <- res:
			}

			if err != nil && !IsRecordError(err) {
				f.log.Error("feed aborted", zap.Error(err))
				return
			}
		}
	}()

	return cancel
}
