// Package storage persists quantized candles and run results in a
// Pebble key-value store so repeat backtests skip re-parsing raw data
// files.
package storage

import (
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/backlab/ticksim/pkg/candle"
)

type Store struct {
	db *pebble.DB
}

func NewStore(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// PutCandle writes one bar, keyed by symbol and open time. Rewrites of
// the same bar overwrite in place.
func (s *Store) PutCandle(symbol string, c candle.Candle) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("refusing to store invalid candle: %w", err)
	}
	if err := s.db.Set(candleKey(symbol, c.TsOpen), c.Encode(), pebble.NoSync); err != nil {
		return fmt.Errorf("put candle: %w", err)
	}
	return nil
}

// PutCandleBatch writes a slice of bars in one atomic batch and syncs.
func (s *Store) PutCandleBatch(symbol string, candles []candle.Candle) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, c := range candles {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("refusing to store invalid candle: %w", err)
		}
		if err := batch.Set(candleKey(symbol, c.TsOpen), c.Encode(), nil); err != nil {
			return fmt.Errorf("batch candle: %w", err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit candle batch: %w", err)
	}
	return nil
}

// GetCandle fetches the bar opening at tsOpen. The bool reports whether
// it exists.
func (s *Store) GetCandle(symbol string, tsOpen int64) (candle.Candle, bool, error) {
	val, closer, err := s.db.Get(candleKey(symbol, tsOpen))
	if err == pebble.ErrNotFound {
		return candle.Candle{}, false, nil
	}
	if err != nil {
		return candle.Candle{}, false, fmt.Errorf("get candle: %w", err)
	}
	defer closer.Close()

	c, err := candle.Decode(val)
	if err != nil {
		return candle.Candle{}, false, fmt.Errorf("decode candle: %w", err)
	}
	return c, true, nil
}

// ScanCandles walks bars for a symbol in ascending open-time order,
// inclusive of from and to. A zero to means no upper limit.
func (s *Store) ScanCandles(symbol string, from, to int64, fn func(candle.Candle) error) error {
	lower := candleKey(symbol, from)
	var upper []byte
	if to > 0 {
		upper = candleKey(symbol, to+1)
	} else {
		upper = keyUpperBound(candlePrefix(symbol))
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return fmt.Errorf("candle iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		c, err := candle.Decode(iter.Value())
		if err != nil {
			return fmt.Errorf("decode candle at %q: %w", iter.Key(), err)
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return iter.Error()
}

// LoadCandles collects a scan into a slice.
func (s *Store) LoadCandles(symbol string, from, to int64) ([]candle.Candle, error) {
	var out []candle.Candle
	err := s.ScanCandles(symbol, from, to, func(c candle.Candle) error {
		out = append(out, c)
		return nil
	})
	return out, err
}

// CountCandles returns the number of cached bars for a symbol.
func (s *Store) CountCandles(symbol string) (int, error) {
	prefix := candlePrefix(symbol)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return 0, fmt.Errorf("candle iterator: %w", err)
	}
	defer iter.Close()

	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		n++
	}
	return n, iter.Error()
}

// SaveRun stores a run result document under its ID. The value is
// opaque JSON produced by the replay layer.
func (s *Store) SaveRun(id string, doc []byte) error {
	if err := s.db.Set(runKey(id), doc, pebble.Sync); err != nil {
		return fmt.Errorf("save run %s: %w", id, err)
	}
	return nil
}

// LoadRun fetches a stored run result. The bool reports existence.
func (s *Store) LoadRun(id string) ([]byte, bool, error) {
	val, closer, err := s.db.Get(runKey(id))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load run %s: %w", id, err)
	}
	defer closer.Close()

	out := make([]byte, len(val))
	copy(out, val)
	return out, true, nil
}

// ListRuns returns the IDs of all stored runs.
func (s *Store) ListRuns() ([]string, error) {
	prefix := []byte(prefixRun)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("run iterator: %w", err)
	}
	defer iter.Close()

	var ids []string
	for iter.First(); iter.Valid(); iter.Next() {
		ids = append(ids, string(iter.Key()[len(prefix):]))
	}
	return ids, iter.Error()
}
