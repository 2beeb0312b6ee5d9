package replay

import (
	"sort"

	"github.com/backlab/ticksim/pkg/engine"
)

type bucketKey struct {
	tsMs      int64
	priceTick int64
	side      engine.Side
}

// AggregateTicks compresses raw prints into time-bucketed volumes: one
// output tick per unique (bucket timestamp, price level, side), with
// quantities summed. bucket_ts = (ts / bucketMs) * bucketMs. Output is
// sorted by timestamp, then price level, then side.
func AggregateTicks(ticks []engine.Tick, bucketMs int64) []engine.Tick {
	if bucketMs <= 0 || len(ticks) == 0 {
		out := make([]engine.Tick, len(ticks))
		copy(out, ticks)
		return out
	}

	buckets := make(map[bucketKey]int64)
	for _, t := range ticks {
		key := bucketKey{
			tsMs:      (t.TsMs / bucketMs) * bucketMs,
			priceTick: t.PriceTick,
			side:      t.Side,
		}
		buckets[key] += t.QtyScaled
	}

	out := make([]engine.Tick, 0, len(buckets))
	for key, qty := range buckets {
		out = append(out, engine.Tick{
			TsMs:      key.tsMs,
			PriceTick: key.priceTick,
			QtyScaled: qty,
			Side:      key.side,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.TsMs != b.TsMs {
			return a.TsMs < b.TsMs
		}
		if a.PriceTick != b.PriceTick {
			return a.PriceTick < b.PriceTick
		}
		return a.Side < b.Side
	})
	return out
}
