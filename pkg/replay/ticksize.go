package replay

import (
	"math"
	"sort"

	"github.com/backlab/ticksim/pkg/candle"
)

// DefaultTargetTicks is the desired number of price levels inside a
// typical bar range when auto-sizing the tick.
const DefaultTargetTicks = 20

// AutoTickSize picks a tick size so that a typical bar's high-low range
// spans about targetTicks levels. The typical range is the median of the
// last 100 bar ranges; with no bars it falls back to 0.2% of price.
// The raw quotient is rounded to a nice step, 1/2/2.5/5 × 10^k.
func AutoTickSize(bars []candle.Bar, price float64, targetTicks int) float64 {
	if targetTicks <= 0 {
		targetTicks = DefaultTargetTicks
	}

	typical := typicalRange(bars)
	if typical <= 0 {
		typical = price * 0.002
	}
	if typical <= 0 {
		return 0
	}

	return niceStep(typical / float64(targetTicks))
}

func typicalRange(bars []candle.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	if len(bars) > 100 {
		bars = bars[len(bars)-100:]
	}

	ranges := make([]float64, 0, len(bars))
	for _, b := range bars {
		if r := b.High - b.Low; r > 0 {
			ranges = append(ranges, r)
		}
	}
	if len(ranges) == 0 {
		return 0
	}

	sort.Float64s(ranges)
	mid := len(ranges) / 2
	if len(ranges)%2 == 1 {
		return ranges[mid]
	}
	return (ranges[mid-1] + ranges[mid]) / 2
}

// niceStep rounds up to the nearest of 1, 2, 2.5, 5 × 10^k.
func niceStep(v float64) float64 {
	if v <= 0 {
		return 0
	}

	magnitude := math.Pow(10, math.Floor(math.Log10(v)))
	normalized := v / magnitude

	var nice float64
	switch {
	case normalized <= 1.5:
		nice = 1.0
	case normalized <= 3.0:
		nice = 2.0
	case normalized <= 3.5:
		nice = 2.5
	case normalized <= 7.0:
		nice = 5.0
	default:
		nice = 10.0
	}
	return nice * magnitude
}
