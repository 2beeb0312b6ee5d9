// Package candle defines the quantized OHLC bar model shared by the
// ingestion pipeline, the replay cache and the backtest runner.
package candle

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// VolumeScale is the fixed-point scale for volumes (6 implied decimals).
const VolumeScale = 1_000_000

// Candle is a tick-quantized OHLC bar: prices are int64 multiples of the
// tick size, volume is fixed-point scaled. All-int64 so the binary codec
// stays a flat 64-byte layout.
type Candle struct {
	TsOpen       int64
	TsClose      int64
	OpenTick     int64
	HighTick     int64
	LowTick      int64
	CloseTick    int64
	VolumeScaled int64
	TradeCount   int64
}

// Validate checks bar integrity: positive, ordered timestamps; the OHLC
// relationship low ≤ open,close ≤ high; non-negative volume and trade
// count. Returns nil for a well-formed bar.
func (c Candle) Validate() error {
	if c.TsOpen <= 0 || c.TsClose <= 0 {
		return fmt.Errorf("non-positive timestamp: open=%d close=%d", c.TsOpen, c.TsClose)
	}
	if c.TsClose < c.TsOpen {
		return fmt.Errorf("close time %d before open time %d", c.TsClose, c.TsOpen)
	}
	if c.LowTick > c.HighTick {
		return fmt.Errorf("low %d above high %d", c.LowTick, c.HighTick)
	}
	if c.OpenTick < c.LowTick || c.OpenTick > c.HighTick {
		return fmt.Errorf("open %d outside [%d, %d]", c.OpenTick, c.LowTick, c.HighTick)
	}
	if c.CloseTick < c.LowTick || c.CloseTick > c.HighTick {
		return fmt.Errorf("close %d outside [%d, %d]", c.CloseTick, c.LowTick, c.HighTick)
	}
	if c.VolumeScaled < 0 {
		return fmt.Errorf("negative volume: %d", c.VolumeScaled)
	}
	if c.TradeCount < 0 {
		return fmt.Errorf("negative trade count: %d", c.TradeCount)
	}
	return nil
}

// Bar is the float-price form used at parsing and display boundaries.
type Bar struct {
	TsOpen     int64
	TsClose    int64
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	TradeCount int64
}

// Validate mirrors Candle.Validate on the float form, additionally
// rejecting NaN and infinite fields.
func (b Bar) Validate() error {
	if b.TsOpen <= 0 || b.TsClose <= 0 {
		return fmt.Errorf("non-positive timestamp: open=%d close=%d", b.TsOpen, b.TsClose)
	}
	if b.TsClose < b.TsOpen {
		return fmt.Errorf("close time %d before open time %d", b.TsClose, b.TsOpen)
	}
	for name, v := range map[string]float64{"open": b.Open, "high": b.High, "low": b.Low, "close": b.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite %s price: %v", name, v)
		}
	}
	if b.Low > b.High {
		return fmt.Errorf("low %v above high %v", b.Low, b.High)
	}
	if b.Open < b.Low || b.Open > b.High {
		return fmt.Errorf("open %v outside [%v, %v]", b.Open, b.Low, b.High)
	}
	if b.Close < b.Low || b.Close > b.High {
		return fmt.Errorf("close %v outside [%v, %v]", b.Close, b.Low, b.High)
	}
	if math.IsNaN(b.Volume) || math.IsInf(b.Volume, 0) || b.Volume < 0 {
		return fmt.Errorf("invalid volume: %v", b.Volume)
	}
	if b.TradeCount < 0 {
		return fmt.Errorf("negative trade count: %d", b.TradeCount)
	}
	return nil
}

// Quantize converts a float bar to the tick representation. Prices go
// through decimal arithmetic so e.g. 42000.1 / 0.01 lands on the exact
// tick instead of drifting through binary floats.
func Quantize(b Bar, tickSize float64) Candle {
	ts := decimal.NewFromFloat(tickSize)
	return Candle{
		TsOpen:       b.TsOpen,
		TsClose:      b.TsClose,
		OpenTick:     quantizePrice(b.Open, ts),
		HighTick:     quantizePrice(b.High, ts),
		LowTick:      quantizePrice(b.Low, ts),
		CloseTick:    quantizePrice(b.Close, ts),
		VolumeScaled: decimal.NewFromFloat(b.Volume).Mul(decimal.NewFromInt(VolumeScale)).Round(0).IntPart(),
		TradeCount:   b.TradeCount,
	}
}

func quantizePrice(price float64, tickSize decimal.Decimal) int64 {
	return decimal.NewFromFloat(price).Div(tickSize).Round(0).IntPart()
}

// ToBar converts back to float prices for display and export.
func (c Candle) ToBar(tickSize float64) Bar {
	return Bar{
		TsOpen:     c.TsOpen,
		TsClose:    c.TsClose,
		Open:       float64(c.OpenTick) * tickSize,
		High:       float64(c.HighTick) * tickSize,
		Low:        float64(c.LowTick) * tickSize,
		Close:      float64(c.CloseTick) * tickSize,
		Volume:     float64(c.VolumeScaled) / VolumeScale,
		TradeCount: c.TradeCount,
	}
}
