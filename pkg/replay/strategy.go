package replay

import (
	"github.com/backlab/ticksim/pkg/engine"
)

// Strategy is invoked after every market print, once the engine has
// absorbed it. The strategy may place and cancel orders; a returned
// error aborts the run.
type Strategy interface {
	Name() string
	OnTick(e *engine.Engine, t engine.Tick) error
}

// HoldStrategy does nothing. Useful for replaying data through the
// engine to inspect fills of pre-placed orders.
type HoldStrategy struct{}

func (HoldStrategy) Name() string                           { return "hold" }
func (HoldStrategy) OnTick(*engine.Engine, engine.Tick) error { return nil }

// ThresholdStrategy buys one clip below a floor and sells one clip
// above a ceiling, at most one open position per side at a time. It
// exists to exercise full runs end to end, not to make money.
type ThresholdStrategy struct {
	BuyBelowTick  int64
	SellAboveTick int64
	QtyScaled     int64
}

func (s *ThresholdStrategy) Name() string { return "threshold" }

func (s *ThresholdStrategy) OnTick(e *engine.Engine, t engine.Tick) error {
	pos := e.GetSnapshot().Position

	if t.PriceTick <= s.BuyBelowTick && pos <= 0 {
		_, err := e.PlaceOrder(engine.Market, engine.Buy, s.QtyScaled, 0)
		return err
	}
	if t.PriceTick >= s.SellAboveTick && pos >= 0 {
		_, err := e.PlaceOrder(engine.Market, engine.Sell, s.QtyScaled, 0)
		return err
	}
	return nil
}
