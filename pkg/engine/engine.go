// Package engine implements the single-instrument execution and
// book-keeping state machine for backtesting: it owns cash, net position,
// resting orders and PnL, and decides for every market print or order
// command what fills and what the resulting account state is.
//
// The engine is synchronous and not safe for concurrent use. One goroutine
// owns it exclusively; snapshots may be taken by that owner between
// mutating calls.
package engine

import (
	"fmt"

	"github.com/backlab/ticksim/pkg/util"
)

// Config is immutable for the engine's lifetime. Rates are in basis
// points; TickSize is the price quantization unit.
type Config struct {
	MakerFeeBps float64 `json:"maker_fee_bps"`
	TakerFeeBps float64 `json:"taker_fee_bps"`
	SpreadBps   float64 `json:"spread_bps"`
	InitialCash float64 `json:"initial_cash"`
	TickSize    float64 `json:"tick_size"`
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.TickSize <= 0 {
		return fmt.Errorf("%w: tick size must be positive, got %v", ErrInvalidConfig, c.TickSize)
	}
	if c.MakerFeeBps < 0 || c.TakerFeeBps < 0 || c.SpreadBps < 0 {
		return fmt.Errorf("%w: fee and spread rates must be non-negative", ErrInvalidConfig)
	}
	return nil
}

// Engine is the execution/accounting state machine.
type Engine struct {
	cfg   Config
	clock util.Clock

	tsMs     int64   // last processed tick timestamp, or creation/reset time
	cash     float64 // quote currency
	position int64   // scaled by QtyScale; positive = long, negative = short
	avgEntry float64 // price units; zero/undefined when flat
	realized float64

	markTick int64 // last observed tick price
	hasMark  bool

	book   *book
	nextID uint64

	fills []Fill
}

// New validates cfg and allocates a fresh engine. The clock supplies the
// snapshot timestamp until the first tick is processed.
func New(cfg Config, clock util.Clock) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = util.RealClock{}
	}
	e := &Engine{
		cfg:   cfg,
		clock: clock,
		book:  newBook(),
	}
	e.Reset()
	return e, nil
}

// Reset restores the state New would have produced with the same config,
// discarding resting orders, fills and history. The ID counter restarts.
func (e *Engine) Reset() {
	e.tsMs = e.clock.Now().UnixMilli()
	e.cash = e.cfg.InitialCash
	e.position = 0
	e.avgEntry = 0
	e.realized = 0
	e.markTick = 0
	e.hasMark = false
	e.book.reset()
	e.nextID = 0
	e.fills = e.fills[:0]
}

// Config returns the immutable configuration.
func (e *Engine) Config() Config { return e.cfg }

// StepTick consumes one market print: updates the mark price, then
// evaluates every resting order in insertion order for a cross. Resting
// orders fill fully at their limit price (not the tick price) with the
// maker fee. Tick timestamps are not required to be monotonic; callers
// needing strict ordering enforce it upstream.
func (e *Engine) StepTick(t Tick) error {
	if !t.Side.Valid() {
		// Validation precedes the mark-price update: a rejected tick
		// leaves no trace.
		return ErrInvalidSide
	}

	e.tsMs = t.TsMs
	e.markTick = t.PriceTick
	e.hasMark = true

	e.book.sweep(func(o Order) bool {
		if !crossed(o, t.PriceTick) {
			return false
		}
		price := float64(o.PriceTick) * e.cfg.TickSize
		e.applyFill(o.ID, o.Side, o.QtyScaled, price, e.cfg.MakerFeeBps, true)
		return true
	})
	return nil
}

// PlaceOrder validates and files a new order, returning the engine-assigned
// ID. Market orders execute immediately against a synthetic quote derived
// from the last mark price and the configured spread, paying the taker fee.
// Limit orders rest and are only evaluated on subsequent ticks, even if
// they would already cross the current mark: fill timing stays tied to
// observed market prints.
func (e *Engine) PlaceOrder(typ OrderType, side Side, qtyScaled int64, priceTick int64) (uint64, error) {
	if qtyScaled <= 0 {
		return 0, ErrInvalidQuantity
	}
	if !typ.Valid() {
		return 0, ErrInvalidOrderType
	}
	if !side.Valid() {
		return 0, ErrInvalidSide
	}

	if typ == Market {
		if !e.hasMark {
			return 0, ErrNoMarketPrice
		}
		mark := float64(e.markTick)
		half := mark * e.cfg.SpreadBps / 20000
		execTick := mark + half
		if side == Sell {
			execTick = mark - half
		}
		e.nextID++
		id := e.nextID
		e.applyFill(id, side, qtyScaled, execTick*e.cfg.TickSize, e.cfg.TakerFeeBps, false)
		return id, nil
	}

	e.nextID++
	id := e.nextID
	e.book.insert(Order{
		ID:        id,
		Type:      Limit,
		Side:      side,
		QtyScaled: qtyScaled,
		PriceTick: priceTick,
	})
	return id, nil
}

// CancelOrder removes a resting order. Cancellation is immediate and has
// no fee or PnL effect.
func (e *Engine) CancelOrder(id uint64) error {
	if !e.book.cancel(id) {
		return ErrOrderNotFound
	}
	return nil
}

// OpenOrders returns the resting set in insertion order.
func (e *Engine) OpenOrders() []Order { return e.book.snapshot() }

// Fills returns every fill executed since creation or the last Reset.
func (e *Engine) Fills() []Fill {
	out := make([]Fill, len(e.fills))
	copy(out, e.fills)
	return out
}

// GetSnapshot projects the current account state. Unrealized PnL and
// equity are recomputed from (position, average entry, mark); they are
// never persisted, so they cannot drift.
func (e *Engine) GetSnapshot() Snapshot {
	unrealized := e.unrealizedPnL()
	return Snapshot{
		TsMs:          e.tsMs,
		Cash:          e.cash,
		Position:      float64(e.position) / QtyScale,
		AvgEntryPrice: e.avgEntry,
		RealizedPnL:   e.realized,
		UnrealizedPnL: unrealized,
		Equity:        e.cash + unrealized,
	}
}

func (e *Engine) unrealizedPnL() float64 {
	if e.position == 0 || !e.hasMark {
		return 0
	}
	mark := float64(e.markTick) * e.cfg.TickSize
	return float64(e.position) / QtyScale * (mark - e.avgEntry)
}
