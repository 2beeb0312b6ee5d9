package engine

import (
	"errors"
	"strings"
)

// QtyScale is the fixed-point scale for quantities: a QtyScaled of
// 1_500_000 means 1.5 natural units.
const QtyScale = 1_000_000

// Side is the direction of a trade print or order.
type Side uint8

const (
	Buy  Side = 0
	Sell Side = 1
)

func (s Side) Valid() bool { return s == Buy || s == Sell }

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// ParseSide maps free-text side values to the closed enum. Parsing happens
// once at the boundary; everything past it works with the typed value.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	default:
		return 0, ErrInvalidSide
	}
}

// OrderType distinguishes resting limit orders from immediate market orders.
type OrderType uint8

const (
	Limit  OrderType = 0
	Market OrderType = 1
)

func (t OrderType) Valid() bool { return t == Limit || t == Market }

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "LIMIT"
	case Market:
		return "MARKET"
	default:
		return "UNKNOWN"
	}
}

func ParseOrderType(s string) (OrderType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LIMIT":
		return Limit, nil
	case "MARKET":
		return Market, nil
	default:
		return 0, ErrInvalidOrderType
	}
}

// Tick is one observed market trade print. Price is an integer multiple of
// the configured tick size; quantity is fixed-point scaled by QtyScale.
type Tick struct {
	TsMs      int64
	PriceTick int64
	QtyScaled int64
	Side      Side
}

// Order is an engine-owned order. IDs are assigned by the engine,
// monotonically increasing, never reused. PriceTick is meaningless for
// market orders.
type Order struct {
	ID        uint64    `json:"id"`
	Type      OrderType `json:"type"`
	Side      Side      `json:"side"`
	QtyScaled int64     `json:"qty_scaled"`
	PriceTick int64     `json:"price_tick"`
}

// Fill records one executed fill. Price and Fee are in quote-currency
// units; Maker reports which fee schedule applied.
type Fill struct {
	OrderID   uint64  `json:"order_id"`
	TsMs      int64   `json:"ts_ms"`
	Side      Side    `json:"side"`
	QtyScaled int64   `json:"qty_scaled"`
	Price     float64 `json:"price"`
	Fee       float64 `json:"fee"`
	Maker     bool    `json:"maker"`
}

// Snapshot is an immutable point-in-time projection of account state.
// Position is in natural units (descaled), AvgEntryPrice is zero when flat.
// Equity = Cash + UnrealizedPnL.
type Snapshot struct {
	TsMs          int64   `json:"ts_ms"`
	Cash          float64 `json:"cash"`
	Position      float64 `json:"position"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	Equity        float64 `json:"equity"`
}

// Error taxonomy. Every engine operation reports failures through these;
// a failed call leaves account state untouched.
var (
	ErrInvalidConfig    = errors.New("invalid engine config")
	ErrInvalidSide      = errors.New("invalid side")
	ErrInvalidOrderType = errors.New("invalid order type")
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrNoMarketPrice    = errors.New("no market price observed yet")
	ErrOrderNotFound    = errors.New("order not found")
)
