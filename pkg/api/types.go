package api

// Request/response shapes for the inspection API. Prices and
// quantities cross this boundary in natural units; the server converts
// to the engine's integer representation.

type PlaceOrderRequest struct {
	Type  string  `json:"type"`  // "MARKET" or "LIMIT"
	Side  string  `json:"side"`  // "BUY" or "SELL"
	Qty   float64 `json:"qty"`   // natural units
	Price float64 `json:"price"` // required for LIMIT
}

type PlaceOrderResponse struct {
	OrderID uint64 `json:"order_id"`
	Status  string `json:"status"`
}

type CancelOrderRequest struct {
	OrderID uint64 `json:"order_id"`
}

type CancelOrderResponse struct {
	OrderID uint64 `json:"order_id"`
	Status  string `json:"status"`
}

type TickRequest struct {
	TsMs  int64   `json:"ts_ms"`
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
	Side  string  `json:"side"`
}

type OrderInfo struct {
	ID    uint64  `json:"id"`
	Type  string  `json:"type"`
	Side  string  `json:"side"`
	Qty   float64 `json:"qty"`
	Price float64 `json:"price"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
