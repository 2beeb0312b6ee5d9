// Package api exposes a running backtest engine over HTTP for
// interactive driving and inspection: manual ticks and orders in,
// snapshots, open orders and run metrics out.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/backlab/ticksim/pkg/engine"
	"github.com/backlab/ticksim/pkg/replay"
)

// Server serializes all engine access behind one mutex; the engine
// itself is single-threaded by contract.
type Server struct {
	mu     sync.Mutex
	runner *replay.Runner
	router *mux.Router
	hub    *Hub
	log    *zap.Logger
}

func NewServer(runner *replay.Runner, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		runner: runner,
		router: mux.NewRouter(),
		hub:    NewHub(log),
		log:    log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/snapshot", s.handleGetSnapshot).Methods("GET")
	api.HandleFunc("/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/fills", s.handleGetFills).Methods("GET")
	api.HandleFunc("/metrics", s.handleGetMetrics).Methods("GET")

	api.HandleFunc("/orders", s.handlePlaceOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/ticks", s.handleTick).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the full middleware-wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start runs the server until the listener fails.
func (s *Server) Start(addr string) error {
	go s.hub.Run()
	s.log.Info("api server starting", zap.String("addr", addr))
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, HealthResponse{Status: "ok"})
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	snap := s.runner.Engine().GetSnapshot()
	s.mu.Unlock()
	respondJSON(w, snap)
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	orders := s.runner.Engine().OpenOrders()
	tickSize := s.runner.Engine().Config().TickSize
	s.mu.Unlock()

	out := make([]OrderInfo, len(orders))
	for i, o := range orders {
		out[i] = OrderInfo{
			ID:    o.ID,
			Type:  o.Type.String(),
			Side:  o.Side.String(),
			Qty:   float64(o.QtyScaled) / engine.QtyScale,
			Price: float64(o.PriceTick) * tickSize,
		}
	}
	respondJSON(w, out)
}

func (s *Server) handleGetFills(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	fills := s.runner.Engine().Fills()
	s.mu.Unlock()
	respondJSON(w, fills)
}

func (s *Server) handleGetMetrics(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	res := s.runner.Result()
	s.mu.Unlock()
	respondJSON(w, res.Metrics)
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	typ, err := engine.ParseOrderType(req.Type)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order type", err.Error())
		return
	}
	side, err := engine.ParseSide(req.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid side", err.Error())
		return
	}

	s.mu.Lock()
	tickSize := s.runner.Engine().Config().TickSize
	id, err := s.runner.Engine().PlaceOrder(typ, side, scaleQty(req.Qty), quantize(req.Price, tickSize))
	s.mu.Unlock()
	if err != nil {
		respondEngineError(w, err)
		return
	}

	s.log.Info("order placed",
		zap.Uint64("order_id", id),
		zap.String("type", req.Type),
		zap.String("side", req.Side),
		zap.Float64("qty", req.Qty))
	s.broadcastSnapshot()
	respondJSON(w, PlaceOrderResponse{OrderID: id, Status: "accepted"})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	s.mu.Lock()
	err := s.runner.Engine().CancelOrder(req.OrderID)
	s.mu.Unlock()
	if err != nil {
		respondEngineError(w, err)
		return
	}

	s.log.Info("order cancelled", zap.Uint64("order_id", req.OrderID))
	respondJSON(w, CancelOrderResponse{OrderID: req.OrderID, Status: "cancelled"})
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	var req TickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	side, err := engine.ParseSide(req.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid side", err.Error())
		return
	}

	s.mu.Lock()
	tickSize := s.runner.Engine().Config().TickSize
	err = s.runner.StepTick(engine.Tick{
		TsMs:      req.TsMs,
		PriceTick: quantize(req.Price, tickSize),
		QtyScaled: scaleQty(req.Qty),
		Side:      side,
	})
	snap := s.runner.Engine().GetSnapshot()
	s.mu.Unlock()
	if err != nil {
		respondEngineError(w, err)
		return
	}

	s.broadcastSnapshot()
	respondJSON(w, snap)
}

func (s *Server) broadcastSnapshot() {
	s.mu.Lock()
	snap := s.runner.Engine().GetSnapshot()
	s.mu.Unlock()
	s.hub.Broadcast(snap)
}

// quantize converts a natural price to integer ticks exactly.
func quantize(price, tickSize float64) int64 {
	return decimal.NewFromFloat(price).Div(decimal.NewFromFloat(tickSize)).Round(0).IntPart()
}

func scaleQty(qty float64) int64 {
	return decimal.NewFromFloat(qty).Mul(decimal.NewFromInt(engine.QtyScale)).Round(0).IntPart()
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errStr, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: errStr, Message: message})
}

// respondEngineError maps the engine's error taxonomy to HTTP statuses.
func respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "order not found", err.Error())
	case errors.Is(err, engine.ErrNoMarketPrice):
		respondError(w, http.StatusConflict, "no market price yet", err.Error())
	default:
		respondError(w, http.StatusBadRequest, "rejected", err.Error())
	}
}
