package api

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/backlab/ticksim/pkg/engine"
	"github.com/backlab/ticksim/pkg/replay"
	"github.com/backlab/ticksim/pkg/util"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	eng, err := engine.New(engine.Config{
		MakerFeeBps: 1, TakerFeeBps: 2, SpreadBps: 20,
		InitialCash: 100_000, TickSize: 1.0,
	}, &util.ManualClock{T: time.UnixMilli(1_700_000_000_000)})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return NewServer(replay.NewRunner(eng, nil, nil), nil)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if h := decode[HealthResponse](t, rec); h.Status != "ok" {
		t.Errorf("health = %+v", h)
	}
}

func TestSnapshotFresh(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/api/v1/snapshot", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	snap := decode[engine.Snapshot](t, rec)
	if snap.Cash != 100_000 || snap.Equity != 100_000 || snap.Position != 0 {
		t.Errorf("fresh snapshot = %+v", snap)
	}
}

func TestLimitOrderLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	// Place a resting limit buy.
	rec := doJSON(t, s, http.MethodPost, "/api/v1/orders", PlaceOrderRequest{
		Type: "LIMIT", Side: "BUY", Qty: 1, Price: 42_000,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("place: status = %d body = %s", rec.Code, rec.Body.String())
	}
	placed := decode[PlaceOrderResponse](t, rec)
	if placed.OrderID == 0 {
		t.Fatal("order ID not assigned")
	}

	// It should be visible as an open order.
	rec = doJSON(t, s, http.MethodGet, "/api/v1/orders", nil)
	orders := decode[[]OrderInfo](t, rec)
	if len(orders) != 1 || orders[0].ID != placed.OrderID || orders[0].Price != 42_000 {
		t.Fatalf("open orders = %+v", orders)
	}

	// A crossing tick fills it at the limit price.
	rec = doJSON(t, s, http.MethodPost, "/api/v1/ticks", TickRequest{
		TsMs: 1_700_000_000_500, Price: 41_990, Qty: 1, Side: "SELL",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("tick: status = %d body = %s", rec.Code, rec.Body.String())
	}
	snap := decode[engine.Snapshot](t, rec)
	if math.Abs(snap.Cash-57_995.8) > 1e-9 {
		t.Errorf("cash = %v, want 57995.8", snap.Cash)
	}
	if snap.Position != 1 || snap.AvgEntryPrice != 42_000 {
		t.Errorf("position = %v avg = %v", snap.Position, snap.AvgEntryPrice)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/orders", nil)
	if orders := decode[[]OrderInfo](t, rec); len(orders) != 0 {
		t.Errorf("order still open after fill: %+v", orders)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/fills", nil)
	fills := decode[[]engine.Fill](t, rec)
	if len(fills) != 1 || !fills[0].Maker || fills[0].Price != 42_000 {
		t.Errorf("fills = %+v", fills)
	}
}

func TestMarketOrderBeforeTickIsConflict(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/v1/orders", PlaceOrderRequest{
		Type: "MARKET", Side: "BUY", Qty: 1,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestPlaceOrderValidationErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		req  PlaceOrderRequest
		want int
	}{
		{"bad type", PlaceOrderRequest{Type: "STOP", Side: "BUY", Qty: 1, Price: 100}, http.StatusBadRequest},
		{"bad side", PlaceOrderRequest{Type: "LIMIT", Side: "LONG", Qty: 1, Price: 100}, http.StatusBadRequest},
		{"zero qty", PlaceOrderRequest{Type: "LIMIT", Side: "BUY", Qty: 0, Price: 100}, http.StatusBadRequest},
		{"negative qty", PlaceOrderRequest{Type: "LIMIT", Side: "BUY", Qty: -1, Price: 100}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, s, http.MethodPost, "/api/v1/orders", tt.req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestCancelOrder(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/orders", PlaceOrderRequest{
		Type: "LIMIT", Side: "BUY", Qty: 1, Price: 42_000,
	})
	placed := decode[PlaceOrderResponse](t, rec)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/orders/cancel", CancelOrderRequest{OrderID: placed.OrderID})
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: status = %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v1/orders/cancel", CancelOrderRequest{OrderID: placed.OrderID})
	if rec.Code != http.StatusNotFound {
		t.Errorf("double cancel: status = %d, want 404", rec.Code)
	}
}

func TestInvalidTickSideRejected(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/v1/ticks", TickRequest{
		TsMs: 1, Price: 42_000, Qty: 1, Side: "HOLD",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestMetricsAfterTicks(t *testing.T) {
	s := newTestServer(t)

	for _, price := range []float64{42_000, 42_100} {
		rec := doJSON(t, s, http.MethodPost, "/api/v1/ticks", TickRequest{
			TsMs: 1, Price: price, Qty: 1, Side: "BUY",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("tick: status = %d", rec.Code)
		}
	}

	rec := doJSON(t, s, http.MethodGet, "/api/v1/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: status = %d", rec.Code)
	}
	m := decode[replay.Metrics](t, rec)
	if m.TotalTrades != 0 || m.TotalReturn != 0 {
		t.Errorf("metrics with no trades = %+v", m)
	}
}
