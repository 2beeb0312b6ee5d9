package replay

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/backlab/ticksim/pkg/engine"
)

func TestComputeMetricsEmpty(t *testing.T) {
	m := ComputeMetrics(nil, nil, 100_000)
	if m != (Metrics{}) {
		t.Errorf("empty history should yield zero metrics, got %+v", m)
	}
}

func TestComputeMetricsEquityCurve(t *testing.T) {
	snapshots := []engine.Snapshot{
		{TsMs: 1, Equity: 100_000},
		{TsMs: 2, Equity: 110_000},
		{TsMs: 3, Equity: 99_000},
		{TsMs: 4, Equity: 105_000},
	}

	m := ComputeMetrics(snapshots, nil, 100_000)

	if math.Abs(m.TotalReturn-0.05) > 1e-9 {
		t.Errorf("TotalReturn = %v, want 0.05", m.TotalReturn)
	}
	// Peak 110k, trough 99k → drawdown -0.1.
	if math.Abs(m.MaxDrawdown-(-0.1)) > 1e-9 {
		t.Errorf("MaxDrawdown = %v, want -0.1", m.MaxDrawdown)
	}
	if m.TotalTrades != 0 || m.WinRate != 0 {
		t.Errorf("trade metrics should be zero without fills: %+v", m)
	}
}

func TestComputeMetricsFlatCurveHasZeroSharpe(t *testing.T) {
	snapshots := []engine.Snapshot{
		{Equity: 100_000}, {Equity: 100_000}, {Equity: 100_000},
	}
	m := ComputeMetrics(snapshots, nil, 100_000)
	if m.SharpeRatio != 0 {
		t.Errorf("SharpeRatio = %v, want 0 for flat curve", m.SharpeRatio)
	}
}

func TestTradePnLsRoundTrips(t *testing.T) {
	fills := []engine.Fill{
		{Side: engine.Buy, QtyScaled: engine.QtyScale, Price: 100},  // open long
		{Side: engine.Sell, QtyScaled: engine.QtyScale, Price: 110}, // close +10
		{Side: engine.Sell, QtyScaled: engine.QtyScale, Price: 120}, // open short
		{Side: engine.Buy, QtyScaled: engine.QtyScale, Price: 125},  // close -5
	}

	pnls := tradePnLs(fills)
	if len(pnls) != 2 {
		t.Fatalf("got %d trades, want 2", len(pnls))
	}
	if math.Abs(pnls[0]-10) > 1e-9 {
		t.Errorf("first trade pnl = %v, want 10", pnls[0])
	}
	if math.Abs(pnls[1]-(-5)) > 1e-9 {
		t.Errorf("second trade pnl = %v, want -5", pnls[1])
	}
}

func TestTradePnLsFlipCountsClosedPortion(t *testing.T) {
	fills := []engine.Fill{
		{Side: engine.Buy, QtyScaled: engine.QtyScale, Price: 100},
		// Sell 3: closes 1 at +20, opens short 2 at 120.
		{Side: engine.Sell, QtyScaled: 3 * engine.QtyScale, Price: 120},
		// Buy 2: closes the short at -10 each... price 125 → (120-125)*2 = -10.
		{Side: engine.Buy, QtyScaled: 2 * engine.QtyScale, Price: 125},
	}

	pnls := tradePnLs(fills)
	if len(pnls) != 2 {
		t.Fatalf("got %d trades, want 2", len(pnls))
	}
	if math.Abs(pnls[0]-20) > 1e-9 {
		t.Errorf("flip trade pnl = %v, want 20", pnls[0])
	}
	if math.Abs(pnls[1]-(-10)) > 1e-9 {
		t.Errorf("short close pnl = %v, want -10", pnls[1])
	}
}

func TestComputeMetricsTradeStats(t *testing.T) {
	snapshots := []engine.Snapshot{{Equity: 100_000}, {Equity: 100_005}}
	fills := []engine.Fill{
		{Side: engine.Buy, QtyScaled: engine.QtyScale, Price: 100},
		{Side: engine.Sell, QtyScaled: engine.QtyScale, Price: 110}, // +10
		{Side: engine.Buy, QtyScaled: engine.QtyScale, Price: 110},
		{Side: engine.Sell, QtyScaled: engine.QtyScale, Price: 105}, // -5
	}

	m := ComputeMetrics(snapshots, fills, 100_000)
	if m.TotalTrades != 2 {
		t.Fatalf("TotalTrades = %d, want 2", m.TotalTrades)
	}
	if math.Abs(m.WinRate-0.5) > 1e-9 {
		t.Errorf("WinRate = %v, want 0.5", m.WinRate)
	}
	if math.Abs(m.AvgTrade-2.5/100_000) > 1e-12 {
		t.Errorf("AvgTrade = %v, want 2.5e-5", m.AvgTrade)
	}
	if math.Abs(m.ProfitFactor-2.0) > 1e-9 {
		t.Errorf("ProfitFactor = %v, want 2", m.ProfitFactor)
	}
}

func TestResultExport(t *testing.T) {
	cfg := engine.Config{
		MakerFeeBps: 10, TakerFeeBps: 20, SpreadBps: 20,
		InitialCash: 100_000, TickSize: 1.0,
	}
	snapshots := []engine.Snapshot{
		{TsMs: 1, Cash: 100_000, Equity: 100_000},
		{TsMs: 2, Cash: 100_100, Equity: 100_100},
	}

	res := NewResult(cfg, "hold", snapshots, nil)
	if res.RunID == "" {
		t.Fatal("empty run ID")
	}

	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "result.json")
	if err := res.WriteJSON(jsonPath); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var decoded Result
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal exported result: %v", err)
	}
	if decoded.RunID != res.RunID || len(decoded.Snapshots) != 2 {
		t.Errorf("export round trip mismatch: %+v", decoded)
	}

	csvPath := filepath.Join(dir, "equity.csv")
	if err := res.WriteCSV(csvPath); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	raw, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d CSV lines, want header + 2 rows", len(lines))
	}
	if lines[0] != "timestamp,equity,cash,position,realized_pnl,unrealized_pnl" {
		t.Errorf("unexpected header: %q", lines[0])
	}
}
