package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/backlab/ticksim/pkg/candle"
	"github.com/backlab/ticksim/pkg/engine"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testCandle(tsOpen int64) candle.Candle {
	return candle.Candle{
		TsOpen:       tsOpen,
		TsClose:      tsOpen + 60_000,
		OpenTick:     42000,
		HighTick:     42100,
		LowTick:      41900,
		CloseTick:    42050,
		VolumeScaled: 1_500_000,
		TradeCount:   10,
	}
}

func TestCandleRoundTrip(t *testing.T) {
	s := newTestStore(t)

	want := testCandle(1_700_000_000_000)
	if err := s.PutCandle("BTC-USDT", want); err != nil {
		t.Fatalf("PutCandle: %v", err)
	}

	got, ok, err := s.GetCandle("BTC-USDT", want.TsOpen)
	if err != nil {
		t.Fatalf("GetCandle: %v", err)
	}
	if !ok {
		t.Fatal("candle not found")
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}

	if _, ok, _ := s.GetCandle("BTC-USDT", want.TsOpen+1); ok {
		t.Error("found candle at wrong timestamp")
	}
	if _, ok, _ := s.GetCandle("ETH-USDT", want.TsOpen); ok {
		t.Error("found candle under wrong symbol")
	}
}

func TestPutCandleRejectsInvalid(t *testing.T) {
	s := newTestStore(t)

	bad := testCandle(1_700_000_000_000)
	bad.LowTick = bad.HighTick + 1
	if err := s.PutCandle("BTC-USDT", bad); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestScanCandlesOrderedAndBounded(t *testing.T) {
	s := newTestStore(t)

	base := int64(1_700_000_000_000)
	// Insert out of order; the scan must come back sorted.
	for _, off := range []int64{3, 0, 4, 1, 2} {
		if err := s.PutCandle("BTC-USDT", testCandle(base+off*60_000)); err != nil {
			t.Fatalf("PutCandle: %v", err)
		}
	}

	all, err := s.LoadCandles("BTC-USDT", 0, 0)
	if err != nil {
		t.Fatalf("LoadCandles: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("got %d candles, want 5", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].TsOpen <= all[i-1].TsOpen {
			t.Fatalf("scan out of order at %d: %d after %d", i, all[i].TsOpen, all[i-1].TsOpen)
		}
	}

	window, err := s.LoadCandles("BTC-USDT", base+60_000, base+3*60_000)
	if err != nil {
		t.Fatalf("LoadCandles window: %v", err)
	}
	if len(window) != 3 {
		t.Fatalf("got %d candles in window, want 3", len(window))
	}
	if window[0].TsOpen != base+60_000 || window[2].TsOpen != base+3*60_000 {
		t.Errorf("window bounds wrong: %d .. %d", window[0].TsOpen, window[2].TsOpen)
	}
}

func TestPutCandleBatchAndCount(t *testing.T) {
	s := newTestStore(t)

	base := int64(1_700_000_000_000)
	var batch []candle.Candle
	for i := int64(0); i < 10; i++ {
		batch = append(batch, testCandle(base+i*60_000))
	}
	if err := s.PutCandleBatch("BTC-USDT", batch); err != nil {
		t.Fatalf("PutCandleBatch: %v", err)
	}

	n, err := s.CountCandles("BTC-USDT")
	if err != nil {
		t.Fatalf("CountCandles: %v", err)
	}
	if n != 10 {
		t.Errorf("count = %d, want 10", n)
	}

	n, err = s.CountCandles("ETH-USDT")
	if err != nil {
		t.Fatalf("CountCandles: %v", err)
	}
	if n != 0 {
		t.Errorf("count for other symbol = %d, want 0", n)
	}
}

func TestRunRoundTrip(t *testing.T) {
	s := newTestStore(t)

	doc := []byte(`{"total_return":0.05}`)
	if err := s.SaveRun("run-1", doc); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := s.SaveRun("run-2", doc); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, ok, err := s.LoadRun("run-1")
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	if !ok || string(got) != string(doc) {
		t.Errorf("LoadRun = %q ok=%v", got, ok)
	}

	if _, ok, _ := s.LoadRun("missing"); ok {
		t.Error("found missing run")
	}

	ids, err := s.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(ids) != 2 || ids[0] != "run-1" || ids[1] != "run-2" {
		t.Errorf("ListRuns = %v", ids)
	}
}

func TestFileJournalAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fills.csv")
	j, err := NewFileJournal(path)
	if err != nil {
		t.Fatalf("NewFileJournal: %v", err)
	}

	j.Append(engine.Fill{
		OrderID: 1, TsMs: 1_700_000_000_000, Side: engine.Buy,
		QtyScaled: engine.QtyScale, Price: 42000, Fee: 4.2, Maker: true,
	})
	j.Append(engine.Fill{
		OrderID: 2, TsMs: 1_700_000_060_000, Side: engine.Sell,
		QtyScaled: engine.QtyScale, Price: 42100, Fee: 8.42, Maker: false,
	})
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if !strings.Contains(lines[0], "42000") || !strings.Contains(lines[0], "true") {
		t.Errorf("unexpected first line: %q", lines[0])
	}
}
