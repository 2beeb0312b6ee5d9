package ingest

import (
	"strings"
	"testing"
)

func TestNDJSONCanonicalKeys(t *testing.T) {
	data := `{"ts_open":1700000000000,"ts_close":1700000060000,"open":100,"high":110,"low":90,"close":105,"volume":2.5,"trades":12}` + "\n"

	p := NewNDJSONParser(strings.NewReader(data), 1.0)
	candles, recErrs := drainCandles(t, p)
	if len(recErrs) != 0 {
		t.Fatalf("unexpected record errors: %v", recErrs)
	}
	if len(candles) != 1 {
		t.Fatalf("got %d candles, want 1", len(candles))
	}

	c := candles[0]
	if c.TsOpen != 1700000000000 || c.TsClose != 1700000060000 {
		t.Errorf("timestamps = (%d, %d)", c.TsOpen, c.TsClose)
	}
	if c.OpenTick != 100 || c.HighTick != 110 || c.LowTick != 90 || c.CloseTick != 105 {
		t.Errorf("unexpected OHLC ticks: %+v", c)
	}
	if c.VolumeScaled != 2_500_000 {
		t.Errorf("VolumeScaled = %d, want 2500000", c.VolumeScaled)
	}
	if c.TradeCount != 12 {
		t.Errorf("TradeCount = %d, want 12", c.TradeCount)
	}
}

func TestNDJSONAliasesAndCase(t *testing.T) {
	data := `{"Time":1700000000000,"O":100,"H":110,"L":90,"C":105,"Vol":1}` + "\n"

	p := NewNDJSONParser(strings.NewReader(data), 1.0)
	candles, recErrs := drainCandles(t, p)
	if len(recErrs) != 0 {
		t.Fatalf("unexpected record errors: %v", recErrs)
	}
	if len(candles) != 1 {
		t.Fatalf("got %d candles, want 1", len(candles))
	}

	c := candles[0]
	if c.TsClose != c.TsOpen+60000 {
		t.Errorf("TsClose = %d, want open+60000", c.TsClose)
	}
	if c.TradeCount != 0 {
		t.Errorf("TradeCount = %d, want default 0", c.TradeCount)
	}
}

func TestNDJSONCloseTimeOnly(t *testing.T) {
	data := `{"close_time":1700000060000,"open":100,"high":110,"low":90,"close":105,"volume":1}` + "\n"

	p := NewNDJSONParser(strings.NewReader(data), 1.0)
	candles, _ := drainCandles(t, p)
	if len(candles) != 1 {
		t.Fatalf("got %d candles, want 1", len(candles))
	}
	if candles[0].TsOpen != 1700000000000 {
		t.Errorf("TsOpen = %d, want close-60000", candles[0].TsOpen)
	}
}

func TestNDJSONSkipsBlankAndBadLines(t *testing.T) {
	data := `{"ts":1700000000000,"open":100,"high":110,"low":90,"close":105,"volume":1}` + "\n" +
		"\n" +
		"{not json}\n" +
		`{"ts":1700000060000,"open":100,"high":110,"low":90,"close":105}` + "\n" + // missing volume
		`{"ts":1700000120000,"open":100,"high":110,"low":90,"close":105,"volume":1}` + "\n"

	p := NewNDJSONParser(strings.NewReader(data), 1.0)
	candles, recErrs := drainCandles(t, p)
	if len(candles) != 2 {
		t.Fatalf("got %d candles, want 2", len(candles))
	}
	if len(recErrs) != 2 {
		t.Fatalf("got %d record errors, want 2", len(recErrs))
	}
	if candles[1].TsOpen != 1700000120000 {
		t.Errorf("stream did not resume after bad lines: %d", candles[1].TsOpen)
	}
}

func TestNDJSONMissingTimestamp(t *testing.T) {
	data := `{"open":100,"high":110,"low":90,"close":105,"volume":1}` + "\n"

	p := NewNDJSONParser(strings.NewReader(data), 1.0)
	_, err := p.Next()
	if !IsRecordError(err) {
		t.Fatalf("expected record error, got %v", err)
	}
}
