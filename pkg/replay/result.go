package replay

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/backlab/ticksim/pkg/engine"
)

// Metrics summarizes run performance. Returns and drawdown are decimals
// (0.05 = 5%); MaxDrawdown is zero or negative.
type Metrics struct {
	TotalReturn  float64 `json:"total_return"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
	WinRate      float64 `json:"win_rate"`
	TotalTrades  int     `json:"total_trades"`
	AvgTrade     float64 `json:"avg_trade"`
	ProfitFactor float64 `json:"profit_factor"`
}

// Result is the full report of one backtest run.
type Result struct {
	RunID     string            `json:"run_id"`
	Strategy  string            `json:"strategy"`
	CreatedAt time.Time         `json:"created_at"`
	Config    engine.Config     `json:"config"`
	Snapshots []engine.Snapshot `json:"snapshots"`
	Fills     []engine.Fill     `json:"fills"`
	Metrics   Metrics           `json:"metrics"`
}

// NewResult assigns a fresh run ID and computes metrics over the
// snapshot history and fill log.
func NewResult(cfg engine.Config, strategy string, snapshots []engine.Snapshot, fills []engine.Fill) *Result {
	return &Result{
		RunID:     uuid.NewString(),
		Strategy:  strategy,
		CreatedAt: time.Now().UTC(),
		Config:    cfg,
		Snapshots: snapshots,
		Fills:     fills,
		Metrics:   ComputeMetrics(snapshots, fills, cfg.InitialCash),
	}
}

// ComputeMetrics derives performance numbers from the equity curve and
// the fill log. An empty history yields all zeros.
func ComputeMetrics(snapshots []engine.Snapshot, fills []engine.Fill, initialEquity float64) Metrics {
	var m Metrics
	if len(snapshots) == 0 {
		return m
	}

	if snapshots[0].Equity != 0 {
		initialEquity = snapshots[0].Equity
	}
	if initialEquity > 0 {
		m.TotalReturn = (snapshots[len(snapshots)-1].Equity - initialEquity) / initialEquity
	}

	runningMax := snapshots[0].Equity
	for _, s := range snapshots {
		if s.Equity > runningMax {
			runningMax = s.Equity
		}
		if runningMax > 0 {
			if dd := (s.Equity - runningMax) / runningMax; dd < m.MaxDrawdown {
				m.MaxDrawdown = dd
			}
		}
	}

	m.SharpeRatio = sharpe(snapshots)

	pnls := tradePnLs(fills)
	m.TotalTrades = len(pnls)
	if len(pnls) > 0 {
		var wins int
		var sum, grossProfit, grossLoss float64
		for _, pnl := range pnls {
			sum += pnl
			if pnl > 0 {
				wins++
				grossProfit += pnl
			} else if pnl < 0 {
				grossLoss += -pnl
			}
		}
		m.WinRate = float64(wins) / float64(len(pnls))
		if initialEquity > 0 {
			m.AvgTrade = sum / float64(len(pnls)) / initialEquity
		}
		switch {
		case grossLoss > 0:
			m.ProfitFactor = grossProfit / grossLoss
		case grossProfit > 0:
			m.ProfitFactor = math.Inf(1)
		}
	}
	return m
}

// sharpe is the annualized ratio of mean to stddev of per-snapshot
// equity returns, with a daily-bar assumption (√252).
func sharpe(snapshots []engine.Snapshot) float64 {
	if len(snapshots) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(snapshots)-1)
	for i := 1; i < len(snapshots); i++ {
		prev := snapshots[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, (snapshots[i].Equity-prev)/prev)
	}
	if len(returns) == 0 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))

	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(252)
}

// tradePnLs reconstructs per-trade realized PnL from the fill log,
// tracking average entry the same way the engine's ledger does. Each
// reducing fill is one trade; fees are not netted here because they are
// already reflected in the equity curve.
func tradePnLs(fills []engine.Fill) []float64 {
	var pnls []float64
	var position int64
	var avgEntry float64

	for _, f := range fills {
		delta := f.QtyScaled
		if f.Side == engine.Sell {
			delta = -delta
		}

		if position == 0 || (position > 0) == (delta > 0) {
			newPos := position + delta
			if newPos != 0 {
				avgEntry = (avgEntry*math.Abs(float64(position)) + f.Price*math.Abs(float64(delta))) /
					math.Abs(float64(newPos))
			}
			position = newPos
			continue
		}

		posAbs := position
		if posAbs < 0 {
			posAbs = -posAbs
		}
		closed := f.QtyScaled
		if closed > posAbs {
			closed = posAbs
		}

		direction := 1.0
		if position < 0 {
			direction = -1.0
		}
		pnls = append(pnls, float64(closed)/engine.QtyScale*(f.Price-avgEntry)*direction)

		position += delta
		if position == 0 {
			avgEntry = 0
		} else if (position > 0) == (delta > 0) {
			// Flipped through zero; remainder opens at the fill price.
			avgEntry = f.Price
		}
	}
	return pnls
}

// Marshal renders the result document as indented JSON.
func (r *Result) Marshal() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// WriteJSON exports the full result document.
func (r *Result) WriteJSON(path string) error {
	doc, err := r.Marshal()
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return os.WriteFile(path, doc, 0o644)
}

// WriteCSV exports the equity curve, one row per snapshot.
func (r *Result) WriteCSV(path string) error {
	var b strings.Builder
	b.WriteString("timestamp,equity,cash,position,realized_pnl,unrealized_pnl\n")
	for _, s := range r.Snapshots {
		fmt.Fprintf(&b, "%d,%g,%g,%g,%g,%g\n",
			s.TsMs, s.Equity, s.Cash, s.Position, s.RealizedPnL, s.UnrealizedPnL)
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// Summary renders the human-readable run report.
func (r *Result) Summary() string {
	m := r.Metrics
	return fmt.Sprintf(`Backtest Results (%s)
---------------------
Total Return: %.2f%%
Max Drawdown: %.2f%%
Sharpe Ratio: %.2f
Win Rate:     %.2f%%
Total Trades: %d
Avg Trade:    %.6f`,
		r.RunID,
		m.TotalReturn*100, m.MaxDrawdown*100, m.SharpeRatio,
		m.WinRate*100, m.TotalTrades, m.AvgTrade)
}
