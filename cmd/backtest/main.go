package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/backlab/ticksim/params"
	"github.com/backlab/ticksim/pkg/api"
	"github.com/backlab/ticksim/pkg/candle"
	"github.com/backlab/ticksim/pkg/engine"
	"github.com/backlab/ticksim/pkg/ingest"
	"github.com/backlab/ticksim/pkg/replay"
	"github.com/backlab/ticksim/pkg/storage"
	"github.com/backlab/ticksim/pkg/util"
)

func main() {
	var (
		dataPath  = flag.String("data", "", "candle file to replay (.csv/.json/.jsonl/.ndjson); overrides DATA_PATH")
		aggTrades = flag.Bool("aggtrades", false, "treat -data as a Binance aggTrades CSV and replay individual prints")
		jsonOut   = flag.String("out", "", "write full result JSON to this path")
		csvOut    = flag.String("equity", "", "write equity curve CSV to this path")
		fillsOut  = flag.String("fills", "", "append fills to this CSV journal")
		serveAddr = flag.String("serve", "", "after the run, serve the inspection API on this address")
		autoTick  = flag.Bool("auto-tick-size", false, "derive the engine tick size from the data instead of config")

		stratName = flag.String("strategy", "hold", "strategy to run: hold or threshold")
		buyBelow  = flag.Float64("buy-below", 0, "threshold strategy: market-buy at or below this price")
		sellAbove = flag.Float64("sell-above", 0, "threshold strategy: market-sell at or above this price")
		clipQty   = flag.Float64("qty", 1, "threshold strategy: clip size in base units")
	)
	flag.Parse()

	cfg := params.LoadFromEnv("")
	if *dataPath != "" {
		cfg.Data.Path = *dataPath
	}
	if cfg.Data.Path == "" {
		log.Fatal("no data file: set -data or DATA_PATH")
	}

	logger := newLogger(cfg.LogFile)
	defer logger.Sync()
	sugar := logger.Sugar()

	sugar.Infow("backtest_starting",
		"data", cfg.Data.Path,
		"symbol", cfg.Data.Symbol,
		"aggtrades", *aggTrades,
		"strategy", *stratName,
		"tick_size", cfg.Engine.TickSize,
		"initial_cash", cfg.Engine.InitialCash)

	engCfg := engine.Config{
		MakerFeeBps: cfg.Engine.MakerFeeBps,
		TakerFeeBps: cfg.Engine.TakerFeeBps,
		SpreadBps:   cfg.Engine.SpreadBps,
		InitialCash: cfg.Engine.InitialCash,
		TickSize:    cfg.Engine.TickSize,
	}

	var (
		ticks   []engine.Tick
		candles []candle.Candle
	)
	if *aggTrades {
		var err error
		ticks, err = loadTicks(cfg, sugar)
		if err != nil {
			sugar.Fatalw("load_data_failed", "err", err)
		}
		sugar.Infow("data_loaded", "ticks", len(ticks))
	} else if cfg.Data.CachePath != "" {
		var err error
		candles, err = loadCandles(cfg, sugar)
		if err != nil {
			sugar.Fatalw("load_data_failed", "err", err)
		}
		sugar.Infow("data_loaded", "candles", len(candles))
	}

	if *autoTick && len(candles) == 0 {
		sugar.Warnw("auto_tick_size_skipped", "reason", "needs cached candles; set DATA_CACHE_PATH")
	}
	if *autoTick && len(candles) > 0 {
		bars := make([]candle.Bar, len(candles))
		for i, c := range candles {
			bars[i] = c.ToBar(cfg.Data.TickSize)
		}
		if ts := replay.AutoTickSize(bars, 0, replay.DefaultTargetTicks); ts > 0 {
			engCfg.TickSize = ts
			sugar.Infow("auto_tick_size", "tick_size", ts)
		}
	}

	eng, err := engine.New(engCfg, util.RealClock{})
	if err != nil {
		sugar.Fatalw("engine_init_failed", "err", err)
	}

	strat, err := buildStrategy(*stratName, engCfg.TickSize, *buyBelow, *sellAbove, *clipQty)
	if err != nil {
		sugar.Fatalw("bad_strategy", "err", err)
	}

	runner := replay.NewRunner(eng, strat, logger)
	if *fillsOut != "" {
		journal, err := storage.NewFileJournal(*fillsOut)
		if err != nil {
			sugar.Fatalw("journal_open_failed", "err", err)
		}
		defer journal.Close()
		runner.SetJournal(journal)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *aggTrades:
		err = runner.RunTicks(ticks)
	case candles != nil:
		err = runner.RunCandles(candles)
	default:
		// No cache configured: stream the file through the feeder so
		// parsing overlaps replay.
		err = runFeed(ctx, cfg, runner, logger)
	}
	if err != nil {
		sugar.Fatalw("replay_failed", "err", err)
	}

	result := runner.Result()
	sugar.Infow("backtest_complete",
		"run_id", result.RunID,
		"events", runner.Processed(),
		"total_return", result.Metrics.TotalReturn,
		"max_drawdown", result.Metrics.MaxDrawdown,
		"trades", result.Metrics.TotalTrades)

	fmt.Println(result.Summary())

	if *jsonOut != "" {
		if err := result.WriteJSON(*jsonOut); err != nil {
			sugar.Fatalw("result_export_failed", "err", err)
		}
		sugar.Infow("result_written", "path", *jsonOut)
	}
	if *csvOut != "" {
		if err := result.WriteCSV(*csvOut); err != nil {
			sugar.Fatalw("equity_export_failed", "err", err)
		}
		sugar.Infow("equity_written", "path", *csvOut)
	}

	if cfg.Data.CachePath != "" {
		if err := saveRun(cfg.Data.CachePath, result, sugar); err != nil {
			sugar.Warnw("run_cache_failed", "err", err)
		}
	}

	if *serveAddr != "" {
		server := api.NewServer(runner, logger)
		go func() {
			if err := server.Start(*serveAddr); err != nil {
				sugar.Fatalw("api_server_failed", "err", err)
			}
		}()
		sugar.Infow("inspection_api_up", "addr", *serveAddr)
		<-ctx.Done()
	}
}

func buildStrategy(name string, tickSize, buyBelow, sellAbove, qty float64) (replay.Strategy, error) {
	switch name {
	case "hold":
		return replay.HoldStrategy{}, nil
	case "threshold":
		if buyBelow <= 0 || sellAbove <= buyBelow {
			return nil, fmt.Errorf("threshold needs 0 < -buy-below < -sell-above")
		}
		return &replay.ThresholdStrategy{
			BuyBelowTick:  int64(buyBelow / tickSize),
			SellAboveTick: int64(sellAbove / tickSize),
			QtyScaled:     int64(qty * engine.QtyScale),
		}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

// runFeed streams candles from the data file through a Feeder goroutine
// into the runner.
func runFeed(ctx context.Context, cfg params.Config, runner *replay.Runner, logger *zap.Logger) error {
	parser, err := ingest.Open(cfg.Data.Path, cfg.Data.TickSize)
	if err != nil {
		return err
	}
	defer parser.Close()

	feeder := ingest.NewFeeder(ingest.NewAdapter(parser), cfg.Data.FeedBuffer, logger)
	cancel := feeder.Start(ctx)
	defer cancel()

	return runner.RunFeed(ctx, feeder.Events())
}

// loadTicks reads an aggTrades CSV and optionally compresses the prints
// into (bucket, price, side) groups before replay.
func loadTicks(cfg params.Config, sugar *zap.SugaredLogger) ([]engine.Tick, error) {
	parser, f, err := ingest.OpenAggTrades(cfg.Data.Path, cfg.Data.TickSize)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var (
		ticks   []engine.Tick
		skipped int
	)
	for {
		t, err := parser.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if ingest.IsRecordError(err) {
				skipped++
				continue
			}
			return nil, err
		}
		ticks = append(ticks, t)
	}
	if skipped > 0 {
		sugar.Warnw("records_skipped", "count", skipped)
	}

	if cfg.Data.BucketMs > 0 {
		before := len(ticks)
		ticks = replay.AggregateTicks(ticks, cfg.Data.BucketMs)
		sugar.Infow("ticks_aggregated",
			"bucket_ms", cfg.Data.BucketMs,
			"before", before,
			"after", len(ticks))
	}
	return ticks, nil
}

// loadCandles reads bars from the pebble cache when warm, else parses
// the data file and fills the cache for next time.
func loadCandles(cfg params.Config, sugar *zap.SugaredLogger) ([]candle.Candle, error) {
	store, err := storage.NewStore(cfg.Data.CachePath)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	defer store.Close()

	n, err := store.CountCandles(cfg.Data.Symbol)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		sugar.Infow("cache_hit", "symbol", cfg.Data.Symbol, "candles", n)
		return store.LoadCandles(cfg.Data.Symbol, 0, 0)
	}

	parser, err := ingest.Open(cfg.Data.Path, cfg.Data.TickSize)
	if err != nil {
		return nil, err
	}
	defer parser.Close()

	adapter := ingest.NewAdapter(parser)
	var candles []candle.Candle
	metrics, err := adapter.Process(func(ev ingest.Event) error {
		if bar, ok := ev.(ingest.BarEvent); ok {
			candles = append(candles, candle.Candle(bar))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if metrics.Rejected > 0 || metrics.ParseErrors > 0 {
		sugar.Warnw("records_skipped",
			"rejected", metrics.Rejected,
			"parse_errors", metrics.ParseErrors)
	}

	if len(candles) > 0 {
		if err := store.PutCandleBatch(cfg.Data.Symbol, candles); err != nil {
			sugar.Warnw("cache_fill_failed", "err", err)
		} else {
			sugar.Infow("cache_filled", "candles", len(candles))
		}
	}
	return candles, nil
}

func saveRun(cachePath string, result *replay.Result, sugar *zap.SugaredLogger) error {
	store, err := storage.NewStore(cachePath)
	if err != nil {
		return err
	}
	defer store.Close()

	doc, err := result.Marshal()
	if err != nil {
		return err
	}
	if err := store.SaveRun(result.RunID, doc); err != nil {
		return err
	}
	sugar.Infow("run_cached", "run_id", result.RunID)
	return nil
}

func newLogger(logFile string) *zap.Logger {
	var logger *zap.Logger
	var err error
	if logFile != "" {
		logger, err = util.NewLoggerWithFile(logFile)
	} else {
		logger, err = util.NewLogger()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	return logger
}
