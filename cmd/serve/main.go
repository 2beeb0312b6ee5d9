package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/backlab/ticksim/params"
	"github.com/backlab/ticksim/pkg/api"
	"github.com/backlab/ticksim/pkg/engine"
	"github.com/backlab/ticksim/pkg/replay"
	"github.com/backlab/ticksim/pkg/util"
)

// serve starts a fresh paper-trading engine behind the HTTP/WebSocket
// API. Ticks are pushed over POST /api/v1/ticks, so the server is a
// sandbox for driving the engine interactively.
func main() {
	cfg := params.LoadFromEnv("")

	logger := newLogger(cfg.LogFile)
	defer logger.Sync()
	sugar := logger.Sugar()

	eng, err := engine.New(engine.Config{
		MakerFeeBps: cfg.Engine.MakerFeeBps,
		TakerFeeBps: cfg.Engine.TakerFeeBps,
		SpreadBps:   cfg.Engine.SpreadBps,
		InitialCash: cfg.Engine.InitialCash,
		TickSize:    cfg.Engine.TickSize,
	}, util.RealClock{})
	if err != nil {
		sugar.Fatalw("engine_init_failed", "err", err)
	}

	runner := replay.NewRunner(eng, replay.HoldStrategy{}, logger)
	server := api.NewServer(runner, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sugar.Infow("server_starting",
		"addr", cfg.API.ListenAddr,
		"initial_cash", cfg.Engine.InitialCash,
		"tick_size", cfg.Engine.TickSize)

	go func() {
		if err := server.Start(cfg.API.ListenAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	<-ctx.Done()
	sugar.Infow("server_stopping")
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
