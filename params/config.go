package params

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Engine holds the execution-engine parameters. All fee and spread rates
// are in basis points, tick size in quote-currency units.
type Engine struct {
	MakerFeeBps float64
	TakerFeeBps float64
	SpreadBps   float64
	InitialCash float64
	TickSize    float64
}

// Data configures the ingestion pipeline.
type Data struct {
	Path       string  // candle or aggTrades file to replay
	TickSize   float64 // price quantization unit for parsing
	BucketMs   int64   // tick aggregation bucket; 0 disables aggregation
	FeedBuffer int     // channel buffer between the feeder goroutine and the runner
	CachePath  string  // pebble candle cache directory; "" disables caching
	Symbol     string
}

// API configures the inspection HTTP server.
type API struct {
	ListenAddr string
}

type Config struct {
	Engine  Engine
	Data    Data
	API     API
	LogFile string
}

func Default() Config {
	return Config{
		Engine: Engine{
			MakerFeeBps: 1.0,
			TakerFeeBps: 2.0,
			SpreadBps:   2.0,
			InitialCash: 100_000,
			TickSize:    0.01,
		},
		Data: Data{
			TickSize:   0.01,
			BucketMs:   0,
			FeedBuffer: 1024,
			Symbol:     "BTC-USDT",
		},
		API: API{
			ListenAddr: ":8080",
		},
		LogFile: "",
	}
}

// LoadFromEnv loads configuration from a .env file (if it exists) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Optional .env file - won't fail if not present.
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	setFloat(&cfg.Engine.MakerFeeBps, "ENGINE_MAKER_FEE_BPS")
	setFloat(&cfg.Engine.TakerFeeBps, "ENGINE_TAKER_FEE_BPS")
	setFloat(&cfg.Engine.SpreadBps, "ENGINE_SPREAD_BPS")
	setFloat(&cfg.Engine.InitialCash, "ENGINE_INITIAL_CASH")
	setFloat(&cfg.Engine.TickSize, "ENGINE_TICK_SIZE")

	if v := os.Getenv("DATA_PATH"); v != "" {
		cfg.Data.Path = v
	}
	setFloat(&cfg.Data.TickSize, "DATA_TICK_SIZE")
	if v := os.Getenv("DATA_BUCKET_MS"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Data.BucketMs = ms
		}
	}
	if v := os.Getenv("DATA_FEED_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Data.FeedBuffer = n
		}
	}
	if v := os.Getenv("DATA_CACHE_PATH"); v != "" {
		cfg.Data.CachePath = v
	}
	if v := os.Getenv("DATA_SYMBOL"); v != "" {
		cfg.Data.Symbol = v
	}

	if v := os.Getenv("API_LISTEN_ADDR"); v != "" {
		cfg.API.ListenAddr = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.LogFile = v
	}

	return cfg
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
