// Command ratecast evaluates forecasting models over a daily exchange-rate
// series.
//
// One run performs the full evaluation:
//
//  1. Fetch the series from the configured source (csv file or HTTP API)
//  2. Run stationarity, autocorrelation and decomposition diagnostics
//  3. Search the SARIMA and random-forest hyperparameter grids exhaustively
//  4. Fit the final model family and score it on the held-out partition
//  5. Store the ranked report, winning parameters and full trial log
//
// By default ratecast runs once, prints the ranked report and exits. With
// --serve it keeps running, re-evaluating at --interval and exposing the
// HTTP API (/report/latest, /trials, /healthz, /metrics).
//
// Usage:
//
//	ratecast --source csv [flags]
//
// Source-specific settings are passed via SOURCE_* environment variables,
// for example:
//
//	SOURCE_PATH=rates.csv ratecast --source csv --series usd-eur
//	SOURCE_URL=https://api.example.com/rates \
//	SOURCE_VALUE_PATH='rates.#.rate' \
//	SOURCE_DATE_PATH='rates.#.date' ratecast --source http --serve
//
// Environment variables (flags take precedence):
//
//	SERIES        Series name (default "rates")
//	SOURCE        Source kind: csv or http
//	TEST_FRACTION Held-out fraction (default 0.2)
//	LAGS          Lag feature count (default 5)
//	WINDOW        Rolling window (default 3)
//	PERIOD        Seasonal period (default 7)
//	WORKERS       Search workers (default NumCPU)
//	TRIALS_CSV    Trial CSV export base path
//	STORAGE       memory or redis
//	REDIS_ADDR    Redis server address
//	LISTEN        HTTP listen address (serve mode)
//	LOG_LEVEL     debug, info, warn, error
//	LOG_FORMAT    text or json
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fxlab/ratecast/cmd/ratecast/config"
	"github.com/fxlab/ratecast/cmd/ratecast/logger"
	"github.com/fxlab/ratecast/cmd/ratecast/metrics"
	"github.com/fxlab/ratecast/cmd/ratecast/router"
	"github.com/fxlab/ratecast/pkg/httpx"
	"github.com/fxlab/ratecast/pkg/sources"
	"github.com/fxlab/ratecast/pkg/storage"
	"github.com/fxlab/ratecast/pkg/tls"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg := config.ParseFlags()

	log := logger.New(cfg)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log.Info("starting ratecast",
		"version", version,
		"series", cfg.Series,
		"source", cfg.Source,
	)

	if _, ok := cfg.SourceConfig["series"]; !ok {
		cfg.SourceConfig["series"] = cfg.Series
	}

	// The same TLS material protects both surfaces: the serve-mode server
	// and outbound fetches from the rate API.
	client, err := httpx.NewClient(cfg.TLS, 10*time.Second)
	if err != nil {
		log.Error("failed to create HTTP client", "error", err)
		os.Exit(1)
	}

	source, err := sources.New(cfg.Source, cfg.SourceConfig, client)
	if err != nil {
		log.Error("failed to create source", "error", err)
		os.Exit(1)
	}

	store := newStore(cfg, log)
	if closer, ok := store.(interface{ Close() error }); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				log.Error("failed to close store", "error", err)
			}
		}()
	}

	pipeline := NewPipeline(
		cfg.Series,
		source,
		store,
		cfg.TestFraction,
		cfg.Lags,
		cfg.Window,
		cfg.Period,
		cfg.MaxLag,
		cfg.Workers,
		cfg.TrialsCSV,
		log,
		metrics.New(cfg.Series),
	)

	if !cfg.Serve {
		if err := runOnce(pipeline, store, cfg, log); err != nil {
			os.Exit(1)
		}
		return
	}

	serve(pipeline, store, cfg, log)
}

// runOnce executes a single evaluation run and prints the ranked report.
func runOnce(pipeline *Pipeline, store storage.Store, cfg *config.Config, log *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := pipeline.RunOnce(ctx); err != nil {
		log.Error("evaluation run failed", "error", err)
		return err
	}

	snapshot, found, err := store.GetLatest(ctx, cfg.Series)
	if err != nil {
		log.Error("failed to load stored snapshot", "error", err)
		return fmt.Errorf("load snapshot: %w", err)
	}
	if !found {
		log.Error("no snapshot stored for series", "series", cfg.Series)
		return fmt.Errorf("load snapshot: not found for series %q", cfg.Series)
	}

	if err := snapshot.Report.Render(os.Stdout); err != nil {
		log.Error("failed to render report", "error", err)
		return err
	}

	return nil
}

// serve runs the evaluation loop alongside the HTTP API until shutdown.
func serve(pipeline *Pipeline, store storage.Store, cfg *config.Config, log *slog.Logger) {
	staleAfter := 2 * cfg.Interval // Snapshot is stale if older than 2x the interval
	mux := router.SetupRoutes(store, cfg.Series, staleAfter, log)
	httpServer := httpx.NewServer(cfg.Listen, mux, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := pipeline.Run(ctx, cfg.Interval); err != nil && err != context.Canceled {
			log.Error("evaluation loop failed", "error", err)
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		if cfg.TLS.Enabled {
			if err := cfg.TLS.Validate(); err != nil {
				serverErr <- err
				return
			}
			tlsConfig, err := tls.NewServerTLSConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.CAFile)
			if err != nil {
				serverErr <- err
				return
			}
			httpServer.SetTLSConfig(tlsConfig)
			serverErr <- httpServer.StartTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
			return
		}
		serverErr <- httpServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			log.Error("server failed", "error", err)
		}
	}

	log.Info("shutting down")
	cancel()

	if err := httpServer.Stop(10 * time.Second); err != nil {
		log.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("shutdown complete")
}

// newStore creates the snapshot store from config.
func newStore(cfg *config.Config, log *slog.Logger) storage.Store {
	switch cfg.Storage {
	case "redis":
		store, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
		if err != nil {
			log.Error("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		log.Info("using redis storage", "addr", cfg.RedisAddr, "ttl", cfg.RedisTTL)
		return store

	default:
		log.Info("using in-memory storage")
		return storage.NewMemoryStore()
	}
}
