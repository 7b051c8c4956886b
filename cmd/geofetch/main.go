package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/nkatlas/geofetch/internal/config"
	"github.com/nkatlas/geofetch/internal/fetch"
	"github.com/nkatlas/geofetch/internal/history"
	"github.com/nkatlas/geofetch/internal/logger"
	"github.com/nkatlas/geofetch/internal/manifest"
	"github.com/nkatlas/geofetch/internal/run"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional)")
	dataDir := flag.String("data-dir", "", "Override data directory")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *dataDir != "" {
		cfg.Data.Dir = *dataDir
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting geofetch",
		zap.String("version", version),
		zap.String("series", manifest.SeriesAccession),
		zap.String("data_dir", cfg.Data.Dir),
	)

	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		log.Fatal("failed to open history database",
			zap.Error(err), zap.String("path", cfg.HistoryPath()))
	}
	defer store.Close()

	fetcher := fetch.New(&fetch.Config{
		Timeout:      cfg.Fetch.GetTimeout(),
		ChunkSize:    cfg.Fetch.GetChunkSize(),
		RateLimit:    cfg.Fetch.GetRateLimit(),
		ShowProgress: cfg.Fetch.Progress,
	}, log)

	runner := run.New(cfg.Data.Dir, fetcher, store, os.Stdout, log)

	// Per-file failures are reported inline and in the stats; they never
	// change the exit code.
	if _, err := runner.Run(context.Background(), manifest.Build(cfg.Data.Dir)); err != nil {
		log.Error("run finished with error", zap.Error(err))
	}
}
