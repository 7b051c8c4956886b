package run

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/nkatlas/geofetch/internal/fetch"
	"github.com/nkatlas/geofetch/internal/history"
	"github.com/nkatlas/geofetch/internal/inventory"
	"github.com/nkatlas/geofetch/internal/manifest"
)

// Fetcher fetches one manifest entry.
type Fetcher interface {
	Fetch(ctx context.Context, entry manifest.Entry) fetch.Outcome
}

// Recorder persists fetch attempts.
type Recorder interface {
	RecordFetch(rec *history.FetchRecord) error
}

// Stats aggregates one run's outcomes.
type Stats struct {
	Downloaded int
	Skipped    int
	Failed     int
	Bytes      int64
}

// Runner walks the manifest sequentially, fetching each entry best-effort
// and printing the inventory summary at the end. A failed entry never
// stops the run.
type Runner struct {
	dataDir string
	fetcher Fetcher
	history Recorder // nil disables history
	out     io.Writer
	logger  *zap.Logger
}

// New creates a new Runner
func New(dataDir string, fetcher Fetcher, recorder Recorder, out io.Writer, logger *zap.Logger) *Runner {
	return &Runner{
		dataDir: dataDir,
		fetcher: fetcher,
		history: recorder,
		out:     out,
		logger:  logger,
	}
}

// Run executes the full manifest: series files, then sample files, then
// the summary. The returned error covers setup and summary problems only;
// per-file failures are counted in Stats.
func (r *Runner) Run(ctx context.Context, m manifest.Manifest) (*Stats, error) {
	if err := os.MkdirAll(r.dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	stats := &Stats{}

	inventory.Banner(r.out, "Downloading CITE-seq data ("+manifest.SeriesAccession+")")
	r.fetchAll(ctx, m.Series, stats)

	inventory.Banner(r.out, "Downloading ADT (protein) data")
	r.fetchAll(ctx, m.Samples, stats)

	inventory.Banner(r.out, "Download Summary")
	inv, err := inventory.Scan(r.dataDir)
	if err != nil {
		return stats, fmt.Errorf("failed to take inventory: %w", err)
	}
	inv.WriteSummary(r.out)

	r.logger.Info("run complete",
		zap.Int("downloaded", stats.Downloaded),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.String("fetched", humanize.Bytes(uint64(stats.Bytes))))

	return stats, nil
}

func (r *Runner) fetchAll(ctx context.Context, entries []manifest.Entry, stats *Stats) {
	for _, entry := range entries {
		started := time.Now()

		if _, err := os.Stat(entry.Path); err != nil {
			fmt.Fprintf(r.out, "Downloading: %s\n", entry.Filename)
		}

		outcome := r.fetcher.Fetch(ctx, entry)

		switch outcome.Status {
		case fetch.StatusSkipped:
			stats.Skipped++
			fmt.Fprintf(r.out, "Already exists: %s\n", entry.Filename)
		case fetch.StatusDownloaded:
			stats.Downloaded++
			stats.Bytes += outcome.Bytes
			r.logger.Info("downloaded",
				zap.String("file", entry.Filename),
				zap.String("size", humanize.Bytes(uint64(outcome.Bytes))))
		case fetch.StatusFailed:
			stats.Failed++
			fmt.Fprintf(r.out, "  Error: %v\n", outcome.Err)
			r.logger.Warn("fetch failed",
				zap.String("file", entry.Filename),
				zap.Error(outcome.Err))
		}

		r.record(entry, outcome, started)
	}
}

// record writes the attempt to history. History problems are logged and
// swallowed; they must not affect the run.
func (r *Runner) record(entry manifest.Entry, outcome fetch.Outcome, started time.Time) {
	if r.history == nil {
		return
	}

	rec := &history.FetchRecord{
		URL:        entry.URL,
		Filename:   entry.Filename,
		Status:     string(outcome.Status),
		Bytes:      outcome.Bytes,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if outcome.Err != nil {
		rec.Error = outcome.Err.Error()
	}

	if err := r.history.RecordFetch(rec); err != nil {
		r.logger.Warn("failed to record fetch history",
			zap.String("file", entry.Filename),
			zap.Error(err))
	}
}
