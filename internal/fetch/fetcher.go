package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/juju/ratelimit"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/nkatlas/geofetch/internal/manifest"
)

// Status classifies the result of a single fetch attempt.
type Status string

const (
	StatusDownloaded Status = "downloaded"
	StatusSkipped    Status = "skipped"
	StatusFailed     Status = "failed"
)

// Outcome reports what a single Fetch call did. Errors are carried here
// rather than returned: a failed file never aborts the run.
type Outcome struct {
	Status Status
	Bytes  int64
	Err    error
}

// Config holds fetcher settings
type Config struct {
	// Timeout bounds connecting and waiting for response headers. A
	// transfer that keeps making progress is never cut off, however
	// long it runs.
	Timeout      time.Duration
	ChunkSize    int
	RateLimit    int64 // bytes per second, 0 = unlimited
	ShowProgress bool
}

// Fetcher downloads manifest entries one at a time over plain HTTPS GET.
type Fetcher struct {
	client       *http.Client
	chunkSize    int
	bucket       *ratelimit.Bucket
	showProgress bool
	logger       *zap.Logger
}

// New creates a new Fetcher
func New(cfg *Config, logger *zap.Logger) *Fetcher {
	if cfg == nil {
		cfg = &Config{}
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 32 * 1024
	}

	var bucket *ratelimit.Bucket
	if cfg.RateLimit > 0 {
		bucket = ratelimit.NewBucketWithRate(float64(cfg.RateLimit), cfg.RateLimit)
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: timeout,
		}).DialContext,
		TLSHandshakeTimeout: timeout,
		ForceAttemptHTTP2:   true,

		// Response header timeout (not total download timeout)
		ResponseHeaderTimeout: timeout,
	}

	return &Fetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   0, // No timeout for downloads
		},
		chunkSize:    chunkSize,
		bucket:       bucket,
		showProgress: cfg.ShowProgress,
		logger:       logger,
	}
}

// Fetch downloads one entry to its destination path. A destination that
// already exists is skipped without a network call. A failed transfer
// leaves whatever bytes were written in place; a later run treats the
// partial file as present and skips it.
func (f *Fetcher) Fetch(ctx context.Context, entry manifest.Entry) Outcome {
	if _, err := os.Stat(entry.Path); err == nil {
		f.logger.Debug("destination exists, skipping",
			zap.String("file", entry.Filename))
		return Outcome{Status: StatusSkipped}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, entry.URL, nil)
	if err != nil {
		return Outcome{Status: StatusFailed, Err: fmt.Errorf("build request: %w", err)}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Outcome{Status: StatusFailed, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Outcome{Status: StatusFailed, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	out, err := os.Create(entry.Path)
	if err != nil {
		return Outcome{Status: StatusFailed, Err: fmt.Errorf("create file: %w", err)}
	}

	var body io.Reader = resp.Body
	if f.bucket != nil {
		body = ratelimit.Reader(resp.Body, f.bucket)
	}

	var bar *progressbar.ProgressBar
	if f.showProgress {
		// ContentLength is -1 when the server omits the header, which
		// progressbar renders as an indeterminate spinner.
		bar = progressbar.DefaultBytes(resp.ContentLength, entry.Filename)
		defer bar.Close()
	}

	written, copyErr := f.copyChunks(out, body, bar)
	closeErr := out.Close()

	if copyErr != nil {
		return Outcome{Status: StatusFailed, Bytes: written, Err: fmt.Errorf("transfer failed: %w", copyErr)}
	}
	if closeErr != nil {
		return Outcome{Status: StatusFailed, Bytes: written, Err: fmt.Errorf("close file: %w", closeErr)}
	}

	f.logger.Debug("fetched",
		zap.String("file", entry.Filename),
		zap.Int64("bytes", written))

	return Outcome{Status: StatusDownloaded, Bytes: written}
}

// copyChunks streams src to dst in fixed-size chunks, advancing the
// progress bar by the bytes actually written.
func (f *Fetcher) copyChunks(dst io.Writer, src io.Reader, bar *progressbar.ProgressBar) (int64, error) {
	buf := make([]byte, f.chunkSize)
	var written int64

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			wn, writeErr := dst.Write(buf[:n])
			written += int64(wn)
			if bar != nil {
				bar.Add(wn)
			}
			if writeErr != nil {
				return written, writeErr
			}
			if wn < n {
				return written, io.ErrShortWrite
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}
