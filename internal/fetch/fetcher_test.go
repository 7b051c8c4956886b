package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nkatlas/geofetch/internal/manifest"
)

func testEntry(url, dir, name string) manifest.Entry {
	return manifest.Entry{
		URL:      url,
		Filename: name,
		Path:     filepath.Join(dir, name),
	}
}

func TestFetch_SkipsExistingFile(t *testing.T) {
	dir := t.TempDir()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	entry := testEntry(srv.URL+"/a.tsv.gz", dir, "a.tsv.gz")
	if err := os.WriteFile(entry.Path, []byte("existing"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := New(nil, zap.NewNop())
	out := f.Fetch(context.Background(), entry)

	if out.Status != StatusSkipped {
		t.Errorf("Status = %v, want %v", out.Status, StatusSkipped)
	}
	if hits.Load() != 0 {
		t.Errorf("server hit %d times, want 0", hits.Load())
	}
}

func TestFetch_WritesAllBytes(t *testing.T) {
	dir := t.TempDir()
	payload := strings.Repeat("ACGT", 1000)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	entry := testEntry(srv.URL+"/matrix.mtx.gz", dir, "matrix.mtx.gz")

	// Chunk size far smaller than the payload to force many iterations.
	f := New(&Config{ChunkSize: 64}, zap.NewNop())
	out := f.Fetch(context.Background(), entry)

	if out.Status != StatusDownloaded {
		t.Fatalf("Status = %v (err %v), want %v", out.Status, out.Err, StatusDownloaded)
	}
	if out.Bytes != int64(len(payload)) {
		t.Errorf("Bytes = %d, want %d", out.Bytes, len(payload))
	}

	got, err := os.ReadFile(entry.Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != payload {
		t.Error("file content does not match served payload")
	}
}

func TestFetch_HTTPError(t *testing.T) {
	dir := t.TempDir()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not here", http.StatusNotFound)
	}))
	defer srv.Close()

	entry := testEntry(srv.URL+"/missing.gz", dir, "missing.gz")

	f := New(nil, zap.NewNop())
	out := f.Fetch(context.Background(), entry)

	if out.Status != StatusFailed {
		t.Errorf("Status = %v, want %v", out.Status, StatusFailed)
	}
	if out.Err == nil || !strings.Contains(out.Err.Error(), "404") {
		t.Errorf("Err = %v, want status in message", out.Err)
	}
	if _, err := os.Stat(entry.Path); !os.IsNotExist(err) {
		t.Error("destination should not exist after an HTTP error response")
	}
}

func TestFetch_NetworkError(t *testing.T) {
	dir := t.TempDir()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	entry := testEntry(url+"/gone.gz", dir, "gone.gz")

	f := New(nil, zap.NewNop())
	out := f.Fetch(context.Background(), entry)

	if out.Status != StatusFailed {
		t.Errorf("Status = %v, want %v", out.Status, StatusFailed)
	}
	if out.Err == nil {
		t.Error("Err = nil, want transport error")
	}
}

func TestFetch_TruncatedBodyLeavesPartialFile(t *testing.T) {
	dir := t.TempDir()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Declare more bytes than we send, then cut the connection.
		w.Header().Set("Content-Length", "4096")
		w.Write([]byte("partial data"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	defer srv.Close()

	entry := testEntry(srv.URL+"/cut.gz", dir, "cut.gz")

	f := New(&Config{Timeout: 5 * time.Second}, zap.NewNop())
	out := f.Fetch(context.Background(), entry)

	if out.Status != StatusFailed {
		t.Fatalf("Status = %v, want %v", out.Status, StatusFailed)
	}

	// Whatever made it to disk stays there; no cleanup on failure.
	info, err := os.Stat(entry.Path)
	if err != nil {
		t.Fatalf("partial file missing: %v", err)
	}
	if info.Size() != out.Bytes {
		t.Errorf("partial file size = %d, Outcome.Bytes = %d", info.Size(), out.Bytes)
	}
}

func TestFetch_SlowTransferOutlastsTimeout(t *testing.T) {
	dir := t.TempDir()
	chunk := strings.Repeat("N", 1024)
	const chunks = 5

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Keeps trickling bytes for well past the fetcher timeout.
		flusher := w.(http.Flusher)
		for i := 0; i < chunks; i++ {
			w.Write([]byte(chunk))
			flusher.Flush()
			time.Sleep(200 * time.Millisecond)
		}
	}))
	defer srv.Close()

	entry := testEntry(srv.URL+"/slow.mtx.gz", dir, "slow.mtx.gz")

	// Timeout far shorter than the full transfer: it bounds the wait for
	// headers, not the body read.
	f := New(&Config{Timeout: 500 * time.Millisecond}, zap.NewNop())
	out := f.Fetch(context.Background(), entry)

	if out.Status != StatusDownloaded {
		t.Fatalf("Status = %v (err %v), want %v", out.Status, out.Err, StatusDownloaded)
	}
	if out.Bytes != int64(chunks*len(chunk)) {
		t.Errorf("Bytes = %d, want %d", out.Bytes, chunks*len(chunk))
	}

	info, err := os.Stat(entry.Path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != out.Bytes {
		t.Errorf("file size = %d, Outcome.Bytes = %d", info.Size(), out.Bytes)
	}
}

func TestFetch_StalledResponseTimesOut(t *testing.T) {
	dir := t.TempDir()

	released := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Never sends headers until the test is over.
		<-released
	}))
	defer srv.Close()
	defer close(released)

	entry := testEntry(srv.URL+"/stalled.gz", dir, "stalled.gz")

	f := New(&Config{Timeout: 200 * time.Millisecond}, zap.NewNop())
	out := f.Fetch(context.Background(), entry)

	if out.Status != StatusFailed {
		t.Errorf("Status = %v, want %v", out.Status, StatusFailed)
	}
	if out.Err == nil {
		t.Error("Err = nil, want header timeout error")
	}
	if _, err := os.Stat(entry.Path); !os.IsNotExist(err) {
		t.Error("destination should not exist when no response arrived")
	}
}

func TestFetch_WithRateLimit(t *testing.T) {
	dir := t.TempDir()
	payload := strings.Repeat("x", 2048)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	entry := testEntry(srv.URL+"/throttled.gz", dir, "throttled.gz")

	// Generous limit: exercises the token-bucket path without slowing the test.
	f := New(&Config{RateLimit: 10 * 1024 * 1024}, zap.NewNop())
	out := f.Fetch(context.Background(), entry)

	if out.Status != StatusDownloaded {
		t.Fatalf("Status = %v (err %v), want %v", out.Status, out.Err, StatusDownloaded)
	}
	if out.Bytes != int64(len(payload)) {
		t.Errorf("Bytes = %d, want %d", out.Bytes, len(payload))
	}
}
