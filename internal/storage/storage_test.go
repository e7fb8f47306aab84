package storage_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pagelate/pagelate/internal/retry"
	"github.com/pagelate/pagelate/internal/storage"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func fastUploader(endpoint string) *storage.HTTPUploader {
	u := storage.NewHTTPUploader(endpoint, "", discard)
	u.SetRetryPolicy(retry.Policy{MaxAttempts: 4, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})
	return u
}

func TestHTTPUploader_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "png-bytes" {
			t.Errorf("body resent incorrectly on retry: %q", body)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	url, err := fastUploader(srv.URL).Upload(context.Background(), "batch/task/v1.png", []byte("png-bytes"), "image/png")
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
	if !strings.HasSuffix(url, "/batch/task/v1.png") {
		t.Errorf("unexpected artifact URL %q", url)
	}
}

func TestHTTPUploader_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	if _, err := fastUploader(srv.URL).Upload(context.Background(), "a.png", []byte("x"), "image/png"); err == nil {
		t.Fatal("expected error for 403 response")
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", calls.Load())
	}
}

func TestDirUploader_WritesArtifact(t *testing.T) {
	root := t.TempDir()
	u := &storage.DirUploader{Root: root}

	url, err := u.Upload(context.Background(), "batch/task/v1.png", []byte("png-bytes"), "image/png")
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if !strings.HasPrefix(url, "file://") {
		t.Errorf("expected file URL, got %q", url)
	}

	data, err := os.ReadFile(filepath.Join(root, "batch", "task", "v1.png"))
	if err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("artifact content = %q", data)
	}
}
