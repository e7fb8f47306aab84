// Package storage uploads generated artifacts and hands back public URLs.
// The core only ever holds references; it never owns persistent storage.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pagelate/pagelate/internal/retry"
)

// Uploader is the narrow storage-service contract.
type Uploader interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
}

// HTTPUploader PUTs artifacts to a storage endpoint that serves them back
// under a public base URL. Transient failures (network, 429, 5xx) are
// retried with backoff.
type HTTPUploader struct {
	endpoint  string
	publicURL string
	client    *http.Client
	policy    retry.Policy
	logger    *slog.Logger
}

// NewHTTPUploader creates an uploader. publicURL defaults to endpoint.
func NewHTTPUploader(endpoint, publicURL string, logger *slog.Logger) *HTTPUploader {
	if publicURL == "" {
		publicURL = endpoint
	}
	return &HTTPUploader{
		endpoint:  strings.TrimSuffix(endpoint, "/"),
		publicURL: strings.TrimSuffix(publicURL, "/"),
		client:    &http.Client{Timeout: 60 * time.Second},
		policy:    retry.DefaultPolicy,
		logger:    logger,
	}
}

// SetRetryPolicy overrides the backoff budget; tests use a fast policy.
func (u *HTTPUploader) SetRetryPolicy(p retry.Policy) { u.policy = p }

func (u *HTTPUploader) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	err := u.policy.Do(ctx, u.logger, "artifact upload", func(ctx context.Context) error {
		return u.put(ctx, path, data, contentType)
	})
	if err != nil {
		return "", err
	}
	return u.publicURL + "/" + strings.TrimPrefix(path, "/"), nil
}

func (u *HTTPUploader) put(ctx context.Context, path string, data []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		u.endpoint+"/"+strings.TrimPrefix(path, "/"), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("storage returned status %d: %w", resp.StatusCode, retry.ErrRateLimited)
	case resp.StatusCode >= 500:
		return fmt.Errorf("storage returned status %d: %w", resp.StatusCode, retry.ErrServerSide)
	default:
		return fmt.Errorf("storage returned status %d", resp.StatusCode)
	}
}

// DirUploader writes artifacts to a local directory and returns file:// URLs.
// Used in development and tests.
type DirUploader struct {
	Root string
}

func (u *DirUploader) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	full := filepath.Join(u.Root, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	return "file://" + full, nil
}
