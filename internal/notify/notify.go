// Package notify triggers downstream collaborators (export, email) after a
// batch completes. Notifications are fire-and-forget: failures are recorded
// by the caller but never affect the batch result.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// BatchSummary is the read-only view handed to downstream systems: final
// artifact references and scores only.
type BatchSummary struct {
	BatchID   string        `json:"batch_id"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Results   []BatchResult `json:"results"`
}

// BatchResult is one task's terminal outcome.
type BatchResult struct {
	TaskID      string `json:"task_id"`
	TargetLang  string `json:"target_lang"`
	ArtifactURL string `json:"artifact_url"`
	Score       int    `json:"score"`
}

// Notifier is implemented by each downstream hook.
type Notifier interface {
	BatchCompleted(ctx context.Context, summary BatchSummary) error
}

// Webhook POSTs the batch summary to a fixed URL.
type Webhook struct {
	url    string
	client *http.Client
}

func NewWebhook(url string) *Webhook {
	return &Webhook{url: url, client: &http.Client{Timeout: 30 * time.Second}}
}

func (w *Webhook) BatchCompleted(ctx context.Context, summary BatchSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
