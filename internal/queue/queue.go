// Package queue drives the generate → score → correct cycle for translation
// tasks under a fixed worker budget. Each attempt is persisted as an
// immutable version; a watchdog reclaims tasks abandoned mid-flight.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pagelate/pagelate/internal/llm"
	"github.com/pagelate/pagelate/internal/notify"
	"github.com/pagelate/pagelate/internal/quality"
	"github.com/pagelate/pagelate/internal/storage"
	"github.com/pagelate/pagelate/internal/store"
)

// Defaults for the regeneration loop.
const (
	DefaultWorkers      = 10
	DefaultMaxVersions  = 5
	DefaultStallWindow  = 2 * time.Minute
	DefaultPollInterval = 2 * time.Second
)

// Generator produces image artifacts.
type Generator interface {
	GenerateImage(ctx context.Context, req llm.GenerateRequest) (*llm.GeneratedImage, error)
}

// ImageGate scores a generated variant against its source.
type ImageGate interface {
	CheckImage(ctx context.Context, sourceURL, candidateURL, targetLang string) (*quality.Verdict, error)
}

// PageResult is the terminal output of one page translation.
type PageResult struct {
	HTML         string
	Score        int
	AnalysisJSON string
}

// PageProcessor runs the full page pipeline for a page task. The pipeline
// owns its internal correction rounds; the queue records the outcome.
type PageProcessor interface {
	TranslatePage(ctx context.Context, sourceRef, targetLang string) (*PageResult, error)
}

// Queue is the bounded-concurrency orchestrator.
type Queue struct {
	store     *store.Store
	generator Generator
	gate      ImageGate
	pages     PageProcessor
	uploader  storage.Uploader
	notifiers []notify.Notifier
	logger    *slog.Logger

	Workers      int
	MaxVersions  int
	StallWindow  time.Duration
	PollInterval time.Duration

	// notified tracks batches whose completion hooks already fired; owned by
	// the queue so claim/stall logic stays testable in isolation.
	mu       sync.Mutex
	notified map[string]bool
}

// New creates a Queue with default tuning. pages and notifiers may be nil.
func New(s *store.Store, gen Generator, gate ImageGate, pages PageProcessor, up storage.Uploader, notifiers []notify.Notifier, logger *slog.Logger) *Queue {
	return &Queue{
		store:        s,
		generator:    gen,
		gate:         gate,
		pages:        pages,
		uploader:     up,
		notifiers:    notifiers,
		logger:       logger,
		Workers:      DefaultWorkers,
		MaxVersions:  DefaultMaxVersions,
		StallWindow:  DefaultStallWindow,
		PollInterval: DefaultPollInterval,
		notified:     make(map[string]bool),
	}
}

// Run pulls claimable tasks until ctx is cancelled. At most Workers tasks
// are in flight at once; the watchdog runs alongside.
func (q *Queue) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		q.watchdog(ctx)
	}()

	// The slot is taken before the claim: a task claimed with no worker free
	// would sit in processing long enough for the watchdog to hand it out a
	// second time.
	sem := make(chan struct{}, q.Workers)
loop:
	for {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break loop
		}

		task, err := q.store.ClaimNext(ctx)
		if err != nil {
			<-sem
			if ctx.Err() != nil {
				break loop
			}
			q.logger.Error("claim failed", "error", err)
			sleep(ctx, q.PollInterval)
			continue
		}
		if task == nil {
			<-sem
			sleep(ctx, q.PollInterval)
			continue
		}

		wg.Add(1)
		go func(task *store.Task) {
			defer wg.Done()
			defer func() { <-sem }()
			q.process(ctx, task)
		}(task)
	}

	wg.Wait()
	return ctx.Err()
}

// RunOnce drains the currently claimable tasks and returns; used by the CLI
// for one-shot processing and by tests.
func (q *Queue) RunOnce(ctx context.Context) error {
	for {
		task, err := q.store.ClaimNext(ctx)
		if err != nil {
			return err
		}
		if task == nil {
			return nil
		}
		q.process(ctx, task)
	}
}

// watchdog periodically reclaims tasks stuck in processing past the stall
// window.
func (q *Queue) watchdog(ctx context.Context) {
	interval := q.StallWindow / 4
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := q.store.ReclaimStalled(ctx, q.StallWindow)
			if err != nil {
				q.logger.Error("stall reclaim failed", "error", err)
				continue
			}
			if n > 0 {
				q.logger.Warn("reclaimed stalled tasks", "count", n)
			}
		}
	}
}

func (q *Queue) process(ctx context.Context, task *store.Task) {
	q.logger.Info("processing task", "task", task.ID, "kind", task.Kind, "lang", task.TargetLang)

	var err error
	switch task.Kind {
	case store.KindImage:
		err = q.processImage(ctx, task)
	case store.KindPage:
		err = q.processPage(ctx, task)
	default:
		err = fmt.Errorf("unknown task kind %q", task.Kind)
	}

	if err != nil {
		q.logger.Error("task failed", "task", task.ID, "error", err)
		if ferr := q.store.MarkFailed(ctx, task.ID, err.Error()); ferr != nil {
			q.logger.Error("failed to mark task failed", "task", task.ID, "error", ferr)
		}
	}

	q.maybeNotify(ctx, task.BatchID)
}

// processImage runs the regeneration loop: generate → persist version →
// score → accept or feed corrections into the next attempt. Reaching the
// ceiling is not a failure: the best-scoring version stays active and the
// task completes with degraded-but-usable output.
func (q *Queue) processImage(ctx context.Context, task *store.Task) error {
	var feedback *quality.CorrectionInput

	for attempt := 1; attempt <= q.MaxVersions; attempt++ {
		start := time.Now()

		img, err := q.generator.GenerateImage(ctx, llm.GenerateRequest{
			Prompt:         buildImagePrompt(task, feedback),
			ReferenceImage: task.SourceRef,
			AspectRatio:    task.AspectRatio,
		})
		if err != nil {
			return fmt.Errorf("generation failed on attempt %d: %w", attempt, err)
		}

		artifactURL := img.URL
		if artifactURL == "" {
			path := fmt.Sprintf("%s/%s/v%d.png", task.BatchID, task.ID, attempt)
			artifactURL, err = q.uploader.Upload(ctx, path, img.Data, "image/png")
			if err != nil {
				return fmt.Errorf("artifact upload failed on attempt %d: %w", attempt, err)
			}
		}

		version := &store.Version{
			TaskID:            task.ID,
			ArtifactURL:       artifactURL,
			GenerationSeconds: time.Since(start).Seconds(),
		}
		n, err := q.store.CreateVersion(ctx, version)
		if err != nil {
			return fmt.Errorf("failed to persist version: %w", err)
		}

		verdict, err := q.gate.CheckImage(ctx, task.SourceRef, artifactURL, task.TargetLang)
		if err != nil {
			return fmt.Errorf("scoring failed on attempt %d: %w", attempt, err)
		}

		analysisJSON, _ := json.Marshal(verdict.Analysis)
		correctionJSON := ""
		if verdict.Corrections != nil {
			b, _ := json.Marshal(verdict.Corrections)
			correctionJSON = string(b)
		}
		if err := q.store.UpdateVersionScore(ctx, task.ID, n, verdict.Analysis.Score, string(analysisJSON), correctionJSON); err != nil {
			return fmt.Errorf("failed to record score: %w", err)
		}

		if verdict.Passed {
			q.logger.Info("task passed quality gate", "task", task.ID, "attempt", attempt, "score", verdict.Analysis.Score)
			return q.store.MarkCompleted(ctx, task.ID)
		}

		q.logger.Info("attempt below threshold", "task", task.ID, "attempt", attempt, "score", verdict.Analysis.Score)
		feedback = verdict.Corrections
	}

	// Ceiling reached: keep the best of N, deterministically.
	if _, err := q.store.ActivateBestVersion(ctx, task.ID); err != nil {
		return fmt.Errorf("failed to activate best version: %w", err)
	}
	q.logger.Warn("attempt ceiling reached, best version kept", "task", task.ID)
	return q.store.MarkCompleted(ctx, task.ID)
}

func (q *Queue) processPage(ctx context.Context, task *store.Task) error {
	if q.pages == nil {
		return fmt.Errorf("no page processor configured")
	}

	start := time.Now()
	result, err := q.pages.TranslatePage(ctx, task.SourceRef, task.TargetLang)
	if err != nil {
		return fmt.Errorf("page translation failed: %w", err)
	}

	version := &store.Version{
		TaskID:            task.ID,
		ArtifactHTML:      result.HTML,
		GenerationSeconds: time.Since(start).Seconds(),
	}
	n, err := q.store.CreateVersion(ctx, version)
	if err != nil {
		return fmt.Errorf("failed to persist version: %w", err)
	}
	if err := q.store.UpdateVersionScore(ctx, task.ID, n, result.Score, result.AnalysisJSON, ""); err != nil {
		return fmt.Errorf("failed to record score: %w", err)
	}
	return q.store.MarkCompleted(ctx, task.ID)
}

// maybeNotify fires batch-completion hooks exactly once per batch. Failures
// are logged and dropped: notifications never affect the batch result.
func (q *Queue) maybeNotify(ctx context.Context, batchID string) {
	if batchID == "" || len(q.notifiers) == 0 {
		return
	}

	done, err := q.store.BatchDone(ctx, batchID)
	if err != nil || !done {
		return
	}

	q.mu.Lock()
	if q.notified[batchID] {
		q.mu.Unlock()
		return
	}
	q.notified[batchID] = true
	q.mu.Unlock()

	summary, err := q.batchSummary(ctx, batchID)
	if err != nil {
		q.logger.Error("failed to build batch summary", "batch", batchID, "error", err)
		return
	}
	for _, n := range q.notifiers {
		if err := n.BatchCompleted(ctx, *summary); err != nil {
			q.logger.Error("batch notification failed", "batch", batchID, "error", err)
		}
	}
}

func (q *Queue) batchSummary(ctx context.Context, batchID string) (*notify.BatchSummary, error) {
	tasks, err := q.store.BatchTasks(ctx, batchID)
	if err != nil {
		return nil, err
	}

	summary := &notify.BatchSummary{BatchID: batchID}
	for _, t := range tasks {
		switch t.Status {
		case store.StatusCompleted:
			summary.Completed++
		case store.StatusFailed:
			summary.Failed++
			continue
		default:
			continue
		}

		v, err := q.store.ActiveVersion(ctx, t.ID)
		if err != nil || v == nil {
			continue
		}
		result := notify.BatchResult{TaskID: t.ID, TargetLang: t.TargetLang, ArtifactURL: v.ArtifactURL}
		if v.Score != nil {
			result.Score = *v.Score
		}
		summary.Results = append(summary.Results, result)
	}
	return summary, nil
}

// buildImagePrompt composes the generation instruction, folding in the
// corrective input from the previous failed attempt.
func buildImagePrompt(task *store.Task, feedback *quality.CorrectionInput) string {
	var sb strings.Builder
	sb.WriteString("Recreate this advertisement with all visible text translated into ")
	sb.WriteString(task.TargetLang)
	sb.WriteString(". Keep the layout, colors, typography, and imagery identical to the reference.")

	if feedback != nil {
		if feedback.ShouldRead != "" {
			sb.WriteString("\n\n")
			sb.WriteString(feedback.ShouldRead)
		}
		if feedback.Instructions != "" {
			sb.WriteString("\n\n")
			sb.WriteString(feedback.Instructions)
		}
	}
	return sb.String()
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
