/*
Copyright © 2025 Pagelate Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pagelate/pagelate/internal/dispatch"
	"github.com/pagelate/pagelate/internal/fallback"
	"github.com/pagelate/pagelate/internal/llm"
	"github.com/pagelate/pagelate/internal/notify"
	"github.com/pagelate/pagelate/internal/pipeline"
	"github.com/pagelate/pagelate/internal/quality"
	"github.com/pagelate/pagelate/internal/queue"
	"github.com/pagelate/pagelate/internal/storage"
	"github.com/pagelate/pagelate/internal/store"
)

func newClient() (*llm.Client, error) {
	if settings.APIKey == "" {
		return nil, fmt.Errorf("no API key configured (set PAGELATE_API_KEY or --api-key)")
	}
	return llm.NewClient(llm.Config{
		APIKey:      settings.APIKey,
		BaseURL:     settings.BaseURL,
		TextModel:   settings.TextModel,
		VisionModel: settings.VisionModel,
		ImageModel:  settings.ImageModel,
	}, logger), nil
}

func newStore() (*store.Store, error) {
	s, err := store.New(settings.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open task database: %w", err)
	}
	return s, nil
}

// newPlainFallback returns the machine-translation fallback, or nil when no
// Google credentials are configured.
func newPlainFallback() dispatch.PlainTranslator {
	if settings.GoogleCredentials == "" {
		return nil
	}
	return fallback.NewGoogleTranslator(settings.GoogleCredentials, logger)
}

func newGate(client *llm.Client) *quality.Gate {
	g := quality.NewGate(client, quality.NewLangChecker(), logger)
	g.Threshold = settings.Threshold
	return g
}

func newPipeline(client *llm.Client) *pipeline.Pipeline {
	plain := newPlainFallback()
	d := dispatch.New(client, plain, logger)
	p := pipeline.New(d, client, newGate(client), plain, logger)
	p.ReviewRounds = settings.MaxVersions
	return p
}

func newUploader() storage.Uploader {
	if settings.UploadURL != "" {
		return storage.NewHTTPUploader(settings.UploadURL, "", logger)
	}
	return &storage.DirUploader{Root: settings.ArtifactDir}
}

func newQueue(client *llm.Client, s *store.Store) *queue.Queue {
	var notifiers []notify.Notifier
	if settings.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhook(settings.WebhookURL))
	}

	q := queue.New(s, client, newGate(client), pageProcessor{newPipeline(client)}, newUploader(), notifiers, logger)
	q.Workers = settings.Workers
	q.MaxVersions = settings.MaxVersions
	q.StallWindow = settings.StallWindow
	return q
}

// pageProcessor adapts the page pipeline to the queue's task interface.
type pageProcessor struct {
	pipeline *pipeline.Pipeline
}

func (p pageProcessor) TranslatePage(ctx context.Context, sourceRef, targetLang string) (*queue.PageResult, error) {
	sourceHTML, err := pipeline.LoadSource(ctx, http.DefaultClient, sourceRef)
	if err != nil {
		return nil, err
	}
	result, err := p.pipeline.TranslateHTML(ctx, sourceHTML, targetLang)
	if err != nil {
		return nil, err
	}

	out := &queue.PageResult{HTML: result.HTML}
	if result.Verdict != nil {
		out.Score = result.Verdict.Analysis.Score
		if b, err := json.Marshal(result.Verdict.Analysis); err == nil {
			out.AnalysisJSON = string(b)
		}
	}
	return out, nil
}
