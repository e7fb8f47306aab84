// Package pipeline wires extraction, dispatch, reassembly, review, and the
// quality gate into the end-to-end page translation flow.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pagelate/pagelate/internal/dispatch"
	"github.com/pagelate/pagelate/internal/extract"
	"github.com/pagelate/pagelate/internal/patch"
	"github.com/pagelate/pagelate/internal/quality"
	"github.com/pagelate/pagelate/internal/reinsert"
)

// DefaultReviewRounds bounds the review-and-patch cycle per page; it
// mirrors the version ceiling image tasks get.
const DefaultReviewRounds = 5

const contextChars = 1500

// Reviewer proofreads a translated document and proposes find/replace
// corrections against its visible text.
type Reviewer interface {
	Review(ctx context.Context, sourceText, translatedText, targetLang string) ([]patch.Correction, error)
}

// TextGate scores a candidate page against its source.
type TextGate interface {
	CheckText(ctx context.Context, sourceHTML, candidateHTML, targetLang string) (*quality.Verdict, error)
}

// Result carries the final page plus everything that happened on the way.
type Result struct {
	HTML         string
	Verdict      *quality.Verdict
	Failed       []dispatch.FailedUnit
	Mismatched   []string
	Applied      int
	NotFound     int
	ReviewRounds int
}

// Pipeline translates one page at a time; it holds no per-page state and is
// safe for concurrent use.
type Pipeline struct {
	dispatcher *dispatch.Dispatcher
	reviewer   Reviewer
	gate       TextGate
	plain      dispatch.PlainTranslator
	logger     *slog.Logger

	ReviewRounds int
}

// New creates a Pipeline. reviewer, gate, and plain may be nil; the
// corresponding stages are skipped.
func New(d *dispatch.Dispatcher, reviewer Reviewer, gate TextGate, plain dispatch.PlainTranslator, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		dispatcher:   d,
		reviewer:     reviewer,
		gate:         gate,
		plain:        plain,
		logger:       logger,
		ReviewRounds: DefaultReviewRounds,
	}
}

// TranslateHTML runs the full flow: decompose, translate, reassemble, then
// review-and-patch until the gate passes or the round budget runs out.
func (p *Pipeline) TranslateHTML(ctx context.Context, sourceHTML, targetLang string) (*Result, error) {
	doc, err := extract.Extract(sourceHTML)
	if err != nil {
		return nil, fmt.Errorf("failed to decompose page: %w", err)
	}
	if len(doc.Units) == 0 {
		p.logger.Warn("page has no translatable content")
		return &Result{HTML: sourceHTML}, nil
	}

	snippet := dispatch.ContextSnippet(visibleText(doc), contextChars)
	dres, err := p.dispatcher.Translate(ctx, doc.Units, targetLang, snippet, "")
	if err != nil {
		return nil, fmt.Errorf("translation dispatch failed: %w", err)
	}

	meta, err := p.translateMeta(ctx, doc.Meta, targetLang)
	if err != nil {
		p.logger.Warn("metadata translation failed, keeping source metadata", "error", err)
		meta = doc.Meta
	}

	htmlOut, err := reinsert.Reassemble(doc, dres.Translations, meta)
	if err != nil {
		return nil, fmt.Errorf("reassembly failed: %w", err)
	}

	result := &Result{
		HTML:       htmlOut,
		Failed:     dres.Failed,
		Mismatched: dres.Mismatched,
	}
	p.refine(ctx, sourceHTML, visibleText(doc), targetLang, result)
	return result, nil
}

// refine runs bounded review-and-patch rounds, gating after each one. The
// page in result.HTML is always the latest candidate even when the gate
// never passes.
func (p *Pipeline) refine(ctx context.Context, sourceHTML, sourceText, targetLang string, result *Result) {
	for round := 0; round < p.ReviewRounds; round++ {
		if p.reviewer != nil {
			corrections, err := p.reviewer.Review(ctx, sourceText, result.HTML, targetLang)
			if err != nil {
				p.logger.Warn("review round failed", "round", round+1, "error", err)
			} else if len(corrections) > 0 {
				patched, report := patch.Apply(result.HTML, corrections)
				result.HTML = patched
				result.Applied += report.Applied
				result.NotFound += len(report.NotFound)
				for _, miss := range report.NotFound {
					p.logger.Warn("correction target not found", "find", miss)
				}
			}
		}
		result.ReviewRounds = round + 1

		if p.gate == nil {
			return
		}
		verdict, err := p.gate.CheckText(ctx, sourceHTML, result.HTML, targetLang)
		if err != nil {
			p.logger.Warn("quality check failed", "round", round+1, "error", err)
			return
		}
		result.Verdict = verdict
		if verdict.Passed {
			return
		}
		p.logger.Info("page below threshold", "round", round+1, "score", verdict.Analysis.Score)
		if p.reviewer == nil {
			return
		}
	}
}

// translateMeta runs the page metadata through the plain translator. Meta
// values are attribute-like: no markup, no placeholders.
func (p *Pipeline) translateMeta(ctx context.Context, meta extract.Meta, targetLang string) (extract.Meta, error) {
	if p.plain == nil {
		return meta, nil
	}
	out := extract.Meta{}
	fields := []struct {
		src string
		dst *string
	}{
		{meta.Title, &out.Title},
		{meta.Description, &out.Description},
		{meta.OGTitle, &out.OGTitle},
		{meta.OGDescription, &out.OGDescription},
	}
	for _, f := range fields {
		if f.src == "" {
			continue
		}
		translated, err := p.plain.TranslateText(ctx, f.src, targetLang)
		if err != nil {
			return meta, err
		}
		*f.dst = translated
	}
	return out, nil
}

// visibleText joins the source text of every unit, in document order.
func visibleText(doc *extract.Document) string {
	var sb strings.Builder
	for _, u := range doc.Units {
		if u.SourceText == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(u.SourceText)
	}
	return sb.String()
}
