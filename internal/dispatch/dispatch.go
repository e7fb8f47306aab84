// Package dispatch groups translation units into size-bounded chunks, issues
// them to the model concurrently, and merges partial successes. A job only
// hard-fails when every chunk failed; failed units are reported alongside the
// merged translations.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pagelate/pagelate/internal/extract"
	"github.com/pagelate/pagelate/internal/postprocess"
)

// ChunkRequest is one structured exchange with the text model: a map of unit
// id to source value plus the shared translation context.
type ChunkRequest struct {
	Units      map[string]string
	TargetLang string
	DocContext string
	Feedback   string
}

// ChunkTranslator is the narrow model-service contract the dispatcher needs.
type ChunkTranslator interface {
	TranslateChunk(ctx context.Context, req ChunkRequest) (map[string]string, error)
}

// PlainTranslator retranslates a single plain-text value. Used as a fallback
// for non-markup units whose chunk failed; may be nil.
type PlainTranslator interface {
	TranslateText(ctx context.Context, text, targetLang string) (string, error)
}

// FailedUnit records a unit left untranslated and why.
type FailedUnit struct {
	ID     string
	Reason string
}

// Result merges the outcome of all chunks.
type Result struct {
	Translations map[string]string // unit id → translated value
	Failed       []FailedUnit
	Mismatched   []string // block unit ids whose tag sequence changed
}

// Dispatcher fans unit chunks out to the model.
type Dispatcher struct {
	client   ChunkTranslator
	fallback PlainTranslator
	logger   *slog.Logger

	// MaxChunkChars bounds the cumulative source size per chunk. Large enough
	// that a typical document fits in one or two chunks, keeping terminology
	// choices consistent across the page.
	MaxChunkChars int
}

// DefaultMaxChunkChars fits most marketing pages in a single exchange.
const DefaultMaxChunkChars = 12000

// New creates a Dispatcher. fallback may be nil.
func New(client ChunkTranslator, fallback PlainTranslator, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client:        client,
		fallback:      fallback,
		logger:        logger,
		MaxChunkChars: DefaultMaxChunkChars,
	}
}

// Translate dispatches units to the model and merges chunk results. docContext
// is an optional truncated view of the whole document for disambiguation;
// feedback carries corrective instructions from a prior round.
func (d *Dispatcher) Translate(ctx context.Context, units []extract.Unit, targetLang, docContext, feedback string) (*Result, error) {
	if len(units) == 0 {
		return &Result{Translations: map[string]string{}}, nil
	}

	chunks := d.split(units)

	type chunkOutcome struct {
		units []extract.Unit
		got   map[string]string
		err   error
	}

	outcomes := make(chan chunkOutcome, len(chunks))
	var wg sync.WaitGroup
	for _, chunk := range chunks {
		wg.Add(1)
		go func(chunk []extract.Unit) {
			defer wg.Done()
			req := ChunkRequest{
				Units:      payload(chunk),
				TargetLang: targetLang,
				DocContext: docContext,
				Feedback:   feedback,
			}
			got, err := d.client.TranslateChunk(ctx, req)
			outcomes <- chunkOutcome{units: chunk, got: got, err: err}
		}(chunk)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	result := &Result{Translations: make(map[string]string)}
	failedChunks := 0
	for oc := range outcomes {
		if oc.err != nil {
			failedChunks++
			d.logger.Warn("chunk translation failed", "units", len(oc.units), "error", oc.err)
			d.recoverChunk(ctx, oc.units, oc.err, targetLang, result)
			continue
		}
		d.mergeChunk(oc.units, oc.got, result)
	}

	if failedChunks == len(chunks) && len(result.Translations) == 0 {
		return nil, fmt.Errorf("all %d chunks failed", len(chunks))
	}
	return result, nil
}

// split groups units greedily by cumulative source size, preserving order.
func (d *Dispatcher) split(units []extract.Unit) [][]extract.Unit {
	max := d.MaxChunkChars
	if max <= 0 {
		max = DefaultMaxChunkChars
	}

	var chunks [][]extract.Unit
	var current []extract.Unit
	size := 0
	for _, u := range units {
		n := len(sourceValue(u))
		if size > 0 && size+n > max {
			chunks = append(chunks, current)
			current = nil
			size = 0
		}
		current = append(current, u)
		size += n
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// mergeChunk copies a chunk's translations into the result, validating the
// tag structure of markup-bearing units. Mismatches are logged, never fatal:
// minor tag loss is visually tolerable but must not stay invisible.
func (d *Dispatcher) mergeChunk(units []extract.Unit, got map[string]string, result *Result) {
	for _, u := range units {
		translated, ok := got[u.ID]
		if !ok || strings.TrimSpace(translated) == "" {
			result.Failed = append(result.Failed, FailedUnit{ID: u.ID, Reason: "missing from model response"})
			continue
		}
		if u.Kind == extract.KindBlock {
			src, dst := TagSequence(u.SourceMarkup), TagSequence(translated)
			if !sameSequence(src, dst) {
				result.Mismatched = append(result.Mismatched, u.ID)
				d.logger.Warn("tag structure changed in translation",
					"unit", u.ID, "source_tags", src, "translated_tags", dst)
			}
		}
		result.Translations[u.ID] = translated
	}
}

// recoverChunk records a failed chunk's units, retrying plain-text units
// through the fallback translator when one is configured.
func (d *Dispatcher) recoverChunk(ctx context.Context, units []extract.Unit, cause error, targetLang string, result *Result) {
	for _, u := range units {
		if d.fallback != nil && u.Kind != extract.KindBlock {
			translated, err := d.fallback.TranslateText(ctx, u.SourceText, targetLang)
			if err == nil {
				if cleaned := postprocess.Clean(translated); cleaned != "" {
					result.Translations[u.ID] = cleaned
					continue
				}
			}
		}
		result.Failed = append(result.Failed, FailedUnit{ID: u.ID, Reason: cause.Error()})
	}
}

// payload builds the id→source map for one chunk. Block units send their
// inner markup so inline emphasis and links survive translation.
func payload(units []extract.Unit) map[string]string {
	m := make(map[string]string, len(units))
	for _, u := range units {
		m[u.ID] = sourceValue(u)
	}
	return m
}

func sourceValue(u extract.Unit) string {
	if u.Kind == extract.KindBlock {
		return u.SourceMarkup
	}
	return u.SourceText
}

// ContextSnippet truncates a document's readable text to at most maxChars
// runes at a word boundary, for use as disambiguation context.
func ContextSnippet(text string, maxChars int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if maxChars <= 0 || len(runes) <= maxChars {
		return text
	}
	cut := string(runes[:maxChars])
	if idx := strings.LastIndexFunc(cut, func(r rune) bool { return r == ' ' || r == '\n' }); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut)
}
