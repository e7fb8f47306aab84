package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/pagelate/pagelate/internal/dispatch"
	"github.com/pagelate/pagelate/internal/extract"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// stubTranslator uppercases every unit; failEvery makes every Nth call fail.
type stubTranslator struct {
	mu        sync.Mutex
	calls     int
	failCalls map[int]bool
}

func (s *stubTranslator) TranslateChunk(ctx context.Context, req dispatch.ChunkRequest) (map[string]string, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()

	if s.failCalls[call] {
		return nil, errors.New("model unavailable")
	}
	out := make(map[string]string, len(req.Units))
	for id, v := range req.Units {
		out[id] = strings.ToUpper(v)
	}
	return out, nil
}

func units(n int) []extract.Unit {
	var out []extract.Unit
	for i := 0; i < n; i++ {
		out = append(out, extract.Unit{
			ID:         fmt.Sprintf("TU%d", i),
			Kind:       extract.KindText,
			SourceText: fmt.Sprintf("sentence number %d", i),
		})
	}
	return out
}

func TestTranslate_AllUnitsTranslated(t *testing.T) {
	d := dispatch.New(&stubTranslator{}, nil, discard)
	us := units(5)

	res, err := d.Translate(context.Background(), us, "de", "", "")
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}
	if len(res.Translations) != 5 {
		t.Fatalf("expected 5 translations, got %d", len(res.Translations))
	}
	for _, u := range us {
		if res.Translations[u.ID] != strings.ToUpper(u.SourceText) {
			t.Errorf("unit %s: got %q", u.ID, res.Translations[u.ID])
		}
	}
}

func TestTranslate_ChunkingBySize(t *testing.T) {
	stub := &stubTranslator{}
	d := dispatch.New(stub, nil, discard)
	d.MaxChunkChars = 40 // each unit is ~18 chars, forces multiple chunks

	res, err := d.Translate(context.Background(), units(6), "de", "", "")
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}
	if len(res.Translations) != 6 {
		t.Errorf("expected 6 translations, got %d", len(res.Translations))
	}
	if stub.calls < 2 {
		t.Errorf("expected multiple chunk calls, got %d", stub.calls)
	}
}

func TestTranslate_PartialFailureMerged(t *testing.T) {
	stub := &stubTranslator{failCalls: map[int]bool{1: true}}
	d := dispatch.New(stub, nil, discard)
	d.MaxChunkChars = 40

	res, err := d.Translate(context.Background(), units(6), "de", "", "")
	if err != nil {
		t.Fatalf("partial failure should not hard-fail: %v", err)
	}
	if len(res.Failed) == 0 {
		t.Error("expected some failed units to be reported")
	}
	if len(res.Translations) == 0 {
		t.Error("expected surviving chunks to be merged")
	}
	if len(res.Translations)+len(res.Failed) != 6 {
		t.Errorf("every unit must be accounted for: %d + %d != 6",
			len(res.Translations), len(res.Failed))
	}
}

func TestTranslate_TotalFailure(t *testing.T) {
	stub := &stubTranslator{failCalls: map[int]bool{1: true, 2: true, 3: true, 4: true}}
	d := dispatch.New(stub, nil, discard)

	_, err := d.Translate(context.Background(), units(3), "de", "", "")
	if err == nil {
		t.Fatal("expected hard failure when every chunk fails")
	}
}

// echoTranslator returns a fixed value regardless of input markup.
type echoTranslator struct{ value string }

func (e *echoTranslator) TranslateChunk(ctx context.Context, req dispatch.ChunkRequest) (map[string]string, error) {
	out := make(map[string]string)
	for id := range req.Units {
		out[id] = e.value
	}
	return out, nil
}

func TestTranslate_TagMismatchReportedNotFatal(t *testing.T) {
	d := dispatch.New(&echoTranslator{value: "no markup at all"}, nil, discard)
	us := []extract.Unit{{
		ID:           "TU0",
		Kind:         extract.KindBlock,
		SourceMarkup: "Save <strong>50%</strong> today",
		SourceText:   "Save 50% today",
	}}

	res, err := d.Translate(context.Background(), us, "de", "", "")
	if err != nil {
		t.Fatalf("mismatch must not fail the pipeline: %v", err)
	}
	if len(res.Mismatched) != 1 || res.Mismatched[0] != "TU0" {
		t.Errorf("expected TU0 reported as mismatched, got %v", res.Mismatched)
	}
	// Content is still used despite the mismatch.
	if res.Translations["TU0"] != "no markup at all" {
		t.Errorf("translation should still be merged, got %q", res.Translations["TU0"])
	}
}

type stubFallback struct{ calls int }

func (s *stubFallback) TranslateText(ctx context.Context, text, lang string) (string, error) {
	s.calls++
	return "fallback:" + text, nil
}

func TestTranslate_FallbackForPlainUnits(t *testing.T) {
	stub := &stubTranslator{failCalls: map[int]bool{1: true}}
	fb := &stubFallback{}
	d := dispatch.New(stub, fb, discard)

	us := []extract.Unit{
		{ID: "TU0", Kind: extract.KindAttribute, SourceText: "dog"},
		{ID: "TU1", Kind: extract.KindBlock, SourceMarkup: "<em>hi</em>", SourceText: "hi"},
	}
	res, err := d.Translate(context.Background(), us, "de", "", "")
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}
	if res.Translations["TU0"] != "fallback:dog" {
		t.Errorf("plain unit should use fallback, got %q", res.Translations["TU0"])
	}
	// Markup units never go through the plain-text fallback.
	if _, ok := res.Translations["TU1"]; ok {
		t.Error("block unit must not be fallback-translated")
	}
	if len(res.Failed) != 1 || res.Failed[0].ID != "TU1" {
		t.Errorf("block unit should be reported failed, got %v", res.Failed)
	}
}

type quotedFallback struct{}

func (quotedFallback) TranslateText(ctx context.Context, text, lang string) (string, error) {
	return "«Hund»", nil
}

func TestTranslate_FallbackOutputCleaned(t *testing.T) {
	stub := &stubTranslator{failCalls: map[int]bool{1: true}}
	d := dispatch.New(stub, quotedFallback{}, discard)

	us := []extract.Unit{{ID: "TU0", Kind: extract.KindAttribute, SourceText: "dog"}}
	res, err := d.Translate(context.Background(), us, "de", "", "")
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}
	if res.Translations["TU0"] != "Hund" {
		t.Errorf("fallback output should be unwrapped, got %q", res.Translations["TU0"])
	}
}

func TestTagSequence(t *testing.T) {
	got := dispatch.TagSequence(`Save <strong>50%</strong> on <a href="/x">items</a><br/>`)
	want := []string{"strong", "a", "br"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tag %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestContextSnippet(t *testing.T) {
	text := strings.Repeat("word ", 100)
	snip := dispatch.ContextSnippet(text, 50)
	if len([]rune(snip)) > 50 {
		t.Errorf("snippet too long: %d runes", len([]rune(snip)))
	}
	if strings.HasSuffix(snip, " ") || strings.HasPrefix(snip, " ") {
		t.Errorf("snippet not trimmed: %q", snip)
	}
	if dispatch.ContextSnippet("short", 50) != "short" {
		t.Error("short text should pass through unchanged")
	}
}
