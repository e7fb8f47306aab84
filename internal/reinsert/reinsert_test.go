package reinsert_test

import (
	"strings"
	"testing"

	"github.com/pagelate/pagelate/internal/dispatch"
	"github.com/pagelate/pagelate/internal/extract"
	"github.com/pagelate/pagelate/internal/reinsert"
)

const page = `<!DOCTYPE html>
<html><head>
<title>Summer Sale</title>
<meta name="description" content="Big discounts.">
<style>b { color: red; }</style>
</head><body>
<h1>Summer Sale</h1>
<p>Save <strong>50%</strong> on all items.</p>
<p>Offer ends soon.</p>
<img src="dog.png" alt="dog">
</body></html>`

func identity(doc *extract.Document) map[string]string {
	m := make(map[string]string)
	for _, u := range doc.Units {
		if u.Kind == extract.KindBlock {
			m[u.ID] = u.SourceMarkup
		} else {
			m[u.ID] = u.SourceText
		}
	}
	return m
}

func TestReassemble_IdentityRoundTrip(t *testing.T) {
	doc, err := extract.Extract(page)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	out, err := reinsert.Reassemble(doc, identity(doc), doc.Meta)
	if err != nil {
		t.Fatalf("reassemble failed: %v", err)
	}

	// Same ordered tag structure as the source.
	src, dst := dispatch.TagSequence(page), dispatch.TagSequence(out)
	if len(src) != len(dst) {
		t.Fatalf("tag count changed: %d vs %d\n%s", len(src), len(dst), out)
	}
	for i := range src {
		if src[i] != dst[i] {
			t.Errorf("tag %d: %s vs %s", i, src[i], dst[i])
		}
	}

	for _, want := range []string{"Summer Sale", "Offer ends soon.", `alt="dog"`, "color: red"} {
		if !strings.Contains(out, want) {
			t.Errorf("round-tripped document missing %q", want)
		}
	}
	if strings.Contains(out, "[TU") || strings.Contains(out, "[RAW") {
		t.Errorf("placeholders left in output:\n%s", out)
	}
}

func TestReassemble_TranslatedValues(t *testing.T) {
	doc, err := extract.Extract(page)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	translations := make(map[string]string)
	for _, u := range doc.Units {
		switch u.Kind {
		case extract.KindBlock:
			translations[u.ID] = strings.ToUpper(u.SourceMarkup)
		default:
			translations[u.ID] = strings.ToUpper(u.SourceText)
		}
	}

	out, err := reinsert.Reassemble(doc, translations, extract.Meta{})
	if err != nil {
		t.Fatalf("reassemble failed: %v", err)
	}

	if !strings.Contains(out, "OFFER ENDS SOON.") {
		t.Error("block translation not substituted")
	}
	if !strings.Contains(out, `alt="DOG"`) {
		t.Error("attribute translation not substituted")
	}
	// 3 blocks + image structure intact.
	if got := strings.Count(out, "<p>"); got != 2 {
		t.Errorf("expected 2 paragraphs, got %d", got)
	}
	if !strings.Contains(out, "<img") {
		t.Error("image element lost")
	}
}

func TestReassemble_PlainValuesEscaped(t *testing.T) {
	doc, err := extract.Extract(`<html><body><img src="x.png" alt="dog"></body></html>`)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(doc.Units) != 1 {
		t.Fatalf("expected 1 unit, got %d", len(doc.Units))
	}

	out, err := reinsert.Reassemble(doc, map[string]string{doc.Units[0].ID: `Hund & "Katze" <frei>`}, extract.Meta{})
	if err != nil {
		t.Fatalf("reassemble failed: %v", err)
	}
	if strings.Contains(out, "<frei>") {
		t.Errorf("plain value must be escaped, got:\n%s", out)
	}
	if !strings.Contains(out, "&lt;frei&gt;") && !strings.Contains(out, "&amp;") {
		t.Errorf("expected escaped entities in output:\n%s", out)
	}
}

func TestReassemble_UntranslatedFallsBackToSource(t *testing.T) {
	doc, err := extract.Extract(`<html><body><p>Keep me.</p></body></html>`)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	out, err := reinsert.Reassemble(doc, map[string]string{}, extract.Meta{})
	if err != nil {
		t.Fatalf("reassemble failed: %v", err)
	}
	if !strings.Contains(out, "Keep me.") {
		t.Errorf("untranslated unit should keep source text:\n%s", out)
	}
}

func TestReassemble_MetadataApplied(t *testing.T) {
	doc, err := extract.Extract(page)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	meta := extract.Meta{Title: "Sommerschlussverkauf", Description: "Große Rabatte."}
	out, err := reinsert.Reassemble(doc, identity(doc), meta)
	if err != nil {
		t.Fatalf("reassemble failed: %v", err)
	}
	if !strings.Contains(out, "<title>Sommerschlussverkauf</title>") {
		t.Errorf("title not replaced:\n%s", out)
	}
	if !strings.Contains(out, `content="Große Rabatte."`) {
		t.Errorf("meta description not replaced:\n%s", out)
	}
}
