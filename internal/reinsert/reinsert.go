// Package reinsert substitutes translated values back into a skeleton
// document and reassembles the full page: markup-bearing values go in
// verbatim, plain values are HTML-escaped, stripped subtrees are restored
// byte-exact, and translated metadata is applied last by direct field
// replacement.
package reinsert

import (
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pagelate/pagelate/internal/extract"
)

// Reassemble produces the complete translated document. translations maps
// unit id to translated value; units missing from the map fall back to their
// source content so a partially failed dispatch still yields a usable page.
func Reassemble(doc *extract.Document, translations map[string]string, meta extract.Meta) (string, error) {
	out := doc.Skeleton

	// Last unit first: placeholder ids share prefixes ([TU1] vs [TU12]), but
	// exact-token replacement makes order irrelevant for correctness; reverse
	// order simply mirrors how later passes keep earlier offsets valid.
	for i := len(doc.Units) - 1; i >= 0; i-- {
		u := doc.Units[i]
		value, ok := translations[u.ID]
		if !ok || strings.TrimSpace(value) == "" {
			value = fallbackValue(u)
		} else if u.Kind != extract.KindBlock {
			value = html.EscapeString(value)
		}
		out = strings.ReplaceAll(out, u.Placeholder(), value)
	}

	// Stripped subtrees are restored verbatim, including any tokens that rode
	// along inside translated unit values.
	for i := len(doc.Stripped) - 1; i >= 0; i-- {
		s := doc.Stripped[i]
		out = strings.ReplaceAll(out, s.Placeholder, s.Markup)
	}

	return applyMeta(out, meta)
}

// fallbackValue returns the original content for an untranslated unit.
func fallbackValue(u extract.Unit) string {
	if u.Kind == extract.KindBlock {
		return u.SourceMarkup
	}
	return html.EscapeString(u.SourceText)
}

// applyMeta sets the translated page-level fields on the assembled document.
// Empty fields leave the original values untouched.
func applyMeta(htmlDoc string, meta extract.Meta) (string, error) {
	if meta == (extract.Meta{}) {
		return htmlDoc, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlDoc))
	if err != nil {
		return "", fmt.Errorf("failed to parse assembled document: %w", err)
	}

	if meta.Title != "" {
		doc.Find("head title").SetText(meta.Title)
	}
	if meta.Description != "" {
		doc.Find(`head meta[name="description"]`).SetAttr("content", meta.Description)
	}
	if meta.OGTitle != "" {
		doc.Find(`head meta[property="og:title"]`).SetAttr("content", meta.OGTitle)
	}
	if meta.OGDescription != "" {
		doc.Find(`head meta[property="og:description"]`).SetAttr("content", meta.OGDescription)
	}

	out, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("failed to render document: %w", err)
	}
	return out, nil
}
