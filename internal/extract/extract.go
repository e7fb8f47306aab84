// Package extract decomposes an HTML document into an ordered list of
// translation units (leaf blocks, stray text nodes, attribute values) and a
// placeholder-bearing skeleton. Non-translatable subtrees (script, style,
// vector graphics) are stripped into a side list and restored verbatim at
// reassembly, so the payload sent to the model stays small.
//
// Unit placeholders look like [TU3], stripped-subtree placeholders like
// [RAW1]. Extraction is deterministic: the same input always yields the same
// unit ids in the same order.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Kind classifies a translation unit.
type Kind string

const (
	KindBlock     Kind = "block"     // leaf block element, inner markup preserved
	KindText      Kind = "text"      // bare text node inside a mixed container
	KindAttribute Kind = "attribute" // alt/title/placeholder attribute value
)

// Unit is one translatable fragment. SourceMarkup is set for block units
// (inner HTML including inline emphasis/links); SourceText is always the
// plain readable text.
type Unit struct {
	ID           string
	Kind         Kind
	SourceMarkup string
	SourceText   string
}

// Placeholder returns the token embedded in the skeleton for this unit.
func (u Unit) Placeholder() string { return "[" + u.ID + "]" }

// Stripped is a non-translatable subtree removed before dispatch.
type Stripped struct {
	Placeholder string
	Markup      string
}

// Meta holds page-level fields translated outside the placeholder mechanism.
type Meta struct {
	Title         string
	Description   string
	OGTitle       string
	OGDescription string
}

// Document is the output of one extraction pass.
type Document struct {
	Skeleton string
	Units    []Unit
	Stripped []Stripped
	Meta     Meta
}

// blockTags are the elements treated as block-level for leaf detection.
var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"caption": true, "dd": true, "div": true, "dt": true, "fieldset": true,
	"figcaption": true, "figure": true, "footer": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "li": true, "main": true, "nav": true, "ol": true,
	"p": true, "pre": true, "section": true, "table": true, "td": true,
	"th": true, "tr": true, "ul": true,
}

// strippedSelector matches subtrees that are never translated.
const strippedSelector = "script, style, svg, noscript, template"

// translatableAttrs are the attribute names extracted as units.
var translatableAttrs = []string{"alt", "title", "placeholder"}

type extraction struct {
	units    []Unit
	stripped []Stripped
}

// Extract parses htmlDoc and returns its unit decomposition. The skeleton
// contains only placeholder tokens where translatable content used to be.
func Extract(htmlDoc string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlDoc))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	ex := &extraction{}
	ex.stripSubtrees(doc)

	body := doc.Find("body")
	for _, n := range body.Nodes {
		ex.visit(n)
	}

	ex.extractAttributes(doc)

	skeleton, err := renderDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to render skeleton: %w", err)
	}

	return &Document{
		Skeleton: skeleton,
		Units:    ex.units,
		Stripped: ex.stripped,
		Meta:     readMeta(doc),
	}, nil
}

// stripSubtrees replaces whole non-translatable subtrees with [RAWn] tokens,
// recording the original markup in document order.
func (ex *extraction) stripSubtrees(doc *goquery.Document) {
	doc.Find(strippedSelector).Each(func(i int, sel *goquery.Selection) {
		markup, err := goquery.OuterHtml(sel)
		if err != nil {
			return
		}
		token := fmt.Sprintf("[RAW%d]", len(ex.stripped))
		ex.stripped = append(ex.stripped, Stripped{Placeholder: token, Markup: markup})
		// A literal text node, not fragment parsing: bare text is invalid in
		// some parents (head) and the token would be dropped.
		sel.ReplaceWithNodes(&html.Node{Type: html.TextNode, Data: token})
	})
}

// visit walks n's children in document order, capturing leaf blocks and bare
// text nodes. Children are snapshot-iterated because capture mutates the tree.
func (ex *extraction) visit(n *html.Node) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		switch c.Type {
		case html.ElementNode:
			if blockTags[c.Data] && !hasBlockDescendant(c) {
				ex.captureBlock(c)
			} else {
				ex.visit(c)
			}
		case html.TextNode:
			ex.captureText(c)
		}
	}
}

// hasBlockDescendant reports whether any element below n is block-level. A
// block containing another block is a container, not a leaf unit.
func hasBlockDescendant(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (blockTags[c.Data] || hasBlockDescendant(c)) {
			return true
		}
	}
	return false
}

// captureBlock extracts a leaf block's inner markup as one unit and replaces
// its content with a placeholder text node.
func (ex *extraction) captureBlock(n *html.Node) {
	inner := renderChildren(n)
	text := strings.TrimSpace(nodeText(n))
	if strings.TrimSpace(stripTokens(text)) == "" {
		return
	}

	unit := Unit{
		ID:           fmt.Sprintf("TU%d", len(ex.units)),
		Kind:         KindBlock,
		SourceMarkup: inner,
		SourceText:   text,
	}
	ex.units = append(ex.units, unit)

	for n.FirstChild != nil {
		n.RemoveChild(n.FirstChild)
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: unit.Placeholder()})
}

// captureText extracts a bare text node, keeping surrounding whitespace
// outside the placeholder so word spacing survives the round trip.
func (ex *extraction) captureText(n *html.Node) {
	trimmed := strings.TrimSpace(n.Data)
	if trimmed == "" || isToken(trimmed) {
		return
	}

	unit := Unit{
		ID:         fmt.Sprintf("TU%d", len(ex.units)),
		Kind:       KindText,
		SourceText: trimmed,
	}
	ex.units = append(ex.units, unit)

	idx := strings.Index(n.Data, trimmed)
	n.Data = n.Data[:idx] + unit.Placeholder() + n.Data[idx+len(trimmed):]
}

// extractAttributes pulls alt/title/placeholder values into attribute units.
func (ex *extraction) extractAttributes(doc *goquery.Document) {
	for _, attr := range translatableAttrs {
		doc.Find("body [" + attr + "]").Each(func(i int, sel *goquery.Selection) {
			val, _ := sel.Attr(attr)
			if strings.TrimSpace(val) == "" {
				return
			}
			unit := Unit{
				ID:         fmt.Sprintf("TU%d", len(ex.units)),
				Kind:       KindAttribute,
				SourceText: val,
			}
			ex.units = append(ex.units, unit)
			sel.SetAttr(attr, unit.Placeholder())
		})
	}
}

func readMeta(doc *goquery.Document) Meta {
	m := Meta{Title: strings.TrimSpace(doc.Find("head title").Text())}
	if v, ok := doc.Find(`head meta[name="description"]`).Attr("content"); ok {
		m.Description = v
	}
	if v, ok := doc.Find(`head meta[property="og:title"]`).Attr("content"); ok {
		m.OGTitle = v
	}
	if v, ok := doc.Find(`head meta[property="og:description"]`).Attr("content"); ok {
		m.OGDescription = v
	}
	return m
}

// renderDocument serializes the whole parsed tree, doctype included.
func renderDocument(doc *goquery.Document) (string, error) {
	var buf bytes.Buffer
	for _, n := range doc.Selection.Nodes {
		if err := html.Render(&buf, n); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

func renderChildren(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		html.Render(&buf, c)
	}
	return buf.String()
}

func nodeText(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return buf.String()
}

// isToken reports whether s is exactly one placeholder token.
func isToken(s string) bool {
	return (strings.HasPrefix(s, "[TU") || strings.HasPrefix(s, "[RAW")) &&
		strings.HasSuffix(s, "]") && !strings.Contains(s[1:], "[")
}

// stripTokens removes placeholder tokens so blocks holding only stripped
// subtrees are not turned into units.
func stripTokens(s string) string {
	out := s
	for {
		start := strings.Index(out, "[RAW")
		if start == -1 {
			return out
		}
		end := strings.Index(out[start:], "]")
		if end == -1 {
			return out
		}
		out = out[:start] + out[start+end+1:]
	}
}
