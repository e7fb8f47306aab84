// Package patch applies {find, replace} corrections to rendered HTML so that
// only visible text is ever touched, never markup. The document is split into
// alternating text and markup segments; a correction is first tried within
// single text segments, then against a virtual concatenation of all text
// segments so matches split across markup boundaries (e.g.
// <strong>Svens</strong>son) are still found. Matches are applied from last
// position to first so earlier offsets stay valid.
package patch

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Correction is one find/replace pair produced by a review pass. Both sides
// are plain text; markup in Find will never match.
type Correction struct {
	Find    string `json:"find"`
	Replace string `json:"replace"`
}

// Report summarizes an Apply run. NotFound lists the find strings that
// matched nowhere; it is observability output, never an error.
type Report struct {
	Applied  int
	NotFound []string
}

type segment struct {
	text   string
	markup bool
}

// Apply runs corrections against doc in order and returns the patched
// document. The tag structure of doc is never modified. Matching happens in
// NFC on both sides, so a document arriving in NFD is returned normalized.
func Apply(doc string, corrections []Correction) (string, Report) {
	var report Report
	if len(corrections) == 0 {
		return doc, report
	}
	doc = norm.NFC.String(doc)

	for _, c := range corrections {
		find := norm.NFC.String(c.Find)
		if find == "" {
			report.NotFound = append(report.NotFound, c.Find)
			continue
		}

		segs := split(doc)
		switch {
		case applyWithin(segs, find, c.Replace):
			doc = join(segs)
			report.Applied++
		case applyAcross(segs, find, c.Replace):
			doc = join(segs)
			report.Applied++
		default:
			report.NotFound = append(report.NotFound, c.Find)
		}
	}

	return doc, report
}

// split breaks doc into alternating text/markup runs. A markup run spans one
// '<'…'>' pair; everything else is text.
func split(doc string) []segment {
	var segs []segment
	var buf strings.Builder
	inTag := false

	flush := func(markup bool) {
		if buf.Len() == 0 {
			return
		}
		segs = append(segs, segment{text: buf.String(), markup: markup})
		buf.Reset()
	}

	for _, r := range doc {
		switch {
		case r == '<' && !inTag:
			flush(false)
			inTag = true
			buf.WriteRune(r)
		case r == '>' && inTag:
			buf.WriteRune(r)
			flush(true)
			inTag = false
		default:
			buf.WriteRune(r)
		}
	}
	flush(inTag)
	return segs
}

func join(segs []segment) string {
	var buf strings.Builder
	for _, s := range segs {
		buf.WriteString(s.text)
	}
	return buf.String()
}

// applyWithin is the fast path: the find string occurs entirely inside at
// least one text segment and is replaced there directly.
func applyWithin(segs []segment, find, replace string) bool {
	matched := false
	for i := range segs {
		if segs[i].markup || !strings.Contains(segs[i].text, find) {
			continue
		}
		segs[i].text = strings.ReplaceAll(segs[i].text, find, replace)
		matched = true
	}
	return matched
}

// applyAcross is the fallback: locate find in the virtual concatenation of
// all text segments and rewrite the spanned segments. The replacement lands
// in the first spanned segment; interior segments are blanked; the last is
// trimmed by the consumed prefix.
func applyAcross(segs []segment, find, replace string) bool {
	// Virtual text plus the byte offset each text segment starts at.
	var vt strings.Builder
	var offsets []int  // virtual start offset per text segment
	var segIdx []int   // index into segs per text segment
	for i := range segs {
		if segs[i].markup {
			continue
		}
		offsets = append(offsets, vt.Len())
		segIdx = append(segIdx, i)
		vt.WriteString(segs[i].text)
	}
	virtual := vt.String()

	var matches []int
	for from := 0; ; {
		j := strings.Index(virtual[from:], find)
		if j == -1 {
			break
		}
		matches = append(matches, from+j)
		from += j + len(find)
	}
	if len(matches) == 0 {
		return false
	}

	for m := len(matches) - 1; m >= 0; m-- {
		start := matches[m]
		end := start + len(find)

		first := locate(offsets, start)
		last := locate(offsets, end-1)

		if first == last {
			i := segIdx[first]
			local := start - offsets[first]
			segs[i].text = segs[i].text[:local] + replace + segs[i].text[local+len(find):]
			continue
		}

		i := segIdx[first]
		local := start - offsets[first]
		segs[i].text = segs[i].text[:local] + replace

		for k := first + 1; k < last; k++ {
			segs[segIdx[k]].text = ""
		}

		j := segIdx[last]
		consumed := end - offsets[last]
		segs[j].text = segs[j].text[consumed:]
	}
	return true
}

// locate returns the index of the text segment containing virtual offset pos
// (the largest k with offsets[k] <= pos).
func locate(offsets []int, pos int) int {
	k := len(offsets) - 1
	for k > 0 && offsets[k] > pos {
		k--
	}
	return k
}
