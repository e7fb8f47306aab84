package dispatch

import (
	"strings"

	"golang.org/x/net/html"
)

// TagSequence returns the ordered list of tag names opened in an HTML
// fragment (start and self-closing tags). It is the structural fingerprint
// compared before and after translation.
func TagSequence(fragment string) []string {
	var tags []string
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return tags
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tags = append(tags, string(name))
		}
	}
}

// sameSequence reports whether two tag sequences are identical.
func sameSequence(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
