package quality

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

// minDetectionRunes is the minimum text length for reliable language
// detection; shorter candidates pass without checking.
const minDetectionRunes = 20

// LangChecker verifies that candidate text is written in the expected target
// language before a scoring call is spent on it. The underlying detector is
// expensive to build; reuse the instance.
type LangChecker struct {
	det lingua.LanguageDetector
}

// NewLangChecker builds a detector over all supported languages.
func NewLangChecker() *LangChecker {
	return &LangChecker{
		det: lingua.NewLanguageDetectorBuilder().FromAllLanguages().Build(),
	}
}

// Matches reports whether text appears to be written in targetLang. Empty
// targets, short texts, and ambiguous detections pass: the checker only
// flags confident mismatches. Region subtags are ignored; lingua detects
// languages, not regions, so pt-BR is checked as pt.
func (c *LangChecker) Matches(text, targetLang string) bool {
	if targetLang == "" {
		return true
	}
	text = strings.TrimSpace(text)
	if len([]rune(text)) < minDetectionRunes {
		return true
	}
	lang, ok := c.det.DetectLanguageOf(text)
	if !ok {
		return true
	}
	return strings.EqualFold(lang.IsoCode639_1().String(), primarySubtag(targetLang))
}

// primarySubtag returns the language part of a BCP 47 tag (pt-BR -> pt).
func primarySubtag(tag string) string {
	if i := strings.IndexAny(tag, "-_"); i != -1 {
		return tag[:i]
	}
	return tag
}
