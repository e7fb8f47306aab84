// Package quality scores translated artifacts against their source and
// decides whether another regeneration attempt is needed. Model responses
// are treated as untrusted: parsing is defensive, with explicit defaults for
// anything missing or mistyped.
package quality

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pagelate/pagelate/internal/postprocess"
)

// DefaultThreshold is the minimum acceptable score.
const DefaultThreshold = 80

// Analysis is one scoring result. Score is clamped to 0–100.
type Analysis struct {
	Score          int      `json:"score"`
	SpellingErrors []string `json:"spelling_errors"`
	GrammarIssues  []string `json:"grammar_issues"`
	MissingText    []string `json:"missing_text"`
	Assessment     string   `json:"overall_assessment"`
	ExtractedText  string   `json:"extracted_text"`
}

// Issues returns all itemized problems in one list.
func (a Analysis) Issues() []string {
	var out []string
	for _, s := range a.SpellingErrors {
		out = append(out, "spelling: "+s)
	}
	for _, s := range a.GrammarIssues {
		out = append(out, "grammar: "+s)
	}
	for _, s := range a.MissingText {
		out = append(out, "missing: "+s)
	}
	return out
}

// CorrectionInput is handed to the next regeneration attempt when a score
// falls below the threshold.
type CorrectionInput struct {
	ShouldRead   string `json:"should_read"`
	Instructions string `json:"instructions"`
}

// ParseAnalysis decodes a raw model response into an Analysis. The payload is
// loosely typed on the wire; every field falls back to a zero default rather
// than failing the attempt.
func ParseAnalysis(raw string) (Analysis, error) {
	payload := postprocess.ExtractJSON(raw)

	var v map[string]any
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return Analysis{}, fmt.Errorf("malformed analysis response: %w", err)
	}

	a := Analysis{
		Score:          clampScore(numberField(v, "score")),
		SpellingErrors: stringList(v, "spelling_errors", "spellingErrors"),
		GrammarIssues:  stringList(v, "grammar_issues", "grammarIssues"),
		MissingText:    stringList(v, "missing_text", "missingText"),
		Assessment:     stringField(v, "overall_assessment", "overallAssessment", "assessment"),
		ExtractedText:  stringField(v, "extracted_text", "extractedText"),
	}
	return a, nil
}

// SynthesizeCorrections builds the corrective input for the next attempt:
// a "should read" directive from the perceived text plus itemized fixes, and
// a free-text instruction combining the assessment with the same fixes.
func SynthesizeCorrections(a Analysis) CorrectionInput {
	issues := a.Issues()

	var should strings.Builder
	if a.ExtractedText != "" {
		should.WriteString("The rendered text currently reads: " + a.ExtractedText)
	}
	if len(issues) > 0 {
		if should.Len() > 0 {
			should.WriteString("\n")
		}
		should.WriteString("Fix the following:")
		for _, issue := range issues {
			should.WriteString("\n- " + issue)
		}
	}

	var instr strings.Builder
	if a.Assessment != "" {
		instr.WriteString(a.Assessment)
	}
	for _, issue := range issues {
		if instr.Len() > 0 {
			instr.WriteString(" ")
		}
		instr.WriteString(issue + ".")
	}

	return CorrectionInput{
		ShouldRead:   should.String(),
		Instructions: instr.String(),
	}
}

func clampScore(f float64) int {
	s := int(f)
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// numberField accepts numbers and numeric strings.
func numberField(v map[string]any, key string) float64 {
	switch n := v[key].(type) {
	case float64:
		return n
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f
		}
	}
	return 0
}

func stringField(v map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := v[k].(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// stringList accepts lists of strings and lists of objects with a
// description-like field; anything else yields nil.
func stringList(v map[string]any, keys ...string) []string {
	for _, k := range keys {
		raw, ok := v[k].([]any)
		if !ok {
			continue
		}
		var out []string
		for _, item := range raw {
			switch t := item.(type) {
			case string:
				out = append(out, t)
			case map[string]any:
				if s := stringField(t, "description", "issue", "text"); s != "" {
					out = append(out, s)
				}
			}
		}
		return out
	}
	return nil
}
