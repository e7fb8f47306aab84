package quality

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// Scorer is the model-service contract for quality scoring. Both methods
// return the raw model response; the gate owns parsing.
type Scorer interface {
	ScoreImages(ctx context.Context, sourceURL, candidateURL, targetLang string) (string, error)
	ScoreText(ctx context.Context, sourceText, candidateText, targetLang string) (string, error)
}

// Verdict is the gate's decision for one attempt.
type Verdict struct {
	Analysis    Analysis
	Passed      bool
	Corrections *CorrectionInput // set when Passed is false
}

// Gate scores artifacts and synthesizes corrective input for failing ones.
type Gate struct {
	scorer    Scorer
	checker   *LangChecker
	logger    *slog.Logger
	Threshold int
}

// NewGate creates a Gate with the default threshold. checker may be nil to
// skip the language pre-check.
func NewGate(scorer Scorer, checker *LangChecker, logger *slog.Logger) *Gate {
	return &Gate{
		scorer:    scorer,
		checker:   checker,
		logger:    logger,
		Threshold: DefaultThreshold,
	}
}

// CheckImage scores a generated image variant against its source image.
func (g *Gate) CheckImage(ctx context.Context, sourceURL, candidateURL, targetLang string) (*Verdict, error) {
	raw, err := g.scorer.ScoreImages(ctx, sourceURL, candidateURL, targetLang)
	if err != nil {
		return nil, fmt.Errorf("image scoring call failed: %w", err)
	}
	analysis, err := ParseAnalysis(raw)
	if err != nil {
		return nil, err
	}
	if g.checker != nil && analysis.ExtractedText != "" && !g.checker.Matches(analysis.ExtractedText, targetLang) {
		g.logger.Warn("candidate image text not in target language",
			"target", targetLang, "score", analysis.Score)
		analysis = capBelowThreshold(analysis, g.Threshold, "rendered text is not in the target language")
	}
	return g.verdict(analysis), nil
}

// CheckText scores a translated document against its source. Both sides are
// reduced to readable text before scoring.
func (g *Gate) CheckText(ctx context.Context, sourceHTML, candidateHTML, targetLang string) (*Verdict, error) {
	sourceText, err := readableText(sourceHTML)
	if err != nil {
		return nil, fmt.Errorf("failed to extract source text: %w", err)
	}
	candidateText, err := readableText(candidateHTML)
	if err != nil {
		return nil, fmt.Errorf("failed to extract candidate text: %w", err)
	}

	raw, err := g.scorer.ScoreText(ctx, sourceText, candidateText, targetLang)
	if err != nil {
		return nil, fmt.Errorf("text scoring call failed: %w", err)
	}
	analysis, err := ParseAnalysis(raw)
	if err != nil {
		return nil, err
	}
	if g.checker != nil && !g.checker.Matches(candidateText, targetLang) {
		g.logger.Warn("candidate document not in target language", "target", targetLang)
		analysis = capBelowThreshold(analysis, g.Threshold, "document text is not in the target language")
	}
	return g.verdict(analysis), nil
}

func (g *Gate) verdict(a Analysis) *Verdict {
	v := &Verdict{Analysis: a, Passed: a.Score >= g.Threshold}
	if !v.Passed {
		c := SynthesizeCorrections(a)
		v.Corrections = &c
	}
	return v
}

// capBelowThreshold forces a failing score when a pre-check caught something
// the scorer missed, recording the reason as a grammar issue.
func capBelowThreshold(a Analysis, threshold int, reason string) Analysis {
	if a.Score >= threshold {
		a.Score = threshold - 1
	}
	a.GrammarIssues = append(a.GrammarIssues, reason)
	return a
}

// readableText extracts the visible article text from an HTML document.
func readableText(htmlDoc string) (string, error) {
	u, _ := url.Parse("https://localhost/")
	article, err := readability.FromReader(strings.NewReader(htmlDoc), u)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		// Readability can reject very small documents; fall back to a plain
		// tag strip so short pages are still scorable.
		text = strings.TrimSpace(stripTags(htmlDoc))
	}
	return text, nil
}

func stripTags(htmlDoc string) string {
	var b strings.Builder
	inTag := false
	for _, r := range htmlDoc {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteRune(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
