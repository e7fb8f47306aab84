package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ScoreImages asks the vision model to compare a generated image variant
// against the source image and returns the raw analysis response; parsing is
// owned by the quality gate.
func (c *Client) ScoreImages(ctx context.Context, sourceURL, candidateURL, targetLang string) (string, error) {
	messages := []message{
		{Role: "system", Content: scoreSystemPrompt(targetLang, true)},
		{Role: "user", Content: []contentPart{
			{Type: "text", Text: "First image is the source advertisement, second is the translated variant."},
			{Type: "image_url", ImageURL: &imageRef{URL: sourceURL}},
			{Type: "image_url", ImageURL: &imageRef{URL: candidateURL}},
		}},
	}
	return c.chat(ctx, c.visionModel, messages)
}

// ScoreText asks the model to compare the readable text of a translated
// document against its source.
func (c *Client) ScoreText(ctx context.Context, sourceText, candidateText, targetLang string) (string, error) {
	user, err := json.Marshal(map[string]string{
		"source":      sourceText,
		"translation": candidateText,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal scoring request: %w", err)
	}
	messages := []message{
		{Role: "system", Content: scoreSystemPrompt(targetLang, false)},
		{Role: "user", Content: string(user)},
	}
	return c.chat(ctx, c.textModel, messages)
}

func scoreSystemPrompt(targetLang string, vision bool) string {
	var sb strings.Builder
	sb.WriteString("You are a strict ")
	sb.WriteString(targetLang)
	sb.WriteString(" localization reviewer. Score the translated variant from 0 to 100 for linguistic quality and completeness against the source.\n")
	sb.WriteString("Respond with a JSON object: {\"score\": <0-100>, \"spelling_errors\": [], \"grammar_issues\": [], \"missing_text\": [], \"overall_assessment\": \"\"")
	if vision {
		sb.WriteString(", \"extracted_text\": \"every piece of text you can read in the translated image\"")
	}
	sb.WriteString("}. Respond with the JSON object only.")
	return sb.String()
}
