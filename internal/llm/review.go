package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pagelate/pagelate/internal/patch"
	"github.com/pagelate/pagelate/internal/postprocess"
)

// Review asks the model to proofread a fully assembled translation against
// its source and returns find/replace corrections over visible text. An
// empty list means the reviewer found nothing to fix.
func (c *Client) Review(ctx context.Context, sourceText, translatedText, targetLang string) ([]patch.Correction, error) {
	user, err := json.Marshal(map[string]string{
		"source":      sourceText,
		"translation": translatedText,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal review request: %w", err)
	}

	messages := []message{
		{Role: "system", Content: reviewSystemPrompt(targetLang)},
		{Role: "user", Content: string(user)},
	}

	raw, err := c.chat(ctx, c.textModel, messages)
	if err != nil {
		return nil, err
	}

	return decodeCorrections(raw)
}

// decodeCorrections parses the reviewer's reply defensively: the payload may
// be a bare array or wrapped in a {"corrections": …} object, and malformed
// items are skipped.
func decodeCorrections(raw string) ([]patch.Correction, error) {
	payload := postprocess.ExtractJSON(raw)

	var items []any
	if err := json.Unmarshal([]byte(payload), &items); err != nil {
		var wrapped map[string]any
		if err2 := json.Unmarshal([]byte(payload), &wrapped); err2 != nil {
			return nil, fmt.Errorf("malformed review response: %w", err)
		}
		items, _ = wrapped["corrections"].([]any)
	}

	var out []patch.Correction
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		find, _ := m["find"].(string)
		replace, _ := m["replace"].(string)
		if strings.TrimSpace(find) == "" {
			continue
		}
		out = append(out, patch.Correction{Find: find, Replace: replace})
	}
	return out, nil
}

func reviewSystemPrompt(targetLang string) string {
	var sb strings.Builder
	sb.WriteString("You are a meticulous ")
	sb.WriteString(targetLang)
	sb.WriteString(" proofreader for marketing copy. The user message contains the source text and its translation. Find spelling mistakes, grammar errors, and mistranslations in the translation.\n")
	sb.WriteString("Respond with a JSON object: {\"corrections\": [{\"find\": \"exact text as it appears\", \"replace\": \"corrected text\"}]}.\n")
	sb.WriteString("The find strings must be plain visible text, never HTML. Return an empty list when the translation is correct.")
	return sb.String()
}
