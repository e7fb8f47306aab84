package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pagelate/pagelate/internal/dispatch"
	"github.com/pagelate/pagelate/internal/postprocess"
)

// TranslateChunk issues one structured translation exchange: a map of unit
// id to source value in, a map of unit id to translated value out. Ids never
// leave the payload, so reinsertion stays positionally correct regardless of
// how the model orders its reply.
func (c *Client) TranslateChunk(ctx context.Context, req dispatch.ChunkRequest) (map[string]string, error) {
	payload, err := json.Marshal(req.Units)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal unit map: %w", err)
	}

	messages := []message{
		{Role: "system", Content: translationSystemPrompt(req)},
		{Role: "user", Content: string(payload)},
	}

	raw, err := c.chat(ctx, c.textModel, messages)
	if err != nil {
		return nil, err
	}

	return decodeUnitMap(raw)
}

// decodeUnitMap parses the model's id→value reply defensively: non-string
// values are dropped rather than failing the chunk, and each value is run
// through postprocess.Clean to shed quote wrapping and echo artifacts.
func decodeUnitMap(raw string) (map[string]string, error) {
	var loose map[string]any
	if err := json.Unmarshal([]byte(postprocess.ExtractJSON(raw)), &loose); err != nil {
		return nil, fmt.Errorf("malformed translation response: %w", err)
	}

	out := make(map[string]string, len(loose))
	for id, v := range loose {
		if s, ok := v.(string); ok {
			if cleaned := postprocess.Clean(s); cleaned != "" {
				out[id] = cleaned
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("translation response contained no units")
	}
	return out, nil
}

func translationSystemPrompt(req dispatch.ChunkRequest) string {
	var sb strings.Builder

	sb.WriteString("You are a professional marketing translator. The user message is a JSON object mapping unit ids to source fragments. Translate every value into ")
	sb.WriteString(req.TargetLang)
	sb.WriteString(" and respond with a JSON object using the exact same keys.\n")
	sb.WriteString("Rules:\n")
	sb.WriteString("- Keep all HTML tags exactly as they appear: same tags, same order, same attributes.\n")
	sb.WriteString("- Preserve [TUn] and [RAWn] markers exactly; do not translate, move, or remove them.\n")
	sb.WriteString("- Keep brand names, numbers, and URLs unchanged.\n")
	sb.WriteString("- Respond with the JSON object only, no explanations.")

	if req.Feedback != "" {
		sb.WriteString("\n\nCorrections from the previous review (apply them):\n")
		sb.WriteString(req.Feedback)
	}
	if req.DocContext != "" {
		sb.WriteString("\n\nFull-page context for terminology consistency (do NOT translate this):\n")
		sb.WriteString(req.DocContext)
	}
	return sb.String()
}
