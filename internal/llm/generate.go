package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// GenerateRequest describes one image-generation call: a textual prompt, the
// source advertisement as reference, and the target aspect ratio.
type GenerateRequest struct {
	Prompt         string
	ReferenceImage string // URL of the source creative
	AspectRatio    string // e.g. "1:1", "9:16"
}

// GeneratedImage is one artifact returned by the generation service.
type GeneratedImage struct {
	URL  string // set when the service returns a hosted reference
	Data []byte // set when the service returns inline image bytes
}

// GenerateImage produces a translated ad-image variant. Exactly one of URL
// or Data is set on the result depending on what the service returns.
func (c *Client) GenerateImage(ctx context.Context, req GenerateRequest) (*GeneratedImage, error) {
	body := map[string]any{
		"model":  c.imageModel,
		"prompt": req.Prompt,
	}
	if req.ReferenceImage != "" {
		body["image"] = req.ReferenceImage
	}
	if req.AspectRatio != "" {
		body["aspect_ratio"] = req.AspectRatio
	}

	var img *GeneratedImage
	err := c.policy.Do(ctx, c.logger, "generate-image", func(ctx context.Context) error {
		var err error
		img, err = c.generateOnce(ctx, body)
		return err
	})
	return img, err
}

func (c *Client) generateOnce(ctx context.Context, body map[string]any) (*GeneratedImage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/images/generations", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return nil, err
	}

	var decoded struct {
		Data []struct {
			URL     string `json:"url"`
			B64JSON string `json:"b64_json"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(decoded.Data) == 0 {
		return nil, fmt.Errorf("generation service returned no images")
	}

	first := decoded.Data[0]
	if first.URL != "" {
		return &GeneratedImage{URL: first.URL}, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(first.B64JSON))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image payload: %w", err)
	}
	return &GeneratedImage{Data: raw}, nil
}
