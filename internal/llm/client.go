// Package llm holds the HTTP clients for the model services: text
// translation, correction review, vision/text quality scoring, and image
// generation. All calls go through the retry policy; 429 and 5xx responses
// are classified transient, everything else propagates immediately.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pagelate/pagelate/internal/retry"
)

// Client talks to a chat-completions-style model API.
type Client struct {
	apiKey      string
	baseURL     string
	textModel   string
	visionModel string
	imageModel  string
	httpClient  *http.Client
	policy      retry.Policy
	logger      *slog.Logger
}

// Config selects models and credentials for a Client.
type Config struct {
	APIKey      string
	BaseURL     string
	TextModel   string
	VisionModel string
	ImageModel  string
	Timeout     time.Duration
}

// NewClient creates a model client. Zero-value config fields get defaults.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.TextModel == "" {
		cfg.TextModel = "google/gemini-2.0-flash-001"
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.TextModel
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = "google/gemini-2.0-flash-exp"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
		textModel:   cfg.TextModel,
		visionModel: cfg.VisionModel,
		imageModel:  cfg.ImageModel,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		policy:      retry.DefaultPolicy,
		logger:      logger,
	}
}

// SetRetryPolicy overrides the default backoff policy.
func (c *Client) SetRetryPolicy(p retry.Policy) { c.policy = p }

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []contentPart
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageRef `json:"image_url,omitempty"`
}

type imageRef struct {
	URL string `json:"url"`
}

// chat performs one completions exchange and returns the raw assistant text.
func (c *Client) chat(ctx context.Context, model string, messages []message) (string, error) {
	body := map[string]any{
		"model":    model,
		"messages": messages,
	}

	var out string
	err := c.policy.Do(ctx, c.logger, "chat", func(ctx context.Context) error {
		var err error
		out, err = c.chatOnce(ctx, body)
		return err
	})
	return out, err
}

func (c *Client) chatOnce(ctx context.Context, body map[string]any) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return "", err
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("empty response from model")
	}
	return decoded.Choices[0].Message.Content, nil
}

// classifyStatus maps HTTP failures onto the retry taxonomy.
func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("API returned 429: %w", retry.ErrRateLimited)
	case resp.StatusCode >= 500:
		return fmt.Errorf("API returned %d: %w", resp.StatusCode, retry.ErrServerSide)
	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("API returned %d: %s", resp.StatusCode, detail)
	}
}
