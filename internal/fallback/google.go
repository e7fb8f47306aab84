// Package fallback provides a machine-translation backstop for plain-text
// units whose model chunk failed. It never handles markup-bearing units;
// those are left for the next model round.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/pagelate/pagelate/internal/retry"
)

// GoogleTranslator wraps the Cloud Translation API. Transient API failures
// are retried with backoff.
type GoogleTranslator struct {
	credentialsFile string
	policy          retry.Policy
	logger          *slog.Logger
}

// NewGoogleTranslator creates a translator. credentialsFile may be empty to
// use ambient application-default credentials.
func NewGoogleTranslator(credentialsFile string, logger *slog.Logger) *GoogleTranslator {
	return &GoogleTranslator{
		credentialsFile: credentialsFile,
		policy:          retry.DefaultPolicy,
		logger:          logger,
	}
}

// TranslateText translates one plain-text value into targetLang.
func (g *GoogleTranslator) TranslateText(ctx context.Context, text, targetLang string) (string, error) {
	target, err := language.Parse(targetLang)
	if err != nil {
		return "", fmt.Errorf("invalid target language %q: %w", targetLang, err)
	}

	var opts []option.ClientOption
	if g.credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(g.credentialsFile))
	}

	client, err := translate.NewClient(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create translate client: %w", err)
	}
	defer client.Close()

	var out string
	err = g.policy.Do(ctx, g.logger, "fallback translate", func(ctx context.Context) error {
		translations, err := client.Translate(ctx, []string{text}, target, nil)
		if err != nil {
			return classifyAPIError(err)
		}
		if len(translations) == 0 {
			return fmt.Errorf("no translation returned")
		}
		out = translations[0].Text
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("translation failed: %w", err)
	}

	// The API HTML-escapes its output; units are escaped again at
	// reinsertion, so unescape here to avoid double entities.
	return html.UnescapeString(out), nil
}

// classifyAPIError wraps rate-limit and server-side API errors in the retry
// sentinels so the backoff loop can see through them.
func classifyAPIError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", retry.ErrRateLimited, err)
		case gerr.Code >= 500:
			return fmt.Errorf("%w: %v", retry.ErrServerSide, err)
		}
	}
	return err
}
