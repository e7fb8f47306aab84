package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

const maxSourceBytes = 8 << 20

// LoadSource resolves a task source reference to raw HTML. HTTP(S) refs are
// fetched; anything else is treated as a local file path.
func LoadSource(ctx context.Context, client *http.Client, ref string) (string, error) {
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		data, err := os.ReadFile(ref)
		if err != nil {
			return "", fmt.Errorf("failed to read source file: %w", err)
		}
		return string(data), nil
	}

	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return "", fmt.Errorf("invalid source URL %q: %w", ref, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("source fetch returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read source body: %w", err)
	}
	return string(data), nil
}
