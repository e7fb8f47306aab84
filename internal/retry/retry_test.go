package retry_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pagelate/pagelate/internal/retry"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := fastPolicy(4).Do(context.Background(), discard, "op", func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_RetriesTransient(t *testing.T) {
	calls := 0
	err := fastPolicy(4).Do(context.Background(), discard, "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("status 503: %w", retry.ErrServerSide)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ZeroBaseDelayDoesNotPanic(t *testing.T) {
	calls := 0
	err := retry.Policy{MaxAttempts: 3}.Do(context.Background(), discard, "op", func(context.Context) error {
		calls++
		if calls < 2 {
			return fmt.Errorf("status 503: %w", retry.ErrServerSide)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestDo_FatalNotRetried(t *testing.T) {
	fatal := errors.New("malformed request")
	calls := 0
	err := fastPolicy(4).Do(context.Background(), discard, "op", func(context.Context) error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("expected fatal error back, got %v", err)
	}
	if calls != 1 {
		t.Errorf("fatal error should not be retried, got %d calls", calls)
	}
}

func TestDo_ExhaustsBudget(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), discard, "op", func(context.Context) error {
		calls++
		return retry.ErrRateLimited
	})
	if !errors.Is(err, retry.ErrRateLimited) {
		t.Fatalf("expected last error back, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := retry.Policy{MaxAttempts: 4, BaseDelay: time.Hour}
	err := p.Do(ctx, discard, "op", func(context.Context) error {
		return retry.ErrServerSide
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestIsTransient(t *testing.T) {
	if retry.IsTransient(nil) {
		t.Error("nil should not be transient")
	}
	if retry.IsTransient(errors.New("bad input")) {
		t.Error("generic error should not be transient")
	}
	if !retry.IsTransient(fmt.Errorf("API returned 429: %w", retry.ErrRateLimited)) {
		t.Error("wrapped rate-limit error should be transient")
	}
	if retry.IsTransient(io.ErrUnexpectedEOF) {
		// not a net.Error, must propagate without retry
		t.Error("unexpected EOF should not be transient")
	}
}
