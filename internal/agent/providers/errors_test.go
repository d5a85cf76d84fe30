package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestErrorReasonIsRetryable(t *testing.T) {
	tests := []struct {
		reason   ErrorReason
		expected bool
	}{
		{ReasonRateLimit, true},
		{ReasonTimeout, true},
		{ReasonServerError, true},
		{ReasonBilling, false},
		{ReasonAuth, false},
		{ReasonInvalidRequest, false},
		{ReasonContentFilter, false},
		{ReasonUnknown, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			if got := tt.reason.IsRetryable(); got != tt.expected {
				t.Errorf("ErrorReason(%q).IsRetryable() = %v, want %v", tt.reason, got, tt.expected)
			}
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorReason
	}{
		{nil, ReasonUnknown},
		{context.DeadlineExceeded, ReasonTimeout},
		{errors.New("request timeout"), ReasonTimeout},
		{errors.New("429 Too Many Requests"), ReasonRateLimit},
		{errors.New("invalid api key provided"), ReasonAuth},
		{errors.New("insufficient_quota"), ReasonBilling},
		{errors.New("503 service unavailable"), ReasonServerError},
		{errors.New("dial tcp: connection refused"), ReasonServerError},
		{errors.New("400 bad request"), ReasonInvalidRequest},
		{errors.New("something odd"), ReasonUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyError(tt.err); got != tt.want {
			t.Errorf("ClassifyError(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestProviderErrorFormatting(t *testing.T) {
	err := NewProviderError("openai", "gpt-4o", errors.New("boom")).
		WithStatus(429).
		WithCode("rate_limit_exceeded").
		WithRequestID("req_1")

	if err.Reason != ReasonRateLimit {
		t.Fatalf("Reason = %q, want rate_limit", err.Reason)
	}
	msg := err.Error()
	for _, want := range []string{"[rate_limit]", "openai", "model=gpt-4o", "status=429", "code=rate_limit_exceeded", "boom"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
	if err.RequestID != "req_1" {
		t.Errorf("RequestID = %q", err.RequestID)
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	cause := errors.New("root")
	wrapped := fmt.Errorf("outer: %w", NewProviderError("anthropic", "", cause))

	perr, ok := GetProviderError(wrapped)
	if !ok {
		t.Fatal("GetProviderError() found nothing")
	}
	if perr.Provider != "anthropic" {
		t.Errorf("Provider = %q", perr.Provider)
	}
	if !errors.Is(wrapped, cause) {
		t.Error("errors.Is should reach the cause")
	}
}

func TestUnknownCodeKeepsStatusReason(t *testing.T) {
	err := (&ProviderError{Reason: ReasonUnknown}).WithStatus(500).WithCode("something_new")
	if err.Reason != ReasonServerError {
		t.Errorf("Reason = %q, want server_error", err.Reason)
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("nil should not be retryable")
	}
	if IsRetryable(context.Canceled) {
		t.Error("cancellation should not be retryable")
	}
	if !IsRetryable(NewProviderError("x", "", errors.New("502 bad gateway"))) {
		t.Error("server error should be retryable")
	}
	if IsRetryable((&ProviderError{}).WithStatus(401)) {
		t.Error("auth error should not be retryable")
	}
}

func TestBaseProviderRetry(t *testing.T) {
	t.Run("stops on success", func(t *testing.T) {
		b := NewBaseProvider("test", 3, time.Millisecond)
		attempts := 0
		err := b.Retry(context.Background(), IsRetryable, func() error {
			attempts++
			if attempts < 2 {
				return errors.New("503 service unavailable")
			}
			return nil
		})
		if err != nil || attempts != 2 {
			t.Fatalf("Retry() = %v after %d attempts", err, attempts)
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		b := NewBaseProvider("test", 3, time.Millisecond)
		attempts := 0
		err := b.Retry(context.Background(), IsRetryable, func() error {
			attempts++
			return errors.New("timeout")
		})
		if err == nil || attempts != 3 {
			t.Fatalf("Retry() = %v after %d attempts, want error after 3", err, attempts)
		}
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		b := NewBaseProvider("test", 5, time.Millisecond)
		attempts := 0
		_ = b.Retry(context.Background(), IsRetryable, func() error {
			attempts++
			return errors.New("invalid api key")
		})
		if attempts != 1 {
			t.Fatalf("attempts = %d, want 1", attempts)
		}
	})

	t.Run("honors cancellation", func(t *testing.T) {
		b := NewBaseProvider("test", 3, time.Hour)
		ctx, cancel := context.WithCancel(context.Background())
		attempts := 0
		err := b.Retry(ctx, IsRetryable, func() error {
			attempts++
			cancel()
			return errors.New("timeout")
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Retry() = %v, want context.Canceled", err)
		}
	})
}
