package providers

import (
	"context"
	"time"
)

// BaseProvider holds retry settings shared by providers.
type BaseProvider struct {
	name       string
	maxRetries int
	retryDelay time.Duration
}

// NewBaseProvider creates a base provider. Zero values default to 3 attempts
// with a 1s base delay.
func NewBaseProvider(name string, maxRetries int, retryDelay time.Duration) BaseProvider {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return BaseProvider{
		name:       name,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

// Name returns the provider identifier.
func (b *BaseProvider) Name() string {
	return b.name
}

// Retry runs op until it succeeds, fails with an error isRetryable rejects, or
// attempts run out. The wait grows linearly with the attempt number.
func (b *BaseProvider) Retry(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	if op == nil {
		return nil
	}
	var lastErr error
	for attempt := 1; attempt <= b.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if isRetryable == nil || !isRetryable(lastErr) || attempt == b.maxRetries {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.retryDelay * time.Duration(attempt)):
		}
	}
	return lastErr
}
