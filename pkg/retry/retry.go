package retry

import (
	"context"
	"strings"
	"time"
)

// Config holds retry behavior for transient network calls.
type Config struct {
	MaxAttempts    int           // Total attempts, including the first
	InitialBackoff time.Duration // Backoff before the second attempt
	MaxBackoff     time.Duration // Cap on backoff growth
}

// DefaultConfig returns the retry configuration used for feed fetches, audio
// downloads, and index publishes.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
	}
}

// Do executes fn with bounded retries and exponential backoff, honoring ctx
// between attempts. isRetryable gates retries; a nil isRetryable retries
// every failure.
func Do(ctx context.Context, cfg Config, isRetryable func(error) bool, fn func() error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}

	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if isRetryable != nil && !isRetryable(lastErr) {
			return lastErr
		}

		if attempt < cfg.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return lastErr
			case <-time.After(backoff):
			}

			backoff *= 2
			if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		}
	}

	return lastErr
}

// IsRetryableNetwork reports whether an error looks like a transient network
// failure worth retrying.
func IsRetryableNetwork(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection refused",
		"connection reset",
		"connection closed",
		"network is unreachable",
		"no route to host",
		"timeout",
		"i/o timeout",
		"temporary failure",
		"too many connections",
		"rate limit",
		"status code: 429",
		"status code: 5",
	} {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}
