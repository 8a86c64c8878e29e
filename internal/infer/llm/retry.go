package llm

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"strings"
	"time"
)

// defaultMaxDelay caps the exponential backoff between retries.
const defaultMaxDelay = 30 * time.Second

// isRetryableError determines if an error is transient and should be retried.
// Server errors (5xx), rate limiting (429), timeouts, and temporary network
// failures are retryable; everything else is permanent.
func isRetryableError(err error, statusCode int) bool {
	if statusCode >= 500 || statusCode == 429 {
		return true
	}
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		//nolint:staticcheck // Temporary() is deprecated but still useful for some net errors
		return netErr.Timeout() || netErr.Temporary()
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		//nolint:staticcheck // Temporary() is deprecated but still useful for some net errors
		return opErr.Op == "dial" || opErr.Temporary()
	}

	// Fallback for wrapped errors that lose their type.
	errMsg := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"tls handshake timeout",
		"connection reset",
		"connection refused",
		"broken pipe",
		"no such host",
		"temporary failure",
		"i/o timeout",
		"too many requests",
		"rate limit",
		"overloaded",
		"unexpected eof",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}

// calculateBackoff returns the delay before the given retry attempt using
// exponential backoff with jitter.
func calculateBackoff(attempt int, baseDelay time.Duration) time.Duration {
	delay := baseDelay * time.Duration(1<<attempt)
	if delay <= 0 {
		return 0
	}
	if delay > defaultMaxDelay {
		delay = defaultMaxDelay
	}
	// ±25% jitter to avoid synchronized retries across chunk tasks.
	jitter := time.Duration(rand.Int63n(int64(delay) / 2))
	return delay - delay/4 + jitter
}

// sleepCtx waits for d or until the context is done, whichever is first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
