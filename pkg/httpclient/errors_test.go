package httpclient

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRetryableErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *RetryableError
		expected string
	}{
		{
			name: "with_retry_after",
			err: &RetryableError{
				StatusCode: 429,
				Message:    "rate limited",
				RetryAfter: 30 * time.Second,
			},
			expected: "HTTP 429: rate limited (retry after 30s)",
		},
		{
			name: "without_retry_after",
			err: &RetryableError{
				StatusCode: 503,
				Message:    "service unavailable",
			},
			expected: "HTTP 503: service unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestRetryableErrorUnwrap(t *testing.T) {
	inner := fmt.Errorf("connection reset")
	err := &RetryableError{StatusCode: 502, Message: "bad gateway", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("Expected errors.Is to find the wrapped error")
	}

	var retryErr *RetryableError
	if !errors.As(fmt.Errorf("call failed: %w", err), &retryErr) {
		t.Error("Expected errors.As to find RetryableError through wrapping")
	}
	if retryErr.StatusCode != 502 {
		t.Errorf("Expected status 502, got %d", retryErr.StatusCode)
	}
}

func TestRetryableErrorIsRetryable(t *testing.T) {
	err := &RetryableError{StatusCode: 429}
	if !err.IsRetryable() {
		t.Error("Expected IsRetryable to return true")
	}
}
