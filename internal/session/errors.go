package session

import (
	"errors"
	"fmt"
)

// ErrAntiBotBlocked is returned when every acquisition strategy was tried and
// the portal still refuses to serve real content.
var ErrAntiBotBlocked = errors.New("anti-bot blocked: all session strategies exhausted")

// NetworkError wraps a transport-level failure (timeout, connection reset).
// Retriable: callers back off and try again before counting an item error.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error fetching %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RateLimitedError signals an upstream 429/503. The crawler treats it as a
// backoff trigger, not an outright failure.
type RateLimitedError struct {
	URL        string
	StatusCode int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited fetching %s: status %d", e.URL, e.StatusCode)
}

// IsRateLimited reports whether err carries an upstream rate-limit signal.
func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}

// IsNetworkError reports whether err is a retriable transport failure.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
