package remote

import (
	"context"
	"errors"
	"net"
	"net/url"
	"time"
)

// DefaultAttempts bounds how often a transient network failure is retried
// before it is surfaced.
const DefaultAttempts = 3

// DefaultBackoff is the first inter-attempt delay; it doubles per attempt.
const DefaultBackoff = 500 * time.Millisecond

// Retry runs fn up to attempts times, sleeping an increasing backoff
// between tries. Only transient failures are retried. Cancellation is never
// retried and is returned as the context's error so callers can tell it
// apart from network failure.
func Retry(ctx context.Context, attempts int, backoff time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !transient(err) || i == attempts-1 {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

// transient reports whether err looks like a failure that retrying can
// plausibly fix: 5xx or rate-limit responses, timeouts, and transport-level
// errors. Anything wrapping a context cancellation is not transient.
func transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var re *RequestError
	if errors.As(err, &re) {
		return re.Transient()
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue)
}
