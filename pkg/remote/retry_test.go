package remote

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryTransientEventuallySucceeds(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return &RequestError{Status: 500, URL: "u"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry returned unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return &RequestError{Status: 503, URL: "u"}
	})
	var re *RequestError
	if !errors.As(err, &re) {
		t.Fatalf("Retry error = %v, want RequestError", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryDoesNotRetryPermanentErrors(t *testing.T) {
	tests := map[string]error{
		"not found":    &NotFoundError{Path: "x"},
		"client error": &RequestError{Status: 403, URL: "u"},
		"plain error":  errors.New("bad config"),
	}

	for name, permanent := range tests {
		t.Run(name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), 5, time.Millisecond, func() error {
				calls++
				return permanent
			})
			if !errors.Is(err, permanent) {
				t.Fatalf("Retry error = %v, want %v", err, permanent)
			}
			if calls != 1 {
				t.Errorf("calls = %d, want 1 (no retries)", calls)
			}
		})
	}
}

func TestRetryStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, 5, time.Millisecond, func() error {
		calls++
		cancel()
		return &RequestError{Status: 500, URL: "u"}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Retry error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryRateLimited(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 2, time.Millisecond, func() error {
		calls++
		if calls == 1 {
			return &RequestError{Status: 429, URL: "u"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry returned unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}
