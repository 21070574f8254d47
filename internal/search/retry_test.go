package search

import (
	"context"
	"errors"
	"testing"
)

func TestRetrySucceedsAfterTransientFailure(t *testing.T) {
	attempts := 0
	err := retryWithBackoff(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("status 404")
	attempts := 0
	err := retryWithBackoff(context.Background(), func() error {
		attempts++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("permanent error must not retry, got %d attempts", attempts)
	}
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	err := retryWithBackoff(context.Background(), func() error {
		attempts++
		return errors.New("status 503")
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != retryMaxAttempts {
		t.Fatalf("expected %d attempts, got %d", retryMaxAttempts, attempts)
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := retryWithBackoff(ctx, func() error {
		attempts++
		cancel()
		return errors.New("status 503")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt before cancellation, got %d", attempts)
	}
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		err       error
		transient bool
	}{
		{nil, false},
		{context.Canceled, false},
		{context.DeadlineExceeded, true},
		{errors.New("connection refused"), true},
		{errors.New("status 429: slow down"), true},
		{errors.New("status 400: bad request"), false},
		{errors.New("unexpected EOF"), true},
	}
	for _, tc := range tests {
		if got := isTransientError(tc.err); got != tc.transient {
			t.Errorf("isTransientError(%v) = %v, want %v", tc.err, got, tc.transient)
		}
	}
}
