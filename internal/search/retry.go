package search

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"strings"
	"syscall"
	"time"
)

const (
	retryMaxAttempts = 3
	retryBaseDelay   = 300 * time.Millisecond
	retryMaxDelay    = 3 * time.Second
)

// retryWithBackoff runs fn up to retryMaxAttempts times with jittered
// exponential backoff. Only transient errors are retried. Search page fetches
// never go through here; a failed page is reported once and the user decides.
// Barcode lookups do, because a scan has no manual fallback worth surfacing.
func retryWithBackoff(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < retryMaxAttempts; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << uint(attempt-1)
			if delay > retryMaxDelay {
				delay = retryMaxDelay
			}
			// +-25% jitter so concurrent lookups do not retry in lockstep.
			jitter := time.Duration(rand.Int63n(int64(delay)/2)) - delay/4
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay + jitter):
			}
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isTransientError(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	msg := err.Error()
	for _, marker := range []string{"connection reset", "connection refused", "EOF", "status 429", "status 502", "status 503", "status 504"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
