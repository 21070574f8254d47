package search

import (
	"context"
	"errors"
	"sync"
	"time"

	"foodlog/searchservice/internal/domain"
	"foodlog/searchservice/internal/metrics"
)

const (
	healthFailureThreshold = 3
	healthBaseBlock        = 2 * time.Minute
	healthMaxBlock         = 15 * time.Minute
)

type providerHealth struct {
	consecutiveFailures int
	blockedUntil        time.Time
	lastError           string
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	lastLatency         time.Duration
	lastTimeout         bool
	lastQuery           string
	totalRequests       int64
	totalFailures       int64
	timeoutCount        int64
}

// healthTracker is a per-provider circuit breaker. After a run of consecutive
// failures the provider is blocked for an exponentially growing window so one
// dead upstream stops costing every search its timeout.
type healthTracker struct {
	mu        sync.Mutex
	providers map[string]*providerHealth
	now       func() time.Time
}

func newHealthTracker() *healthTracker {
	return &healthTracker{
		providers: make(map[string]*providerHealth),
		now:       time.Now,
	}
}

func (h *healthTracker) state(name string) *providerHealth {
	st, ok := h.providers[name]
	if !ok {
		st = &providerHealth{}
		h.providers[name] = st
	}
	return st
}

// Available reports whether the provider may be called right now.
func (h *healthTracker) Available(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.state(name)
	available := h.now().After(st.blockedUntil)
	gauge := 0.0
	if available {
		gauge = 1.0
	}
	metrics.ProviderAvailable.WithLabelValues(name).Set(gauge)
	return available
}

func (h *healthTracker) RecordSuccess(name, query string, latency time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.state(name)
	st.totalRequests++
	st.consecutiveFailures = 0
	st.blockedUntil = time.Time{}
	st.lastError = ""
	st.lastSuccessAt = h.now()
	st.lastLatency = latency
	st.lastTimeout = false
	st.lastQuery = query
	metrics.ProviderAvailable.WithLabelValues(name).Set(1)
}

func (h *healthTracker) RecordFailure(name, query string, latency time.Duration, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.state(name)
	st.totalRequests++
	st.totalFailures++
	st.consecutiveFailures++
	st.lastFailureAt = h.now()
	st.lastLatency = latency
	st.lastQuery = query
	st.lastTimeout = errors.Is(err, context.DeadlineExceeded)
	if st.lastTimeout {
		st.timeoutCount++
	}
	if err != nil {
		st.lastError = err.Error()
	}
	if st.consecutiveFailures >= healthFailureThreshold {
		// Doubles per failure past the threshold, capped.
		block := healthBaseBlock << uint(st.consecutiveFailures-healthFailureThreshold)
		if block > healthMaxBlock || block <= 0 {
			block = healthMaxBlock
		}
		st.blockedUntil = h.now().Add(block)
		metrics.ProviderAvailable.WithLabelValues(name).Set(0)
	}
}

// Diagnostics returns a point-in-time view for the health endpoint.
func (h *healthTracker) Diagnostics(info domain.ProviderInfo) domain.ProviderDiagnostics {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.state(info.Name)
	d := domain.ProviderDiagnostics{
		Name:                info.Name,
		Label:               info.Label,
		Kind:                info.Kind,
		Enabled:             info.Enabled,
		ConsecutiveFailures: st.consecutiveFailures,
		LastError:           st.lastError,
		LastLatencyMS:       st.lastLatency.Milliseconds(),
		LastTimeout:         st.lastTimeout,
		LastQuery:           st.lastQuery,
		TotalRequests:       st.totalRequests,
		TotalFailures:       st.totalFailures,
		TimeoutCount:        st.timeoutCount,
	}
	if h.now().Before(st.blockedUntil) {
		blocked := st.blockedUntil
		d.BlockedUntil = &blocked
	}
	if !st.lastSuccessAt.IsZero() {
		ts := st.lastSuccessAt
		d.LastSuccessAt = &ts
	}
	if !st.lastFailureAt.IsZero() {
		ts := st.lastFailureAt
		d.LastFailureAt = &ts
	}
	return d
}
