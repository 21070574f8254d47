package search

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// providerLimiters hands out one token-bucket limiter per provider name so a
// burst of page fetches cannot hammer a single upstream API.
type providerLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perSec   rate.Limit
	burst    int
}

func newProviderLimiters(perSec float64, burst int) *providerLimiters {
	if perSec <= 0 {
		perSec = 5
	}
	if burst <= 0 {
		burst = 2
	}
	return &providerLimiters{
		limiters: make(map[string]*rate.Limiter),
		perSec:   rate.Limit(perSec),
		burst:    burst,
	}
}

func (p *providerLimiters) limiter(provider string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[provider]
	if !ok {
		l = rate.NewLimiter(p.perSec, p.burst)
		p.limiters[provider] = l
	}
	return l
}

// Wait blocks until the provider's bucket has a token or ctx is done.
func (p *providerLimiters) Wait(ctx context.Context, provider string) error {
	return p.limiter(provider).Wait(ctx)
}
