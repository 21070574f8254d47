package search

import (
	"context"
	"errors"
	"sort"
	"strings"

	"foodlog/searchservice/internal/domain"
)

var (
	ErrQueryTooShort      = errors.New("query must be at least 3 characters")
	ErrNoProviders        = errors.New("no search providers configured")
	ErrUnknownProvider    = errors.New("unknown provider")
	ErrAllProvidersFailed = errors.New("all providers failed")
	ErrPageInFlight       = errors.New("a page fetch is already in flight")
	ErrNoMorePages        = errors.New("no more pages")
	ErrSessionSuperseded  = errors.New("session superseded")
	ErrBarcodeNotFound    = errors.New("barcode not found")
)

// minQueryLength is the shortest query the service will dispatch to providers.
// Shorter queries carry too little signal to justify fan-out calls.
const minQueryLength = 3

// Provider is one external nutrition database. Search returns the raw page for
// a 1-based page number; mapping provider payloads onto NutritionRecord is the
// provider's responsibility.
type Provider interface {
	Name() string
	Info() domain.ProviderInfo
	Search(ctx context.Context, query string, pageSize, page int) ([]domain.NutritionRecord, error)
}

// BarcodeLookup is an optional interface for providers that can resolve a
// product barcode directly.
type BarcodeLookup interface {
	LookupBarcode(ctx context.Context, code string) (*domain.NutritionRecord, error)
}

func newProviderRegistry(providers []Provider) map[string]Provider {
	registry := make(map[string]Provider, len(providers))
	for _, provider := range providers {
		if provider == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(provider.Name()))
		if name == "" {
			continue
		}
		registry[name] = provider
	}
	return registry
}

func sortedProviders(registry map[string]Provider) []Provider {
	all := make([]Provider, 0, len(registry))
	for _, provider := range registry {
		all = append(all, provider)
	}
	sort.Slice(all, func(i, j int) bool {
		return strings.ToLower(all[i].Name()) < strings.ToLower(all[j].Name())
	})
	return all
}
