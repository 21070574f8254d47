package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"foodlog/searchservice/internal/domain"
	"foodlog/searchservice/internal/metrics"
)

const (
	maxConcurrentProviders = 10
	defaultPageSize        = 25
	defaultSearchTimeout   = 10 * time.Second
)

// Orchestrator fans one query out to every registered provider, pushes each
// provider's batch through the filter and dedupe stages, and reports admitted
// deltas as they arrive. Pages within a session are fetched sequentially; the
// providers within one page run concurrently.
type Orchestrator struct {
	registry map[string]Provider
	limiters *providerLimiters
	health   *healthTracker
	sem      *semaphore.Weighted
	logger   *slog.Logger

	pageSize int
	timeout  time.Duration

	genMu      sync.Mutex
	generation uint64
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithPageSize(size int) Option {
	return func(o *Orchestrator) {
		if size > 0 {
			o.pageSize = size
		}
	}
}

func WithSearchTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

func WithProviderRate(perSec float64, burst int) Option {
	return func(o *Orchestrator) {
		o.limiters = newProviderLimiters(perSec, burst)
	}
}

func NewOrchestrator(providers []Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: newProviderRegistry(providers),
		limiters: newProviderLimiters(0, 0),
		health:   newHealthTracker(),
		sem:      semaphore.NewWeighted(maxConcurrentProviders),
		logger:   slog.Default(),
		pageSize: defaultPageSize,
		timeout:  defaultSearchTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewSession validates the query and opens a fresh result session bound to
// parent. The caller owns supersession: cancel the old session before or
// after opening the new one, order does not matter.
func (o *Orchestrator) NewSession(parent context.Context, query string) (*Session, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < minQueryLength {
		return nil, ErrQueryTooShort
	}
	if len(o.registry) == 0 {
		return nil, ErrNoProviders
	}
	o.genMu.Lock()
	o.generation++
	gen := o.generation
	o.genMu.Unlock()
	metrics.SearchSessionsTotal.Inc()
	return &Session{inner: newSession(parent, gen, query), orch: o}, nil
}

// Session is the public handle over one query's accumulated state.
type Session struct {
	inner *session
	orch  *Orchestrator
}

func (s *Session) Query() string { return s.inner.query }

func (s *Session) Cancel() { s.inner.cancel() }

// Done closes when the session is cancelled or superseded.
func (s *Session) Done() <-chan struct{} { return s.inner.ctx.Done() }

// Results returns the accumulated admitted records and whether another page
// may still yield more.
func (s *Session) Results() ([]domain.NutritionRecord, bool) {
	return s.inner.snapshot()
}

// FetchPage fetches the session's next page across all providers. onDelta is
// invoked once per provider batch that admitted at least one new record, in
// arrival order, before FetchPage returns. The returned SearchPage is the
// final aggregate for this cycle.
func (s *Session) FetchPage(onDelta func(delta []domain.NutritionRecord)) (domain.SearchPage, error) {
	page, err := s.inner.beginPage()
	if err != nil {
		return domain.SearchPage{Query: s.inner.query}, err
	}
	return s.fetchClaimed(page, onDelta)
}

// fetchClaimed runs the cycle for a page number beginPage already admitted.
func (s *Session) fetchClaimed(page int, onDelta func(delta []domain.NutritionRecord)) (domain.SearchPage, error) {
	o := s.orch
	started := time.Now()
	statuses, rawTotal := o.fetchCycle(s.inner.ctx, s.inner.query, page, o.pageSize, func(_ string, records []domain.NutritionRecord) {
		delta, rejected, dropped := s.inner.admitBatch(records)
		for reason, n := range rejected {
			metrics.FilterRejectionsTotal.WithLabelValues(string(reason)).Add(float64(n))
		}
		for kind, n := range dropped {
			metrics.DedupeDropsTotal.WithLabelValues(string(kind)).Add(float64(n))
		}
		if len(delta) > 0 && onDelta != nil {
			onDelta(delta)
		}
	})

	cycleErr := s.inner.ctx.Err()
	allFailed := len(statuses) > 0
	for _, st := range statuses {
		if st.OK {
			allFailed = false
			break
		}
	}
	if cycleErr == nil && allFailed {
		cycleErr = ErrAllProvidersFailed
		metrics.SearchUnavailableTotal.Inc()
	}
	s.inner.endPage(page, rawTotal, cycleErr)

	items, hasMore := s.inner.snapshot()
	result := domain.SearchPage{
		Query:     s.inner.query,
		Items:     items,
		Providers: statuses,
		Page:      page,
		PageSize:  o.pageSize,
		HasMore:   hasMore,
		ElapsedMS: time.Since(started).Milliseconds(),
		Final:     true,
	}
	if cycleErr != nil {
		result.Error = cycleErr.Error()
		return result, cycleErr
	}
	o.logger.Info("search page complete",
		"query", s.inner.query,
		"page", page,
		"raw", rawTotal,
		"admitted_total", len(items),
		"elapsed_ms", result.ElapsedMS)
	return result, nil
}

// fetchCycle runs one concurrent pass over every provider for the given page.
// onBatch receives each successful provider's raw records; ordering between
// providers is arrival order. Returns per-provider statuses sorted by name
// and the total raw record count across all providers.
func (o *Orchestrator) fetchCycle(ctx context.Context, query string, page, pageSize int, onBatch func(provider string, records []domain.NutritionRecord)) ([]domain.ProviderStatus, int) {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses []domain.ProviderStatus
		rawTotal int
	)

	report := func(st domain.ProviderStatus, raw int) {
		mu.Lock()
		statuses = append(statuses, st)
		rawTotal += raw
		mu.Unlock()
	}

	for _, provider := range sortedProviders(o.registry) {
		provider := provider
		name := provider.Name()

		if !o.health.Available(name) {
			report(domain.ProviderStatus{Name: name, Error: "temporarily blocked after repeated failures"}, 0)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := o.sem.Acquire(ctx, 1); err != nil {
				report(domain.ProviderStatus{Name: name, Error: err.Error()}, 0)
				return
			}
			defer o.sem.Release(1)

			if err := o.limiters.Wait(ctx, name); err != nil {
				report(domain.ProviderStatus{Name: name, Error: err.Error()}, 0)
				return
			}

			callCtx, cancel := context.WithTimeout(ctx, o.timeout)
			defer cancel()

			started := time.Now()
			records, err := provider.Search(callCtx, query, pageSize, page)
			elapsed := time.Since(started)
			metrics.ProviderRequestDuration.WithLabelValues(name).Observe(elapsed.Seconds())

			if err != nil {
				// Supersession is not a provider fault; skip the breaker.
				if ctx.Err() != nil {
					report(domain.ProviderStatus{Name: name, Error: ctx.Err().Error()}, 0)
					return
				}
				metrics.ProviderRequestsTotal.WithLabelValues(name, "error").Inc()
				o.health.RecordFailure(name, query, elapsed, err)
				o.logger.Warn("provider search failed", "provider", name, "query", query, "page", page, "error", err)
				report(domain.ProviderStatus{Name: name, Error: err.Error()}, 0)
				return
			}

			metrics.ProviderRequestsTotal.WithLabelValues(name, "success").Inc()
			o.health.RecordSuccess(name, query, elapsed)
			o.logger.Debug("provider search ok", "provider", name, "query", query, "page", page, "count", len(records), "elapsed_ms", elapsed.Milliseconds())
			onBatch(name, records)
			report(domain.ProviderStatus{Name: name, OK: true, Count: len(records)}, len(records))
		}()
	}

	wg.Wait()
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses, rawTotal
}

// SearchOnce serves the stateless one-shot API: a single page for an explicit
// page number, deduplicated within that page only.
func (o *Orchestrator) SearchOnce(ctx context.Context, query string, page int) (domain.SearchPage, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < minQueryLength {
		return domain.SearchPage{}, ErrQueryTooShort
	}
	if len(o.registry) == 0 {
		return domain.SearchPage{}, ErrNoProviders
	}
	if page < 1 {
		page = 1
	}

	sess := newSession(ctx, 0, query)
	defer sess.cancel()
	sess.pageCursor = page - 1
	metrics.SearchSessionsTotal.Inc()

	handle := &Session{inner: sess, orch: o}
	result, err := handle.FetchPage(nil)
	if err != nil {
		return result, err
	}
	result.Page = page
	return result, nil
}

// LookupBarcode asks every barcode-capable provider in turn, with retries,
// and returns the first product found. The record still passes the filter
// pipeline so a junk upstream entry cannot bypass curation.
func (o *Orchestrator) LookupBarcode(ctx context.Context, code string) (*domain.NutritionRecord, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrBarcodeNotFound
	}
	var lastErr error
	for _, provider := range sortedProviders(o.registry) {
		lookup, ok := provider.(BarcodeLookup)
		if !ok {
			continue
		}
		name := provider.Name()
		if !o.health.Available(name) {
			continue
		}
		var record *domain.NutritionRecord
		err := retryWithBackoff(ctx, func() error {
			callCtx, cancel := context.WithTimeout(ctx, o.timeout)
			defer cancel()
			found, err := lookup.LookupBarcode(callCtx, code)
			if err != nil {
				return err
			}
			record = found
			return nil
		})
		if err != nil {
			metrics.ProviderRequestsTotal.WithLabelValues(name, "error").Inc()
			o.health.RecordFailure(name, code, 0, err)
			o.logger.Warn("barcode lookup failed", "provider", name, "code", code, "error", err)
			lastErr = err
			continue
		}
		metrics.ProviderRequestsTotal.WithLabelValues(name, "success").Inc()
		o.health.RecordSuccess(name, code, 0)
		if record == nil {
			continue
		}
		decision := FilterRecord(*record)
		if !decision.Accepted {
			metrics.FilterRejectionsTotal.WithLabelValues(string(decision.Reason)).Inc()
			continue
		}
		return &decision.Record, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrBarcodeNotFound
}

// Providers lists registered providers sorted by name.
func (o *Orchestrator) Providers() []domain.ProviderInfo {
	infos := make([]domain.ProviderInfo, 0, len(o.registry))
	for _, provider := range sortedProviders(o.registry) {
		infos = append(infos, provider.Info())
	}
	return infos
}

// ProviderHealth reports circuit-breaker diagnostics for every provider.
func (o *Orchestrator) ProviderHealth() []domain.ProviderDiagnostics {
	diags := make([]domain.ProviderDiagnostics, 0, len(o.registry))
	for _, provider := range sortedProviders(o.registry) {
		diags = append(diags, o.health.Diagnostics(provider.Info()))
	}
	return diags
}
