package search

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"foodlog/searchservice/internal/domain"
)

// ---------------------------------------------------------------------------
// test providers
// ---------------------------------------------------------------------------

type fakeProvider struct {
	name  string
	pages map[int][]domain.NutritionRecord
	err   error
	delay time.Duration
	calls int32
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{Name: f.name, Label: f.name, Kind: "test", Enabled: true}
}

func (f *fakeProvider) Search(ctx context.Context, _ string, _, page int) ([]domain.NutritionRecord, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		// Deliberately ignores ctx: simulates a provider that keeps running
		// after the caller moved on.
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.pages[page], nil
}

func (f *fakeProvider) callCount() int {
	return int(atomic.LoadInt32(&f.calls))
}

type barcodeProvider struct {
	fakeProvider
	product   *domain.NutritionRecord
	failures  int32
	lookupErr error
}

func (b *barcodeProvider) LookupBarcode(context.Context, string) (*domain.NutritionRecord, error) {
	if n := atomic.AddInt32(&b.failures, -1); n >= 0 {
		return nil, b.lookupErr
	}
	return b.product, nil
}

func testOrchestrator(t *testing.T, providers ...Provider) *Orchestrator {
	t.Helper()
	return NewOrchestrator(providers,
		WithPageSize(25),
		WithSearchTimeout(2*time.Second),
		WithProviderRate(1000, 1000),
	)
}

// ---------------------------------------------------------------------------
// session fan-out
// ---------------------------------------------------------------------------

func TestFetchPageDedupesWithinProviderBatch(t *testing.T) {
	// Five raw results, two of them duplicates of earlier entries.
	provider := &fakeProvider{name: "alpha", pages: map[int][]domain.NutritionRecord{
		1: {
			record("pear", "", 57, domain.SourceUSDAFDC, idPtr(1)),
			record("pear juice", "", 46, domain.SourceUSDAFDC, idPtr(2)),
			record("pear", "", 57, domain.SourceUSDAFDC, idPtr(1)),
			record("pear, canned", "", 51, domain.SourceUSDAFDC, idPtr(3)),
			record("pear juice", "", 46, domain.SourceUSDAFDC, idPtr(4)),
		},
	}}
	orch := testOrchestrator(t, provider)

	sess, err := orch.NewSession(context.Background(), "pear")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer sess.Cancel()

	var deltas [][]domain.NutritionRecord
	result, err := sess.FetchPage(func(delta []domain.NutritionRecord) {
		deltas = append(deltas, delta)
	})
	if err != nil {
		t.Fatalf("fetch page: %v", err)
	}
	if len(deltas) != 1 || len(deltas[0]) != 3 {
		t.Fatalf("expected one delta of 3 records, got %v", deltas)
	}
	if len(result.Items) != 3 {
		t.Fatalf("expected 3 accumulated items, got %d", len(result.Items))
	}
	if !result.HasMore {
		t.Fatal("raw results present, hasMore must stay true")
	}
}

func TestFetchPageDedupesAcrossProviders(t *testing.T) {
	shared := record("apple", "dole", 52, domain.SourceUSDAFDC, idPtr(10))
	crossSource := record("apple", "dole", 52, domain.SourceOpenFoodFacts, idPtr(20))
	a := &fakeProvider{name: "alpha", pages: map[int][]domain.NutritionRecord{1: {shared}}}
	b := &fakeProvider{name: "beta", delay: 20 * time.Millisecond, pages: map[int][]domain.NutritionRecord{1: {crossSource}}}
	orch := testOrchestrator(t, a, b)

	sess, err := orch.NewSession(context.Background(), "apple")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer sess.Cancel()

	result, err := sess.FetchPage(nil)
	if err != nil {
		t.Fatalf("fetch page: %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("cross-provider duplicate not dropped: %v", result.Items)
	}
}

func TestFetchPageZeroRawResultsEndsPagination(t *testing.T) {
	provider := &fakeProvider{name: "alpha", pages: map[int][]domain.NutritionRecord{
		1: {record("pear", "", 57, domain.SourceUSDAFDC, idPtr(1))},
	}}
	orch := testOrchestrator(t, provider)

	sess, err := orch.NewSession(context.Background(), "pear")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer sess.Cancel()

	first, err := sess.FetchPage(nil)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if !first.HasMore {
		t.Fatal("page 1 returned raw results, hasMore must be true")
	}

	second, err := sess.FetchPage(nil)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if second.HasMore {
		t.Fatal("zero raw results must end pagination")
	}
	if len(second.Items) != 1 {
		t.Fatalf("accumulated items lost: %v", second.Items)
	}

	if _, err := sess.FetchPage(nil); !errors.Is(err, ErrNoMorePages) {
		t.Fatalf("expected ErrNoMorePages, got %v", err)
	}
}

func TestFetchPageAllFilteredKeepsHasMore(t *testing.T) {
	// Every raw record fails the filter; the page is not treated as the end.
	provider := &fakeProvider{name: "alpha", pages: map[int][]domain.NutritionRecord{
		1: {
			{Name: "xk#99", Source: domain.SourceUSDAFDC},
			{Name: "unknown", Source: domain.SourceUSDAFDC},
		},
	}}
	orch := testOrchestrator(t, provider)

	sess, err := orch.NewSession(context.Background(), "junk food")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer sess.Cancel()

	result, err := sess.FetchPage(nil)
	if err != nil {
		t.Fatalf("fetch page: %v", err)
	}
	if len(result.Items) != 0 {
		t.Fatalf("filter should have rejected everything, got %v", result.Items)
	}
	if !result.HasMore {
		t.Fatal("raw page was non-empty, hasMore must stay true")
	}
}

func TestCancelledSessionAdmitsNothing(t *testing.T) {
	provider := &fakeProvider{
		name:  "slow",
		delay: 60 * time.Millisecond,
		pages: map[int][]domain.NutritionRecord{1: {record("stale", "", 100, domain.SourceUSDAFDC, idPtr(1))}},
	}
	orch := testOrchestrator(t, provider)

	sess, err := orch.NewSession(context.Background(), "stale query")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	done := make(chan error, 1)
	var deltaSeen atomic.Bool
	go func() {
		_, err := sess.FetchPage(func([]domain.NutritionRecord) { deltaSeen.Store(true) })
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	sess.Cancel()

	if err := <-done; err == nil {
		t.Fatal("expected error from cancelled fetch")
	}
	if deltaSeen.Load() {
		t.Fatal("superseded session must not surface results")
	}
	results, _ := sess.Results()
	if len(results) != 0 {
		t.Fatalf("cancelled session holds results: %v", results)
	}
}

func TestNewSessionRejectsShortQuery(t *testing.T) {
	provider := &fakeProvider{name: "alpha"}
	orch := testOrchestrator(t, provider)

	if _, err := orch.NewSession(context.Background(), "pe"); !errors.Is(err, ErrQueryTooShort) {
		t.Fatalf("expected ErrQueryTooShort, got %v", err)
	}
	if provider.callCount() != 0 {
		t.Fatalf("provider called %d times for a short query", provider.callCount())
	}
}

func TestNewSessionRequiresProviders(t *testing.T) {
	orch := testOrchestrator(t)
	if _, err := orch.NewSession(context.Background(), "chicken"); !errors.Is(err, ErrNoProviders) {
		t.Fatalf("expected ErrNoProviders, got %v", err)
	}
}

func TestFetchPageAllProvidersFailed(t *testing.T) {
	a := &fakeProvider{name: "alpha", err: errors.New("boom")}
	b := &fakeProvider{name: "beta", err: errors.New("bust")}
	orch := testOrchestrator(t, a, b)

	sess, err := orch.NewSession(context.Background(), "chicken")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer sess.Cancel()

	result, err := sess.FetchPage(nil)
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Fatalf("expected ErrAllProvidersFailed, got %v", err)
	}
	if !result.HasMore {
		t.Fatal("failed cycle must not end pagination")
	}
	for _, st := range result.Providers {
		if st.OK || st.Error == "" {
			t.Fatalf("expected failure status, got %+v", st)
		}
	}
	// The cursor does not advance on failure; a retry refetches page 1.
	a.err, b.err = nil, nil
	a.pages = map[int][]domain.NutritionRecord{1: {record("chicken", "", 165, domain.SourceUSDAFDC, idPtr(1))}}
	if _, err := sess.FetchPage(nil); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
}

func TestFetchPagePartialFailureStillDelivers(t *testing.T) {
	a := &fakeProvider{name: "alpha", err: errors.New("boom")}
	b := &fakeProvider{name: "beta", pages: map[int][]domain.NutritionRecord{
		1: {record("tofu", "", 76, domain.SourceOpenFoodFacts, idPtr(5))},
	}}
	orch := testOrchestrator(t, a, b)

	sess, err := orch.NewSession(context.Background(), "tofu")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer sess.Cancel()

	result, err := sess.FetchPage(nil)
	if err != nil {
		t.Fatalf("partial failure must not fail the page: %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected surviving provider's record, got %v", result.Items)
	}
}

func TestFetchPageSequentialOnly(t *testing.T) {
	provider := &fakeProvider{
		name:  "slow",
		delay: 50 * time.Millisecond,
		pages: map[int][]domain.NutritionRecord{1: {record("rice", "", 130, domain.SourceUSDAFDC, idPtr(1))}},
	}
	orch := testOrchestrator(t, provider)

	sess, err := orch.NewSession(context.Background(), "rice")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer sess.Cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := sess.FetchPage(nil); err != nil {
			t.Errorf("fetch page: %v", err)
		}
	}()

	time.Sleep(10 * time.Millisecond)
	if _, err := sess.FetchPage(nil); !errors.Is(err, ErrPageInFlight) {
		t.Fatalf("expected ErrPageInFlight, got %v", err)
	}
	<-done
}

func TestSearchOnce(t *testing.T) {
	provider := &fakeProvider{name: "alpha", pages: map[int][]domain.NutritionRecord{
		3: {record("lentils", "", 116, domain.SourceUSDAFDC, idPtr(9))},
	}}
	orch := testOrchestrator(t, provider)

	result, err := orch.SearchOnce(context.Background(), "lentils", 3)
	if err != nil {
		t.Fatalf("search once: %v", err)
	}
	if result.Page != 3 {
		t.Fatalf("expected page 3, got %d", result.Page)
	}
	if len(result.Items) != 1 || result.Items[0].Name != "lentils" {
		t.Fatalf("unexpected items: %v", result.Items)
	}
}

// ---------------------------------------------------------------------------
// circuit breaker
// ---------------------------------------------------------------------------

func TestRepeatedFailuresBlockProvider(t *testing.T) {
	failing := &fakeProvider{name: "flaky", err: errors.New("down")}
	healthy := &fakeProvider{name: "steady", pages: map[int][]domain.NutritionRecord{
		1: {record("bread", "", 265, domain.SourceUSDAFDC, idPtr(1))},
		2: {record("bread, rye", "", 259, domain.SourceUSDAFDC, idPtr(2))},
		3: {record("bread, wheat", "", 247, domain.SourceUSDAFDC, idPtr(3))},
		4: {record("bread, white", "", 266, domain.SourceUSDAFDC, idPtr(4))},
	}}
	orch := testOrchestrator(t, failing, healthy)

	sess, err := orch.NewSession(context.Background(), "bread")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer sess.Cancel()

	for i := 0; i < 4; i++ {
		if _, err := sess.FetchPage(nil); err != nil {
			t.Fatalf("page %d: %v", i+1, err)
		}
	}
	// Three consecutive failures trip the breaker; the fourth cycle must skip
	// the provider entirely.
	if failing.callCount() != 3 {
		t.Fatalf("expected 3 calls before block, got %d", failing.callCount())
	}

	diags := orch.ProviderHealth()
	var flaky domain.ProviderDiagnostics
	for _, d := range diags {
		if d.Name == "flaky" {
			flaky = d
		}
	}
	if flaky.BlockedUntil == nil {
		t.Fatal("expected flaky provider to be blocked")
	}
	if flaky.ConsecutiveFailures != 3 {
		t.Fatalf("expected 3 consecutive failures, got %d", flaky.ConsecutiveFailures)
	}
}

// ---------------------------------------------------------------------------
// barcode lookup
// ---------------------------------------------------------------------------

func TestLookupBarcodeRetriesTransientFailure(t *testing.T) {
	product := record("cola", "brandx", 42, domain.SourceOpenFoodFacts, idPtr(5449000000996))
	provider := &barcodeProvider{
		fakeProvider: fakeProvider{name: "off"},
		product:      &product,
		failures:     1,
		lookupErr:    errors.New("status 503"),
	}
	orch := testOrchestrator(t, provider)

	found, err := orch.LookupBarcode(context.Background(), "5449000000996")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if found == nil || found.Name != "cola" {
		t.Fatalf("unexpected record: %+v", found)
	}
}

func TestLookupBarcodeNotFound(t *testing.T) {
	provider := &barcodeProvider{fakeProvider: fakeProvider{name: "off"}}
	orch := testOrchestrator(t, provider)

	if _, err := orch.LookupBarcode(context.Background(), "0000000000000"); !errors.Is(err, ErrBarcodeNotFound) {
		t.Fatalf("expected ErrBarcodeNotFound, got %v", err)
	}
}
