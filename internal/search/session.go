package search

import (
	"context"
	"sync"

	"foodlog/searchservice/internal/domain"
)

// session owns the state of one active query: accumulated results, the dedupe
// sets, the page cursor and the cancellation scope. A new query supersedes the
// previous session by cancelling its context; providers still running against
// the old scope get their results refused at Admit time as a second guard.
type session struct {
	mu sync.Mutex

	generation uint64
	query      string
	ctx        context.Context
	cancel     context.CancelFunc

	dedupe  *deduper
	results []domain.NutritionRecord

	pageCursor   int // 1-based, last fetched page
	hasMore      bool
	pageInFlight bool
}

func newSession(parent context.Context, generation uint64, query string) *session {
	ctx, cancel := context.WithCancel(parent)
	return &session{
		generation: generation,
		query:      query,
		ctx:        ctx,
		cancel:     cancel,
		dedupe:     newDeduper(),
		hasMore:    true,
	}
}

// admitBatch filters and dedupes one provider batch under the session lock.
// Returns the newly admitted records (the delta) along with per-rule rejection
// counts for metrics. A cancelled session admits nothing.
func (s *session) admitBatch(records []domain.NutritionRecord) (delta []domain.NutritionRecord, rejected map[FilterReason]int, dropped map[DedupeKind]int) {
	rejected = make(map[FilterReason]int)
	dropped = make(map[DedupeKind]int)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return nil, rejected, dropped
	}

	for _, rec := range records {
		decision := FilterRecord(rec)
		if !decision.Accepted {
			rejected[decision.Reason]++
			continue
		}
		ok, kind := s.dedupe.Admit(decision.Record)
		if !ok {
			dropped[kind]++
			continue
		}
		s.results = append(s.results, decision.Record)
		delta = append(delta, decision.Record)
	}
	return delta, rejected, dropped
}

// beginPage marks a page fetch in flight. Page fetches are strictly
// sequential within a session.
func (s *session) beginPage() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return 0, ErrSessionSuperseded
	}
	if s.pageInFlight {
		return 0, ErrPageInFlight
	}
	if !s.hasMore {
		return 0, ErrNoMorePages
	}
	s.pageInFlight = true
	return s.pageCursor + 1, nil
}

// endPage records the outcome of the fetch that beginPage admitted. The cursor
// only advances on success; hasMore turns false once a full cycle yields zero
// raw records and never turns true again.
func (s *session) endPage(page int, rawTotal int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageInFlight = false
	if err != nil {
		return
	}
	s.pageCursor = page
	if rawTotal == 0 {
		s.hasMore = false
	}
}

func (s *session) snapshot() ([]domain.NutritionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.NutritionRecord, len(s.results))
	copy(out, s.results)
	return out, s.hasMore
}
