package search

import (
	"context"
	"testing"
	"time"

	"foodlog/searchservice/internal/domain"
)

func TestMemoryHistoryRanksByFrequencyThenRecency(t *testing.T) {
	store := NewMemoryHistory(10).(*memoryHistory)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	ctx := context.Background()
	oats := record("oatmeal", "", 150, domain.SourceUSDAFDC, idPtr(1))
	eggs := record("eggs", "", 155, domain.SourceUSDAFDC, idPtr(2))
	rice := record("rice", "", 130, domain.SourceUSDAFDC, idPtr(3))

	// oats twice, eggs once, rice once (most recent).
	for _, rec := range []domain.NutritionRecord{oats, eggs, oats, rice} {
		if err := store.RecordSelection(ctx, rec); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	top, err := store.Top(ctx, 10)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(top))
	}
	if top[0].Record.Name != "oatmeal" || top[0].Hits != 2 {
		t.Fatalf("expected oatmeal first with 2 hits, got %+v", top[0])
	}
	// eggs and rice both have 1 hit; rice was selected later.
	if top[1].Record.Name != "rice" || top[2].Record.Name != "eggs" {
		t.Fatalf("recency tiebreak wrong: %q then %q", top[1].Record.Name, top[2].Record.Name)
	}
}

func TestMemoryHistoryTopLimit(t *testing.T) {
	store := NewMemoryHistory(10)
	ctx := context.Background()
	for i := int64(0); i < 5; i++ {
		rec := record("food", "", float64(100+i), domain.SourceUSDAFDC, idPtr(i))
		if err := store.RecordSelection(ctx, rec); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	top, err := store.Top(ctx, 2)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected limit 2, got %d", len(top))
	}
}

func TestMemoryHistoryEvictsLeastValuable(t *testing.T) {
	store := NewMemoryHistory(2)
	ctx := context.Background()

	keeper := record("chicken", "", 165, domain.SourceUSDAFDC, idPtr(1))
	victim := record("celery", "", 14, domain.SourceUSDAFDC, idPtr(2))
	newcomer := record("salmon", "", 208, domain.SourceUSDAFDC, idPtr(3))

	store.RecordSelection(ctx, keeper)
	store.RecordSelection(ctx, keeper)
	store.RecordSelection(ctx, victim)
	store.RecordSelection(ctx, newcomer)

	top, err := store.Top(ctx, 10)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected capacity 2, got %d entries", len(top))
	}
	for _, entry := range top {
		if entry.Record.Name == "celery" {
			t.Fatal("single-hit oldest entry should have been evicted")
		}
	}
}

func TestMemoryHistoryRepeatSelectionAccumulates(t *testing.T) {
	store := NewMemoryHistory(10)
	ctx := context.Background()
	rec := record("banana", "", 89, domain.SourceOpenFoodFacts, nil)
	for i := 0; i < 3; i++ {
		store.RecordSelection(ctx, rec)
	}
	top, _ := store.Top(ctx, 1)
	if len(top) != 1 || top[0].Hits != 3 {
		t.Fatalf("expected one entry with 3 hits, got %+v", top)
	}
}
