package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"foodlog/searchservice/internal/domain"
)

const defaultHistoryMax = 200

// HistoryStore keeps the foods a user selected, ranked by selection frequency
// and then recency. It backs the empty-query suggestion list.
type HistoryStore interface {
	HistoryRecorder
	Top(ctx context.Context, limit int) ([]domain.HistoryEntry, error)
}

// ---------------------------------------------------------------------------
// In-memory store
// ---------------------------------------------------------------------------

type memoryHistory struct {
	mu         sync.Mutex
	entries    map[string]*domain.HistoryEntry
	maxEntries int
	now        func() time.Time
}

func NewMemoryHistory(maxEntries int) HistoryStore {
	if maxEntries <= 0 {
		maxEntries = defaultHistoryMax
	}
	return &memoryHistory{
		entries:    make(map[string]*domain.HistoryEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (m *memoryHistory) RecordSelection(_ context.Context, record domain.NutritionRecord) error {
	key := record.ContentKey()
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		entry = &domain.HistoryEntry{Record: record}
		m.entries[key] = entry
	}
	entry.Hits++
	entry.LastSelected = m.now()
	m.evictLocked()
	return nil
}

// evictLocked drops the least valuable entry when over capacity: fewest hits,
// oldest selection breaking the tie.
func (m *memoryHistory) evictLocked() {
	for len(m.entries) > m.maxEntries {
		var worstKey string
		var worst *domain.HistoryEntry
		for key, entry := range m.entries {
			if worst == nil || entry.Hits < worst.Hits ||
				(entry.Hits == worst.Hits && entry.LastSelected.Before(worst.LastSelected)) {
				worstKey, worst = key, entry
			}
		}
		delete(m.entries, worstKey)
	}
}

func (m *memoryHistory) Top(_ context.Context, limit int) ([]domain.HistoryEntry, error) {
	m.mu.Lock()
	out := make([]domain.HistoryEntry, 0, len(m.entries))
	for _, entry := range m.entries {
		out = append(out, *entry)
	}
	m.mu.Unlock()
	sortHistory(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortHistory(entries []domain.HistoryEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Hits != entries[j].Hits {
			return entries[i].Hits > entries[j].Hits
		}
		return entries[i].LastSelected.After(entries[j].LastSelected)
	})
}

// ---------------------------------------------------------------------------
// Redis store
// ---------------------------------------------------------------------------

const redisHistoryKey = "foodsearch:history:entries"

// redisHistory persists entries as JSON values in one Redis hash keyed by
// content key, so history survives restarts and is shared across replicas.
type redisHistory struct {
	client     *redis.Client
	maxEntries int
	logger     *slog.Logger
	now        func() time.Time
}

func NewRedisHistory(redisURL string, maxEntries int, logger *slog.Logger) (HistoryStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if maxEntries <= 0 {
		maxEntries = defaultHistoryMax
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &redisHistory{client: client, maxEntries: maxEntries, logger: logger, now: time.Now}, nil
}

func (r *redisHistory) RecordSelection(ctx context.Context, record domain.NutritionRecord) error {
	key := record.ContentKey()
	entry := domain.HistoryEntry{Record: record}
	if raw, err := r.client.HGet(ctx, redisHistoryKey, key).Result(); err == nil {
		if unmarshalErr := json.Unmarshal([]byte(raw), &entry); unmarshalErr != nil {
			r.logger.Warn("corrupt history entry replaced", "key", key, "error", unmarshalErr)
			entry = domain.HistoryEntry{Record: record}
		}
	} else if err != redis.Nil {
		return fmt.Errorf("history read: %w", err)
	}
	entry.Hits++
	entry.LastSelected = r.now()

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("history encode: %w", err)
	}
	if err := r.client.HSet(ctx, redisHistoryKey, key, payload).Err(); err != nil {
		return fmt.Errorf("history write: %w", err)
	}
	return r.evict(ctx)
}

func (r *redisHistory) evict(ctx context.Context) error {
	size, err := r.client.HLen(ctx, redisHistoryKey).Result()
	if err != nil || size <= int64(r.maxEntries) {
		return err
	}
	entries, keys, err := r.loadAll(ctx)
	if err != nil {
		return err
	}
	sortHistory(entries)
	ranked := make(map[string]int, len(entries))
	for i, entry := range entries {
		ranked[entry.Record.ContentKey()] = i
	}
	for _, key := range keys {
		if rank, ok := ranked[key]; ok && rank < r.maxEntries {
			continue
		}
		if err := r.client.HDel(ctx, redisHistoryKey, key).Err(); err != nil {
			return fmt.Errorf("history evict: %w", err)
		}
	}
	return nil
}

func (r *redisHistory) loadAll(ctx context.Context) ([]domain.HistoryEntry, []string, error) {
	raw, err := r.client.HGetAll(ctx, redisHistoryKey).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("history load: %w", err)
	}
	entries := make([]domain.HistoryEntry, 0, len(raw))
	keys := make([]string, 0, len(raw))
	for key, value := range raw {
		keys = append(keys, key)
		var entry domain.HistoryEntry
		if err := json.Unmarshal([]byte(value), &entry); err != nil {
			r.logger.Warn("skipping corrupt history entry", "key", key, "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, keys, nil
}

func (r *redisHistory) Top(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	entries, _, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	sortHistory(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
