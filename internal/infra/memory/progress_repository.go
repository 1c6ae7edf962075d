package memory

import (
	"context"
	"sync"

	"haccp-training-service/internal/domain"
)

type progressKey struct {
	player string
	level  int
}

// ProgressRepository is an in-memory app.ProgressRepository, used by tests
// and the no-database demo mode.
type ProgressRepository struct {
	mu      sync.RWMutex
	records map[progressKey]domain.ProgressRecord
}

func NewProgressRepository() *ProgressRepository {
	return &ProgressRepository{records: make(map[progressKey]domain.ProgressRecord)}
}

func (r *ProgressRepository) Get(_ context.Context, playerID string, level int) (*domain.ProgressRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.records[progressKey{playerID, level}]; ok {
		out := rec
		return &out, nil
	}
	return nil, nil
}

func (r *ProgressRepository) Upsert(_ context.Context, rec *domain.ProgressRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[progressKey{rec.PlayerID, rec.Level}] = *rec
	return nil
}

func (r *ProgressRepository) Exists(_ context.Context, playerID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for key := range r.records {
		if key.player == playerID {
			return true, nil
		}
	}
	return false, nil
}

func (r *ProgressRepository) MaxCompletedLevel(_ context.Context, playerID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	top := 0
	for key, rec := range r.records {
		if key.player == playerID && rec.Completed && key.level > top {
			top = key.level
		}
	}
	return top, nil
}

func (r *ProgressRepository) DeleteByPlayer(_ context.Context, playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.records {
		if key.player == playerID {
			delete(r.records, key)
		}
	}
	return nil
}

// LeaderboardRepository is the in-memory aggregate row store.
type LeaderboardRepository struct {
	mu      sync.RWMutex
	entries map[string]domain.LeaderboardEntry
}

func NewLeaderboardRepository() *LeaderboardRepository {
	return &LeaderboardRepository{entries: make(map[string]domain.LeaderboardEntry)}
}

func (r *LeaderboardRepository) Upsert(_ context.Context, entry *domain.LeaderboardEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.PlayerID] = *entry
	return nil
}

func (r *LeaderboardRepository) DeleteByPlayer(_ context.Context, playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, playerID)
	return nil
}

// Get is a test helper.
func (r *LeaderboardRepository) Get(playerID string) (domain.LeaderboardEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[playerID]
	return entry, ok
}
