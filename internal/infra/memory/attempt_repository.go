package memory

import (
	"context"
	"sync"

	"haccp-training-service/internal/domain"
)

type teamKey struct {
	session string
	module  int
}

// AttemptRepository stores finished runs and team aggregates in process.
type AttemptRepository struct {
	mu       sync.RWMutex
	attempts []domain.AttemptRecord
	teams    map[teamKey]domain.TeamAttempt
}

func NewAttemptRepository() *AttemptRepository {
	return &AttemptRepository{teams: make(map[teamKey]domain.TeamAttempt)}
}

func (r *AttemptRepository) SaveAttempt(_ context.Context, a domain.AttemptRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// One attempt per (player, session, module); a re-finish overwrites.
	for i, existing := range r.attempts {
		if existing.PlayerID == a.PlayerID && existing.SessionID == a.SessionID && existing.Module == a.Module {
			r.attempts[i] = a
			return nil
		}
	}
	r.attempts = append(r.attempts, a)
	return nil
}

func (r *AttemptRepository) CountTeamAttempts(_ context.Context, sessionID string, module int) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, a := range r.attempts {
		if a.SessionID == sessionID && a.Module == module {
			n++
		}
	}
	return n, nil
}

func (r *AttemptRepository) TeamAttempts(_ context.Context, sessionID string, module int) ([]domain.AttemptRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.AttemptRecord
	for _, a := range r.attempts {
		if a.SessionID == sessionID && a.Module == module {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *AttemptRepository) SaveTeamAttempt(_ context.Context, t domain.TeamAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teams[teamKey{t.SessionID, t.Module}] = t
	return nil
}

// TeamAttempt is a test helper.
func (r *AttemptRepository) TeamAttempt(sessionID string, module int) (domain.TeamAttempt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.teams[teamKey{sessionID, module}]
	return t, ok
}
