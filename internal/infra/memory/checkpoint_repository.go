package memory

import (
	"context"
	"sync"

	"haccp-training-service/internal/domain"
)

type runKey struct {
	player string
	module int
}

// CheckpointRepository keeps run checkpoints in process, one map entry per
// (player, module, question index), with the same overwrite-by-composite-key
// semantics the remote store guarantees.
type CheckpointRepository struct {
	mu   sync.RWMutex
	runs map[runKey]map[int]domain.Checkpoint
}

func NewCheckpointRepository() *CheckpointRepository {
	return &CheckpointRepository{runs: make(map[runKey]map[int]domain.Checkpoint)}
}

func (r *CheckpointRepository) List(_ context.Context, playerID string, module int) ([]domain.Checkpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[runKey{playerID, module}]
	if !ok {
		return nil, nil
	}
	out := make([]domain.Checkpoint, 0, len(run))
	for _, cp := range run {
		out = append(out, cp)
	}
	return out, nil
}

func (r *CheckpointRepository) Upsert(_ context.Context, cp domain.Checkpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := runKey{cp.PlayerID, cp.Module}
	run, ok := r.runs[key]
	if !ok {
		run = make(map[int]domain.Checkpoint)
		r.runs[key] = run
	}
	run[cp.QuestionIndex] = cp
	return nil
}

func (r *CheckpointRepository) DeleteRun(_ context.Context, playerID string, module int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runs, runKey{playerID, module})
	return nil
}

// Count is a test helper.
func (r *CheckpointRepository) Count(playerID string, module int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs[runKey{playerID, module}])
}
