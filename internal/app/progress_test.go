package app_test

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"testing"

	"haccp-training-service/internal/app"
	"haccp-training-service/internal/domain"
	"haccp-training-service/internal/infra/memory"
)

var errBackend = errors.New("backend down")

// failingProgressRepo errors on everything, simulating an unreachable
// remote backend.
type failingProgressRepo struct{}

func (failingProgressRepo) Get(context.Context, string, int) (*domain.ProgressRecord, error) {
	return nil, errBackend
}
func (failingProgressRepo) Upsert(context.Context, *domain.ProgressRecord) error { return errBackend }
func (failingProgressRepo) Exists(context.Context, string) (bool, error)         { return false, errBackend }
func (failingProgressRepo) MaxCompletedLevel(context.Context, string) (int, error) {
	return 0, errBackend
}
func (failingProgressRepo) DeleteByPlayer(context.Context, string) error { return errBackend }

type failingLeaderboard struct{}

func (failingLeaderboard) Upsert(context.Context, *domain.LeaderboardEntry) error { return errBackend }
func (failingLeaderboard) DeleteByPlayer(context.Context, string) error           { return errBackend }

// memoryMirror is a trivial app.ProgressMirror for fallback tests.
type memoryMirror struct {
	records map[string]domain.ProgressRecord
}

func newMemoryMirror() *memoryMirror {
	return &memoryMirror{records: make(map[string]domain.ProgressRecord)}
}

func (m *memoryMirror) Put(rec domain.ProgressRecord) error {
	m.records[mirrorKey(rec.PlayerID, rec.Level)] = rec
	return nil
}

func (m *memoryMirror) GetProgress(playerID string, level int) (domain.ProgressRecord, bool) {
	rec, ok := m.records[mirrorKey(playerID, level)]
	return rec, ok
}

func mirrorKey(playerID string, level int) string {
	return playerID + "/" + strconv.Itoa(level)
}

func TestProgressSaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := app.NewProgressStore(memory.NewProgressRepository(), nil, nil, nil)

	tr := 30
	completed := true
	patch := domain.ProgressPatch{
		AnsweredQuestions:   []string{"q1", "q3"},
		SelectedResolutions: []string{"r2"},
		TimeRemaining:       &tr,
		Completed:           &completed,
	}
	first := store.Save(ctx, "p1", 2, patch)
	second := store.Save(ctx, "p1", 2, patch)

	first.UpdatedAt = second.UpdatedAt
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical state after replay, got %+v vs %+v", first, second)
	}
	if got := store.Load(ctx, "p1", 2); got == nil || !got.Completed || got.TimeRemaining != 30 {
		t.Fatalf("unexpected stored record: %+v", got)
	}
}

func TestProgressCompletedNeverReverts(t *testing.T) {
	ctx := context.Background()
	store := app.NewProgressStore(memory.NewProgressRepository(), nil, nil, nil)

	yes, no := true, false
	store.Save(ctx, "p1", 1, domain.ProgressPatch{Completed: &yes})
	rec := store.Save(ctx, "p1", 1, domain.ProgressPatch{Completed: &no})
	if !rec.Completed {
		t.Fatal("completed flag must not revert to false")
	}
	if !store.IsCompleted(ctx, "p1", 1) {
		t.Fatal("expected level 1 completed")
	}
}

func TestProgressPatchMergesScalarsIndependently(t *testing.T) {
	ctx := context.Background()
	store := app.NewProgressStore(memory.NewProgressRepository(), nil, nil, nil)

	tr := 120
	store.Save(ctx, "p1", 1, domain.ProgressPatch{
		AnsweredQuestions: []string{"q1"},
		TimeRemaining:     &tr,
	})
	// A later patch without TimeRemaining leaves the stored clock alone.
	rec := store.Save(ctx, "p1", 1, domain.ProgressPatch{
		AnsweredQuestions: []string{"q1", "q2"},
	})
	if rec.TimeRemaining != 120 {
		t.Fatalf("expected time remaining preserved, got %d", rec.TimeRemaining)
	}
	if len(rec.AnsweredQuestions) != 2 {
		t.Fatalf("expected answered list replaced wholesale, got %v", rec.AnsweredQuestions)
	}
}

func TestProgressDegradesOnBackendFailure(t *testing.T) {
	ctx := context.Background()
	store := app.NewProgressStore(failingProgressRepo{}, nil, nil, nil)

	if store.Load(ctx, "p1", 1) != nil {
		t.Fatal("expected nil on load failure without a mirror")
	}
	if store.HasAnyProgress(ctx, "p1") {
		t.Fatal("expected false on existence check failure")
	}
	if top := store.TopCompletedLevel(ctx, "p1"); top != 0 {
		t.Fatalf("expected 0 on max level failure, got %d", top)
	}
	if store.IsCompleted(ctx, "p1", 1) {
		t.Fatal("expected not-completed on load failure")
	}

	// Save still returns the merged record as the caller's truth.
	tr := 10
	rec := store.Save(ctx, "p1", 1, domain.ProgressPatch{TimeRemaining: &tr})
	if rec == nil || rec.TimeRemaining != 10 {
		t.Fatalf("expected merged record despite save failure, got %+v", rec)
	}
}

func TestProgressLoadFallsBackToMirror(t *testing.T) {
	ctx := context.Background()
	mirror := newMemoryMirror()
	mirror.Put(domain.ProgressRecord{PlayerID: "p1", Level: 4, Completed: true})

	store := app.NewProgressStore(failingProgressRepo{}, nil, mirror, nil)
	rec := store.Load(ctx, "p1", 4)
	if rec == nil || !rec.Completed {
		t.Fatalf("expected mirrored record, got %+v", rec)
	}
}

func TestProgressSaveWritesMirror(t *testing.T) {
	ctx := context.Background()
	mirror := newMemoryMirror()
	store := app.NewProgressStore(memory.NewProgressRepository(), nil, mirror, nil)

	completed := true
	store.Save(ctx, "p1", 2, domain.ProgressPatch{Completed: &completed})
	if rec, ok := mirror.GetProgress("p1", 2); !ok || !rec.Completed {
		t.Fatalf("expected mirror updated on save, got %+v ok=%v", rec, ok)
	}
}

func TestProgressCompletionBumpsLeaderboard(t *testing.T) {
	ctx := context.Background()
	lb := memory.NewLeaderboardRepository()
	store := app.NewProgressStore(memory.NewProgressRepository(), lb, nil, nil)

	completed := true
	score := 15
	store.Save(ctx, "p1", 1, domain.ProgressPatch{Completed: &completed, Score: &score})
	store.Save(ctx, "p1", 3, domain.ProgressPatch{Completed: &completed})

	entry, ok := lb.Get("p1")
	if !ok || entry.TopLevel != 3 {
		t.Fatalf("expected leaderboard top level 3, got %+v ok=%v", entry, ok)
	}

	// Incomplete saves never touch the leaderboard.
	store.Save(ctx, "p2", 1, domain.ProgressPatch{AnsweredQuestions: []string{"q1"}})
	if _, ok := lb.Get("p2"); ok {
		t.Fatal("expected no leaderboard row for incomplete progress")
	}
}

func TestProgressResetAll(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewProgressRepository()
	lb := memory.NewLeaderboardRepository()
	store := app.NewProgressStore(repo, lb, nil, nil)

	completed := true
	store.Save(ctx, "p1", 1, domain.ProgressPatch{Completed: &completed})
	store.Save(ctx, "p1", 2, domain.ProgressPatch{Completed: &completed})

	if err := store.ResetAll(ctx, "p1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if store.HasAnyProgress(ctx, "p1") {
		t.Fatal("expected all records gone")
	}
	if _, ok := lb.Get("p1"); ok {
		t.Fatal("expected leaderboard row gone")
	}
}

func TestProgressResetAbortsWhenLeaderboardDeleteFails(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewProgressRepository()
	store := app.NewProgressStore(repo, failingLeaderboard{}, nil, nil)

	completed := true
	store.Save(ctx, "p1", 1, domain.ProgressPatch{Completed: &completed})

	if err := store.ResetAll(ctx, "p1"); err == nil {
		t.Fatal("expected reset to surface the delete failure")
	}
	// Level records must be untouched when the first step fails.
	if !store.HasAnyProgress(ctx, "p1") {
		t.Fatal("expected level records preserved after aborted reset")
	}
}
