package memory

import (
	"context"
	"testing"

	"haccp-training-service/internal/domain"
)

func TestProgressRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewProgressRepository()

	if rec, err := repo.Get(ctx, "p1", 1); rec != nil || err != nil {
		t.Fatalf("expected (nil, nil) for absent record, got %v %v", rec, err)
	}

	_ = repo.Upsert(ctx, &domain.ProgressRecord{PlayerID: "p1", Level: 1, Completed: true})
	_ = repo.Upsert(ctx, &domain.ProgressRecord{PlayerID: "p1", Level: 4, Completed: true})
	_ = repo.Upsert(ctx, &domain.ProgressRecord{PlayerID: "p1", Level: 6})
	_ = repo.Upsert(ctx, &domain.ProgressRecord{PlayerID: "p2", Level: 9, Completed: true})

	rec, err := repo.Get(ctx, "p1", 4)
	if err != nil || rec == nil || !rec.Completed {
		t.Fatalf("unexpected record: %v %v", rec, err)
	}

	// Incomplete levels don't count toward the maximum.
	if top, _ := repo.MaxCompletedLevel(ctx, "p1"); top != 4 {
		t.Fatalf("expected max completed 4, got %d", top)
	}
	if ok, _ := repo.Exists(ctx, "p1"); !ok {
		t.Fatal("expected records for p1")
	}

	if err := repo.DeleteByPlayer(ctx, "p1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := repo.Exists(ctx, "p1"); ok {
		t.Fatal("expected p1 wiped")
	}
	if ok, _ := repo.Exists(ctx, "p2"); !ok {
		t.Fatal("expected p2 untouched")
	}
}

func TestProgressRepositoryGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	repo := NewProgressRepository()
	_ = repo.Upsert(ctx, &domain.ProgressRecord{PlayerID: "p1", Level: 1, TimeRemaining: 60})

	rec, _ := repo.Get(ctx, "p1", 1)
	rec.TimeRemaining = 0

	again, _ := repo.Get(ctx, "p1", 1)
	if again.TimeRemaining != 60 {
		t.Fatalf("expected stored record isolated from caller mutation, got %d", again.TimeRemaining)
	}
}

func TestLeaderboardRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewLeaderboardRepository()

	_ = repo.Upsert(ctx, &domain.LeaderboardEntry{PlayerID: "p1", TopLevel: 2})
	_ = repo.Upsert(ctx, &domain.LeaderboardEntry{PlayerID: "p1", TopLevel: 5})

	entry, ok := repo.Get("p1")
	if !ok || entry.TopLevel != 5 {
		t.Fatalf("expected upserted entry with top level 5, got %+v ok=%v", entry, ok)
	}

	_ = repo.DeleteByPlayer(ctx, "p1")
	if _, ok := repo.Get("p1"); ok {
		t.Fatal("expected entry deleted")
	}
}
