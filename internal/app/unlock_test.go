package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"haccp-training-service/internal/app"
	"haccp-training-service/internal/domain"
	"haccp-training-service/internal/infra/memory"
)

func newUnlockFixture(flags domain.FeatureFlags) (*app.UnlockEngine, *memory.FlagSource, *app.ProgressStore) {
	source := memory.NewFlagSource(flags)
	progress := app.NewProgressStore(memory.NewProgressRepository(), nil, nil, nil)
	engine := app.NewUnlockEngine(source, progress, app.UnlockOptions{}, nil)
	return engine, source, progress
}

func TestUnlockSequentialTraining(t *testing.T) {
	ctx := context.Background()
	engine, _, progress := newUnlockFixture(domain.FeatureFlags{TrainingEnabled: true})

	if !engine.IsUnlocked(ctx, "p1", 1) {
		t.Fatal("level 1 must always be open while training is enabled")
	}
	if engine.IsUnlocked(ctx, "p1", 2) {
		t.Fatal("level 2 locked until level 1 is completed")
	}

	completed := true
	progress.Save(ctx, "p1", 1, domain.ProgressPatch{Completed: &completed})
	if !engine.IsUnlocked(ctx, "p1", 2) {
		t.Fatal("level 2 should open after completing level 1")
	}
	if engine.IsUnlocked(ctx, "p1", 5) {
		t.Fatal("level 5 stays locked without level 4")
	}
}

func TestUnlockTrainingSwitchClosesEverything(t *testing.T) {
	ctx := context.Background()
	engine, _, progress := newUnlockFixture(domain.FeatureFlags{TrainingEnabled: false})

	completed := true
	progress.Save(ctx, "p1", 1, domain.ProgressPatch{Completed: &completed})

	for _, level := range []int{1, 2, 15} {
		if engine.IsUnlocked(ctx, "p1", level) {
			t.Fatalf("level %d must be locked with training disabled", level)
		}
	}
}

func TestUnlockHackathonRounds(t *testing.T) {
	ctx := context.Background()
	engine, source, _ := newUnlockFixture(domain.FeatureFlags{QualifierOpen: true})

	if !engine.IsUnlocked(ctx, "p1", 16) {
		t.Fatal("qualifier should follow its own switch, not training progress")
	}
	if engine.IsUnlocked(ctx, "p1", 17) {
		t.Fatal("final locked while its switch is off")
	}

	source.Set(domain.FeatureFlags{FinalOpen: true})
	engine.Invalidate()
	if engine.IsUnlocked(ctx, "p1", 16) {
		t.Fatal("qualifier should close when its switch flips off")
	}
	if !engine.IsUnlocked(ctx, "p1", 17) {
		t.Fatal("final should open with its switch")
	}
}

func TestUnlockOutsideControlledRange(t *testing.T) {
	ctx := context.Background()
	engine, source, _ := newUnlockFixture(domain.FeatureFlags{})
	source.Fail(errors.New("config service down"))

	for _, level := range []int{0, -3, 18, 99} {
		if !engine.IsUnlocked(ctx, "p1", level) {
			t.Fatalf("level %d outside the controlled range must be open", level)
		}
	}
}

func TestUnlockFailsClosed(t *testing.T) {
	ctx := context.Background()
	engine, source, progress := newUnlockFixture(domain.FeatureFlags{TrainingEnabled: true})

	completed := true
	progress.Save(ctx, "p1", 1, domain.ProgressPatch{Completed: &completed})
	source.Fail(errors.New("config service down"))
	engine.Invalidate()

	for _, level := range []int{1, 2, 16, 17} {
		if engine.IsUnlocked(ctx, "p1", level) {
			t.Fatalf("level %d must fail closed when flags are unavailable", level)
		}
	}
	if _, ok := engine.Flags(ctx); ok {
		t.Fatal("expected flags unavailable")
	}

	// Recovery on the next fetch after the cache is dropped.
	source.Set(domain.FeatureFlags{TrainingEnabled: true})
	engine.Invalidate()
	if !engine.IsUnlocked(ctx, "p1", 1) {
		t.Fatal("expected unlock to recover after flags return")
	}
}

func TestUnlockCachesFlagsWithinTTL(t *testing.T) {
	ctx := context.Background()
	engine, source, _ := newUnlockFixture(domain.FeatureFlags{TrainingEnabled: true})

	for i := 0; i < 5; i++ {
		engine.IsUnlocked(ctx, "p1", 1)
	}
	if calls := source.Calls(); calls != 1 {
		t.Fatalf("expected a single fetch within the TTL, got %d", calls)
	}

	engine.Invalidate()
	engine.IsUnlocked(ctx, "p1", 1)
	if calls := source.Calls(); calls != 2 {
		t.Fatalf("expected a refetch after invalidation, got %d", calls)
	}
}

func TestWatchSpecialsFiresOnChange(t *testing.T) {
	ctx := context.Background()
	engine, source, _ := newUnlockFixture(domain.FeatureFlags{})

	changes := make(chan domain.FeatureFlags, 4)
	stop := engine.WatchSpecials(ctx, 10*time.Millisecond, func(flags domain.FeatureFlags) {
		changes <- flags
	})
	defer stop()

	source.Set(domain.FeatureFlags{QualifierOpen: true})
	select {
	case flags := <-changes:
		if !flags.QualifierOpen {
			t.Fatalf("expected qualifier open, got %+v", flags)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a change notification")
	}

	stop()
	time.Sleep(20 * time.Millisecond) // let any in-flight poll drain
	source.Set(domain.FeatureFlags{})
	time.Sleep(50 * time.Millisecond)
	select {
	case flags := <-changes:
		t.Fatalf("expected no notifications after stop, got %+v", flags)
	default:
	}
}
