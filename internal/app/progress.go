package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"haccp-training-service/internal/domain"
)

// ProgressRepository is the remote system of record for per-level progress.
// Absence of a record is reported as (nil, nil), never as an error.
type ProgressRepository interface {
	Get(ctx context.Context, playerID string, level int) (*domain.ProgressRecord, error)
	Upsert(ctx context.Context, rec *domain.ProgressRecord) error
	Exists(ctx context.Context, playerID string) (bool, error)
	MaxCompletedLevel(ctx context.Context, playerID string) (int, error)
	DeleteByPlayer(ctx context.Context, playerID string) error
}

// LeaderboardRepository maintains the per-player aggregate row.
type LeaderboardRepository interface {
	Upsert(ctx context.Context, entry *domain.LeaderboardEntry) error
	DeleteByPlayer(ctx context.Context, playerID string) error
}

// ProgressMirror is a local, device-scoped copy of the last known progress,
// consulted when the remote backend is unreachable. Best-effort only.
type ProgressMirror interface {
	Put(rec domain.ProgressRecord) error
	GetProgress(playerID string, level int) (domain.ProgressRecord, bool)
}

// ProgressStore exposes per-level progress with the game's failure policy:
// not-found is normal, transient backend failures degrade to sentinel values
// and a log line instead of surfacing to the player. The in-memory/local
// mirror is a cache; the remote repository stays the system of record with
// last-write-wins reconciliation.
type ProgressStore struct {
	repo        ProgressRepository
	leaderboard LeaderboardRepository
	mirror      ProgressMirror
	log         *zap.Logger
	now         func() time.Time
}

func NewProgressStore(repo ProgressRepository, leaderboard LeaderboardRepository, mirror ProgressMirror, log *zap.Logger) *ProgressStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProgressStore{
		repo:        repo,
		leaderboard: leaderboard,
		mirror:      mirror,
		log:         log,
		now:         time.Now,
	}
}

// Load returns the stored record for (player, level), or nil when none
// exists. A backend failure falls back to the local mirror, then to nil.
func (s *ProgressStore) Load(ctx context.Context, playerID string, level int) *domain.ProgressRecord {
	rec, err := s.repo.Get(ctx, playerID, level)
	if err != nil {
		s.log.Warn("progress load failed, consulting local mirror",
			zap.String("player", playerID), zap.Int("level", level), zap.Error(err))
		if s.mirror != nil {
			if cached, ok := s.mirror.GetProgress(playerID, level); ok {
				return &cached
			}
		}
		return nil
	}
	return rec
}

// Save merges the patch into the stored record (creating one on first
// interaction) and upserts it. Saving the same patch twice yields the same
// stored state. Completed never reverts to false. The merged record is
// returned as the caller's new in-memory truth even when the remote write
// fails; the failure is logged and swallowed.
func (s *ProgressStore) Save(ctx context.Context, playerID string, level int, patch domain.ProgressPatch) *domain.ProgressRecord {
	rec := s.Load(ctx, playerID, level)
	if rec == nil {
		rec = &domain.ProgressRecord{PlayerID: playerID, Level: level}
	}
	mergePatch(rec, patch)
	rec.UpdatedAt = s.now()

	if err := s.repo.Upsert(ctx, rec); err != nil {
		s.log.Warn("progress save failed, keeping in-memory state",
			zap.String("player", playerID), zap.Int("level", level), zap.Error(err))
		return rec
	}
	if s.mirror != nil {
		if err := s.mirror.Put(*rec); err != nil {
			s.log.Debug("progress mirror write failed", zap.Error(err))
		}
	}
	if rec.Completed {
		s.bumpLeaderboard(ctx, rec)
	}
	return rec
}

// mergePatch applies non-nil fields of the patch. List fields replace
// wholesale (the caller owns the full list); scalars merge individually.
func mergePatch(rec *domain.ProgressRecord, patch domain.ProgressPatch) {
	if patch.AnsweredQuestions != nil {
		rec.AnsweredQuestions = append([]string(nil), patch.AnsweredQuestions...)
	}
	if patch.SelectedResolutions != nil {
		rec.SelectedResolutions = append([]string(nil), patch.SelectedResolutions...)
	}
	if patch.TimeRemaining != nil {
		rec.TimeRemaining = *patch.TimeRemaining
	}
	if patch.Score != nil {
		rec.Score = *patch.Score
	}
	if patch.Accuracy != nil {
		rec.Accuracy = *patch.Accuracy
	}
	if patch.Completed != nil && *patch.Completed {
		rec.Completed = true
	}
}

func (s *ProgressStore) bumpLeaderboard(ctx context.Context, rec *domain.ProgressRecord) {
	if s.leaderboard == nil {
		return
	}
	top, err := s.repo.MaxCompletedLevel(ctx, rec.PlayerID)
	if err != nil {
		top = rec.Level
	}
	entry := &domain.LeaderboardEntry{
		PlayerID:  rec.PlayerID,
		TopLevel:  top,
		BestScore: rec.Score,
		UpdatedAt: s.now(),
	}
	if err := s.leaderboard.Upsert(ctx, entry); err != nil {
		s.log.Warn("leaderboard upsert failed", zap.String("player", rec.PlayerID), zap.Error(err))
	}
}

// HasAnyProgress reports whether at least one record exists for the player,
// on any level. Backend failure degrades to false.
func (s *ProgressStore) HasAnyProgress(ctx context.Context, playerID string) bool {
	ok, err := s.repo.Exists(ctx, playerID)
	if err != nil {
		s.log.Warn("progress existence check failed", zap.String("player", playerID), zap.Error(err))
		return false
	}
	return ok
}

// TopCompletedLevel returns the highest completed level, or 0 when the
// player has none or the backend is unavailable.
func (s *ProgressStore) TopCompletedLevel(ctx context.Context, playerID string) int {
	top, err := s.repo.MaxCompletedLevel(ctx, playerID)
	if err != nil {
		s.log.Warn("top completed level query failed", zap.String("player", playerID), zap.Error(err))
		return 0
	}
	return top
}

// IsCompleted reports whether (player, level) has a completed record.
func (s *ProgressStore) IsCompleted(ctx context.Context, playerID string, level int) bool {
	rec := s.Load(ctx, playerID, level)
	return rec != nil && rec.Completed
}

// ResetAll removes everything stored for a player: the leaderboard row
// first, then the level records. Best effort in two steps; if the second
// step fails the leaderboard is already gone and stale level records remain,
// an accepted degraded state that is logged.
func (s *ProgressStore) ResetAll(ctx context.Context, playerID string) error {
	if s.leaderboard != nil {
		if err := s.leaderboard.DeleteByPlayer(ctx, playerID); err != nil {
			s.log.Error("progress reset aborted: leaderboard delete failed",
				zap.String("player", playerID), zap.Error(err))
			return err
		}
	}
	if err := s.repo.DeleteByPlayer(ctx, playerID); err != nil {
		s.log.Error("progress reset degraded: level records remain after leaderboard delete",
			zap.String("player", playerID), zap.Error(err))
		return err
	}
	return nil
}
