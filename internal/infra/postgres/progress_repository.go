package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"haccp-training-service/internal/domain"
)

// ProgressRepository is the bun-backed system of record for level progress
// and the per-player leaderboard aggregate.
type ProgressRepository struct {
	db *bun.DB
}

func NewProgressRepository(db *bun.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

func (r *ProgressRepository) Get(ctx context.Context, playerID string, level int) (*domain.ProgressRecord, error) {
	row := new(progressRow)
	err := r.db.NewSelect().Model(row).
		Where("player_id = ?", playerID).
		Where("level = ?", level).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	rec := rowToProgress(row)
	return &rec, nil
}

func (r *ProgressRepository) Upsert(ctx context.Context, rec *domain.ProgressRecord) error {
	row := progressToRow(rec)
	_, err := r.db.NewInsert().Model(row).
		On("CONFLICT (player_id, level) DO UPDATE").
		Set("answered_questions = EXCLUDED.answered_questions").
		Set("selected_resolutions = EXCLUDED.selected_resolutions").
		Set("time_remaining = EXCLUDED.time_remaining").
		// Completed is monotonic at the storage layer as well.
		Set("completed = level_progress.completed OR EXCLUDED.completed").
		Set("score = EXCLUDED.score").
		Set("accuracy = EXCLUDED.accuracy").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

func (r *ProgressRepository) Exists(ctx context.Context, playerID string) (bool, error) {
	ok, err := r.db.NewSelect().Model((*progressRow)(nil)).
		Where("player_id = ?", playerID).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("progress exists: %w", err)
	}
	return ok, nil
}

func (r *ProgressRepository) MaxCompletedLevel(ctx context.Context, playerID string) (int, error) {
	var top int
	err := r.db.NewSelect().Model((*progressRow)(nil)).
		ColumnExpr("COALESCE(MAX(level), 0)").
		Where("player_id = ?", playerID).
		Where("completed").
		Scan(ctx, &top)
	if err != nil {
		return 0, fmt.Errorf("max completed level: %w", err)
	}
	return top, nil
}

func (r *ProgressRepository) DeleteByPlayer(ctx context.Context, playerID string) error {
	_, err := r.db.NewDelete().Model((*progressRow)(nil)).
		Where("player_id = ?", playerID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete progress: %w", err)
	}
	return nil
}

func rowToProgress(row *progressRow) domain.ProgressRecord {
	return domain.ProgressRecord{
		PlayerID:            row.PlayerID,
		Level:               row.Level,
		AnsweredQuestions:   row.AnsweredQuestions,
		SelectedResolutions: row.SelectedResolutions,
		TimeRemaining:       row.TimeRemaining,
		Completed:           row.Completed,
		Score:               row.Score,
		Accuracy:            row.Accuracy,
		UpdatedAt:           row.UpdatedAt,
	}
}

func progressToRow(rec *domain.ProgressRecord) *progressRow {
	return &progressRow{
		PlayerID:            rec.PlayerID,
		Level:               rec.Level,
		AnsweredQuestions:   rec.AnsweredQuestions,
		SelectedResolutions: rec.SelectedResolutions,
		TimeRemaining:       rec.TimeRemaining,
		Completed:           rec.Completed,
		Score:               rec.Score,
		Accuracy:            rec.Accuracy,
		UpdatedAt:           rec.UpdatedAt,
	}
}

// LeaderboardRepository maintains the aggregate row deleted first during a
// full progress reset.
type LeaderboardRepository struct {
	db *bun.DB
}

func NewLeaderboardRepository(db *bun.DB) *LeaderboardRepository {
	return &LeaderboardRepository{db: db}
}

func (r *LeaderboardRepository) Upsert(ctx context.Context, entry *domain.LeaderboardEntry) error {
	row := &leaderboardRow{
		PlayerID:  entry.PlayerID,
		TopLevel:  entry.TopLevel,
		BestScore: entry.BestScore,
		UpdatedAt: entry.UpdatedAt,
	}
	_, err := r.db.NewInsert().Model(row).
		On("CONFLICT (player_id) DO UPDATE").
		Set("top_level = GREATEST(leaderboard.top_level, EXCLUDED.top_level)").
		Set("best_score = GREATEST(leaderboard.best_score, EXCLUDED.best_score)").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert leaderboard: %w", err)
	}
	return nil
}

func (r *LeaderboardRepository) DeleteByPlayer(ctx context.Context, playerID string) error {
	_, err := r.db.NewDelete().Model((*leaderboardRow)(nil)).
		Where("player_id = ?", playerID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete leaderboard: %w", err)
	}
	return nil
}
