package postgres

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"haccp-training-service/internal/domain"
)

// AttemptRepository stores terminal attempt records and team aggregates.
// CountTeamAttempts backs the "is the whole team done" check.
type AttemptRepository struct {
	db *bun.DB
}

func NewAttemptRepository(db *bun.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

func (r *AttemptRepository) SaveAttempt(ctx context.Context, a domain.AttemptRecord) error {
	row := &attemptRow{
		PlayerID:       a.PlayerID,
		SessionID:      a.SessionID,
		Module:         a.Module,
		Score:          a.Score,
		ElapsedSeconds: a.ElapsedSeconds,
		CompletedAt:    a.CompletedAt,
	}
	_, err := r.db.NewInsert().Model(row).
		On("CONFLICT (player_id, session_id, module) DO UPDATE").
		Set("score = EXCLUDED.score").
		Set("elapsed_seconds = EXCLUDED.elapsed_seconds").
		Set("completed_at = EXCLUDED.completed_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save attempt: %w", err)
	}
	return nil
}

func (r *AttemptRepository) CountTeamAttempts(ctx context.Context, sessionID string, module int) (int, error) {
	n, err := r.db.NewSelect().Model((*attemptRow)(nil)).
		Where("session_id = ?", sessionID).
		Where("module = ?", module).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count team attempts: %w", err)
	}
	return n, nil
}

func (r *AttemptRepository) TeamAttempts(ctx context.Context, sessionID string, module int) ([]domain.AttemptRecord, error) {
	var rows []attemptRow
	err := r.db.NewSelect().Model(&rows).
		Where("session_id = ?", sessionID).
		Where("module = ?", module).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("team attempts: %w", err)
	}
	out := make([]domain.AttemptRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.AttemptRecord{
			PlayerID:       row.PlayerID,
			SessionID:      row.SessionID,
			Module:         row.Module,
			Score:          row.Score,
			ElapsedSeconds: row.ElapsedSeconds,
			CompletedAt:    row.CompletedAt,
		})
	}
	return out, nil
}

func (r *AttemptRepository) SaveTeamAttempt(ctx context.Context, t domain.TeamAttempt) error {
	row := &teamAttemptRow{
		SessionID:      t.SessionID,
		Module:         t.Module,
		WeightedScore:  t.WeightedScore,
		AvgElapsedSecs: t.AvgElapsedSecs,
		Members:        t.Members,
		CompletedAt:    t.CompletedAt,
	}
	_, err := r.db.NewInsert().Model(row).
		On("CONFLICT (session_id, module) DO UPDATE").
		Set("weighted_score = EXCLUDED.weighted_score").
		Set("avg_elapsed_secs = EXCLUDED.avg_elapsed_secs").
		Set("members = EXCLUDED.members").
		Set("completed_at = EXCLUDED.completed_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save team attempt: %w", err)
	}
	return nil
}
