package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/uptrace/bun"

	"haccp-training-service/internal/domain"
)

// CheckpointRepository persists run checkpoints with upsert-by-composite-key
// semantics: one row per (player, session, module, question index),
// last write wins.
type CheckpointRepository struct {
	db *bun.DB
}

func NewCheckpointRepository(db *bun.DB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

func (r *CheckpointRepository) List(ctx context.Context, playerID string, module int) ([]domain.Checkpoint, error) {
	var rows []checkpointRow
	err := r.db.NewSelect().Model(&rows).
		Where("player_id = ?", playerID).
		Where("module = ?", module).
		Order("question_index ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	out := make([]domain.Checkpoint, 0, len(rows))
	for i := range rows {
		cp, err := rowToCheckpoint(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

func (r *CheckpointRepository) Upsert(ctx context.Context, cp domain.Checkpoint) error {
	row, err := checkpointToRow(cp)
	if err != nil {
		return err
	}
	_, err = r.db.NewInsert().Model(row).
		On("CONFLICT (player_id, session_id, module, question_index) DO UPDATE").
		Set("question = EXCLUDED.question").
		Set("answer = EXCLUDED.answer").
		Set("time_remaining = EXCLUDED.time_remaining").
		Set("saved_at = EXCLUDED.saved_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert checkpoint: %w", err)
	}
	return nil
}

func (r *CheckpointRepository) DeleteRun(ctx context.Context, playerID string, module int) error {
	_, err := r.db.NewDelete().Model((*checkpointRow)(nil)).
		Where("player_id = ?", playerID).
		Where("module = ?", module).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete run checkpoints: %w", err)
	}
	return nil
}

func rowToCheckpoint(row *checkpointRow) (domain.Checkpoint, error) {
	cp := domain.Checkpoint{
		PlayerID:      row.PlayerID,
		SessionID:     row.SessionID,
		Module:        row.Module,
		QuestionIndex: row.QuestionIndex,
		TimeRemaining: row.TimeRemaining,
		SavedAt:       row.SavedAt,
	}
	if err := json.Unmarshal(row.Question, &cp.Question); err != nil {
		return domain.Checkpoint{}, fmt.Errorf("unmarshal checkpoint question: %w", err)
	}
	if err := json.Unmarshal(row.Answer, &cp.Answer); err != nil {
		return domain.Checkpoint{}, fmt.Errorf("unmarshal checkpoint answer: %w", err)
	}
	return cp, nil
}

func checkpointToRow(cp domain.Checkpoint) (*checkpointRow, error) {
	question, err := json.Marshal(cp.Question)
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint question: %w", err)
	}
	answer, err := json.Marshal(cp.Answer)
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint answer: %w", err)
	}
	return &checkpointRow{
		PlayerID:      cp.PlayerID,
		SessionID:     cp.SessionID,
		Module:        cp.Module,
		QuestionIndex: cp.QuestionIndex,
		Question:      question,
		Answer:        answer,
		TimeRemaining: cp.TimeRemaining,
		SavedAt:       cp.SavedAt,
	}, nil
}
