package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"haccp-training-service/internal/domain"
)

// ContentLoader loads game content (diagnostic scenarios and simulation
// question pools) stored as JSONB.
type ContentLoader struct {
	pool *pgxpool.Pool
}

func NewContentLoader(pool *pgxpool.Pool) *ContentLoader {
	return &ContentLoader{pool: pool}
}

func (l *ContentLoader) LoadScenario(ctx context.Context, level int) (domain.Scenario, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM scenarios WHERE level=$1`, level).Scan(&raw)
	if err == pgx.ErrNoRows {
		return domain.Scenario{}, domain.ErrScenarioNotFound
	}
	if err != nil {
		return domain.Scenario{}, fmt.Errorf("load scenario: %w", err)
	}
	var scenario domain.Scenario
	if err := json.Unmarshal(raw, &scenario); err != nil {
		return domain.Scenario{}, fmt.Errorf("unmarshal scenario: %w", err)
	}
	return scenario, nil
}

// Questions returns the full pool for a simulation module, satisfying
// app.QuestionPool.
func (l *ContentLoader) Questions(ctx context.Context, module int) ([]domain.SimQuestion, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM sim_question_pools WHERE module=$1`, module).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrModuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load question pool: %w", err)
	}
	var questions []domain.SimQuestion
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("unmarshal question pool: %w", err)
	}
	return questions, nil
}
