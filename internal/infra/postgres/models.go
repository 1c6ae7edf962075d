package postgres

import (
	"time"

	"github.com/uptrace/bun"
)

type progressRow struct {
	bun.BaseModel `bun:"table:level_progress"`

	PlayerID            string    `bun:"player_id,pk"`
	Level               int       `bun:"level,pk"`
	AnsweredQuestions   []string  `bun:"answered_questions,array"`
	SelectedResolutions []string  `bun:"selected_resolutions,array"`
	TimeRemaining       int       `bun:"time_remaining"`
	Completed           bool      `bun:"completed"`
	Score               int       `bun:"score"`
	Accuracy            float64   `bun:"accuracy"`
	UpdatedAt           time.Time `bun:"updated_at"`
}

type checkpointRow struct {
	bun.BaseModel `bun:"table:sim_checkpoints"`

	PlayerID      string    `bun:"player_id,pk"`
	SessionID     string    `bun:"session_id,pk"`
	Module        int       `bun:"module,pk"`
	QuestionIndex int       `bun:"question_index,pk"`
	Question      []byte    `bun:"question,type:jsonb"`
	Answer        []byte    `bun:"answer,type:jsonb"`
	TimeRemaining int       `bun:"time_remaining"`
	SavedAt       time.Time `bun:"saved_at"`
}

type attemptRow struct {
	bun.BaseModel `bun:"table:sim_attempts"`

	PlayerID       string    `bun:"player_id,pk"`
	SessionID      string    `bun:"session_id,pk"`
	Module         int       `bun:"module,pk"`
	Score          int       `bun:"score"`
	ElapsedSeconds int       `bun:"elapsed_seconds"`
	CompletedAt    time.Time `bun:"completed_at"`
}

type teamAttemptRow struct {
	bun.BaseModel `bun:"table:team_attempts"`

	SessionID      string    `bun:"session_id,pk"`
	Module         int       `bun:"module,pk"`
	WeightedScore  float64   `bun:"weighted_score"`
	AvgElapsedSecs float64   `bun:"avg_elapsed_secs"`
	Members        int       `bun:"members"`
	CompletedAt    time.Time `bun:"completed_at"`
}

type leaderboardRow struct {
	bun.BaseModel `bun:"table:leaderboard"`

	PlayerID  string    `bun:"player_id,pk"`
	TopLevel  int       `bun:"top_level"`
	BestScore int       `bun:"best_score"`
	UpdatedAt time.Time `bun:"updated_at"`
}
