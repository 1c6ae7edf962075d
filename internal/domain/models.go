package domain

import "time"

// Training track bounds. Levels inside this range unlock sequentially;
// levels above it are controlled by standalone switches or not at all.
const (
	TrainingLevelMin = 1
	TrainingLevelMax = 15
)

// DiagnosticQuestion is a question the player may open while investigating a
// scenario. Opening an irrelevant one costs accuracy.
type DiagnosticQuestion struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Relevant bool   `json:"relevant"`
	Hint     string `json:"hint,omitempty"`
}

// ResolutionOption is one of the corrective actions offered at the end of a
// diagnostic scenario.
type ResolutionOption struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Scenario bundles the diagnostic questions and resolution options for one
// training level. Immutable once loaded.
type Scenario struct {
	ID          string               `json:"id"`
	Level       int                  `json:"level"`
	Title       string               `json:"title"`
	Questions   []DiagnosticQuestion `json:"questions"`
	Resolutions []ResolutionOption   `json:"resolutions"`
}

// IrrelevantCount returns how many diagnostic questions carry no signal.
func (s Scenario) IrrelevantCount() int {
	n := 0
	for _, q := range s.Questions {
		if !q.Relevant {
			n++
		}
	}
	return n
}

// SimQuestion is a timed-simulation prompt with its canonical answer triple.
type SimQuestion struct {
	ID        string `json:"id"`
	Prompt    string `json:"prompt"`
	Violation string `json:"violation"`
	RootCause string `json:"rootCause"`
	Solution  string `json:"solution"`
	Hint      string `json:"hint,omitempty"`
}

// SimAnswer is a player's (possibly partial) response to a SimQuestion. The
// slot is edited in place until the player advances past it.
type SimAnswer struct {
	Violation string `json:"violation"`
	RootCause string `json:"rootCause"`
	Solution  string `json:"solution"`
}

// IsEmpty reports whether no field has been filled in yet.
func (a SimAnswer) IsEmpty() bool {
	return a.Violation == "" && a.RootCause == "" && a.Solution == ""
}

// ProgressRecord is the per (player, level) state of record.
type ProgressRecord struct {
	PlayerID            string    `json:"playerId"`
	Level               int       `json:"level"`
	AnsweredQuestions   []string  `json:"answeredQuestions"`
	SelectedResolutions []string  `json:"selectedResolutions"`
	TimeRemaining       int       `json:"timeRemaining"`
	Completed           bool      `json:"completed"`
	Score               int       `json:"score"`
	Accuracy            float64   `json:"accuracy"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// ProgressPatch is a partial update merged field-by-field into a
// ProgressRecord. Nil fields leave the stored value untouched. Completed is
// monotonic: a patch can set it true but a false value never reverts it.
type ProgressPatch struct {
	AnsweredQuestions   []string
	SelectedResolutions []string
	TimeRemaining       *int
	Completed           *bool
	Score               *int
	Accuracy            *float64
}

// Checkpoint is one persisted (question, answer, time) snapshot of an
// in-flight simulation. At most one row exists per
// (player, session, module, question index); writes overwrite by that key.
type Checkpoint struct {
	PlayerID      string      `json:"playerId"`
	SessionID     string      `json:"sessionId"`
	Module        int         `json:"module"`
	QuestionIndex int         `json:"questionIndex"`
	Question      SimQuestion `json:"question"`
	Answer        SimAnswer   `json:"answer"`
	TimeRemaining int         `json:"timeRemaining"`
	SavedAt       time.Time   `json:"savedAt"`
}

// AttemptRecord is a finished individual simulation run.
type AttemptRecord struct {
	PlayerID       string    `json:"playerId"`
	SessionID      string    `json:"sessionId"`
	Module         int       `json:"module"`
	Score          int       `json:"score"`
	ElapsedSeconds int       `json:"elapsedSeconds"`
	CompletedAt    time.Time `json:"completedAt"`
}

// TeamAttempt aggregates a full team's runs for a module once everyone has
// finished: 0.7 x mean score + 0.3 x best score, plus mean completion time.
type TeamAttempt struct {
	SessionID      string    `json:"sessionId"`
	Module         int       `json:"module"`
	WeightedScore  float64   `json:"weightedScore"`
	AvgElapsedSecs float64   `json:"avgElapsedSecs"`
	Members        int       `json:"members"`
	CompletedAt    time.Time `json:"completedAt"`
}

// LeaderboardEntry is the per-player aggregate row kept alongside level
// records. Deleted first during a full progress reset.
type LeaderboardEntry struct {
	PlayerID  string    `json:"playerId"`
	TopLevel  int       `json:"topLevel"`
	BestScore int       `json:"bestScore"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FeatureFlags are the remotely managed gate switches. TrainingEnabled gates
// the whole sequential track; the two hackathon rounds open independently.
type FeatureFlags struct {
	TrainingEnabled bool `json:"trainingEnabled"`
	QualifierOpen   bool `json:"qualifierOpen"`
	FinalOpen       bool `json:"finalOpen"`
}

// Identity is the (player, session) pair handed to us by the auth layer.
// Opaque here; a zero PlayerID means identity is not yet established.
type Identity struct {
	PlayerID  string `json:"playerId"`
	SessionID string `json:"sessionId"`
}

// Established reports whether saves may be attempted for this identity.
func (id Identity) Established() bool {
	return id.PlayerID != ""
}
