package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"haccp-training-service/internal/domain"
)

// ScenarioSource serves diagnostic content, typically through a TTL cache.
type ScenarioSource interface {
	GetScenario(ctx context.Context, level int) (domain.Scenario, error)
}

// DiagnosticService runs the investigate-and-resolve game mode: the player
// opens diagnostic questions, picks resolution options, and finishes with an
// accuracy score. Question/selection churn is debounced (~1s) before it hits
// the progress store; completion flushes immediately.
type DiagnosticService struct {
	scenarios ScenarioSource
	progress  *ProgressStore
	params    AccuracyParams
	debounce  time.Duration
	log       *zap.Logger

	mu     sync.Mutex
	states map[diagKey]*diagState
}

type diagKey struct {
	player string
	level  int
}

type diagState struct {
	answered []string
	selected []string
	deb      *Debouncer
}

func NewDiagnosticService(scenarios ScenarioSource, progress *ProgressStore, params AccuracyParams, debounce time.Duration, log *zap.Logger) *DiagnosticService {
	if log == nil {
		log = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = time.Second
	}
	return &DiagnosticService{
		scenarios: scenarios,
		progress:  progress,
		params:    params,
		debounce:  debounce,
		log:       log,
		states:    make(map[diagKey]*diagState),
	}
}

// OpenQuestion marks a diagnostic question as viewed. Idempotent; schedules
// a debounced save.
func (d *DiagnosticService) OpenQuestion(ctx context.Context, playerID string, level int, questionID string) {
	d.mu.Lock()
	state := d.stateLocked(ctx, playerID, level)
	if !contains(state.answered, questionID) {
		state.answered = append(state.answered, questionID)
	}
	d.scheduleSaveLocked(playerID, level, state)
	d.mu.Unlock()
}

// SelectResolution records or withdraws a resolution option choice and
// schedules a debounced save.
func (d *DiagnosticService) SelectResolution(ctx context.Context, playerID string, level int, optionID string, selected bool) {
	d.mu.Lock()
	state := d.stateLocked(ctx, playerID, level)
	if selected {
		if !contains(state.selected, optionID) {
			state.selected = append(state.selected, optionID)
		}
	} else {
		state.selected = remove(state.selected, optionID)
	}
	d.scheduleSaveLocked(playerID, level, state)
	d.mu.Unlock()
}

// Complete finishes the level: flushes any pending save, computes accuracy
// against the scenario, and stores the completed record. The completion
// flag, once stored, never reverts.
func (d *DiagnosticService) Complete(ctx context.Context, playerID string, level int, timeRemaining int) (*domain.ProgressRecord, error) {
	scenario, err := d.scenarios.GetScenario(ctx, level)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	state := d.stateLocked(ctx, playerID, level)
	state.deb.Flush()
	answered := append([]string(nil), state.answered...)
	selected := append([]string(nil), state.selected...)
	d.mu.Unlock()

	accuracy := Accuracy(selected, answered, scenario, d.params)
	completed := true
	rec := d.progress.Save(ctx, playerID, level, domain.ProgressPatch{
		AnsweredQuestions:   answered,
		SelectedResolutions: selected,
		TimeRemaining:       &timeRemaining,
		Completed:           &completed,
		Accuracy:            &accuracy,
	})
	return rec, nil
}

// Close stops every pending debounced save. Required on teardown.
func (d *DiagnosticService) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, state := range d.states {
		state.deb.Stop()
	}
	d.states = make(map[diagKey]*diagState)
}

// stateLocked returns the live state for (player, level), seeding it from
// the stored record on first touch so a reload resumes mid-investigation.
func (d *DiagnosticService) stateLocked(ctx context.Context, playerID string, level int) *diagState {
	key := diagKey{playerID, level}
	if state, ok := d.states[key]; ok {
		return state
	}
	state := &diagState{deb: NewDebouncer(d.debounce)}
	if rec := d.progress.Load(ctx, playerID, level); rec != nil {
		state.answered = append(state.answered, rec.AnsweredQuestions...)
		state.selected = append(state.selected, rec.SelectedResolutions...)
	}
	d.states[key] = state
	return state
}

func (d *DiagnosticService) scheduleSaveLocked(playerID string, level int, state *diagState) {
	answered := append([]string(nil), state.answered...)
	selected := append([]string(nil), state.selected...)
	state.deb.Call(func() {
		d.progress.Save(context.Background(), playerID, level, domain.ProgressPatch{
			AnsweredQuestions:   answered,
			SelectedResolutions: selected,
		})
	})
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func remove(list []string, v string) []string {
	out := list[:0]
	for _, item := range list {
		if item != v {
			out = append(out, item)
		}
	}
	return out
}
