package app

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"haccp-training-service/internal/domain"
)

// SessionState is the lifecycle phase of a timed simulation run.
type SessionState string

const (
	StateNotStarted SessionState = "NOT_STARTED"
	StateCountdown  SessionState = "COUNTDOWN"
	StateInProgress SessionState = "IN_PROGRESS"
	StateCompleted  SessionState = "COMPLETED"
)

// CheckpointRepository persists in-flight run snapshots keyed by
// (player, session, module, question index); Upsert overwrites by that key.
type CheckpointRepository interface {
	List(ctx context.Context, playerID string, module int) ([]domain.Checkpoint, error)
	Upsert(ctx context.Context, cp domain.Checkpoint) error
	DeleteRun(ctx context.Context, playerID string, module int) error
}

// AttemptRepository stores finished runs and team aggregates.
type AttemptRepository interface {
	SaveAttempt(ctx context.Context, a domain.AttemptRecord) error
	CountTeamAttempts(ctx context.Context, sessionID string, module int) (int, error)
	TeamAttempts(ctx context.Context, sessionID string, module int) ([]domain.AttemptRecord, error)
	SaveTeamAttempt(ctx context.Context, t domain.TeamAttempt) error
}

// QuestionPool loads the full question pool for a simulation module.
type QuestionPool interface {
	Questions(ctx context.Context, module int) ([]domain.SimQuestion, error)
}

// SimulationConfig tunes a run. Zero values pick the live game's settings.
type SimulationConfig struct {
	QuestionCount  int
	ClockSeconds   int
	CountdownTicks int
	ResaveInterval time.Duration
	TeamSize       int
	Weights        ScoreWeights
}

// DefaultSimulationConfig matches the hackathon mode: 5 questions, a
// 10-minute clock, a 3-2-1 countdown, time resaved every 30 seconds so a
// reload desyncs the clock by at most that much, and teams of 3.
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{
		QuestionCount:  5,
		ClockSeconds:   600,
		CountdownTicks: 3,
		ResaveInterval: 30 * time.Second,
		TeamSize:       3,
		Weights:        DefaultScoreWeights(),
	}
}

func (c SimulationConfig) withDefaults() SimulationConfig {
	d := DefaultSimulationConfig()
	if c.QuestionCount <= 0 {
		c.QuestionCount = d.QuestionCount
	}
	if c.ClockSeconds <= 0 {
		c.ClockSeconds = d.ClockSeconds
	}
	if c.CountdownTicks <= 0 {
		c.CountdownTicks = d.CountdownTicks
	}
	if c.ResaveInterval <= 0 {
		c.ResaveInterval = d.ResaveInterval
	}
	if c.Weights == (ScoreWeights{}) {
		c.Weights = d.Weights
	}
	return c
}

// SessionDeps are the collaborators a run persists through.
type SessionDeps struct {
	Checkpoints CheckpointRepository
	Attempts    AttemptRepository
	Pool        QuestionPool
}

// SessionSnapshot is a copy of the visible run state, safe to hand to
// transports and tests.
type SessionSnapshot struct {
	State         SessionState         `json:"state"`
	Countdown     int                  `json:"countdown"`
	CurrentIndex  int                  `json:"currentIndex"`
	TimeRemaining int                  `json:"timeRemaining"`
	Questions     []domain.SimQuestion `json:"questions"`
	Answers       []domain.SimAnswer   `json:"answers"`
	FinalScore    int                  `json:"finalScore"`
}

// TickerFactory produces a ticking channel and its stop function. Tests
// substitute hand-driven channels for deterministic clocks.
type TickerFactory func(d time.Duration) (<-chan time.Time, func())

func defaultTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// SimulationSession is the resumable timed quiz state machine:
// NOT_STARTED -> COUNTDOWN -> IN_PROGRESS -> COMPLETED. All remote writes
// are best effort; an autosave failure never interrupts play, and a failed
// resume reconstruction falls back to a fresh run. Both interval timers and
// the countdown stop on Close, nothing keeps mutating a torn-down session.
type SimulationSession struct {
	cfg      SimulationConfig
	identity domain.Identity
	module   int
	deps     SessionDeps
	log      *zap.Logger
	now      func() time.Time
	tick     TickerFactory
	rng      *rand.Rand

	mu            sync.Mutex
	onUpdate      func(SessionSnapshot)
	state         SessionState
	questions     []domain.SimQuestion
	answers       []domain.SimAnswer
	current       int
	countdown     int
	timeRemaining int
	finalScore    int
	closed        bool
	stopClock     chan struct{}
	stopResave    chan struct{}
}

func NewSimulationSession(identity domain.Identity, module int, deps SessionDeps, cfg SimulationConfig, log *zap.Logger) *SimulationSession {
	return NewSimulationSessionWithClock(identity, module, deps, cfg, log,
		time.Now, defaultTicker, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewSimulationSessionWithClock is test-only for deterministic time and draws.
func NewSimulationSessionWithClock(identity domain.Identity, module int, deps SessionDeps, cfg SimulationConfig, log *zap.Logger, now func() time.Time, tick TickerFactory, rng *rand.Rand) *SimulationSession {
	if log == nil {
		log = zap.NewNop()
	}
	return &SimulationSession{
		cfg:      cfg.withDefaults(),
		identity: identity,
		module:   module,
		deps:     deps,
		log:      log,
		now:      now,
		tick:     tick,
		rng:      rng,
		state:    StateNotStarted,
	}
}

// Snapshot returns a copy of the current visible state.
func (s *SimulationSession) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *SimulationSession) snapshotLocked() SessionSnapshot {
	return SessionSnapshot{
		State:         s.state,
		Countdown:     s.countdown,
		CurrentIndex:  s.current,
		TimeRemaining: s.timeRemaining,
		Questions:     append([]domain.SimQuestion(nil), s.questions...),
		Answers:       append([]domain.SimAnswer(nil), s.answers...),
		FinalScore:    s.finalScore,
	}
}

// Start begins a fresh run: draws the question set at random from the
// module's pool without replacement, clears any stale remote checkpoints
// for this (player, module) pair, and enters the countdown. A fresh start
// always wins over leftover checkpoints.
func (s *SimulationSession) Start(ctx context.Context) error {
	questions, err := s.drawQuestions(ctx, s.cfg.QuestionCount, nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.state != StateNotStarted || s.closed {
		s.mu.Unlock()
		return domain.ErrSessionState
	}
	s.questions = questions
	s.answers = make([]domain.SimAnswer, len(questions))
	s.state = StateCountdown
	s.countdown = s.cfg.CountdownTicks
	s.mu.Unlock()

	if s.identity.Established() {
		if err := s.deps.Checkpoints.DeleteRun(ctx, s.identity.PlayerID, s.module); err != nil {
			// Stale rows get overwritten per-index anyway.
			s.log.Warn("stale checkpoint cleanup failed", zap.Error(err))
		}
	}

	go s.runCountdown()
	s.notify()
	return nil
}

// runCountdown ticks the 3-2-1 sequence. It is deliberately not cancellable
// mid-flight; a Close during the countdown just prevents the clock from
// starting afterwards.
func (s *SimulationSession) runCountdown() {
	ch, stop := s.tick(time.Second)
	defer stop()
	for range ch {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		s.countdown--
		if s.countdown > 0 {
			s.mu.Unlock()
			s.notify()
			continue
		}
		cp := s.beginLocked()
		s.mu.Unlock()
		s.persistCheckpoint(context.Background(), cp)
		s.notify()
		return
	}
}

// beginLocked enters IN_PROGRESS and starts the clock and the periodic
// resaver. Returns the index-0 checkpoint to persist.
func (s *SimulationSession) beginLocked() domain.Checkpoint {
	s.state = StateInProgress
	s.current = 0
	s.timeRemaining = s.cfg.ClockSeconds
	s.startTimersLocked()
	return s.checkpointLocked(0)
}

func (s *SimulationSession) startTimersLocked() {
	s.stopClock = make(chan struct{})
	s.stopResave = make(chan struct{})
	go s.runClock(s.stopClock)
	go s.runResaver(s.stopResave)
}

func (s *SimulationSession) stopTimersLocked() {
	if s.stopClock != nil {
		close(s.stopClock)
		s.stopClock = nil
	}
	if s.stopResave != nil {
		close(s.stopResave)
		s.stopResave = nil
	}
}

// runClock counts the game clock down once per second. Ticks are never
// blocked by in-flight saves; persistence happens outside the tick path.
func (s *SimulationSession) runClock(stop <-chan struct{}) {
	ch, cancel := s.tick(time.Second)
	defer cancel()
	for {
		select {
		case <-stop:
			return
		case <-ch:
			s.mu.Lock()
			if s.state != StateInProgress {
				s.mu.Unlock()
				return
			}
			s.timeRemaining--
			if s.timeRemaining > 0 {
				s.mu.Unlock()
				s.notify()
				continue
			}
			s.timeRemaining = 0
			done := s.finishLocked()
			s.mu.Unlock()
			s.persistCompletion(context.Background(), done)
			s.notify()
			return
		}
	}
}

// runResaver re-saves the current checkpoint's time-remaining every interval
// even without an edit, bounding clock desync across a tab closure to one
// interval.
func (s *SimulationSession) runResaver(stop <-chan struct{}) {
	ch, cancel := s.tick(s.cfg.ResaveInterval)
	defer cancel()
	for {
		select {
		case <-stop:
			return
		case <-ch:
			s.mu.Lock()
			if s.state != StateInProgress {
				s.mu.Unlock()
				return
			}
			cp := s.checkpointLocked(s.current)
			s.mu.Unlock()
			s.persistCheckpoint(context.Background(), cp)
		}
	}
}

// EditAnswer replaces the current question's answer slot and autosaves its
// checkpoint. The slot stays mutable until the player advances past it.
func (s *SimulationSession) EditAnswer(ctx context.Context, answer domain.SimAnswer) error {
	s.mu.Lock()
	if s.state != StateInProgress {
		s.mu.Unlock()
		return domain.ErrSessionState
	}
	s.answers[s.current] = answer
	cp := s.checkpointLocked(s.current)
	s.mu.Unlock()

	s.persistCheckpoint(ctx, cp)
	s.notify()
	return nil
}

// Advance submits the current slot and moves to the next question,
// persisting the next index's checkpoint before it is presented. Advancing
// past the last question completes the run.
func (s *SimulationSession) Advance(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateInProgress {
		s.mu.Unlock()
		return domain.ErrSessionState
	}
	if s.current >= len(s.questions)-1 {
		done := s.finishLocked()
		s.mu.Unlock()
		s.persistCompletion(ctx, done)
		s.notify()
		return nil
	}
	s.current++
	cp := s.checkpointLocked(s.current)
	s.mu.Unlock()

	s.persistCheckpoint(ctx, cp)
	s.notify()
	return nil
}

// Resume reconstructs an interrupted run from remote checkpoints. With a
// checkpoint for every index the run restarts exactly where it left off,
// skipping the countdown; with fewer, missing slots are backfilled with
// freshly drawn questions and empty answers. Any load failure falls back to
// a fresh session (returns false); the caller then uses Start.
func (s *SimulationSession) Resume(ctx context.Context) bool {
	if !s.identity.Established() {
		return false
	}

	cps, err := s.deps.Checkpoints.List(ctx, s.identity.PlayerID, s.module)
	if err != nil {
		s.log.Warn("checkpoint load failed, starting fresh", zap.Error(err))
		return false
	}
	if len(cps) == 0 {
		return false
	}

	count := s.cfg.QuestionCount
	byIndex := make(map[int]domain.Checkpoint, count)
	var latest domain.Checkpoint
	for _, cp := range cps {
		if cp.QuestionIndex < 0 || cp.QuestionIndex >= count {
			continue
		}
		if prev, ok := byIndex[cp.QuestionIndex]; !ok || cp.SavedAt.After(prev.SavedAt) {
			byIndex[cp.QuestionIndex] = cp
		}
		if cp.SavedAt.After(latest.SavedAt) {
			latest = cp
		}
	}
	if len(byIndex) == 0 {
		return false
	}

	questions := make([]domain.SimQuestion, count)
	answers := make([]domain.SimAnswer, count)
	maxIdx := 0
	have := make([]string, 0, len(byIndex))
	for idx, cp := range byIndex {
		questions[idx] = cp.Question
		answers[idx] = cp.Answer
		if idx > maxIdx {
			maxIdx = idx
		}
		have = append(have, cp.Question.ID)
	}

	if len(byIndex) < count {
		fresh, err := s.drawQuestions(ctx, count-len(byIndex), have)
		if err != nil {
			s.log.Warn("backfill draw failed, starting fresh", zap.Error(err))
			return false
		}
		missing := make([]int, 0, count-len(byIndex))
		for idx := 0; idx < count; idx++ {
			if _, ok := byIndex[idx]; !ok {
				missing = append(missing, idx)
			}
		}
		sort.Ints(missing)
		for i, idx := range missing {
			questions[idx] = fresh[i]
		}
	}

	current := maxIdx + 1
	if current > count-1 {
		current = count - 1
	}

	s.mu.Lock()
	if s.state != StateNotStarted || s.closed {
		s.mu.Unlock()
		return false
	}
	s.questions = questions
	s.answers = answers
	s.current = current
	s.state = StateInProgress
	s.timeRemaining = latest.TimeRemaining
	s.startTimersLocked()
	s.mu.Unlock()

	s.notify()
	return true
}

// completion carries the facts persisted when a run finishes.
type completion struct {
	score   int
	elapsed int
}

func (s *SimulationSession) finishLocked() completion {
	s.stopTimersLocked()
	s.state = StateCompleted
	s.finalScore = Score(s.answers, s.questions, s.cfg.Weights)
	return completion{
		score:   s.finalScore,
		elapsed: s.cfg.ClockSeconds - s.timeRemaining,
	}
}

// persistCompletion stores the individual attempt and, when the whole team
// has finished the module, the weighted team aggregate. Every step is best
// effort.
func (s *SimulationSession) persistCompletion(ctx context.Context, done completion) {
	if !s.identity.Established() {
		s.log.Info("skipping attempt save, identity not established")
		return
	}
	attempt := domain.AttemptRecord{
		PlayerID:       s.identity.PlayerID,
		SessionID:      s.identity.SessionID,
		Module:         s.module,
		Score:          done.score,
		ElapsedSeconds: done.elapsed,
		CompletedAt:    s.now(),
	}
	if err := s.deps.Attempts.SaveAttempt(ctx, attempt); err != nil {
		s.log.Warn("attempt save failed", zap.Error(err))
		return
	}

	if s.cfg.TeamSize <= 0 {
		return
	}
	n, err := s.deps.Attempts.CountTeamAttempts(ctx, s.identity.SessionID, s.module)
	if err != nil {
		s.log.Warn("team completion check failed", zap.Error(err))
		return
	}
	if n < s.cfg.TeamSize {
		return
	}
	team, err := s.deps.Attempts.TeamAttempts(ctx, s.identity.SessionID, s.module)
	if err != nil || len(team) == 0 {
		s.log.Warn("team attempt fetch failed", zap.Error(err))
		return
	}
	aggregate := weighTeam(team)
	aggregate.CompletedAt = s.now()
	if err := s.deps.Attempts.SaveTeamAttempt(ctx, aggregate); err != nil {
		s.log.Warn("team attempt save failed", zap.Error(err))
	}
}

// weighTeam computes the module's team result: 0.7 x mean individual score
// + 0.3 x best individual score, with the mean completion time.
func weighTeam(team []domain.AttemptRecord) domain.TeamAttempt {
	var sumScore, topScore, sumElapsed int
	for _, a := range team {
		sumScore += a.Score
		sumElapsed += a.ElapsedSeconds
		if a.Score > topScore {
			topScore = a.Score
		}
	}
	n := float64(len(team))
	return domain.TeamAttempt{
		SessionID:      team[0].SessionID,
		Module:         team[0].Module,
		WeightedScore:  0.7*(float64(sumScore)/n) + 0.3*float64(topScore),
		AvgElapsedSecs: float64(sumElapsed) / n,
		Members:        len(team),
	}
}

// Close stops the clock and resave timers. Idempotent; must be called on
// session teardown so no interval outlives the session.
func (s *SimulationSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.stopTimersLocked()
}

func (s *SimulationSession) checkpointLocked(idx int) domain.Checkpoint {
	return domain.Checkpoint{
		PlayerID:      s.identity.PlayerID,
		SessionID:     s.identity.SessionID,
		Module:        s.module,
		QuestionIndex: idx,
		Question:      s.questions[idx],
		Answer:        s.answers[idx],
		TimeRemaining: s.timeRemaining,
		SavedAt:       s.now(),
	}
}

// persistCheckpoint upserts best-effort: gameplay is never interrupted by a
// failed autosave, and saves silently no-op without an identity.
func (s *SimulationSession) persistCheckpoint(ctx context.Context, cp domain.Checkpoint) {
	if !s.identity.Established() {
		s.log.Info("skipping checkpoint save, identity not established",
			zap.Int("questionIndex", cp.QuestionIndex))
		return
	}
	if err := s.deps.Checkpoints.Upsert(ctx, cp); err != nil {
		s.log.Warn("checkpoint save failed",
			zap.Int("questionIndex", cp.QuestionIndex), zap.Error(err))
	}
}

// drawQuestions picks n distinct questions at random from the module pool,
// skipping any whose ID is in exclude.
func (s *SimulationSession) drawQuestions(ctx context.Context, n int, exclude []string) ([]domain.SimQuestion, error) {
	pool, err := s.deps.Pool.Questions(ctx, s.module)
	if err != nil {
		return nil, err
	}
	excluded := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		excluded[id] = struct{}{}
	}
	eligible := make([]domain.SimQuestion, 0, len(pool))
	for _, q := range pool {
		if _, skip := excluded[q.ID]; !skip {
			eligible = append(eligible, q)
		}
	}
	if len(eligible) < n {
		return nil, domain.ErrEmptyPool
	}
	picked := make([]domain.SimQuestion, 0, n)
	for _, i := range s.rng.Perm(len(eligible))[:n] {
		picked = append(picked, eligible[i])
	}
	return picked, nil
}

// SetOnUpdate registers a listener that receives a snapshot after every
// visible state change. Called without internal locks held; pass nil to
// detach.
func (s *SimulationSession) SetOnUpdate(fn func(SessionSnapshot)) {
	s.mu.Lock()
	s.onUpdate = fn
	s.mu.Unlock()
}

func (s *SimulationSession) notify() {
	s.mu.Lock()
	fn := s.onUpdate
	snap := s.snapshotLocked()
	s.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}
