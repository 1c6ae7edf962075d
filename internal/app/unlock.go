package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"haccp-training-service/internal/domain"
)

// FlagSource fetches the remote gate switches.
type FlagSource interface {
	FetchFlags(ctx context.Context) (domain.FeatureFlags, error)
}

// CompletionSource answers whether a player has completed a level. Satisfied
// by *ProgressStore.
type CompletionSource interface {
	IsCompleted(ctx context.Context, playerID string, level int) bool
}

const defaultFlagTTL = 60 * time.Second

// UnlockEngine decides whether a level is playable. Training levels 1..15
// unlock sequentially behind the training switch; the two hackathon rounds
// are gated by independent switches; anything outside the controlled range
// is always open. Flags are cached with a TTL in a struct owned by the
// engine, not ambient state, and the cache can be invalidated by hand.
// When the flag fetch fails every controlled level reports locked.
type UnlockEngine struct {
	flags      FlagSource
	completion CompletionSource
	log        *zap.Logger

	qualifierLevel int
	finalLevel     int

	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group

	mu        sync.Mutex
	cached    domain.FeatureFlags
	expiresAt time.Time
}

// UnlockOptions tune the engine; zero values pick the live defaults.
type UnlockOptions struct {
	QualifierLevel int
	FinalLevel     int
	TTL            time.Duration
}

func NewUnlockEngine(flags FlagSource, completion CompletionSource, opts UnlockOptions, log *zap.Logger) *UnlockEngine {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.QualifierLevel == 0 {
		opts.QualifierLevel = domain.TrainingLevelMax + 1
	}
	if opts.FinalLevel == 0 {
		opts.FinalLevel = domain.TrainingLevelMax + 2
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultFlagTTL
	}
	return &UnlockEngine{
		flags:          flags,
		completion:     completion,
		log:            log,
		qualifierLevel: opts.QualifierLevel,
		finalLevel:     opts.FinalLevel,
		ttl:            opts.TTL,
		clock:          time.Now,
	}
}

// IsUnlocked reports whether the player may enter the level right now.
func (e *UnlockEngine) IsUnlocked(ctx context.Context, playerID string, level int) bool {
	switch {
	case level == e.qualifierLevel:
		flags, ok := e.currentFlags(ctx)
		return ok && flags.QualifierOpen
	case level == e.finalLevel:
		flags, ok := e.currentFlags(ctx)
		return ok && flags.FinalOpen
	case level >= domain.TrainingLevelMin && level <= domain.TrainingLevelMax:
		flags, ok := e.currentFlags(ctx)
		if !ok || !flags.TrainingEnabled {
			return false
		}
		if level == domain.TrainingLevelMin {
			return true
		}
		return e.completion.IsCompleted(ctx, playerID, level-1)
	default:
		return true
	}
}

// Flags returns the current switches, refreshing the cache when stale.
// ok is false when no fetch has ever succeeded within the TTL window.
func (e *UnlockEngine) Flags(ctx context.Context) (domain.FeatureFlags, bool) {
	return e.currentFlags(ctx)
}

// Invalidate drops the cached flags so the next check refetches.
func (e *UnlockEngine) Invalidate() {
	e.mu.Lock()
	e.expiresAt = time.Time{}
	e.mu.Unlock()
}

func (e *UnlockEngine) currentFlags(ctx context.Context) (domain.FeatureFlags, bool) {
	now := e.clock()

	e.mu.Lock()
	if e.expiresAt.After(now) {
		flags := e.cached
		e.mu.Unlock()
		return flags, true
	}
	e.mu.Unlock()

	result, err, _ := e.sf.Do("flags", func() (interface{}, error) {
		now := e.clock()
		e.mu.Lock()
		if e.expiresAt.After(now) {
			flags := e.cached
			e.mu.Unlock()
			return flags, nil
		}
		e.mu.Unlock()

		flags, err := e.flags.FetchFlags(ctx)
		if err != nil {
			return domain.FeatureFlags{}, err
		}

		e.mu.Lock()
		e.cached = flags
		e.expiresAt = now.Add(e.ttl)
		e.mu.Unlock()
		return flags, nil
	})
	if err != nil {
		// Fail closed: every controlled level stays locked until a
		// fetch succeeds again.
		e.log.Warn("flag fetch failed, controlled levels locked", zap.Error(err))
		return domain.FeatureFlags{}, false
	}
	return result.(domain.FeatureFlags), true
}

// WatchSpecials polls the switches for the two hackathon rounds and invokes
// fn whenever either changes. The returned stop function cancels the poller;
// callers must invoke it on teardown.
func (e *UnlockEngine) WatchSpecials(ctx context.Context, interval time.Duration, fn func(domain.FeatureFlags)) (stop func()) {
	done := make(chan struct{})
	var once sync.Once

	// Baseline is captured before the poller starts so a flip that lands
	// right after WatchSpecials returns is still reported.
	last, _ := e.currentFlags(ctx)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case <-done:
					return
				default:
				}
				e.Invalidate()
				flags, ok := e.currentFlags(ctx)
				if !ok {
					continue
				}
				if flags.QualifierOpen != last.QualifierOpen || flags.FinalOpen != last.FinalOpen {
					last = flags
					fn(flags)
				}
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }
}
