package memory

import (
	"context"
	"sync"

	"haccp-training-service/internal/domain"
)

// FlagSource is a settable in-process app.FlagSource for tests and the demo
// mode. Set Err to simulate an unreachable configuration backend.
type FlagSource struct {
	mu    sync.Mutex
	flags domain.FeatureFlags
	err   error
	calls int
}

func NewFlagSource(flags domain.FeatureFlags) *FlagSource {
	return &FlagSource{flags: flags}
}

func (f *FlagSource) FetchFlags(_ context.Context) (domain.FeatureFlags, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return domain.FeatureFlags{}, f.err
	}
	return f.flags, nil
}

// Set replaces the flags served to subsequent fetches.
func (f *FlagSource) Set(flags domain.FeatureFlags) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags = flags
	f.err = nil
}

// Fail makes subsequent fetches return err.
func (f *FlagSource) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Calls reports how many fetches have been served.
func (f *FlagSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
