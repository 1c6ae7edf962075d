package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"haccp-training-service/internal/domain"
)

// ScenarioLoader fetches diagnostic content from a backing store.
type ScenarioLoader interface {
	LoadScenario(ctx context.Context, level int) (domain.Scenario, error)
}

// ScenarioRepository caches scenarios with TTL to avoid repeated content
// fetches; a level's scenario never changes mid-session so a coarse TTL is
// fine.
type ScenarioRepository struct {
	loader ScenarioLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[int]cachedScenario
}

type cachedScenario struct {
	scenario  domain.Scenario
	expiresAt time.Time
}

func NewScenarioRepository(loader ScenarioLoader, ttl time.Duration) *ScenarioRepository {
	return &ScenarioRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[int]cachedScenario),
	}
}

func (r *ScenarioRepository) GetScenario(ctx context.Context, level int) (domain.Scenario, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[level]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.scenario, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(strconv.Itoa(level), func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[level]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.scenario, nil
		}
		r.mu.RUnlock()

		scenario, err := r.loader.LoadScenario(ctx, level)
		if err != nil {
			return domain.Scenario{}, err
		}

		r.mu.Lock()
		r.cache[level] = cachedScenario{
			scenario:  scenario,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return scenario, nil
	})
	if err != nil {
		return domain.Scenario{}, err
	}
	return result.(domain.Scenario), nil
}

func (r *ScenarioRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticScenarioLoader serves scenarios from a map (tests/demos).
type StaticScenarioLoader struct {
	scenarios map[int]domain.Scenario
}

func NewStaticScenarioLoader(scenarios map[int]domain.Scenario) *StaticScenarioLoader {
	return &StaticScenarioLoader{scenarios: scenarios}
}

func (l *StaticScenarioLoader) LoadScenario(_ context.Context, level int) (domain.Scenario, error) {
	if s, ok := l.scenarios[level]; ok {
		return s, nil
	}
	return domain.Scenario{}, domain.ErrScenarioNotFound
}

// StaticQuestionPool serves simulation pools from a map (tests/demos).
type StaticQuestionPool struct {
	pools map[int][]domain.SimQuestion
}

func NewStaticQuestionPool(pools map[int][]domain.SimQuestion) *StaticQuestionPool {
	return &StaticQuestionPool{pools: pools}
}

func (p *StaticQuestionPool) Questions(_ context.Context, module int) ([]domain.SimQuestion, error) {
	if qs, ok := p.pools[module]; ok {
		return append([]domain.SimQuestion(nil), qs...), nil
	}
	return nil, domain.ErrModuleNotFound
}
