package memory

import (
	"sync"

	"go.uber.org/zap"

	"haccp-training-service/internal/app"
	"haccp-training-service/internal/domain"
)

// SessionRegistry is an in-memory app.SessionRegistry. Sessions are closed
// when deleted so their timers never outlive the registry entry.
type SessionRegistry struct {
	deps app.SessionDeps
	cfg  app.SimulationConfig
	log  *zap.Logger

	mu       sync.RWMutex
	sessions map[runKey]*app.SimulationSession
}

func NewSessionRegistry(deps app.SessionDeps, cfg app.SimulationConfig, log *zap.Logger) *SessionRegistry {
	return &SessionRegistry{
		deps:     deps,
		cfg:      cfg,
		log:      log,
		sessions: make(map[runKey]*app.SimulationSession),
	}
}

func (r *SessionRegistry) GetOrCreate(identity domain.Identity, module int) *app.SimulationSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := runKey{identity.PlayerID, module}
	if session, ok := r.sessions[key]; ok {
		return session
	}
	session := app.NewSimulationSession(identity, module, r.deps, r.cfg, r.log)
	r.sessions[key] = session
	return session
}

func (r *SessionRegistry) Get(playerID string, module int) (*app.SimulationSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[runKey{playerID, module}]
	return session, ok
}

func (r *SessionRegistry) Delete(playerID string, module int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := runKey{playerID, module}
	if session, ok := r.sessions[key]; ok {
		session.Close()
		delete(r.sessions, key)
	}
}
