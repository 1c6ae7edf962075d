package app

import "haccp-training-service/internal/domain"

// SessionRegistry hands out at most one live SimulationSession per
// (player, module) pair so a reconnecting transport reattaches to the run
// instead of forking it. Implementations own Close-on-delete.
type SessionRegistry interface {
	GetOrCreate(identity domain.Identity, module int) *SimulationSession
	Get(playerID string, module int) (*SimulationSession, bool)
	Delete(playerID string, module int)
}
