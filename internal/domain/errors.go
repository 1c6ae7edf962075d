package domain

import "errors"

var (
	// ErrScenarioNotFound indicates the diagnostic content could not be loaded.
	ErrScenarioNotFound = errors.New("scenario not found")
	// ErrModuleNotFound indicates no question pool exists for a module number.
	ErrModuleNotFound = errors.New("simulation module not found")
	// ErrSessionState is returned for a transition the session state machine
	// does not allow (e.g. starting a run that is already in progress).
	ErrSessionState = errors.New("invalid session state for operation")
	// ErrEmptyPool is returned when a module's question pool has fewer
	// questions than a run needs.
	ErrEmptyPool = errors.New("question pool too small")
)
