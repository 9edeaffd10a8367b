package sync

import (
	"time"

	"github.com/aretw0/introspection"
)

// EngineState exposes internal state for observability.
type EngineState struct {
	Cycles         int        `json:"cycles"`
	LastCycle      *time.Time `json:"last_cycle,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	Conflicts      int        `json:"conflicts"`
	PendingRetries int        `json:"pending_retries"`
	ProtectedFiles int        `json:"protected_files"`
	Revision       string     `json:"revision"`
}

// State implements introspection.Introspectable.
func (e *Engine) State() any {
	e.mu.Lock()
	defer e.mu.Unlock()

	state := EngineState{
		Cycles:         e.cycles,
		LastError:      e.lastError,
		Conflicts:      e.conflicts,
		PendingRetries: len(e.retries),
		ProtectedFiles: len(e.protected),
		Revision:       e.config.Store.RemoteRevision(),
	}
	if !e.lastCycle.IsZero() {
		t := e.lastCycle
		state.LastCycle = &t
	}
	return state
}

// ComponentType implements introspection.Component.
func (e *Engine) ComponentType() string {
	return "sync-engine"
}

var _ introspection.Introspectable = (*Engine)(nil)
var _ introspection.Component = (*Engine)(nil)
