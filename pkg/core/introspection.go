package core

import (
	"github.com/aretw0/introspection"
)

// StoreState exposes internal state for observability.
type StoreState struct {
	Notes      int    `json:"notes"`
	Labels     int    `json:"labels"`
	Mappings   int    `json:"mappings"`
	Generation uint64 `json:"generation"`
	Revision   string `json:"revision,omitempty"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return StoreState{
		Notes:      len(s.notes),
		Labels:     len(s.labels),
		Mappings:   len(s.mappings),
		Generation: s.generation,
		Revision:   s.remoteRev,
	}
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "store"
}

var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)
