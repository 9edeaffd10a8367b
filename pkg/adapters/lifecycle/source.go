// Package lifecycle bridges mirror watch events into the aretw0/lifecycle
// supervision model, so applications already running under a supervisor can
// treat note file changes as one more event source.
package lifecycle

import (
	"context"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/marl/pkg/core"
)

// SourceOption adjusts how the bridge relays events.
type SourceOption func(*mirrorSource)

// WithBuffer sizes the outgoing channel so a slow consumer does not stall
// the watcher side. Zero keeps delivery synchronous.
func WithBuffer(n int) SourceOption {
	return func(s *mirrorSource) {
		if n > 0 {
			s.buffer = n
		}
	}
}

// WithFilter drops events the predicate rejects. Useful to subscribe a
// supervised app to deletes only, or to a subtree of the mirror.
func WithFilter(keep func(core.Event) bool) SourceOption {
	return func(s *mirrorSource) {
		s.keep = keep
	}
}

type mirrorSource struct {
	events <-chan core.Event
	out    chan lifecycle.Event
	buffer int
	keep   func(core.Event) bool
}

// NewSource wraps the typed watch channel of a mirror directory as a
// lifecycle.Source. core.Event satisfies lifecycle.Event through String().
func NewSource(events <-chan core.Event, opts ...SourceOption) lifecycle.Source {
	s := &mirrorSource{events: events}
	for _, opt := range opts {
		opt(s)
	}
	s.out = make(chan lifecycle.Event, s.buffer)
	return s
}

func (s *mirrorSource) Events() <-chan lifecycle.Event {
	return s.out
}

// Start launches the relay under lifecycle.Go so the bridge itself is
// tracked by the caller's supervision tree. The outgoing channel closes
// when the watch channel closes or ctx is canceled.
func (s *mirrorSource) Start(ctx context.Context) error {
	lifecycle.Go(ctx, s.relay)
	return nil
}

func (s *mirrorSource) relay(ctx context.Context) error {
	defer close(s.out)
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-s.events:
			if !ok {
				return nil
			}
			if s.keep != nil && !s.keep(e) {
				continue
			}
			select {
			case s.out <- e:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
