package query

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/lifecycle"
)

// Session runs live search for one interactive consumer. Each keystroke
// becomes a Submit; the session debounces the stream, evaluates off the
// caller's goroutine, and guarantees that results for a superseded query
// are never delivered, even when an older evaluation finishes after a
// newer one was submitted.
type Session struct {
	engine   *Engine
	debounce time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	latest uint64
}

// NewSession creates a session. debounce may be zero to evaluate every
// submission; logger may be nil.
func NewSession(engine *Engine, debounce time.Duration, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		engine:   engine,
		debounce: debounce,
		logger:   logger,
	}
}

// Submit schedules raw for evaluation and calls deliver with the results
// unless a newer Submit arrives first. deliver runs on the evaluation
// goroutine; delivery order follows submission order because delivery and
// the supersession check happen under one lock.
func (s *Session) Submit(ctx context.Context, raw string, includeBody bool, deliver func([]Result)) {
	s.mu.Lock()
	s.latest++
	token := s.latest
	s.mu.Unlock()

	lifecycle.Go(ctx, func(ctx context.Context) error {
		if s.debounce > 0 {
			timer := time.NewTimer(s.debounce)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
			if s.superseded(token) {
				return nil
			}
		}

		q := New(raw)
		results := s.engine.Evaluate(q, includeBody)
		for _, w := range q.Warnings {
			s.logger.Warn("query problem", "query", raw, "problem", w)
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if token != s.latest || ctx.Err() != nil {
			return nil
		}
		deliver(results)
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		s.logger.Error("search evaluation panicked", "error", err)
	}))
}

func (s *Session) superseded(token uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return token != s.latest
}
