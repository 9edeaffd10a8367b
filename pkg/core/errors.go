package core

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrNotFound = errors.New("note not found")
	ErrNoToken  = errors.New("no credential stored")
)

// ValidationError reports an entity that violates a structural invariant.
// The offending write is rejected; the store is left unchanged.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ParseError reports a malformed textual artifact. Callers must leave the
// artifact untouched; guessing at intent risks destroying a user edit.
type ParseError struct {
	Path   string
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("parse: line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("parse %s: line %d: %s", e.Path, e.Line, e.Reason)
}

// RemoteError wraps a failure talking to the note service. The operation
// is retried with backoff on later sync cycles.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// ConflictError records that a note changed both locally and remotely
// since the last reconciliation. It is informational: the engine keeps the
// remote version and parks the local edit rather than failing. The two
// diverging content fingerprints identify which versions collided.
type ConflictError struct {
	ID                string
	LocalFingerprint  string
	RemoteFingerprint string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("note %s: local and remote both changed", e.ID)
}
