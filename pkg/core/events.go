package core

import "fmt"

// EventType represents the type of change observed in the mirror directory.
type EventType string

const (
	EventCreate EventType = "CREATE"
	EventModify EventType = "MODIFY"
	EventDelete EventType = "DELETE"
)

// Event represents a change to one artifact in the mirror directory. Path
// is relative to the directory root; resolving it to a note is the sync
// engine's job, since new files have no identity yet.
type Event struct {
	Type      EventType
	Path      string
	Timestamp int64 // Unix timestamp
}

// String implements lifecycle.Event for structured logging.
func (e Event) String() string {
	return fmt.Sprintf("%s %s", e.Type, e.Path)
}
