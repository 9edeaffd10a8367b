// Package memory provides an in-memory note service. It backs tests and
// offline development with the same contract the real service client
// honors, including revision tracking and delta fetches.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/marl/pkg/core"
)

type logEntry struct {
	seq    int64
	change core.NoteChange
}

// Remote is an in-memory implementation of core.Remote. Every mutation
// advances a sequence number that doubles as the revision token, and a
// change log answers delta fetches the way the real service does.
type Remote struct {
	mu     sync.Mutex
	notes  map[string]core.Note
	labels map[string]core.Label
	log    []logEntry
	seq    int64

	// oldest sequence still answerable from the log; older clients are
	// told to resync
	floor int64

	pushErr     error
	fetchErr    error
	notePushErr map[string]error

	now func() time.Time
}

var _ core.Remote = (*Remote)(nil)

// NewRemote returns an empty in-memory service.
func NewRemote() *Remote {
	return &Remote{
		notes:       make(map[string]core.Note),
		labels:      make(map[string]core.Label),
		notePushErr: make(map[string]error),
		now:         time.Now,
	}
}

// Seed loads notes as if they had existed on the service forever.
// Notes without an ID get one assigned. Returns the resulting revision.
func (r *Remote) Seed(notes ...core.Note) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var rev string
	for _, n := range notes {
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		rev = r.record(n)
	}
	if rev == "" {
		rev = strconv.FormatInt(r.seq, 10)
	}
	return rev
}

// SeedLabel registers a label on the service.
func (r *Remote) SeedLabel(l core.Label) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.labels[l.ID] = l
}

// DropLabel removes a label from the service vocabulary.
func (r *Remote) DropLabel(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.labels, id)
}

// Note returns the service-side state of a note.
func (r *Remote) Note(id string) (core.Note, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notes[id]
	if !ok {
		return core.Note{}, false
	}
	return n.Clone(), true
}

// Len returns the number of notes on the service, trashed ones included.
func (r *Remote) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notes)
}

// Revision returns the current high-water mark.
func (r *Remote) Revision() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strconv.FormatInt(r.seq, 10)
}

// SetPushError makes Push, Create, and Trash fail with err until reset
// with nil. Used to exercise retry behavior.
func (r *Remote) SetPushError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushErr = err
}

// SetPushErrorFor makes mutations of one note fail with err until reset
// with nil, leaving the rest of the service healthy.
func (r *Remote) SetPushErrorFor(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.notePushErr, id)
		return
	}
	r.notePushErr[id] = err
}

// SetFetchError makes FetchDelta fail with err until reset with nil.
func (r *Remote) SetFetchError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchErr = err
}

// Delete permanently removes a note service-side and records the removal
// in the change log, the way the real service reports purged trash.
func (r *Remote) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notes[id]
	if !ok {
		return
	}
	delete(r.notes, id)
	r.seq++
	r.log = append(r.log, logEntry{seq: r.seq, change: core.NoteChange{Note: n.Clone(), Removed: true}})
}

// TrimLog discards change-log entries at or below the given revision.
// Clients holding an older revision get a full resync, which is how the
// real service behaves when a client has been away too long.
func (r *Remote) TrimLog(revision string) {
	since, err := strconv.ParseInt(revision, 10, 64)
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.log[:0]
	for _, e := range r.log {
		if e.seq > since {
			kept = append(kept, e)
		}
	}
	r.log = kept
	if since > r.floor {
		r.floor = since
	}
}

// FetchDelta implements core.Remote.
func (r *Remote) FetchDelta(ctx context.Context, sinceRevision string) (core.Delta, error) {
	if err := ctx.Err(); err != nil {
		return core.Delta{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fetchErr != nil {
		return core.Delta{}, &core.RemoteError{Op: "fetch", Err: r.fetchErr}
	}

	revision := strconv.FormatInt(r.seq, 10)

	since, err := strconv.ParseInt(sinceRevision, 10, 64)
	if sinceRevision == "" || err != nil || since < r.floor {
		// Full resync: every live note, every label.
		d := core.Delta{Revision: revision, FullResync: true, Labels: r.allLabels()}
		for _, n := range r.notes {
			d.Changes = append(d.Changes, core.NoteChange{Note: n.Clone()})
		}
		return d, nil
	}

	// Coalesce log entries so each note appears once, at its final state.
	latest := make(map[string]core.NoteChange)
	var order []string
	for _, e := range r.log {
		if e.seq <= since {
			continue
		}
		id := e.change.Note.ID
		if _, seen := latest[id]; !seen {
			order = append(order, id)
		}
		latest[id] = e.change
	}

	d := core.Delta{Revision: revision, Labels: r.allLabels()}
	for _, id := range order {
		c := latest[id]
		c.Note = c.Note.Clone()
		d.Changes = append(d.Changes, c)
	}
	return d, nil
}

func (r *Remote) allLabels() []core.Label {
	labels := make([]core.Label, 0, len(r.labels))
	for _, l := range r.labels {
		labels = append(labels, l)
	}
	return labels
}

// Push implements core.Remote.
func (r *Remote) Push(ctx context.Context, n core.Note) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.mutationErr(n.ID); err != nil {
		return "", &core.RemoteError{Op: "push", Err: err}
	}
	if _, ok := r.notes[n.ID]; !ok {
		return "", &core.RemoteError{Op: "push", Err: fmt.Errorf("unknown note %s", n.ID)}
	}
	return r.record(n), nil
}

// mutationErr returns the configured failure for a note, global or
// per-note. Callers hold the mutex.
func (r *Remote) mutationErr(id string) error {
	if r.pushErr != nil {
		return r.pushErr
	}
	return r.notePushErr[id]
}

// Create implements core.Remote.
func (r *Remote) Create(ctx context.Context, n core.Note) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.mutationErr(n.ID); err != nil {
		return "", "", &core.RemoteError{Op: "create", Err: err}
	}
	n.ID = uuid.NewString()
	return n.ID, r.record(n), nil
}

// Trash implements core.Remote.
func (r *Remote) Trash(ctx context.Context, n core.Note) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.mutationErr(n.ID); err != nil {
		return &core.RemoteError{Op: "trash", Err: err}
	}
	stored, ok := r.notes[n.ID]
	if !ok {
		return &core.RemoteError{Op: "trash", Err: fmt.Errorf("unknown note %s", n.ID)}
	}
	stored.Trashed = true
	r.record(stored)
	return nil
}

// CreateBackupCopy implements core.Remote. The copy lands in the trash
// under a timestamped title, where it can be recovered but never collides
// with the live note.
func (r *Remote) CreateBackupCopy(ctx context.Context, n core.Note) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.mutationErr(n.ID); err != nil {
		return &core.RemoteError{Op: "backup", Err: err}
	}
	backup := n.Clone()
	backup.ID = uuid.NewString()
	backup.Title = fmt.Sprintf("%s [backup %s]", n.Title, r.now().Format("2006-01-02 15:04"))
	backup.Trashed = true
	r.record(backup)
	return nil
}

// record stores the note, advances the sequence, and appends to the
// change log. The stored note is stamped with its own revision, matching
// the service's habit of echoing revisions back on every note. Callers
// hold the mutex.
func (r *Remote) record(n core.Note) string {
	r.seq++
	stored := n.Clone()
	stored.ServerRevision = strconv.FormatInt(r.seq, 10)
	r.notes[stored.ID] = stored
	r.log = append(r.log, logEntry{seq: r.seq, change: core.NoteChange{Note: stored.Clone()}})
	return strconv.FormatInt(r.seq, 10)
}
