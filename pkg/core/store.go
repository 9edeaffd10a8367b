package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// snapshotVersion is bumped when the snapshot layout changes shape in a
// way old readers cannot tolerate. Additive changes do not count.
const snapshotVersion = 1

// Fingerprinter computes the content fingerprint recorded on each note.
// Injected so the store stays independent of the textual rendering.
type Fingerprinter func(Note) string

// Mapping ties a note to its local artifact and remembers the state both
// sides agreed on at the last successful reconciliation. Path is relative
// to the mirror directory; Ephemeral marks buffer-backed notes that have
// no file at all.
type Mapping struct {
	NoteID      string    `json:"noteId"`
	Path        string    `json:"path,omitempty"`
	Ephemeral   bool      `json:"ephemeral,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Revision    string    `json:"revision,omitempty"`
	ModTime     time.Time `json:"modTime,omitempty"`
}

// Store is the in-memory collection of notes, labels, and local mappings.
// It is safe for concurrent use. Every mutation that can change a query
// result bumps a generation counter, which the query engine uses to detect
// that a scan raced with a writer.
type Store struct {
	mu          sync.RWMutex
	fingerprint Fingerprinter
	notes       map[string]Note
	labels      map[string]Label
	mappings    map[string]Mapping
	remoteRev   string
	generation  uint64

	// Raw JSON carried through from the last Restore so that snapshot
	// fields written by newer versions survive a load/save round-trip.
	unknown    map[string]json.RawMessage
	noteExtras map[string]map[string]json.RawMessage
}

// NewStore creates an empty store. fp may be nil, in which case notes
// keep whatever fingerprint the caller set.
func NewStore(fp Fingerprinter) *Store {
	return &Store{
		fingerprint: fp,
		notes:       make(map[string]Note),
		labels:      make(map[string]Label),
		mappings:    make(map[string]Mapping),
		noteExtras:  make(map[string]map[string]json.RawMessage),
	}
}

// Upsert validates n and inserts or replaces it. The stored copy gets a
// freshly computed fingerprint.
func (s *Store) Upsert(n Note) error {
	if n.ID == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	switch n.Kind {
	case KindText:
		if len(n.Items) > 0 {
			return &ValidationError{Field: "items", Reason: "text note cannot carry list items"}
		}
	case KindList:
		if n.Body != "" {
			return &ValidationError{Field: "body", Reason: "list note cannot carry a text body"}
		}
	default:
		return &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", n.Kind)}
	}

	n = n.Clone()
	if s.fingerprint != nil {
		n.Fingerprint = s.fingerprint(n)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[n.ID] = n
	s.generation++
	return nil
}

// Get returns a copy of the note with the given id.
func (s *Store) Get(id string) (Note, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notes[id]
	if !ok {
		return Note{}, false
	}
	return n.Clone(), true
}

// Notes returns copies of all notes in unspecified order.
func (s *Store) Notes() []Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Note, 0, len(s.notes))
	for _, n := range s.notes {
		out = append(out, n.Clone())
	}
	return out
}

// Len returns the number of notes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notes)
}

// Remove deletes the note and its mapping. Removing an absent id is a
// no-op and does not disturb the generation counter.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notes[id]; !ok {
		return false
	}
	delete(s.notes, id)
	delete(s.mappings, id)
	delete(s.noteExtras, id)
	s.generation++
	return true
}

// Rekey moves a note from a provisional identifier to the one the remote
// service assigned, carrying the mapping along.
func (s *Store) Rekey(oldID, newID string) error {
	if newID == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[oldID]
	if !ok {
		return fmt.Errorf("rekey %s: %w", oldID, ErrNotFound)
	}
	if _, taken := s.notes[newID]; taken && newID != oldID {
		return &ValidationError{Field: "id", Reason: fmt.Sprintf("%q already in use", newID)}
	}
	delete(s.notes, oldID)
	n.ID = newID
	s.notes[newID] = n
	if m, ok := s.mappings[oldID]; ok {
		delete(s.mappings, oldID)
		m.NoteID = newID
		s.mappings[newID] = m
	}
	if extra, ok := s.noteExtras[oldID]; ok {
		delete(s.noteExtras, oldID)
		s.noteExtras[newID] = extra
	}
	s.generation++
	return nil
}

// UpsertLabel inserts or replaces a label vocabulary entry.
func (s *Store) UpsertLabel(l Label) error {
	if l.Name == "" {
		return &ValidationError{Field: "label", Reason: "name must not be empty"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labels[l.Name] = l
	s.generation++
	return nil
}

// RemoveLabel deletes a label and strips it from every note that carried
// it, so notes never reference labels outside the vocabulary.
func (s *Store) RemoveLabel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.labels[name]; !ok {
		return false
	}
	delete(s.labels, name)
	for id, n := range s.notes {
		kept := n.Labels[:0]
		for _, l := range n.Labels {
			if l != name {
				kept = append(kept, l)
			}
		}
		n.Labels = kept
		s.notes[id] = n
	}
	s.generation++
	return true
}

// Labels returns the vocabulary sorted by name.
func (s *Store) Labels() []Label {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Label, 0, len(s.labels))
	for _, l := range s.labels {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FindLabel looks a label up by its exact name.
func (s *Store) FindLabel(name string) (Label, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.labels[name]
	return l, ok
}

// SetMapping records or replaces the local mapping for a note. Mapping
// writes advance the generation too, so the persistence layer can use one
// counter to decide whether a snapshot is due.
func (s *Store) SetMapping(m Mapping) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[m.NoteID] = m
	s.generation++
}

// Mapping returns the local mapping for a note.
func (s *Store) Mapping(noteID string) (Mapping, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mappings[noteID]
	return m, ok
}

// MappingByPath finds the mapping that claims the given artifact path.
func (s *Store) MappingByPath(path string) (Mapping, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.mappings {
		if m.Path == path && !m.Ephemeral {
			return m, true
		}
	}
	return Mapping{}, false
}

// RemoveMapping drops the mapping for a note, if any.
func (s *Store) RemoveMapping(noteID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mappings[noteID]; !ok {
		return
	}
	delete(s.mappings, noteID)
	s.generation++
}

// Mappings returns copies of all mappings in unspecified order.
func (s *Store) Mappings() []Mapping {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Mapping, 0, len(s.mappings))
	for _, m := range s.mappings {
		out = append(out, m)
	}
	return out
}

// RemoteRevision returns the high-water revision of the last applied
// delta.
func (s *Store) RemoteRevision() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remoteRev
}

// SetRemoteRevision records the high-water revision after a delta has
// been fully applied.
func (s *Store) SetRemoteRevision(rev string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remoteRev == rev {
		return
	}
	s.remoteRev = rev
	s.generation++
}

// Generation returns the current mutation counter. Two equal readings
// with scans in between mean no note or label changed underneath.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Snapshot serializes the store to JSON. Top-level fields and per-note
// fields that were present in the last restored snapshot but are unknown
// to this version are written back unchanged.
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]json.RawMessage, len(s.unknown)+5)
	for k, v := range s.unknown {
		out[k] = v
	}

	notes := make([]json.RawMessage, 0, len(s.notes))
	for _, id := range s.sortedNoteIDs() {
		b, err := s.marshalNote(s.notes[id])
		if err != nil {
			return nil, err
		}
		notes = append(notes, b)
	}

	labels := make([]Label, 0, len(s.labels))
	for _, l := range s.labels {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].Name < labels[j].Name })

	mappings := make([]Mapping, 0, len(s.mappings))
	for _, m := range s.mappings {
		mappings = append(mappings, m)
	}
	sort.Slice(mappings, func(i, j int) bool { return mappings[i].NoteID < mappings[j].NoteID })

	for key, v := range map[string]any{
		"version":  snapshotVersion,
		"revision": s.remoteRev,
		"notes":    notes,
		"labels":   labels,
		"mappings": mappings,
	} {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode snapshot %s: %w", key, err)
		}
		out[key] = b
	}
	return json.Marshal(out)
}

// Restore replaces the store's contents with a previously serialized
// snapshot. Notes referencing labels missing from the snapshot's
// vocabulary lose those references, and mappings whose note is gone are
// dropped.
func (s *Store) Restore(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	var rawNotes []json.RawMessage
	var labels []Label
	var mappings []Mapping
	var rev string
	if b, ok := raw["notes"]; ok {
		if err := json.Unmarshal(b, &rawNotes); err != nil {
			return fmt.Errorf("failed to decode snapshot notes: %w", err)
		}
	}
	if b, ok := raw["labels"]; ok {
		if err := json.Unmarshal(b, &labels); err != nil {
			return fmt.Errorf("failed to decode snapshot labels: %w", err)
		}
	}
	if b, ok := raw["mappings"]; ok {
		if err := json.Unmarshal(b, &mappings); err != nil {
			return fmt.Errorf("failed to decode snapshot mappings: %w", err)
		}
	}
	if b, ok := raw["revision"]; ok {
		if err := json.Unmarshal(b, &rev); err != nil {
			return fmt.Errorf("failed to decode snapshot revision: %w", err)
		}
	}
	for _, key := range []string{"version", "revision", "notes", "labels", "mappings"} {
		delete(raw, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.labels = make(map[string]Label, len(labels))
	for _, l := range labels {
		if l.Name != "" {
			s.labels[l.Name] = l
		}
	}

	s.notes = make(map[string]Note, len(rawNotes))
	s.noteExtras = make(map[string]map[string]json.RawMessage)
	for _, b := range rawNotes {
		var n Note
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("failed to decode snapshot note: %w", err)
		}
		if n.ID == "" {
			continue
		}
		kept := n.Labels[:0]
		for _, name := range n.Labels {
			if _, ok := s.labels[name]; ok {
				kept = append(kept, name)
			}
		}
		n.Labels = kept
		s.notes[n.ID] = n
		if extra := extraNoteFields(b); len(extra) > 0 {
			s.noteExtras[n.ID] = extra
		}
	}

	s.mappings = make(map[string]Mapping, len(mappings))
	for _, m := range mappings {
		if _, ok := s.notes[m.NoteID]; ok {
			s.mappings[m.NoteID] = m
		}
	}

	s.remoteRev = rev
	s.unknown = raw
	s.generation++
	return nil
}

func (s *Store) sortedNoteIDs() []string {
	ids := make([]string, 0, len(s.notes))
	for id := range s.notes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// marshalNote encodes one note, folding back any fields a newer snapshot
// writer stored on it that this version does not model.
func (s *Store) marshalNote(n Note) (json.RawMessage, error) {
	b, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to encode note %s: %w", n.ID, err)
	}
	extra := s.noteExtras[n.ID]
	if len(extra) == 0 {
		return b, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to re-encode note %s: %w", n.ID, err)
	}
	for k, v := range extra {
		if _, known := noteFields[k]; !known {
			m[k] = v
		}
	}
	return json.Marshal(m)
}

// noteFields lists the JSON keys this version of Note models. Keys outside
// this set survive a snapshot round-trip untouched.
var noteFields = map[string]struct{}{
	"id": {}, "title": {}, "kind": {}, "body": {}, "items": {},
	"color": {}, "labels": {}, "pinned": {}, "archived": {}, "trashed": {},
	"serverRevision": {}, "fingerprint": {}, "modified": {},
	"hasConflict": {}, "stale": {},
}

func extraNoteFields(b json.RawMessage) map[string]json.RawMessage {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	for k := range m {
		if _, known := noteFields[k]; known {
			delete(m, k)
		}
	}
	if len(m) == 0 {
		return nil
	}
	return m
}
