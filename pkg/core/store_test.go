package core_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/aretw0/marl/pkg/core"
)

// fakeFingerprint is a deterministic stand-in for the real renderer hash.
func fakeFingerprint(n core.Note) string {
	return "fp:" + n.Title
}

func TestStore_CRUD(t *testing.T) {
	s := core.NewStore(fakeFingerprint)

	// 1. Upsert
	err := s.Upsert(core.Note{ID: "n1", Title: "First", Kind: core.KindText, Body: "hello"})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// 2. Get returns a copy with a recomputed fingerprint
	n, ok := s.Get("n1")
	if !ok {
		t.Fatal("Get: note missing")
	}
	if n.Fingerprint != "fp:First" {
		t.Errorf("expected recomputed fingerprint, got %q", n.Fingerprint)
	}
	n.Title = "mutated"
	if again, _ := s.Get("n1"); again.Title != "First" {
		t.Error("Get must return a copy, not a reference")
	}

	// 3. Notes
	_ = s.Upsert(core.Note{ID: "n2", Title: "Second", Kind: core.KindList})
	if got := s.Len(); got != 2 {
		t.Errorf("expected 2 notes, got %d", got)
	}

	// 4. Remove
	if !s.Remove("n1") {
		t.Error("Remove should report success for a present note")
	}
	if s.Remove("n1") {
		t.Error("Remove of an absent note should be a no-op")
	}
	if _, ok := s.Get("n1"); ok {
		t.Error("note still present after Remove")
	}
}

func TestStore_UpsertValidation(t *testing.T) {
	s := core.NewStore(nil)
	cases := []struct {
		name string
		note core.Note
	}{
		{"empty id", core.Note{Kind: core.KindText}},
		{"unknown kind", core.Note{ID: "x", Kind: "sticky"}},
		{"text with items", core.Note{ID: "x", Kind: core.KindText, Items: []core.ListItem{{Text: "a"}}}},
		{"list with body", core.Note{ID: "x", Kind: core.KindList, Body: "stray"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := s.Upsert(tc.note)
			var verr *core.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
	if s.Len() != 0 {
		t.Error("rejected upserts must not modify the store")
	}
}

func TestStore_Generation(t *testing.T) {
	s := core.NewStore(nil)
	g0 := s.Generation()

	_ = s.Upsert(core.Note{ID: "n1", Kind: core.KindText})
	if s.Generation() == g0 {
		t.Error("Upsert should advance the generation")
	}

	g1 := s.Generation()
	s.Get("n1")
	s.Notes()
	if s.Generation() != g1 {
		t.Error("reads must not advance the generation")
	}

	s.Remove("missing")
	if s.Generation() != g1 {
		t.Error("no-op Remove must not advance the generation")
	}
	s.Remove("n1")
	if s.Generation() == g1 {
		t.Error("Remove should advance the generation")
	}
}

func TestStore_Rekey(t *testing.T) {
	s := core.NewStore(nil)
	_ = s.Upsert(core.Note{ID: "local-abc", Title: "Draft", Kind: core.KindText})
	s.SetMapping(core.Mapping{NoteID: "local-abc", Path: "draft.md", Fingerprint: "f"})

	if err := s.Rekey("local-abc", "srv-1"); err != nil {
		t.Fatalf("Rekey failed: %v", err)
	}
	if _, ok := s.Get("local-abc"); ok {
		t.Error("old id still resolves after Rekey")
	}
	n, ok := s.Get("srv-1")
	if !ok || n.Title != "Draft" {
		t.Fatalf("note not reachable under new id: %+v", n)
	}
	m, ok := s.Mapping("srv-1")
	if !ok || m.Path != "draft.md" {
		t.Errorf("mapping did not follow the rekey: %+v", m)
	}

	if err := s.Rekey("nope", "x"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown id, got %v", err)
	}
	_ = s.Upsert(core.Note{ID: "srv-2", Kind: core.KindText})
	var verr *core.ValidationError
	if err := s.Rekey("srv-2", "srv-1"); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for occupied target, got %v", err)
	}
}

func TestStore_RemoveLabelStripsNotes(t *testing.T) {
	s := core.NewStore(nil)
	_ = s.UpsertLabel(core.Label{ID: "l1", Name: "travel"})
	_ = s.UpsertLabel(core.Label{ID: "l2", Name: "work"})
	_ = s.Upsert(core.Note{ID: "n1", Kind: core.KindText, Labels: []string{"travel", "work"}})

	if !s.RemoveLabel("travel") {
		t.Fatal("RemoveLabel reported failure")
	}
	n, _ := s.Get("n1")
	if len(n.Labels) != 1 || n.Labels[0] != "work" {
		t.Errorf("label reference not stripped: %v", n.Labels)
	}
}

func TestStore_SnapshotRestore(t *testing.T) {
	s := core.NewStore(nil)
	_ = s.UpsertLabel(core.Label{ID: "l1", Name: "travel"})
	_ = s.Upsert(core.Note{
		ID: "n1", Title: "Packing", Kind: core.KindList,
		Items:  []core.ListItem{{Text: "passport", Checked: true, SortIndex: 1}},
		Labels: []string{"travel"},
	})
	s.SetMapping(core.Mapping{NoteID: "n1", Path: "packing.md", Fingerprint: "f1", Revision: "7"})
	s.SetRemoteRevision("42")

	data, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	restored := core.NewStore(nil)
	if err := restored.Restore(data); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	n, ok := restored.Get("n1")
	if !ok {
		t.Fatal("note lost across snapshot round-trip")
	}
	if n.Title != "Packing" || len(n.Items) != 1 || !n.Items[0].Checked {
		t.Errorf("note content mangled: %+v", n)
	}
	if m, ok := restored.Mapping("n1"); !ok || m.Revision != "7" {
		t.Errorf("mapping lost or mangled: %+v", m)
	}
	if restored.RemoteRevision() != "42" {
		t.Errorf("remote revision not restored, got %q", restored.RemoteRevision())
	}
}

func TestStore_RestorePrunesOrphans(t *testing.T) {
	snapshot := `{
		"version": 1,
		"labels": [{"name": "kept"}],
		"notes": [{"id": "n1", "kind": "text", "labels": ["kept", "ghost"]}],
		"mappings": [
			{"noteId": "n1", "path": "a.md"},
			{"noteId": "gone", "path": "b.md"}
		]
	}`
	s := core.NewStore(nil)
	if err := s.Restore([]byte(snapshot)); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	n, _ := s.Get("n1")
	if len(n.Labels) != 1 || n.Labels[0] != "kept" {
		t.Errorf("orphan label reference not pruned: %v", n.Labels)
	}
	if _, ok := s.Mapping("gone"); ok {
		t.Error("mapping without a note survived Restore")
	}
}

func TestStore_SnapshotPreservesUnknownFields(t *testing.T) {
	snapshot := `{
		"version": 1,
		"quotaBytes": 1048576,
		"notes": [{"id": "n1", "kind": "text", "title": "T", "reminder": {"at": "2026-09-01"}}]
	}`
	s := core.NewStore(nil)
	if err := s.Restore([]byte(snapshot)); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	// Mutate the known parts, then write the snapshot back out.
	n, _ := s.Get("n1")
	n.Title = "Renamed"
	if err := s.Upsert(n); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	out, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	var round map[string]json.RawMessage
	if err := json.Unmarshal(out, &round); err != nil {
		t.Fatalf("snapshot is not valid JSON: %v", err)
	}
	if string(round["quotaBytes"]) != "1048576" {
		t.Errorf("top-level unknown field lost: %s", round["quotaBytes"])
	}
	if !strings.Contains(string(round["notes"]), `"reminder"`) {
		t.Errorf("per-note unknown field lost: %s", round["notes"])
	}
	if !strings.Contains(string(round["notes"]), `"Renamed"`) {
		t.Errorf("known field update lost: %s", round["notes"])
	}
}

func TestStore_RestoreRejectsGarbage(t *testing.T) {
	s := core.NewStore(nil)
	if err := s.Restore([]byte("{not json")); err == nil {
		t.Fatal("expected an error for malformed snapshot data")
	}
}
