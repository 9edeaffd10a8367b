package memory

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/aretw0/marl/pkg/core"
)

func TestFetchDeltaFullResync(t *testing.T) {
	r := NewRemote()
	r.Seed(
		core.Note{ID: "n1", Title: "One"},
		core.Note{ID: "n2", Title: "Two", Trashed: true},
	)
	r.SeedLabel(core.Label{ID: "l1", Name: "chores"})

	d, err := r.FetchDelta(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchDelta failed: %v", err)
	}
	if !d.FullResync {
		t.Error("empty revision should force a full resync")
	}
	if len(d.Changes) != 2 {
		t.Errorf("expected 2 changes, got %d", len(d.Changes))
	}
	if len(d.Labels) != 1 || d.Labels[0].Name != "chores" {
		t.Errorf("labels = %+v", d.Labels)
	}
	if d.Revision != r.Revision() {
		t.Errorf("revision = %q, want %q", d.Revision, r.Revision())
	}
}

func TestFetchDeltaIncremental(t *testing.T) {
	ctx := context.Background()
	r := NewRemote()
	rev := r.Seed(core.Note{ID: "n1", Title: "One"})

	// Two pushes to the same note coalesce into one change at the final
	// state.
	if _, err := r.Push(ctx, core.Note{ID: "n1", Title: "One v2"}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Push(ctx, core.Note{ID: "n1", Title: "One v3"}); err != nil {
		t.Fatal(err)
	}

	d, err := r.FetchDelta(ctx, rev)
	if err != nil {
		t.Fatalf("FetchDelta failed: %v", err)
	}
	if d.FullResync {
		t.Error("valid revision should not force a resync")
	}
	if len(d.Changes) != 1 {
		t.Fatalf("expected 1 coalesced change, got %d", len(d.Changes))
	}
	if d.Changes[0].Note.Title != "One v3" {
		t.Errorf("coalesced change title = %q", d.Changes[0].Note.Title)
	}

	// Nothing new after the returned revision.
	d2, err := r.FetchDelta(ctx, d.Revision)
	if err != nil {
		t.Fatal(err)
	}
	if len(d2.Changes) != 0 {
		t.Errorf("expected empty delta, got %d changes", len(d2.Changes))
	}
}

func TestFetchDeltaAfterTrim(t *testing.T) {
	ctx := context.Background()
	r := NewRemote()
	old := r.Seed(core.Note{ID: "n1", Title: "One"})
	if _, err := r.Push(ctx, core.Note{ID: "n1", Title: "One v2"}); err != nil {
		t.Fatal(err)
	}

	r.TrimLog(r.Revision())

	d, err := r.FetchDelta(ctx, old)
	if err != nil {
		t.Fatal(err)
	}
	if !d.FullResync {
		t.Error("revision older than the log floor should force a resync")
	}
}

func TestCreateAssignsIdentity(t *testing.T) {
	ctx := context.Background()
	r := NewRemote()

	id, rev, err := r.Create(ctx, core.Note{Title: "Fresh"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id == "" || rev == "" {
		t.Fatalf("Create returned (%q, %q)", id, rev)
	}

	n, ok := r.Note(id)
	if !ok || n.Title != "Fresh" {
		t.Errorf("stored note = %+v, ok = %v", n, ok)
	}
}

func TestPushUnknownNote(t *testing.T) {
	r := NewRemote()
	_, err := r.Push(context.Background(), core.Note{ID: "ghost"})

	var remoteErr *core.RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("error = %v, want RemoteError", err)
	}
	if remoteErr.Op != "push" {
		t.Errorf("op = %q", remoteErr.Op)
	}
}

func TestTrashAndDelete(t *testing.T) {
	ctx := context.Background()
	r := NewRemote()
	rev := r.Seed(core.Note{ID: "n1", Title: "Doomed"})

	if err := r.Trash(ctx, core.Note{ID: "n1"}); err != nil {
		t.Fatalf("Trash failed: %v", err)
	}
	n, _ := r.Note("n1")
	if !n.Trashed {
		t.Error("note should be trashed")
	}
	if n.Title != "Doomed" {
		t.Error("trash must not rewrite the note content")
	}

	r.Delete("n1")
	if _, ok := r.Note("n1"); ok {
		t.Error("deleted note still present")
	}

	d, err := r.FetchDelta(ctx, rev)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Changes) != 1 || !d.Changes[0].Removed {
		t.Fatalf("expected one Removed change, got %+v", d.Changes)
	}
}

func TestCreateBackupCopy(t *testing.T) {
	ctx := context.Background()
	r := NewRemote()
	r.Seed(core.Note{ID: "n1", Title: "Plans", Body: "old text"})

	if err := r.CreateBackupCopy(ctx, core.Note{ID: "n1", Title: "Plans", Body: "old text"}); err != nil {
		t.Fatalf("CreateBackupCopy failed: %v", err)
	}

	if r.Len() != 2 {
		t.Fatalf("expected 2 notes after backup, got %d", r.Len())
	}
	orig, _ := r.Note("n1")
	if orig.Trashed || orig.Body != "old text" {
		t.Error("original note must be untouched")
	}

	d, _ := r.FetchDelta(ctx, "")
	var backup core.Note
	for _, c := range d.Changes {
		if c.Note.ID != "n1" {
			backup = c.Note
		}
	}
	if backup.ID == "" {
		t.Fatal("backup note not found")
	}
	if !backup.Trashed {
		t.Error("backup must land in the trash")
	}
	if backup.Body != "old text" {
		t.Errorf("backup body = %q", backup.Body)
	}
	if len(backup.Title) <= len("Plans") {
		t.Errorf("backup title should carry a timestamp tag, got %q", backup.Title)
	}
}

func TestPushErrorInjection(t *testing.T) {
	ctx := context.Background()
	r := NewRemote()
	r.Seed(core.Note{ID: "n1", Title: "One"})

	boom := errors.New("service unavailable")
	r.SetPushError(boom)

	if _, err := r.Push(ctx, core.Note{ID: "n1"}); !errors.Is(err, boom) {
		t.Errorf("Push error = %v, want wrapped %v", err, boom)
	}
	if err := r.Trash(ctx, core.Note{ID: "n1"}); !errors.Is(err, boom) {
		t.Errorf("Trash error = %v", err)
	}

	r.SetPushError(nil)
	if _, err := r.Push(ctx, core.Note{ID: "n1", Title: "One again"}); err != nil {
		t.Errorf("Push after reset failed: %v", err)
	}
}

func TestRevisionMonotonic(t *testing.T) {
	ctx := context.Background()
	r := NewRemote()
	r.Seed(core.Note{ID: "n1"})

	prev, _ := strconv.ParseInt(r.Revision(), 10, 64)
	for i := 0; i < 3; i++ {
		rev, err := r.Push(ctx, core.Note{ID: "n1"})
		if err != nil {
			t.Fatal(err)
		}
		cur, _ := strconv.ParseInt(rev, 10, 64)
		if cur <= prev {
			t.Fatalf("revision did not advance: %d -> %d", prev, cur)
		}
		prev = cur
	}
}

func TestPushErrorForSingleNote(t *testing.T) {
	ctx := context.Background()
	r := NewRemote()
	r.Seed(
		core.Note{ID: "n1", Title: "One"},
		core.Note{ID: "n2", Title: "Two"},
	)

	boom := errors.New("quota exceeded")
	r.SetPushErrorFor("n1", boom)

	if _, err := r.Push(ctx, core.Note{ID: "n1"}); !errors.Is(err, boom) {
		t.Errorf("Push n1 error = %v, want wrapped %v", err, boom)
	}
	if _, err := r.Push(ctx, core.Note{ID: "n2", Title: "Two v2"}); err != nil {
		t.Errorf("Push n2 should stay healthy, got %v", err)
	}

	r.SetPushErrorFor("n1", nil)
	if _, err := r.Push(ctx, core.Note{ID: "n1", Title: "One v2"}); err != nil {
		t.Errorf("Push n1 after reset failed: %v", err)
	}
}

func TestNotesCarryTheirRevision(t *testing.T) {
	ctx := context.Background()
	r := NewRemote()
	r.Seed(core.Note{ID: "n1", Title: "One"})

	rev, err := r.Push(ctx, core.Note{ID: "n1", Title: "One v2"})
	if err != nil {
		t.Fatal(err)
	}

	n, _ := r.Note("n1")
	if n.ServerRevision != rev {
		t.Errorf("stored revision = %q, push returned %q", n.ServerRevision, rev)
	}
	d, err := r.FetchDelta(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Changes[0].Note.ServerRevision != rev {
		t.Errorf("delta revision = %q, want %q", d.Changes[0].Note.ServerRevision, rev)
	}
}
