package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/lifecycle/pkg/core/supervisor"
	"github.com/aretw0/lifecycle/pkg/core/worker"

	"github.com/aretw0/marl/pkg/core"
)

// The watch worker is built to run under a lifecycle supervisor. When the
// fsnotify handle dies out from under it, the supervisor must bring up a
// replacement that keeps delivering events on the same channel.
func TestWatcherSupervisorRestarts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir, err := NewNoteDir(Config{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create note dir: %v", err)
	}

	events := make(chan core.Event, 8)
	workers := make(chan *watchWorker, 2)

	spec := supervisor.Spec{
		Name: "fs-watcher",
		Type: string(worker.TypeGoroutine),
		Factory: func() (worker.Worker, error) {
			w := newWatchWorker(dir, "", events)
			workers <- w
			return w, nil
		},
		Backoff: supervisor.Backoff{
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     50 * time.Millisecond,
			Multiplier:      1,
			ResetDuration:   50 * time.Millisecond,
			MaxRestarts:     2,
			MaxDuration:     200 * time.Millisecond,
		},
		RestartPolicy: supervisor.RestartOnFailure,
	}

	sup := supervisor.New("test-watcher", supervisor.StrategyOneForOne, spec)
	if err := sup.Start(ctx); err != nil {
		t.Fatalf("failed to start supervisor: %v", err)
	}

	first := nextWorker(t, workers)
	awaitWatcherActive(t, dir)

	// Start assigns the handle before flipping the active flag, so after
	// awaitWatcherActive this read is ordered. Closing the handle from the
	// outside is the failure we want the supervisor to notice.
	_ = first.watcher.Close()

	second := nextWorker(t, workers)
	if second == first {
		t.Fatal("supervisor handed back the dead worker instead of a new one")
	}
	awaitWatcherActive(t, dir)

	// The replacement must deliver, not just report active.
	if err := os.WriteFile(filepath.Join(dir.Path(), "alive.md"), []byte("# Alive\n"), 0644); err != nil {
		t.Fatal(err)
	}
	deadline := time.After(2 * time.Second)
	for seen := false; !seen; {
		select {
		case e := <-events:
			seen = e.Path == "alive.md"
		case <-deadline:
			t.Fatal("timeout waiting for event from restarted watcher")
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	if err := sup.Stop(stopCtx); err != nil {
		t.Fatalf("failed to stop supervisor: %v", err)
	}
}

func nextWorker(t *testing.T, ch <-chan *watchWorker) *watchWorker {
	t.Helper()

	select {
	case w := <-ch:
		return w
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for supervisor to create worker")
		return nil
	}
}

func awaitWatcherActive(t *testing.T, dir *NoteDir) {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		if state, ok := dir.State().(NoteDirState); ok && state.WatcherActive {
			return
		}
		select {
		case <-deadline:
			t.Fatal("timeout waiting for watcher to become active")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
