package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRunAdoptsLiveEdits drives the background loop with a real watcher:
// a file dropped into the directory while Run is active gets adopted
// without waiting for the periodic cycle.
func TestRunAdoptsLiveEdits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng, store, remote, dir := newTestEngine(t)

	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	// Give the watcher a moment to establish before editing.
	time.Sleep(200 * time.Millisecond)
	editArtifact(t, dir, "Live.md", "# Live\n\ntyped just now\n")

	require.Eventually(t, func() bool { return store.Len() == 1 },
		2*time.Second, 20*time.Millisecond, "live edit was never adopted")
	assert.Equal(t, 1, remote.Len())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop on cancel")
	}
}
