package sync

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCycleUnderExternalWrites simulates a noisy environment where an
// editor keeps rewriting files while full cycles run concurrently. The
// engine must neither panic nor corrupt its bookkeeping: once the noise
// stops, the mirror settles into a state where every mapping points at a
// real file with a matching fingerprint, and further cycles change
// nothing.
func TestCycleUnderExternalWrites(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in short mode")
	}

	ctx := context.Background()
	eng, store, remote, dir := newTestEngine(t)
	require.NoError(t, eng.Bootstrap(ctx))

	stop := make(chan struct{})
	var wg sync.WaitGroup

	// External actor: keeps rewriting a small set of draft files, id line
	// and all, as a careless editor would.
	wg.Add(1)
	go func() {
		defer wg.Done()
		i := 0
		for {
			select {
			case <-stop:
				return
			default:
				name := fmt.Sprintf("noise-%d.md", i%8)
				content := fmt.Sprintf("# Noise %d\n\nrevision %d\n", i%8, i)
				_ = os.WriteFile(dir.Abs(name), []byte(content), 0644)
				i++
				time.Sleep(2 * time.Millisecond)
			}
		}
	}()

	// Engine: full cycles in a tight loop against the moving directory.
	for i := 0; i < 40; i++ {
		require.NoError(t, eng.Cycle(ctx))
	}
	close(stop)
	wg.Wait()

	// Two quiet cycles settle stragglers: one adopts, one confirms.
	require.NoError(t, eng.Cycle(ctx))
	require.NoError(t, eng.Cycle(ctx))

	// Everything the store tracks must exist on disk, unaliased.
	seen := make(map[string]bool)
	for _, m := range store.Mappings() {
		require.False(t, seen[m.Path], "two notes map to %s", m.Path)
		seen[m.Path] = true

		fp, err := dir.HashFile(m.Path)
		require.NoError(t, err, "mapping for %s points at a missing file", m.Path)
		assert.Equal(t, m.Fingerprint, fp, "file %s drifted from its mapping", m.Path)
	}
	assert.Equal(t, remote.Len(), store.Len())

	// And the settled state must be a fixed point.
	before, err := store.Snapshot()
	require.NoError(t, err)
	require.NoError(t, eng.Cycle(ctx))
	after, err := store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}
