package fs

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/marl/pkg/core"
)

// StateFile persists a store snapshot under the system directory. Saves
// are skipped while the store generation has not moved since the last
// write.
type StateFile struct {
	Path   string
	Logger *slog.Logger

	savedGen uint64
	loaded   bool
}

// NewStateFile prepares a state file at the given path.
func NewStateFile(path string, logger *slog.Logger) *StateFile {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateFile{Path: path, Logger: logger}
}

// Load restores the store from disk. A missing file starts fresh, and a
// corrupt one is logged and treated as empty so a damaged snapshot never
// blocks startup.
func (f *StateFile) Load(store *core.Store) error {
	data, err := os.ReadFile(f.Path)
	if os.IsNotExist(err) {
		f.loaded = true
		f.savedGen = store.Generation()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read state file: %w", err)
	}

	if err := store.Restore(data); err != nil {
		f.Logger.Warn("state file is corrupt, starting fresh", "path", f.Path, "error", err)
	}
	f.loaded = true
	f.savedGen = store.Generation()
	return nil
}

// Save writes a snapshot if the store changed since the last save.
func (f *StateFile) Save(store *core.Store) error {
	gen := store.Generation()
	if f.loaded && gen == f.savedGen {
		return nil
	}

	data, err := store.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to snapshot store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := writeFileAtomic(f.Path, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	f.loaded = true
	f.savedGen = gen
	return nil
}
