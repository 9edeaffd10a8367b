package fs

import (
	"time"

	"github.com/aretw0/introspection"
)

// NoteDirState exposes internal state for observability.
type NoteDirState struct {
	Path          string     `json:"path"`
	SystemDir     string     `json:"system_dir"`
	ArchiveDir    string     `json:"archive_dir"`
	Style         string     `json:"style"`
	WatcherActive bool       `json:"watcher_active"`
	LastScan      *time.Time `json:"last_scan,omitempty"`
	LastScanCount int        `json:"last_scan_count"`
}

// State implements introspection.Introspectable.
func (d *NoteDir) State() any {
	d.mu.RLock()
	defer d.mu.RUnlock()

	state := NoteDirState{
		Path:          d.config.Path,
		SystemDir:     d.config.SystemDir,
		ArchiveDir:    d.config.ArchiveDir,
		Style:         d.config.Style.String(),
		WatcherActive: d.watcherActive,
		LastScanCount: d.lastScanCount,
	}
	if !d.lastScan.IsZero() {
		t := d.lastScan
		state.LastScan = &t
	}
	return state
}

// ComponentType implements introspection.Component.
func (d *NoteDir) ComponentType() string {
	return "notedir"
}

var _ introspection.Introspectable = (*NoteDir)(nil)
var _ introspection.Component = (*NoteDir)(nil)

func (d *NoteDir) setWatcherActive(active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.watcherActive = active
}
