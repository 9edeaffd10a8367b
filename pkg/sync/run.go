package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/marl/pkg/adapters/fs"
	"github.com/aretw0/marl/pkg/core"
	"github.com/aretw0/marl/pkg/format"
)

// Run cycles in the background until ctx is canceled: a full pass every
// Interval, plus a targeted reconciliation for every editor change the
// watcher reports. The store snapshot is saved on the way out.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Cycle(ctx); err != nil {
		e.config.Logger.Warn("initial cycle failed", "error", err)
	}

	events, err := e.config.Dir.Watch(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	ticker := time.NewTicker(e.config.Interval)
	defer ticker.Stop()
	e.config.Logger.Info("sync loop running", "interval", e.config.Interval)

	for {
		select {
		case <-ctx.Done():
			return e.shutdown()

		case <-ticker.C:
			if err := e.Cycle(ctx); err != nil {
				e.config.Logger.Warn("cycle failed", "error", err)
			}

		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return e.shutdown()
				}
				return fmt.Errorf("watcher stopped unexpectedly")
			}
			if err := e.Reconcile(ctx, ev); err != nil {
				e.config.Logger.Warn("failed to reconcile change", "path", ev.Path, "error", err)
			}
		}
	}
}

func (e *Engine) shutdown() error {
	if e.config.State == nil {
		return nil
	}
	if err := e.config.State.Save(e.config.Store); err != nil {
		return fmt.Errorf("failed to save state on shutdown: %w", err)
	}
	return nil
}

// Reconcile reacts to a single watcher event without waiting for the
// next full cycle. The store snapshot is saved whenever the event changed
// anything.
func (e *Engine) Reconcile(ctx context.Context, event core.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	before := e.config.Store.Generation()
	err := e.reconcileEvent(ctx, event)

	if e.config.State != nil && e.config.Store.Generation() != before {
		if saveErr := e.config.State.Save(e.config.Store); saveErr != nil && err == nil {
			err = fmt.Errorf("failed to save state: %w", saveErr)
		}
	}
	return err
}

func (e *Engine) reconcileEvent(ctx context.Context, event core.Event) error {
	dir := e.config.Dir
	store := e.config.Store

	// A parked conflict copy disappearing is the user declaring the
	// conflict resolved.
	if strings.HasSuffix(event.Path, fs.LocalCopySuffix) {
		if event.Type != core.EventDelete {
			return nil
		}
		primary := strings.TrimSuffix(event.Path, fs.LocalCopySuffix)
		m, ok := store.MappingByPath(primary)
		if !ok {
			return nil
		}
		n, ok := store.Get(m.NoteID)
		if !ok || !n.HasConflict || dir.HasLocalCopy(primary) {
			return nil
		}
		n.HasConflict = false
		if err := store.Upsert(n); err != nil {
			return err
		}
		e.config.Logger.Info("conflict resolved", "note", n.ID)
		return nil
	}

	if event.Type == core.EventDelete {
		m, ok := store.MappingByPath(event.Path)
		if !ok {
			return nil
		}
		// Deleting the mirror file does not delete the note; restore it.
		return e.reconcileNote(ctx, m.NoteID, nil, nil)
	}

	fp, err := dir.HashFile(event.Path)
	if err != nil {
		// Gone again already; treat like a deletion.
		if m, ok := store.MappingByPath(event.Path); ok {
			return e.reconcileNote(ctx, m.NoteID, nil, nil)
		}
		return nil
	}
	data, modTime, err := dir.Read(event.Path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", event.Path, err)
	}
	id, title := format.Identity(string(data))

	file := fs.ScannedFile{
		Path:        event.Path,
		ID:          id,
		Title:       title,
		Fingerprint: fp,
		ModTime:     modTime,
	}
	if id == "" {
		return e.adoptFile(ctx, file)
	}
	return e.reconcileNote(ctx, id, nil, &file)
}
