package fs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/aretw0/lifecycle/pkg/core/worker"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/aretw0/marl/pkg/core"
)

type watchWorker struct {
	*worker.BaseWorker
	dir       *NoteDir
	pattern   string
	events    chan<- core.Event
	watcher   *fsnotify.Watcher
	debouncer *debouncer
	cancel    context.CancelFunc
}

func newWatchWorker(dir *NoteDir, pattern string, events chan<- core.Event) *watchWorker {
	return &watchWorker{
		BaseWorker: worker.NewBaseWorker("fs-watcher"),
		dir:        dir,
		pattern:    pattern,
		events:     events,
	}
}

func (w *watchWorker) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	status := w.State().Status
	if status != worker.StatusCreated && status != worker.StatusPending {
		return fmt.Errorf("watcher already started (status: %s)", status)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := w.dir.recursiveAdd(watcher); err != nil {
		_ = watcher.Close()
		return err
	}

	w.watcher = watcher
	w.debouncer = newDebouncer(w.dir.config.Debounce)
	w.dir.setWatcherActive(true)

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.SetStatus(worker.StatusRunning)
	return w.StartFunc(runCtx, w.run)
}

func (w *watchWorker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.StopRequested = true
		w.cancel()
	}

	return w.BaseWorker.Stop(ctx)
}

func (w *watchWorker) State() worker.State {
	return w.ExportState(func(s *worker.State) {
		s.Metadata = map[string]string{
			worker.MetadataType: string(worker.TypeGoroutine),
		}
	})
}

// handleDirCreate registers newly created subdirectories so their files
// are watched too. Returns true if the event was a directory event.
func (w *watchWorker) handleDirCreate(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) {
		return false
	}
	info, err := os.Stat(event.Name)
	if err != nil || !info.IsDir() {
		return false
	}
	if !w.dir.isSystemPath(filepath.Base(event.Name)) {
		_ = w.watcher.Add(event.Name)
	}
	return true
}

// processFilesystemEvent handles filtering, mapping, and debouncing of
// filesystem events.
func (w *watchWorker) processFilesystemEvent(ctx context.Context, event fsnotify.Event) (processed bool) {
	if w.dir.config.Logger != nil {
		w.dir.config.Logger.Debug("event received", "name", event.Name)
	}

	if w.handleDirCreate(event) {
		return false
	}
	if w.dir.shouldIgnore(event, w.pattern) {
		return false
	}

	eType := w.dir.mapEventType(event)
	if eType == "" {
		return false
	}

	rel, err := filepath.Rel(w.dir.config.Path, event.Name)
	if err != nil {
		if w.dir.config.ErrorHandler != nil {
			w.dir.config.ErrorHandler(fmt.Errorf("failed to resolve path for %s: %w", event.Name, err))
		} else if w.dir.config.Logger != nil {
			w.dir.config.Logger.Debug("path resolution failed", "path", event.Name, "err", err)
		}
		return false
	}

	w.sendEvent(ctx, core.Event{
		Type:      eType,
		Path:      filepath.ToSlash(rel),
		Timestamp: time.Now().Unix(),
	})

	return true
}

// sendEvent enqueues an event via the debouncer, protecting against
// channel closure during shutdown.
func (w *watchWorker) sendEvent(ctx context.Context, event core.Event) {
	w.debouncer.add(event, func(e core.Event) {
		defer func() {
			// Recover from panic if channel was closed (worker stopping)
			_ = recover()
		}()
		select {
		case w.events <- e:
		case <-ctx.Done():
		}
	})
}

// handleWatcherError processes errors from the fsnotify watcher.
func (w *watchWorker) handleWatcherError(err error) (shouldContinue bool) {
	if w.dir.config.Logger != nil {
		w.dir.config.Logger.Error("fsnotify error", "error", err)
	}
	if w.dir.config.ErrorHandler != nil {
		w.dir.config.ErrorHandler(err)
	}
	return true
}

// run is the main event loop for the watcher worker.
func (w *watchWorker) run(ctx context.Context) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			panicErr := fmt.Errorf("watcher panic: %v", recovered)

			var stack string
			if w.dir.config.Logger.Enabled(ctx, slog.LevelDebug) {
				stack = string(debug.Stack())
			}

			if stack != "" {
				w.dir.config.Logger.Error("watcher panic",
					"error", panicErr,
					"stack", stack,
				)
			} else {
				w.dir.config.Logger.Error("watcher panic", "error", panicErr)
			}
		}
	}()
	defer w.dir.setWatcherActive(false)
	defer w.watcher.Close()

	err = w.mainEventLoop(ctx)

	// Stop accepting new events and wait for in-flight timers before the
	// caller closes the events channel.
	w.debouncer.stopAndWait(5 * time.Second)

	return err
}

// mainEventLoop is the core select loop that processes filesystem and
// watcher events.
func (w *watchWorker) mainEventLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher events channel closed")
			}
			w.processFilesystemEvent(ctx, event)

		case wErr, ok := <-w.watcher.Errors:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher errors channel closed")
			}
			w.handleWatcherError(wErr)
		}
	}
}

// recursiveAdd registers the mirror directory and every non-system
// subdirectory with the watcher.
func (d *NoteDir) recursiveAdd(watcher *fsnotify.Watcher) error {
	return filepath.WalkDir(d.config.Path, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		if path != d.config.Path && d.isSystemPath(entry.Name()) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// shouldIgnore filters events that are not user edits to note artifacts.
// Parked conflict copies are passed through only when they disappear,
// which is the user's signal that a conflict is resolved.
func (d *NoteDir) shouldIgnore(event fsnotify.Event, pattern string) bool {
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, TempFilePrefix) || strings.HasPrefix(name, ".") {
		return true
	}

	rel, err := filepath.Rel(d.config.Path, event.Name)
	if err != nil {
		return true
	}
	rel = filepath.ToSlash(rel)
	for _, part := range strings.Split(rel, "/") {
		if d.isSystemPath(part) {
			return true
		}
	}

	if strings.HasSuffix(name, LocalCopySuffix) {
		return !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename)
	}

	if filepath.Ext(name) != d.config.Ext {
		return true
	}

	if pattern != "" && pattern != "*" && pattern != "**/*" {
		ok, err := doublestar.Match(pattern, rel)
		if err != nil || !ok {
			return true
		}
	}
	return false
}

// mapEventType converts an fsnotify event to the domain event type.
// Chmod-only events are dropped.
func (d *NoteDir) mapEventType(event fsnotify.Event) core.EventType {
	switch {
	case event.Has(fsnotify.Create):
		return core.EventCreate
	case event.Has(fsnotify.Write):
		return core.EventModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return core.EventDelete
	default:
		return ""
	}
}

// Watch emits an event per editor change under the mirror directory until
// ctx is canceled. The pattern filters relative paths with doublestar
// syntax; empty means everything.
func (d *NoteDir) Watch(ctx context.Context, pattern string) (<-chan core.Event, error) {
	events := make(chan core.Event, d.config.EventBuffer)
	w := newWatchWorker(d, pattern, events)

	if err := w.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start watcher: %w", err)
	}

	lifecycle.Go(ctx, func(ctx context.Context) error {
		<-ctx.Done()

		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.Stop(stopCtx); err != nil && d.config.Logger != nil {
			d.config.Logger.Error("failed to stop watcher", "error", err)
		}
		close(events)
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		if d.config.ErrorHandler != nil {
			d.config.ErrorHandler(err)
		} else if d.config.Logger != nil {
			d.config.Logger.Error("watcher shutdown panic", "error", err)
		}
	}))

	return events, nil
}
