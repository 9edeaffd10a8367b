// Package sync reconciles the entity store with the remote note service
// on one side and the mirror directory on the other. Reconciliation is
// driven by change detection, never by clock comparison: a note's local
// side is considered changed when the artifact bytes no longer hash to
// the mapping's last-known fingerprint, and its remote side when the
// service revision moved past the mapping's last-known revision.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/marl/pkg/adapters/fs"
	"github.com/aretw0/marl/pkg/core"
	"github.com/aretw0/marl/pkg/format"
)

const (
	defaultMaxAttempts   = 3
	defaultBackoff       = 2 * time.Second
	defaultInterval      = 10 * time.Second
	defaultRemoteTimeout = 30 * time.Second
	maxBackoff           = 5 * time.Minute
)

// Config holds the engine's collaborators.
type Config struct {
	Store  *core.Store
	Remote core.Remote
	Dir    *fs.NoteDir
	// State is optional; without it the store lives only in memory.
	State *fs.StateFile

	Logger *slog.Logger

	// MaxAttempts is how many consecutive push failures a note gets
	// before it is marked stale.
	MaxAttempts int
	// Backoff is the first retry delay; it doubles per consecutive
	// failure.
	Backoff time.Duration
	// Interval is the background cycle cadence used by Run.
	Interval time.Duration
	// RemoteTimeout bounds each individual service call. A hung call
	// fails the one note and is retried later instead of stalling the
	// cycle.
	RemoteTimeout time.Duration
}

// Engine merges three views of every note: the last state both sides
// agreed on, the current remote state, and the current local artifact.
type Engine struct {
	config Config

	locks keyedMutex

	mu        sync.Mutex
	protected map[string]bool
	bootstrap bool
	retries   map[string]*retryState
	lastCycle time.Time
	lastError string
	cycles    int
	conflicts int
}

type retryState struct {
	failures int
	next     time.Time
}

// keyedMutex serializes reconciliation per note id, so a watcher-driven
// reconcile cannot interleave with a cycle working on the same note.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(id string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[id]
	if !ok {
		m = &sync.Mutex{}
		k.locks[id] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// New validates the configuration and returns an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Remote == nil {
		return nil, fmt.Errorf("remote is required")
	}
	if cfg.Dir == nil {
		return nil, fmt.Errorf("mirror directory is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = defaultRemoteTimeout
	}
	return &Engine{
		config:  cfg,
		retries: make(map[string]*retryState),
	}, nil
}

// remoteCtx derives the bounded context used for one service call.
func (e *Engine) remoteCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.RemoteTimeout)
}

// Bootstrap loads the persisted snapshot and marks files that changed
// while the engine was not running. Such files get the external-edit
// treatment on the first cycle: the last synced state is backed up
// remotely before their edits are pushed.
func (e *Engine) Bootstrap(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.config.State != nil {
		if err := e.config.State.Load(e.config.Store); err != nil {
			return fmt.Errorf("failed to load state: %w", err)
		}
	}

	files, err := e.config.Dir.Scan()
	if err != nil {
		return fmt.Errorf("failed to scan mirror directory: %w", err)
	}

	fresh := len(e.config.Store.Mappings()) == 0
	protected := make(map[string]bool)
	for _, f := range files {
		if f.ID == "" {
			continue
		}
		if fresh {
			protected[f.Path] = true
			continue
		}
		m, ok := e.config.Store.Mapping(f.ID)
		if !ok || m.Fingerprint != f.Fingerprint {
			protected[f.Path] = true
		}
	}

	e.mu.Lock()
	e.protected = protected
	e.bootstrap = true
	e.mu.Unlock()

	if len(protected) > 0 {
		e.config.Logger.Info("found files edited while not running", "count", len(protected))
	}
	return nil
}

// Cycle runs one full reconciliation pass. A remote fetch failure aborts
// the pass; any single note's failure is logged and retried later without
// stopping the others.
func (e *Engine) Cycle(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	store := e.config.Store

	fetchCtx, cancel := e.remoteCtx(ctx)
	delta, err := e.config.Remote.FetchDelta(fetchCtx, store.RemoteRevision())
	cancel()
	if err != nil {
		e.recordError(err)
		return fmt.Errorf("failed to fetch delta: %w", err)
	}
	e.applyLabels(delta)
	remote, removed := e.splitDelta(delta)
	for _, id := range removed {
		e.dropNote(id)
	}
	if delta.FullResync {
		e.dropUnseen(remote)
	}

	// Service the notes still waiting for a permanent id before scanning,
	// so the scan sees their rewritten artifacts.
	for _, n := range store.Notes() {
		if core.IsLocalID(n.ID) {
			if _, err := e.confirmCreate(ctx, n.ID); err != nil {
				e.config.Logger.Warn("note creation still pending", "note", n.ID, "error", err)
			}
		}
	}

	files, err := e.config.Dir.Scan()
	if err != nil {
		e.recordError(err)
		return fmt.Errorf("failed to scan mirror directory: %w", err)
	}
	byID := make(map[string]*fs.ScannedFile)
	var orphans []fs.ScannedFile
	for i := range files {
		if files[i].ID == "" {
			orphans = append(orphans, files[i])
			continue
		}
		byID[files[i].ID] = &files[i]
	}

	var failures int
	for _, id := range e.reconcileSet(remote, byID) {
		if err := e.reconcileNote(ctx, id, remote[id], byID[id]); err != nil {
			failures++
			e.config.Logger.Warn("failed to reconcile note", "note", id, "error", err)
		}
	}

	for _, f := range orphans {
		if err := e.adoptFile(ctx, f); err != nil {
			failures++
			e.config.Logger.Warn("failed to adopt file", "path", f.Path, "error", err)
		}
	}

	e.clearResolvedConflicts()

	store.SetRemoteRevision(delta.Revision)
	if e.config.State != nil {
		if err := e.config.State.Save(store); err != nil {
			e.recordError(err)
			return fmt.Errorf("failed to save state: %w", err)
		}
	}

	e.mu.Lock()
	e.bootstrap = false
	e.protected = nil
	e.cycles++
	e.lastCycle = time.Now()
	if failures == 0 {
		e.lastError = ""
	}
	e.mu.Unlock()

	e.config.Logger.Debug("cycle complete", "revision", delta.Revision, "failures", failures)
	return nil
}

// splitDelta indexes a delta's changes by note id, separating permanent
// removals.
func (e *Engine) splitDelta(delta core.Delta) (map[string]*core.Note, []string) {
	remote := make(map[string]*core.Note)
	var removed []string
	for i := range delta.Changes {
		c := delta.Changes[i]
		if c.Removed {
			removed = append(removed, c.Note.ID)
			continue
		}
		n := c.Note.Clone()
		remote[n.ID] = &n
	}
	return remote, removed
}

// applyLabels merges the delta's label set. A non-empty set is the
// service's full vocabulary, so missing labels are deleted and their
// references pruned.
func (e *Engine) applyLabels(delta core.Delta) {
	if len(delta.Labels) == 0 && !delta.FullResync {
		return
	}
	store := e.config.Store
	seen := make(map[string]bool, len(delta.Labels))
	for _, l := range delta.Labels {
		seen[l.Name] = true
		if err := store.UpsertLabel(l); err != nil {
			e.config.Logger.Warn("rejected label from service", "label", l.Name, "error", err)
		}
	}
	for _, l := range store.Labels() {
		if !seen[l.Name] {
			store.RemoveLabel(l.Name)
		}
	}
}

// dropNote removes a permanently deleted note. Its artifact goes too; a
// parked conflict copy stays, since it is unpushed user text.
func (e *Engine) dropNote(id string) {
	unlock := e.locks.lock(id)
	defer unlock()

	store := e.config.Store
	if m, ok := store.Mapping(id); ok && m.Path != "" && !m.Ephemeral {
		if err := e.config.Dir.Remove(m.Path); err != nil {
			e.config.Logger.Warn("failed to remove artifact", "path", m.Path, "error", err)
		}
	}
	if store.Remove(id) {
		e.config.Logger.Info("note deleted on service", "note", id)
	}
	e.forgetRetries(id)
}

// dropUnseen removes notes that a full resync did not mention. Notes
// still waiting for a permanent id are local-only and survive.
func (e *Engine) dropUnseen(remote map[string]*core.Note) {
	for _, n := range e.config.Store.Notes() {
		if core.IsLocalID(n.ID) {
			continue
		}
		if _, ok := remote[n.ID]; !ok {
			e.dropNote(n.ID)
		}
	}
}

// reconcileSet is the union of ids known locally, mentioned remotely, or
// found on disk, in stable order.
func (e *Engine) reconcileSet(remote map[string]*core.Note, files map[string]*fs.ScannedFile) []string {
	set := make(map[string]bool)
	for _, n := range e.config.Store.Notes() {
		set[n.ID] = true
	}
	for id := range remote {
		set[id] = true
	}
	for id := range files {
		set[id] = true
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// reconcileNote runs the per-note state machine. remote is the delta's
// view of the note (nil when the delta did not mention it); file is the
// scanned artifact (nil when no file carries this id).
func (e *Engine) reconcileNote(ctx context.Context, id string, remote *core.Note, file *fs.ScannedFile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := e.locks.lock(id)
	defer unlock()

	if wait, ok := e.retryBlocked(id); ok && remote == nil {
		e.config.Logger.Debug("note in retry backoff", "note", id, "wait", wait)
		return nil
	}

	store := e.config.Store
	current, inStore := store.Get(id)
	mapping, hasMapping := store.Mapping(id)

	if !inStore {
		if remote == nil {
			if file == nil {
				return nil
			}
			// A draft whose store entry is gone can be adopted again; it
			// was never known to the service. A file claiming a service id
			// nobody knows is parked instead, so a note deleted elsewhere
			// is not resurrected.
			if core.IsLocalID(id) {
				return e.adoptFile(ctx, *file)
			}
			parked, err := e.config.Dir.SoftDelete(file.Path)
			if err != nil {
				return err
			}
			e.config.Logger.Warn("file claims an unknown note, keeping a local copy",
				"path", file.Path, "parked", parked)
			return nil
		}
		// With no last-synced state to compare against, a protected file
		// that does not match the incoming note cannot be told apart from
		// a divergent edit. Park it rather than overwrite it.
		if file != nil && e.isProtected(file.Path) &&
			file.Fingerprint != format.Fingerprint(*remote, e.config.Dir.Style()) {
			return e.reconcileConflict(*remote, *file)
		}
		return e.acceptRemote(*remote, file, mapping, hasMapping)
	}

	if hasMapping && mapping.Ephemeral {
		if remote != nil {
			return e.upsertKeepingConflict(*remote)
		}
		return nil
	}

	// Drafts awaiting a permanent id never push; edits accumulate in the
	// store until the creation goes through.
	if core.IsLocalID(id) {
		if file != nil && (!hasMapping || file.Fingerprint != mapping.Fingerprint) {
			return e.refreshDraft(current, *file)
		}
		return nil
	}

	remoteChanged := remote != nil && (!hasMapping || remote.ServerRevision != mapping.Revision)
	localChanged := file != nil && (!hasMapping || file.Fingerprint != mapping.Fingerprint)

	switch {
	case remoteChanged && localChanged:
		return e.reconcileConflict(*remote, *file)
	case remoteChanged:
		return e.acceptRemote(*remote, file, mapping, hasMapping)
	case localChanged:
		return e.pushLocal(ctx, current, *file)
	default:
		return e.maintainArtifact(current, file, mapping, hasMapping)
	}
}

// acceptRemote is the REMOTE_ONLY_CHANGED arm: the service state lands in
// the store and the artifact is rewritten to match.
func (e *Engine) acceptRemote(incoming core.Note, file *fs.ScannedFile, mapping core.Mapping, hasMapping bool) error {
	store := e.config.Store
	dir := e.config.Dir

	if err := e.upsertKeepingConflict(incoming); err != nil {
		return err
	}

	if incoming.Trashed {
		if file != nil {
			// Unsynced edits in a file the trash wants gone are parked, not
			// destroyed.
			if hasMapping && file.Fingerprint != mapping.Fingerprint || e.isProtected(file.Path) {
				if _, err := dir.SoftDelete(file.Path); err != nil {
					return err
				}
			} else if err := dir.Remove(file.Path); err != nil {
				return err
			}
		}
		store.RemoveMapping(incoming.ID)
		e.forgetRetries(incoming.ID)
		return nil
	}

	target := e.targetPath(incoming)
	if file != nil && file.Path != target {
		if err := dir.Rename(file.Path, target); err != nil {
			return err
		}
	}

	fp := ""
	if file != nil {
		rendered := format.Fingerprint(incoming, dir.Style())
		if curr, err := dir.HashFile(target); err == nil && curr == rendered {
			fp = curr
		}
	}
	if fp == "" {
		written, err := dir.Write(target, incoming)
		if err != nil {
			return err
		}
		fp = written
	}

	store.SetMapping(core.Mapping{
		NoteID:      incoming.ID,
		Path:        target,
		Fingerprint: fp,
		Revision:    incoming.ServerRevision,
		ModTime:     time.Now(),
	})
	e.forgetRetries(incoming.ID)
	return nil
}

// pushLocal is the LOCAL_ONLY_CHANGED arm, with the external-edit guard
// in front: edits discovered at startup push a backup of the last synced
// state into the service trash before anything is overwritten.
func (e *Engine) pushLocal(ctx context.Context, current core.Note, file fs.ScannedFile) error {
	store := e.config.Store
	dir := e.config.Dir

	data, modTime, err := dir.Read(file.Path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", file.Path, err)
	}
	parsed, err := format.Parse(string(data))
	if err != nil {
		// The artifact stays untouched; guessing intent risks losing the
		// user's text. The note is stale until the file parses again.
		e.markStale(current.ID)
		e.config.Logger.Warn("artifact does not parse, leaving it alone", "path", file.Path, "error", err)
		var parseErr *core.ParseError
		if errors.As(err, &parseErr) && parseErr.Path == "" {
			parseErr.Path = file.Path
		}
		return err
	}
	if parsed.ID != current.ID {
		e.markStale(current.ID)
		return fmt.Errorf("artifact %s claims id %q, mapping says %q", file.Path, parsed.ID, current.ID)
	}

	updated := current.Clone()
	parsed.Apply(&updated)
	updated.Modified = modTime

	// A re-save that normalizes to the same canonical text is not an edit.
	if format.Fingerprint(updated, dir.Style()) == format.Fingerprint(current, dir.Style()) {
		m, ok := store.Mapping(current.ID)
		if !ok {
			m.Revision = current.ServerRevision
		}
		m.NoteID = current.ID
		m.Path = file.Path
		m.Fingerprint = file.Fingerprint
		m.ModTime = modTime
		store.SetMapping(m)
		return nil
	}

	if e.isProtected(file.Path) {
		e.config.Logger.Warn("external edit detected, backing up last synced state", "path", file.Path, "note", current.ID)
		backupCtx, cancel := e.remoteCtx(ctx)
		err := e.config.Remote.CreateBackupCopy(backupCtx, current)
		cancel()
		if err != nil {
			e.noteFailure(current.ID, err)
			return fmt.Errorf("failed to back up note %s: %w", current.ID, err)
		}
	}

	pushCtx, cancel := e.remoteCtx(ctx)
	rev, err := e.config.Remote.Push(pushCtx, updated)
	cancel()
	if err != nil {
		e.noteFailure(current.ID, err)
		return fmt.Errorf("failed to push note %s: %w", current.ID, err)
	}
	updated.ServerRevision = rev
	updated.Stale = false
	if err := store.Upsert(updated); err != nil {
		return err
	}
	e.clearFailure(current.ID)

	// Normalize the artifact, renaming if the edit changed the title.
	target := e.targetPath(updated)
	if file.Path != target {
		if err := dir.Rename(file.Path, target); err != nil {
			return err
		}
	}
	fp := file.Fingerprint
	rendered := format.Render(updated, dir.Style())
	if format.FingerprintBytes([]byte(rendered)) != file.Fingerprint {
		written, err := dir.Write(target, updated)
		if err != nil {
			return err
		}
		fp = written
	}
	store.SetMapping(core.Mapping{
		NoteID:      updated.ID,
		Path:        target,
		Fingerprint: fp,
		Revision:    rev,
		ModTime:     modTime,
	})
	return nil
}

// reconcileConflict is the BOTH_CHANGED arm: the local text is parked
// under the conflict suffix, the remote state takes the primary path, and
// the note carries the conflict flag until the parked copy disappears.
func (e *Engine) reconcileConflict(incoming core.Note, file fs.ScannedFile) error {
	store := e.config.Store
	dir := e.config.Dir

	parked, err := dir.SoftDelete(file.Path)
	if err != nil {
		return err
	}
	conflictErr := &core.ConflictError{
		ID:                incoming.ID,
		LocalFingerprint:  file.Fingerprint,
		RemoteFingerprint: format.Fingerprint(incoming, dir.Style()),
	}
	e.config.Logger.Warn("conflicting edits, keeping both versions",
		"note", incoming.ID, "parked", parked, "error", conflictErr)

	incoming.HasConflict = true
	if err := store.Upsert(incoming); err != nil {
		return err
	}

	if incoming.Trashed {
		// The mapping keeps pointing at the old path so the conflict flag
		// stays anchored to the parked copy.
		store.SetMapping(core.Mapping{
			NoteID:   incoming.ID,
			Path:     file.Path,
			Revision: incoming.ServerRevision,
			ModTime:  time.Now(),
		})
		e.mu.Lock()
		e.conflicts++
		e.mu.Unlock()
		return nil
	}
	target := e.targetPath(incoming)
	if file.Path != target {
		// Keep the parked copy next to the primary artifact.
		if err := dir.Rename(parked, target+fs.LocalCopySuffix); err != nil {
			return err
		}
	}
	fp, err := dir.Write(target, incoming)
	if err != nil {
		return err
	}
	store.SetMapping(core.Mapping{
		NoteID:      incoming.ID,
		Path:        target,
		Fingerprint: fp,
		Revision:    incoming.ServerRevision,
		ModTime:     time.Now(),
	})

	e.mu.Lock()
	e.conflicts++
	e.mu.Unlock()
	return nil
}

// maintainArtifact is the CLEAN arm. It still repairs the mirror: a
// deleted or missing artifact is rewritten from the store, since deleting
// the mirror file is not how notes are deleted.
func (e *Engine) maintainArtifact(current core.Note, file *fs.ScannedFile, mapping core.Mapping, hasMapping bool) error {
	if current.Trashed {
		return nil
	}
	dir := e.config.Dir
	store := e.config.Store

	if file == nil {
		if hasMapping && mapping.Path != "" {
			e.config.Logger.Info("artifact missing, rewriting from store", "note", current.ID, "path", mapping.Path)
		}
		target := e.targetPath(current)
		fp, err := dir.Write(target, current)
		if err != nil {
			return err
		}
		store.SetMapping(core.Mapping{
			NoteID:      current.ID,
			Path:        target,
			Fingerprint: fp,
			Revision:    current.ServerRevision,
			ModTime:     time.Now(),
		})
		return nil
	}

	// The user may have moved the file; the canonical name follows the
	// title, so move it back.
	target := e.targetPath(current)
	if file.Path != target {
		if err := dir.Rename(file.Path, target); err != nil {
			return err
		}
		mapping.Path = target
		store.SetMapping(mapping)
	}
	return nil
}

// adoptFile turns an id-less artifact into a real note: the service
// assigns the identity, then the id line is spliced into the file without
// disturbing the rest of the user's text.
func (e *Engine) adoptFile(ctx context.Context, file fs.ScannedFile) error {
	dir := e.config.Dir
	store := e.config.Store

	if wait, blocked := e.retryBlocked("adopt:" + file.Path); blocked {
		e.config.Logger.Debug("adoption in retry backoff", "path", file.Path, "wait", wait)
		return nil
	}

	data, modTime, err := dir.Read(file.Path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", file.Path, err)
	}
	parsed, err := format.ParseAny(string(data))
	if err != nil {
		e.config.Logger.Warn("new file does not parse, leaving it alone", "path", file.Path, "error", err)
		return err
	}

	n := parsed.Note()
	n.ID = ""
	if n.Title == "" {
		n.Title = file.Title
	}
	if n.Title == "" {
		n.Title = deriveTitle(file.Path)
	}
	n.Archived = e.config.Dir.InArchive(file.Path)
	n.Modified = modTime

	createCtx, cancel := e.remoteCtx(ctx)
	id, rev, err := e.config.Remote.Create(createCtx, n)
	cancel()
	if err != nil {
		e.noteFailure("adopt:"+file.Path, err)
		return fmt.Errorf("failed to create note for %s: %w", file.Path, err)
	}
	n.ID = id
	n.ServerRevision = rev
	if err := store.Upsert(n); err != nil {
		return err
	}
	e.clearFailure("adopt:" + file.Path)

	tagged := format.EnsureIdentity(string(data), id, n.Title)
	if err := dir.WriteRaw(file.Path, []byte(tagged)); err != nil {
		return err
	}
	store.SetMapping(core.Mapping{
		NoteID:      id,
		Path:        file.Path,
		Fingerprint: format.FingerprintBytes([]byte(tagged)),
		Revision:    rev,
		ModTime:     modTime,
	})
	e.config.Logger.Info("adopted new file", "path", file.Path, "note", id)
	return nil
}

// refreshDraft folds an edited artifact back into a draft note that has
// no permanent id yet.
func (e *Engine) refreshDraft(current core.Note, file fs.ScannedFile) error {
	store := e.config.Store
	data, modTime, err := e.config.Dir.Read(file.Path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", file.Path, err)
	}
	parsed, err := format.Parse(string(data))
	if err != nil {
		e.config.Logger.Warn("draft does not parse, leaving it alone", "path", file.Path, "error", err)
		return err
	}
	if parsed.ID != current.ID {
		return fmt.Errorf("draft %s claims id %q, mapping says %q", file.Path, parsed.ID, current.ID)
	}

	updated := current.Clone()
	parsed.Apply(&updated)
	updated.Modified = modTime
	if err := store.Upsert(updated); err != nil {
		return err
	}
	store.SetMapping(core.Mapping{
		NoteID:      updated.ID,
		Path:        file.Path,
		Fingerprint: file.Fingerprint,
		ModTime:     modTime,
	})
	return nil
}

// confirmCreate pushes a locally created note to the service and rekeys
// it to the permanent id. Safe to retry: the local id stays until the
// service answers.
func (e *Engine) confirmCreate(ctx context.Context, localID string) (string, error) {
	unlock := e.locks.lock(localID)
	defer unlock()

	store := e.config.Store
	n, ok := store.Get(localID)
	if !ok || !core.IsLocalID(n.ID) {
		return n.ID, nil
	}
	if wait, blocked := e.retryBlocked(localID); blocked {
		return "", fmt.Errorf("in retry backoff for %s", wait)
	}

	createCtx, cancel := e.remoteCtx(ctx)
	id, rev, err := e.config.Remote.Create(createCtx, n)
	cancel()
	if err != nil {
		e.noteFailure(localID, err)
		return "", fmt.Errorf("failed to create note: %w", err)
	}
	if err := store.Rekey(localID, id); err != nil {
		return "", err
	}
	n, _ = store.Get(id)
	n.ServerRevision = rev
	n.Stale = false
	if err := store.Upsert(n); err != nil {
		return "", err
	}
	e.clearFailure(localID)

	// Rewrite the artifact so its id line names the permanent identity.
	if m, ok := store.Mapping(id); ok && m.Path != "" && !m.Ephemeral {
		target := e.targetPath(n)
		if m.Path != target {
			if err := e.config.Dir.Rename(m.Path, target); err != nil {
				return "", err
			}
		}
		fp, err := e.config.Dir.Write(target, n)
		if err != nil {
			return "", err
		}
		store.SetMapping(core.Mapping{
			NoteID:      id,
			Path:        target,
			Fingerprint: fp,
			Revision:    rev,
			ModTime:     time.Now(),
		})
	}
	e.config.Logger.Info("note confirmed by service", "local", localID, "note", id)
	return id, nil
}

// CreateNote stores a new note under a provisional local id, writes its
// artifact, and immediately tries to obtain the permanent id. When the
// service is unreachable the note stays local and is retried each cycle.
func (e *Engine) CreateNote(ctx context.Context, n core.Note) (core.Note, error) {
	if n.ID == "" {
		n.ID = core.NewLocalID()
	}
	if n.Modified.IsZero() {
		n.Modified = time.Now()
	}
	store := e.config.Store
	if err := store.Upsert(n); err != nil {
		return core.Note{}, err
	}

	if !n.Trashed {
		target := e.targetPath(n)
		fp, err := e.config.Dir.Write(target, n)
		if err != nil {
			return core.Note{}, err
		}
		store.SetMapping(core.Mapping{
			NoteID:      n.ID,
			Path:        target,
			Fingerprint: fp,
			ModTime:     n.Modified,
		})
	}

	id, err := e.confirmCreate(ctx, n.ID)
	if err != nil {
		e.config.Logger.Warn("note stays local until the service confirms", "note", n.ID, "error", err)
		id = n.ID
	}
	confirmed, _ := store.Get(id)

	if e.config.State != nil {
		if err := e.config.State.Save(store); err != nil {
			return confirmed, fmt.Errorf("failed to save state: %w", err)
		}
	}
	return confirmed, nil
}

// TrashNote moves a note into the service's recoverable-deletion area
// and removes its artifact from the mirror. Trashing is a mutation, not
// destruction: the note stays in the store, flagged, until the service
// reports permanent deletion. Unsynced edits in the artifact are parked
// instead of deleted.
func (e *Engine) TrashNote(ctx context.Context, id string) error {
	unlock := e.locks.lock(id)
	defer unlock()

	store := e.config.Store
	current, ok := store.Get(id)
	if !ok {
		return core.ErrNotFound
	}
	if current.Trashed {
		return nil
	}

	// A draft the service never confirmed has no recoverable copy there.
	// Its text is parked in the mirror instead and the entity dropped.
	if core.IsLocalID(id) {
		if m, ok := store.Mapping(id); ok && m.Path != "" && !m.Ephemeral {
			if _, err := e.config.Dir.SoftDelete(m.Path); err != nil {
				return err
			}
		}
		store.Remove(id)
		e.clearFailure(id)
		if e.config.State != nil {
			if err := e.config.State.Save(store); err != nil {
				return fmt.Errorf("failed to save state: %w", err)
			}
		}
		e.config.Logger.Info("draft discarded, text parked", "note", id)
		return nil
	}

	trashCtx, cancel := e.remoteCtx(ctx)
	err := e.config.Remote.Trash(trashCtx, current)
	cancel()
	if err != nil {
		e.noteFailure(id, err)
		return fmt.Errorf("failed to trash note %s: %w", id, err)
	}

	current.Trashed = true
	current.Modified = time.Now()
	if err := store.Upsert(current); err != nil {
		return err
	}
	e.clearFailure(id)

	if m, ok := store.Mapping(id); ok && m.Path != "" && !m.Ephemeral {
		if fp, err := e.config.Dir.HashFile(m.Path); err == nil && fp != m.Fingerprint {
			if _, err := e.config.Dir.SoftDelete(m.Path); err != nil {
				return err
			}
		} else if err := e.config.Dir.Remove(m.Path); err != nil {
			return err
		}
	}
	store.RemoveMapping(id)

	if e.config.State != nil {
		if err := e.config.State.Save(store); err != nil {
			return fmt.Errorf("failed to save state: %w", err)
		}
	}
	e.config.Logger.Info("note trashed", "note", id)
	return nil
}

// clearResolvedConflicts drops the conflict flag from notes whose parked
// copy the user has deleted.
func (e *Engine) clearResolvedConflicts() {
	store := e.config.Store
	for _, n := range store.Notes() {
		if !n.HasConflict {
			continue
		}
		m, ok := store.Mapping(n.ID)
		if !ok || m.Path == "" || !e.config.Dir.HasLocalCopy(m.Path) {
			n.HasConflict = false
			if err := store.Upsert(n); err != nil {
				e.config.Logger.Warn("failed to clear conflict flag", "note", n.ID, "error", err)
				continue
			}
			e.config.Logger.Info("conflict resolved", "note", n.ID)
		}
	}
}

// upsertKeepingConflict stores a remote note without losing a standing
// conflict flag, which is local bookkeeping the service knows nothing
// about.
func (e *Engine) upsertKeepingConflict(incoming core.Note) error {
	if prev, ok := e.config.Store.Get(incoming.ID); ok && prev.HasConflict {
		if m, hasMapping := e.config.Store.Mapping(incoming.ID); hasMapping && m.Path != "" && e.config.Dir.HasLocalCopy(m.Path) {
			incoming.HasConflict = true
		}
	}
	return e.config.Store.Upsert(incoming)
}

// targetPath returns the canonical artifact path for a note, falling back
// to the id-suffixed name when another note already claims it.
func (e *Engine) targetPath(n core.Note) string {
	path := e.config.Dir.FilePathFor(n)
	if path == "" {
		return ""
	}
	if m, ok := e.config.Store.MappingByPath(path); ok && m.NoteID != n.ID {
		return e.config.Dir.FilePathWithID(n)
	}
	return path
}

func deriveTitle(path string) string {
	base := path
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	return base
}

func (e *Engine) isProtected(path string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bootstrap && e.protected[path]
}

func (e *Engine) retryBlocked(id string) (time.Duration, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.retries[id]
	if !ok || time.Now().After(r.next) {
		return 0, false
	}
	return time.Until(r.next), true
}

// noteFailure records a failed service call for one note and schedules
// the next attempt with exponential backoff. Repeated failure marks the
// note stale; it keeps syncing once the service recovers.
func (e *Engine) noteFailure(id string, err error) {
	e.mu.Lock()
	r, ok := e.retries[id]
	if !ok {
		r = &retryState{}
		e.retries[id] = r
	}
	r.failures++
	delay := e.config.Backoff << (r.failures - 1)
	if delay > maxBackoff {
		delay = maxBackoff
	}
	r.next = time.Now().Add(delay)
	failures := r.failures
	e.lastError = err.Error()
	e.mu.Unlock()

	if failures >= e.config.MaxAttempts {
		e.markStale(id)
	}
}

func (e *Engine) markStale(id string) {
	store := e.config.Store
	if n, ok := store.Get(id); ok && !n.Stale {
		n.Stale = true
		if err := store.Upsert(n); err != nil {
			e.config.Logger.Warn("failed to mark note stale", "note", id, "error", err)
			return
		}
		e.config.Logger.Warn("note marked stale after repeated failures", "note", id)
	}
}

func (e *Engine) clearFailure(id string) {
	e.mu.Lock()
	delete(e.retries, id)
	e.mu.Unlock()
}

func (e *Engine) forgetRetries(id string) {
	e.mu.Lock()
	delete(e.retries, id)
	e.mu.Unlock()
}

func (e *Engine) recordError(err error) {
	e.mu.Lock()
	e.lastError = err.Error()
	e.mu.Unlock()
}
