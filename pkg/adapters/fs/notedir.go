// Package fs mirrors notes as editable text files in a directory and
// watches that directory for edits. It persists the store snapshot and
// the service credential under a hidden system subdirectory.
package fs

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/marl/pkg/core"
	"github.com/aretw0/marl/pkg/format"
)

const (
	// LocalCopySuffix marks a parked local edit that lost a sync conflict.
	// The note stays flagged until the user deletes the file.
	LocalCopySuffix = ".local"

	defaultSystemDir  = ".marl"
	defaultArchiveDir = "archived"
	defaultExt        = ".md"
	defaultDebounce   = 50 * time.Millisecond
	defaultEventBuf   = 16
)

// Config holds the NoteDir construction parameters.
type Config struct {
	// Path is the mirror directory root.
	Path string
	// SystemDir is the hidden subdirectory for state and credentials.
	SystemDir string
	// ArchiveDir is the subdirectory archived notes are filed under.
	ArchiveDir string
	// Ext is the artifact file extension, dot included.
	Ext string
	// Style selects the rendered dialect.
	Style format.Style
	// MustExist refuses to create the mirror directory if it is missing.
	MustExist bool
	// Debounce is the watcher's quiet window per path.
	Debounce time.Duration
	// EventBuffer sizes the watch event channel.
	EventBuffer int

	Logger       *slog.Logger
	ErrorHandler func(error)
}

// ScannedFile describes one artifact found in the mirror directory.
type ScannedFile struct {
	Path        string // relative, slash separated
	ID          string // empty when the artifact carries no id yet
	Title       string
	Fingerprint string // hash of the raw bytes
	ModTime     time.Time
}

// NoteDir is the filesystem adapter for one mirror directory.
type NoteDir struct {
	config Config

	mu            sync.RWMutex
	watcherActive bool
	lastScan      time.Time
	lastScanCount int
}

// NewNoteDir validates the configuration and prepares the directory
// layout.
func NewNoteDir(cfg Config) (*NoteDir, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("mirror directory path is required")
	}
	if cfg.SystemDir == "" {
		cfg.SystemDir = defaultSystemDir
	}
	if cfg.ArchiveDir == "" {
		cfg.ArchiveDir = defaultArchiveDir
	}
	if cfg.Ext == "" {
		cfg.Ext = defaultExt
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuf
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	info, err := os.Stat(cfg.Path)
	switch {
	case os.IsNotExist(err):
		if cfg.MustExist {
			return nil, fmt.Errorf("mirror directory does not exist: %s", cfg.Path)
		}
		if err := os.MkdirAll(cfg.Path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create mirror directory: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat mirror directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("mirror path is not a directory: %s", cfg.Path)
	}

	return &NoteDir{config: cfg}, nil
}

// Path returns the mirror directory root.
func (d *NoteDir) Path() string {
	return d.config.Path
}

// StateFilePath returns where the store snapshot lives.
func (d *NoteDir) StateFilePath() string {
	return filepath.Join(d.config.Path, d.config.SystemDir, "state.json")
}

// TokenFilePath returns where the service credential lives.
func (d *NoteDir) TokenFilePath() string {
	return filepath.Join(d.config.Path, d.config.SystemDir, "token")
}

// Style returns the configured artifact dialect.
func (d *NoteDir) Style() format.Style {
	return d.config.Style
}

// Abs resolves a relative artifact path against the directory root.
func (d *NoteDir) Abs(rel string) string {
	return filepath.Join(d.config.Path, filepath.FromSlash(rel))
}

// InArchive reports whether a relative path lies under the archive
// subdirectory.
func (d *NoteDir) InArchive(rel string) bool {
	return strings.HasPrefix(rel, d.config.ArchiveDir+"/")
}

// FilePathFor returns the canonical relative path for a note, or "" for
// notes that have no artifact (trashed ones). The caller resolves name
// collisions with FilePathWithID before writing.
func (d *NoteDir) FilePathFor(n core.Note) string {
	if n.Trashed {
		return ""
	}
	name := format.Slug(n.Title) + d.config.Ext
	if n.Archived {
		return d.config.ArchiveDir + "/" + name
	}
	return name
}

// FilePathWithID is the collision fallback: the slug plus a short id
// suffix.
func (d *NoteDir) FilePathWithID(n core.Note) string {
	suffix := n.ID
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	name := format.Slug(n.Title) + "." + suffix + d.config.Ext
	if n.Archived {
		return d.config.ArchiveDir + "/" + name
	}
	return name
}

// Write renders the note in the configured style and writes it atomically
// to rel. It returns the fingerprint of the bytes written.
func (d *NoteDir) Write(rel string, n core.Note) (string, error) {
	data := []byte(format.Render(n, d.config.Style))
	if err := d.WriteRaw(rel, data); err != nil {
		return "", err
	}
	return format.FingerprintBytes(data), nil
}

// WriteRaw writes raw artifact bytes atomically to rel.
func (d *NoteDir) WriteRaw(rel string, data []byte) error {
	abs := d.Abs(rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fmt.Errorf("failed to create note directory: %w", err)
	}
	d.config.Logger.Debug("writing artifact", "path", rel)
	return writeFileAtomic(abs, data, 0644)
}

// Read returns the artifact bytes and modification time.
func (d *NoteDir) Read(rel string) ([]byte, time.Time, error) {
	abs := d.Abs(rel)
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, time.Time{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, time.Time{}, err
	}
	return data, info.ModTime(), nil
}

// Exists reports whether rel is present.
func (d *NoteDir) Exists(rel string) bool {
	_, err := os.Stat(d.Abs(rel))
	return err == nil
}

// Remove deletes an artifact. Removing a missing artifact is not an
// error.
func (d *NoteDir) Remove(rel string) error {
	err := os.Remove(d.Abs(rel))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", rel, err)
	}
	return nil
}

// Rename moves an artifact, carrying a parked local copy along so the
// conflict marker stays next to the note.
func (d *NoteDir) Rename(oldRel, newRel string) error {
	absOld, absNew := d.Abs(oldRel), d.Abs(newRel)
	if err := os.MkdirAll(filepath.Dir(absNew), 0755); err != nil {
		return fmt.Errorf("failed to create note directory: %w", err)
	}
	if err := os.Rename(absOld, absNew); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", oldRel, newRel, err)
	}
	if _, err := os.Stat(absOld + LocalCopySuffix); err == nil {
		if err := os.Rename(absOld+LocalCopySuffix, absNew+LocalCopySuffix); err != nil {
			return fmt.Errorf("failed to move parked copy of %s: %w", oldRel, err)
		}
	}
	return nil
}

// SoftDelete parks the artifact under its name plus LocalCopySuffix
// instead of deleting it, preserving a user edit the sync outcome is
// about to override.
func (d *NoteDir) SoftDelete(rel string) (string, error) {
	parked := rel + LocalCopySuffix
	if err := os.Rename(d.Abs(rel), d.Abs(parked)); err != nil {
		return "", fmt.Errorf("failed to park %s: %w", rel, err)
	}
	d.config.Logger.Warn("kept local version of note", "path", parked)
	return parked, nil
}

// HasLocalCopy reports whether a parked copy sits next to rel.
func (d *NoteDir) HasLocalCopy(rel string) bool {
	_, err := os.Stat(d.Abs(rel + LocalCopySuffix))
	return err == nil
}

// HashFile fingerprints the raw bytes of rel.
func (d *NoteDir) HashFile(rel string) (string, error) {
	data, err := os.ReadFile(d.Abs(rel))
	if err != nil {
		return "", err
	}
	return format.FingerprintBytes(data), nil
}

// Scan walks the mirror directory and describes every artifact. Parked
// copies, temp files, and the system directory are skipped. The result is
// sorted by path.
func (d *NoteDir) Scan() ([]ScannedFile, error) {
	var files []ScannedFile

	err := filepath.WalkDir(d.config.Path, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if d.isSystemPath(entry.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		name := entry.Name()
		if strings.HasPrefix(name, TempFilePrefix) ||
			strings.HasSuffix(name, LocalCopySuffix) ||
			filepath.Ext(name) != d.config.Ext {
			return nil
		}

		rel, err := filepath.Rel(d.config.Path, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		info, err := entry.Info()
		if err != nil {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			d.config.Logger.Warn("failed to read artifact during scan", "path", rel, "error", err)
			return nil
		}

		id, title := format.Identity(string(data))
		files = append(files, ScannedFile{
			Path:        rel,
			ID:          id,
			Title:       title,
			Fingerprint: format.FingerprintBytes(data),
			ModTime:     info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk mirror directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	d.mu.Lock()
	d.lastScan = time.Now()
	d.lastScanCount = len(files)
	d.mu.Unlock()
	return files, nil
}

// isSystemPath reports whether a directory name belongs to marl itself
// rather than the user's notes.
func (d *NoteDir) isSystemPath(name string) bool {
	if name == d.config.SystemDir {
		return true
	}
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
