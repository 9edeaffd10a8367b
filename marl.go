package marl

import (
	"log/slog"
	"time"

	"github.com/aretw0/marl/internal/platform"
	"github.com/aretw0/marl/pkg/core"
)

// --- Types ---

// Note is a public alias for the note entity.
type Note = core.Note

// ListItem is one entry of a check-list note.
type ListItem = core.ListItem

// Label is a public alias for the label entity.
type Label = core.Label

// NoteKind discriminates text notes from check-list notes.
type NoteKind = core.NoteKind

// KindText and KindList are the two body variants a note can carry.
const (
	KindText = core.KindText
	KindList = core.KindList
)

// Remote defines the contract for the note service client.
type Remote = core.Remote

// TokenVault stores the service credential between runs.
type TokenVault = core.TokenVault

// App bundles every component wired for one mirror directory.
type App = platform.App

// --- Configuration ---

// Option defines a functional option for configuring marl.
type Option = platform.Option

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithRemote injects the note service client.
func WithRemote(r Remote) Option {
	return platform.WithRemote(r)
}

// WithVault injects a custom credential store.
func WithVault(v TokenVault) Option {
	return platform.WithVault(v)
}

// WithStateFile overrides where the store snapshot is persisted.
func WithStateFile(path string) Option {
	return platform.WithStateFile(path)
}

// WithSystemDir allows specifying the hidden directory name (e.g. ".marl").
func WithSystemDir(name string) Option {
	return platform.WithSystemDir(name)
}

// WithArchiveSubdir allows specifying the subdirectory archived notes are filed under.
func WithArchiveSubdir(name string) Option {
	return platform.WithArchiveSubdir(name)
}

// WithFrontMatter switches rendered artifacts to the YAML front matter dialect.
func WithFrontMatter(enabled bool) Option {
	return platform.WithFrontMatter(enabled)
}

// WithDebounce sets the watcher's quiet window per path.
func WithDebounce(d time.Duration) Option {
	return platform.WithDebounce(d)
}

// WithSyncInterval sets the background cycle cadence used by Run.
func WithSyncInterval(d time.Duration) Option {
	return platform.WithSyncInterval(d)
}

// WithRemoteTimeout bounds each individual call to the note service.
func WithRemoteTimeout(d time.Duration) Option {
	return platform.WithRemoteTimeout(d)
}

// WithEventBuffer allows specifying the size of the watch event channel.
func WithEventBuffer(size int) Option {
	return platform.WithEventBuffer(size)
}

// WithWatcherErrorHandler registers a callback for errors occurring during the watch loop.
func WithWatcherErrorHandler(fn func(error)) Option {
	return platform.WithWatcherErrorHandler(fn)
}

// WithMustExist ensures the mirror directory must already exist.
func WithMustExist(must bool) Option {
	return platform.WithMustExist(must)
}

// WithForceTemp forces the use of a temporary directory (useful for testing).
func WithForceTemp(force bool) Option {
	return platform.WithForceTemp(force)
}

// WithDevSafety controls the sandbox safety mechanism for `go run`.
func WithDevSafety(enabled bool) Option {
	return platform.WithDevSafety(enabled)
}

// --- Factory ---

// Open wires the components for one mirror directory.
func Open(path string, opts ...Option) (*App, error) {
	return platform.Open(path, opts...)
}

// --- Safety & Utils ---

// ResolveMirrorPath determines the actual path for the mirror based on safety rules.
func ResolveMirrorPath(userPath string, forceTemp bool) string {
	return platform.ResolveMirrorPath(userPath, forceTemp)
}

// IsDevRun checks if the current process is running via `go run` or `go test`.
func IsDevRun() bool {
	return platform.IsDevRun()
}

// FindRoot recursively looks upwards for a mirror root indicator.
func FindRoot(startDir string) (string, error) {
	return platform.FindRoot(startDir)
}
