package platform

import (
	"log/slog"
	"time"

	"github.com/aretw0/marl/pkg/core"
)

// options holds the internal configuration for a marl mirror.
type options struct {
	remote core.Remote
	vault  core.TokenVault
	logger *slog.Logger
	config map[string]interface{}
}

// Option defines a functional option for configuring marl.
type Option func(*options)

// defaultOptions returns the default configuration.
func defaultOptions() *options {
	return &options{
		config: make(map[string]interface{}),
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRemote injects the note service client (e.g. a real API client or
// an in-memory fake). Without it the mirror runs against a private
// in-memory service, which is useful for demos and tests but loses the
// remote side on exit.
func WithRemote(r core.Remote) Option {
	return func(o *options) {
		o.remote = r
	}
}

// WithVault injects a custom credential store. Defaults to a file under
// the system directory.
func WithVault(v core.TokenVault) Option {
	return func(o *options) {
		o.vault = v
	}
}

// WithStateFile overrides where the store snapshot is persisted.
// Defaults to state.json inside the system directory.
func WithStateFile(path string) Option {
	return func(o *options) {
		o.config["state_file"] = path
	}
}

// WithSystemDir allows specifying the hidden directory name (e.g. ".marl").
// Defaults to ".marl" if not set (handled by adapter).
func WithSystemDir(name string) Option {
	return func(o *options) {
		o.config["system_dir"] = name
	}
}

// WithArchiveSubdir allows specifying the subdirectory archived notes are
// filed under. Defaults to "archive".
func WithArchiveSubdir(name string) Option {
	return func(o *options) {
		o.config["archive_dir"] = name
	}
}

// WithFrontMatter switches rendered artifacts to the YAML front matter
// dialect. By default notes render with the plain header dialect.
func WithFrontMatter(enabled bool) Option {
	return func(o *options) {
		o.config["front_matter"] = enabled
	}
}

// WithDebounce sets the watcher's quiet window per path. Zero means
// default (handled by adapter).
func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		o.config["debounce"] = d
	}
}

// WithSyncInterval sets the background cycle cadence used by Run.
// Zero means default (10s).
func WithSyncInterval(d time.Duration) Option {
	return func(o *options) {
		o.config["sync_interval"] = d
	}
}

// WithRemoteTimeout bounds each individual service call. Zero means
// default (30s).
func WithRemoteTimeout(d time.Duration) Option {
	return func(o *options) {
		o.config["remote_timeout"] = d
	}
}

// WithEventBuffer allows specifying the size of the watch event channel.
// Zero means default (handled by adapter).
func WithEventBuffer(size int) Option {
	return func(o *options) {
		o.config["event_buffer"] = size
	}
}

// WithWatcherErrorHandler registers a callback to handle errors occurring
// during the watch loop. This allows applications to log or react to
// runtime watcher failures (e.g. permission denied) which are otherwise
// only logged.
func WithWatcherErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.config["watcher_error_handler"] = fn
	}
}

// WithMustExist ensures the mirror directory must already exist.
func WithMustExist(must bool) Option {
	return func(o *options) {
		o.config["must_exist"] = must
	}
}

// WithForceTemp forces the use of a temporary directory (useful for testing).
func WithForceTemp(force bool) Option {
	return func(o *options) {
		o.config["temp_dir"] = force
	}
}

// WithDevSafety controls the "Sandbox" safety mechanism when running via
// `go run`. By default (true), marl forces a temporary directory to
// prevent accidental edits to a real mirror. Setting this to false
// allows operating on the real filesystem even during `go run`.
//
// CAUTION: Only disable this if you are sure your code is safe.
func WithDevSafety(enabled bool) Option {
	return func(o *options) {
		o.config["dev_safety"] = enabled
	}
}
