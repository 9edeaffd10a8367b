package platform

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/marl/pkg/adapters/fs"
	"github.com/aretw0/marl/pkg/adapters/memory"
	"github.com/aretw0/marl/pkg/core"
	"github.com/aretw0/marl/pkg/format"
	"github.com/aretw0/marl/pkg/query"
	"github.com/aretw0/marl/pkg/sync"
)

// App bundles every component wired for one mirror directory.
type App struct {
	Store  *core.Store
	Dir    *fs.NoteDir
	State  *fs.StateFile
	Vault  core.TokenVault
	Remote core.Remote
	Engine *sync.Engine
	Query  *query.Engine

	logger *slog.Logger
}

// app, err := marl.Open("./notes", marl.WithRemote(client))
// The path argument is the mirror directory root; an empty path means
// the current directory.
func Open(path string, opts ...Option) (*App, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	// 1. Mirror directory (path resolution, dev sandbox)
	dir, err := initDir(path, o)
	if err != nil {
		return nil, err
	}

	// 2. Store, fingerprinting in the directory's dialect
	store := core.NewStore(format.Fingerprinter(dir.Style()))

	// 3. Snapshot persistence
	statePath, _ := o.config["state_file"].(string)
	if statePath == "" {
		statePath = dir.StateFilePath()
	}
	state := fs.NewStateFile(statePath, o.logger)

	// 4. Credential vault
	vault := o.vault
	if vault == nil {
		vault = fs.NewTokenFile(dir.TokenFilePath())
	}

	// 5. Remote service client; without an injected one the mirror runs
	// against a private in-memory service.
	remote := o.remote
	if remote == nil {
		remote = memory.NewRemote()
	}

	interval, _ := o.config["sync_interval"].(time.Duration)
	remoteTimeout, _ := o.config["remote_timeout"].(time.Duration)
	engine, err := sync.New(sync.Config{
		Store:         store,
		Remote:        remote,
		Dir:           dir,
		State:         state,
		Logger:        o.logger,
		Interval:      interval,
		RemoteTimeout: remoteTimeout,
	})
	if err != nil {
		return nil, err
	}

	return &App{
		Store:  store,
		Dir:    dir,
		State:  state,
		Vault:  vault,
		Remote: remote,
		Engine: engine,
		Query:  query.NewEngine(store),
		logger: o.logger,
	}, nil
}

// Bootstrap restores the persisted snapshot and flags files edited while
// the engine was not running.
func (a *App) Bootstrap(ctx context.Context) error {
	return a.Engine.Bootstrap(ctx)
}

// Session starts an interactive query session against this mirror.
func (a *App) Session(debounce time.Duration) *query.Session {
	return query.NewSession(a.Query, debounce, a.logger)
}

// Close persists the store snapshot. Engine.Run saves on its own way
// out, so Close matters mainly for one-shot flows that never call Run.
func (a *App) Close() error {
	return a.State.Save(a.Store)
}
