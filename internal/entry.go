// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/starford/raido/internal/cleanup"
	"github.com/starford/raido/internal/launcher"
	"github.com/starford/raido/internal/mcp"
	"github.com/starford/raido/internal/paths"
	"github.com/starford/raido/internal/provider"
	"github.com/starford/raido/internal/state"
	"github.com/starford/raido/internal/symlink"
)

// App wires the provider store, resolver, cleaner, state store and
// launcher for the lifetime of one CLI invocation.
type App struct {
	cfg      *Config
	logger   *slog.Logger
	resolver *paths.Resolver
	store    *provider.Store
	cleaner  *cleanup.Cleaner

	// stateDB is opened lazily on first gate access and released via
	// Close at process exit.
	stateDB *state.DB
}

// NewApp builds the application from options.
func NewApp(opts ...Option) (*App, error) {
	app := &App{}

	for _, opt := range opts {
		opt(app)
	}

	if app.cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	cfg := app.cfg

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.Level(),
	}))
	slog.SetDefault(logger)
	app.logger = logger

	app.resolver = paths.NewResolver(time.Duration(cfg.Cleanup.SizeCacheTTL))
	app.store = provider.NewStore(app.resolver.Expand(cfg.Providers.Path))
	app.cleaner = cleanup.New(app.resolver, logger, cfg.Cleanup.Policy())

	logger.Debug("configuration loaded",
		slog.String("canonical_dir", cfg.Claude.ConfigDir),
		slog.String("providers_path", cfg.Providers.Path),
		slog.String("state_path", cfg.State.Path))

	return app, nil
}

// Close releases the state database if it was opened.
func (a *App) Close() error {
	if a.stateDB == nil {
		return nil
	}
	return a.stateDB.Close()
}

// Store exposes the provider store for record-management commands.
func (a *App) Store() *provider.Store {
	return a.store
}

// gate opens the state database on first use. A missing gate disables
// scheduled resets; it never blocks a launch.
func (a *App) gate() *state.DB {
	if a.stateDB != nil {
		return a.stateDB
	}
	db, err := state.Open(a.resolver.Expand(a.cfg.State.Path))
	if err != nil {
		a.logger.Warn("state store unavailable", slog.String("error", err.Error()))
		return nil
	}
	a.stateDB = db
	return db
}

// resolve returns the named provider, or the current selection when
// name is empty. An unknown key is a hard error.
func (a *App) resolve(name string) (provider.Provider, error) {
	if name == "" {
		return a.store.Current()
	}
	return a.store.Get(name)
}

// Launch runs the assistant binary for the named (or current) provider
// and returns its exit code.
func (a *App) Launch(ctx context.Context, name string, args []string) (int, error) {
	p, err := a.resolve(name)
	if err != nil {
		return 1, err
	}

	var gate launcher.Gate
	if p.MemoryReset {
		if db := a.gate(); db != nil {
			gate = db
		}
	}

	l := launcher.New(a.cfg.Claude.Command, a.cfg.Claude.ConfigDir, a.resolver, a.cleaner, gate, a.logger)
	return l.Launch(ctx, p, args)
}

// List returns every provider record and the current selection key.
func (a *App) List() ([]provider.Provider, string, error) {
	return a.store.List()
}

// Sync links shared resources and merges MCP servers into the named
// provider's config directory, or into every provider's when name is
// empty. With watch set, it re-syncs whenever the canonical tree
// changes, until ctx is cancelled.
func (a *App) Sync(ctx context.Context, name string, force, watch bool) error {
	pass := func(force bool) error {
		providers, _, err := a.store.List()
		if err != nil {
			return err
		}
		for _, p := range providers {
			if name != "" && p.Name != name {
				continue
			}
			a.syncProvider(p, force)
		}
		return nil
	}

	if err := pass(force); err != nil {
		return err
	}
	if !watch {
		return nil
	}
	return symlink.Watch(ctx, a.resolver, a.cfg.Claude.ConfigDir, a.logger, func() {
		// Watch-triggered passes never force: a forced overwrite is an
		// explicit one-shot decision.
		_ = pass(false)
	})
}

func (a *App) syncProvider(p provider.Provider, force bool) {
	canonical := filepath.Clean(a.resolver.Expand(a.cfg.Claude.ConfigDir))
	configDir := filepath.Clean(a.resolver.Expand(p.ConfigDir))

	results := symlink.SyncAll(a.resolver, canonical, configDir, force)
	if results == nil {
		a.logger.Debug("sync: provider uses canonical tree", slog.String("provider", p.Name))
		return
	}
	for _, res := range results {
		if res.Err != nil {
			a.logger.Warn("sync: resource failed",
				slog.String("provider", p.Name),
				slog.String("resource", res.Resource),
				slog.String("error", res.Err.Error()))
			continue
		}
		a.logger.Info("sync: resource",
			slog.String("provider", p.Name),
			slog.String("resource", res.Resource),
			slog.String("status", string(res.Status)))
	}

	sourceFile := filepath.Join(canonical, mcp.DocumentName)
	merged, err := mcp.MergeServers(sourceFile, configDir, force)
	switch {
	case err != nil:
		a.logger.Warn("sync: mcp merge failed",
			slog.String("provider", p.Name),
			slog.String("error", err.Error()))
	case merged:
		a.logger.Info("sync: merged mcp servers", slog.String("provider", p.Name))
	}

	if p.Kind == provider.KindAPIKey {
		if stripped, err := mcp.StripOAuth(configDir); err != nil {
			a.logger.Warn("sync: oauth strip failed",
				slog.String("provider", p.Name),
				slog.String("error", err.Error()))
		} else if stripped {
			a.logger.Info("sync: removed stale oauth credentials", slog.String("provider", p.Name))
		}
	}
}

// Clean runs the size-triggered cache cleanup for the named (or
// current) provider now, including session truncation for providers
// with memory reset enabled.
func (a *App) Clean(name string) error {
	p, err := a.resolve(name)
	if err != nil {
		return err
	}
	a.cleaner.CleanCaches(p.ConfigDir)
	if p.MemoryReset {
		cleaned, saved := a.cleaner.TruncateSessions(p.ConfigDir)
		a.logger.Info("clean: sessions",
			slog.String("provider", p.Name),
			slog.Int("files", cleaned),
			slog.Int64("bytes_saved", saved))
	}
	return nil
}

// Reset wipes the named (or current) provider's high-churn state. The
// 24h gate applies unless force is set; the gate timestamp advances
// either way.
func (a *App) Reset(name string, force bool) error {
	p, err := a.resolve(name)
	if err != nil {
		return err
	}
	db := a.gate()
	if db == nil {
		return fmt.Errorf("reset: state store unavailable")
	}

	now := time.Now()
	if !force {
		due, err := db.ShouldReset(p.Name, a.cleaner.Policy().ResetInterval, now)
		if err != nil {
			return err
		}
		if !due {
			a.logger.Info("reset: not due yet", slog.String("provider", p.Name))
			return nil
		}
	}

	freed := a.cleaner.ResetMemory(p.ConfigDir)
	if err := db.SetLastReset(p.Name, now); err != nil {
		return err
	}
	a.logger.Info("reset: done",
		slog.String("provider", p.Name),
		slog.Int64("bytes_freed", freed))
	return nil
}
