// Package application wires configuration into a ready Syncer: the store,
// the snapshot directory and the dataset registry. The HTTP server and the
// CLI share it so both run passes identically.
package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/JonMunkholm/TabSync/internal/batch"
	"github.com/JonMunkholm/TabSync/internal/config"
	"github.com/JonMunkholm/TabSync/internal/core"
	"github.com/JonMunkholm/TabSync/internal/snapshot"
	"github.com/JonMunkholm/TabSync/internal/store"
)

// App holds the long-lived collaborators of a TabSync process.
type App struct {
	Config    *config.Config
	Store     store.Store
	Registry  *core.Registry
	Syncer    *core.Syncer
	Fs        afero.Fs

	// Snapshots is nil when SNAPSHOT_DISABLED is set.
	Snapshots *snapshot.Store
}

// New opens the store and builds the Syncer described by cfg. Close
// releases the store.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	return NewWithFs(ctx, cfg, afero.NewOsFs())
}

// NewWithFs is New reading the datasets file and snapshots from fs.
func NewWithFs(ctx context.Context, cfg *config.Config, fs afero.Fs) (*App, error) {
	registry, err := cfg.Sync.Registry(fs)
	if err != nil {
		return nil, err
	}

	var snaps *snapshot.Store
	if !cfg.Snapshot.Disabled {
		dir, err := snapshot.ExpandDir(cfg.Snapshot.Dir)
		if err != nil {
			return nil, err
		}
		if snaps, err = snapshot.New(fs, dir); err != nil {
			return nil, fmt.Errorf("open snapshot dir: %w", err)
		}
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	opts := core.SyncerOptions{
		AuditDataset: cfg.Sync.AuditDataset,
		Defaults:     cfg.Sync.Defaults(),
		LockWait:     cfg.Sync.LockWait,
		ReadTimeout:  cfg.Sync.ReadTimeout,
		WriteTimeout: cfg.Sync.WriteTimeout,
	}
	if snaps != nil {
		opts.Snapshots = snaps
	}

	slog.Info("application ready",
		"store", cfg.Store.Driver,
		"datasets", registry.Len(),
		"snapshots", !cfg.Snapshot.Disabled,
		"audit_dataset", cfg.Sync.AuditDataset,
	)

	return &App{
		Config:    cfg,
		Store:     st,
		Registry:  registry,
		Syncer:    core.NewSyncer(st, opts),
		Fs:        fs,
		Snapshots: snaps,
	}, nil
}

// BatchOptions returns the export reading options from config.
func (a *App) BatchOptions() batch.Options {
	return batch.Options{
		Encoding: a.Config.Batch.Encoding,
		MaxSize:  a.Config.Batch.MaxFileSize,
	}
}

// Close releases the store.
func (a *App) Close() {
	a.Store.Close()
}
