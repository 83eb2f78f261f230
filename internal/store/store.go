// Package store opens the configured remote tabular store.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/JonMunkholm/TabSync/internal/config"
	"github.com/JonMunkholm/TabSync/internal/core"
	"github.com/JonMunkholm/TabSync/internal/store/memory"
	"github.com/JonMunkholm/TabSync/internal/store/postgres"
	"github.com/JonMunkholm/TabSync/internal/store/sheets"
)

// Store is a TabularStore that can also be probed, listed and closed.
type Store interface {
	core.TabularStore
	Ping(ctx context.Context) error
	Datasets(ctx context.Context) ([]string, error)
	Close()
}

var (
	_ Store = (*memory.Store)(nil)
	_ Store = (*postgres.Store)(nil)
	_ Store = (*sheets.Store)(nil)
)

// Open connects to the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case config.DriverMemory, "":
		return memory.New(), nil

	case config.DriverPostgres:
		s, err := postgres.Connect(ctx, cfg.DatabaseURL, postgres.PoolConfig{
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
			MaxConnIdleTime: cfg.MaxConnIdleTime,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, nil

	case config.DriverSheets:
		s, err := sheets.New(ctx, cfg.SheetID, sheets.Credentials{
			JSON: cfg.CredentialsJSON,
			Path: cfg.CredentialsPath,
		})
		if err != nil {
			return nil, fmt.Errorf("open sheets store: %w", err)
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
