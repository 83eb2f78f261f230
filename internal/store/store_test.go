package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/TabSync/internal/config"
	"github.com/JonMunkholm/TabSync/internal/store/memory"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		s, err := Open(ctx, config.StoreConfig{Driver: config.DriverMemory})
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &memory.Store{}, s)
		assert.NoError(t, s.Ping(ctx))
	})

	t.Run("empty driver is memory", func(t *testing.T) {
		s, err := Open(ctx, config.StoreConfig{})
		require.NoError(t, err)
		assert.IsType(t, &memory.Store{}, s)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := Open(ctx, config.StoreConfig{Driver: "mongo"})
		assert.ErrorContains(t, err, `unknown store driver "mongo"`)
	})

	t.Run("sheets without credentials", func(t *testing.T) {
		_, err := Open(ctx, config.StoreConfig{Driver: config.DriverSheets, SheetID: "abc"})
		assert.ErrorContains(t, err, "no credentials configured")
	})

	t.Run("postgres bad url", func(t *testing.T) {
		_, err := Open(ctx, config.StoreConfig{Driver: config.DriverPostgres, DatabaseURL: "://nope"})
		assert.ErrorContains(t, err, "parse database URL")
	})
}
