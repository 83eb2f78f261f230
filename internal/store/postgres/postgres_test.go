package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/TabSync/internal/core"
)

// These tests need a disposable database:
//
//	TABSYNC_TEST_DATABASE_URL=postgres://localhost/tabsync_test go test ./internal/store/postgres
func testStore(t *testing.T) *Store {
	t.Helper()

	url := os.Getenv("TABSYNC_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TABSYNC_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := Connect(ctx, url, PoolConfig{MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func uniqueName(t *testing.T) string {
	return t.Name() + "-" + uuid.NewString()
}

func TestReadDataset_Missing(t *testing.T) {
	s := testStore(t)

	ds, err := s.ReadDataset(context.Background(), uniqueName(t))
	require.NoError(t, err)
	assert.True(t, ds.IsEmpty())
}

func TestWriteDataset_ReplacesContents(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	name := uniqueName(t)

	cols := []string{"LastSyncedAt", "Candidate ID", "Status"}
	first := core.NewDataset(name, cols, []core.Row{
		core.NewRow(cols, []string{"t", "A", "Draft"}),
		core.NewRow(cols, []string{"t", "B", "Draft"}),
		core.NewRow(cols, []string{"t", "C", "Draft"}),
	})
	require.NoError(t, s.WriteDataset(ctx, name, first))

	second := core.NewDataset(name, cols, []core.Row{
		core.NewRow(cols, []string{"t", "A", "Submitted"}),
	})
	require.NoError(t, s.WriteDataset(ctx, name, second))

	got, err := s.ReadDataset(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, cols, got.Columns)
	assert.Equal(t, second.Records(), got.Records())
}

func TestAppendRows_PreservesOrder(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	name := uniqueName(t)

	batch := func(keys ...string) []core.Row {
		var rows []core.Row
		for _, k := range keys {
			rows = append(rows, core.NewRow(core.AuditColumns, []string{"ts", "Draft", k, "UPDATED", "Status", "a", "b"}))
		}
		return rows
	}

	require.NoError(t, s.AppendRows(ctx, name, core.AuditColumns, batch("1", "2")))
	require.NoError(t, s.AppendRows(ctx, name, core.AuditColumns, batch("3")))

	got, err := s.ReadDataset(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, core.AuditColumns, got.Columns)
	assert.Equal(t, []string{"1", "2", "3"}, got.Keys("Key"))
}
