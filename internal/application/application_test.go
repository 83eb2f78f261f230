package application

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/TabSync/internal/config"
	"github.com/JonMunkholm/TabSync/internal/core"
)

func loadConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFrom(config.MapLookup(env))
	require.NoError(t, err)
	return cfg
}

func TestNew_MemoryStore(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := loadConfig(t, map[string]string{
		"SNAPSHOT_DIR":       "/data/snapshots",
		"SYNC_AUDIT_DATASET": "changes",
	})

	app, err := NewWithFs(context.Background(), cfg, fs)
	require.NoError(t, err)
	defer app.Close()

	require.NotNil(t, app.Snapshots)
	assert.Equal(t, "/data/snapshots", app.Snapshots.Dir())
	assert.Equal(t, "changes", app.Syncer.AuditDataset())
	assert.Equal(t, len(core.DashboardTabs), app.Registry.Len())

	ok, err := afero.DirExists(fs, "/data/snapshots")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNew_SnapshotsDisabled(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"SNAPSHOT_DISABLED": "true"})

	app, err := NewWithFs(context.Background(), cfg, afero.NewMemMapFs())
	require.NoError(t, err)
	defer app.Close()
	assert.Nil(t, app.Snapshots)

	cols := []string{"Candidate ID", "Status"}
	b := core.Batch{Columns: cols, Rows: []core.Row{core.NewRow(cols, []string{"A", "Draft"})}}
	summary := app.Syncer.Sync(context.Background(), "Draft", b, core.SyncConfig{})
	require.False(t, summary.Failed(), summary.Error)
	assert.Equal(t, 1, summary.New)
}

func TestNew_DatasetsFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/tabsync/datasets.yaml", []byte(`
datasets:
  - name: Orders
    keyColumn: Order ID
`), 0o644))

	cfg := loadConfig(t, map[string]string{
		"SYNC_DATASETS_FILE": "/etc/tabsync/datasets.yaml",
		"SNAPSHOT_DIR":       "/snap",
	})

	app, err := NewWithFs(context.Background(), cfg, fs)
	require.NoError(t, err)
	defer app.Close()

	def, err := app.Registry.Lookup("Orders")
	require.NoError(t, err)
	assert.Equal(t, "Order ID", def.KeyColumn)
}

func TestNew_BadDatasetsFile(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"SYNC_DATASETS_FILE": "/missing.yaml"})

	_, err := NewWithFs(context.Background(), cfg, afero.NewMemMapFs())
	assert.ErrorContains(t, err, "read datasets file")
}

func TestBatchOptions(t *testing.T) {
	cfg := loadConfig(t, map[string]string{
		"SNAPSHOT_DISABLED":   "true",
		"BATCH_ENCODING":      "windows-1252",
		"BATCH_MAX_FILE_SIZE": "1024",
	})
	app := &App{Config: cfg}

	opts := app.BatchOptions()
	assert.Equal(t, "windows-1252", opts.Encoding)
	assert.Equal(t, int64(1024), opts.MaxSize)
}
