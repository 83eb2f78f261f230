package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/JonMunkholm/TabSync/internal/core"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadFrom(MapLookup(nil))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Store.Driver != DriverMemory {
		t.Errorf("Store.Driver = %q, want %q", cfg.Store.Driver, DriverMemory)
	}
	if cfg.Sync.KeyColumn != "Candidate ID" {
		t.Errorf("Sync.KeyColumn = %q, want %q", cfg.Sync.KeyColumn, "Candidate ID")
	}
	if cfg.Sync.MetadataColumn != "LastSyncedAt" {
		t.Errorf("Sync.MetadataColumn = %q, want %q", cfg.Sync.MetadataColumn, "LastSyncedAt")
	}
	if cfg.Sync.AuditDataset != "_audit_log" {
		t.Errorf("Sync.AuditDataset = %q, want %q", cfg.Sync.AuditDataset, "_audit_log")
	}
	if cfg.Sync.LockWait != 30*time.Second {
		t.Errorf("Sync.LockWait = %v, want %v", cfg.Sync.LockWait, 30*time.Second)
	}
	if cfg.Snapshot.Dir != "~/.tabsync/snapshots" {
		t.Errorf("Snapshot.Dir = %q", cfg.Snapshot.Dir)
	}
	if cfg.Batch.MaxFileSize != 104857600 {
		t.Errorf("Batch.MaxFileSize = %d, want %d", cfg.Batch.MaxFileSize, 104857600)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SYNC_KEY_COLUMN", "Employee ID")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9090)
	}
	if cfg.Sync.KeyColumn != "Employee ID" {
		t.Errorf("Sync.KeyColumn = %q, want %q", cfg.Sync.KeyColumn, "Employee ID")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestLoad_AltEnvVar(t *testing.T) {
	cfg, err := LoadFrom(MapLookup(map[string]string{
		"STORE_DRIVER": "postgres",
		"DB_URL":       "postgres://localhost/alttest",
	}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.Store.DatabaseURL != "postgres://localhost/alttest" {
		t.Errorf("Store.DatabaseURL = %q, want %q", cfg.Store.DatabaseURL, "postgres://localhost/alttest")
	}
}

func TestLoad_DriverRequirements(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"postgres without url", map[string]string{"STORE_DRIVER": "postgres"}, "DATABASE_URL is required"},
		{"sheets without id", map[string]string{"STORE_DRIVER": "sheets", "GOOGLE_CREDENTIALS_PATH": "/k.json"}, "GOOGLE_SHEET_ID is required"},
		{"sheets without credentials", map[string]string{"STORE_DRIVER": "sheets", "GOOGLE_SHEET_ID": "abc"}, "GOOGLE_CREDENTIALS_JSON or GOOGLE_CREDENTIALS_PATH"},
		{"unknown driver", map[string]string{"STORE_DRIVER": "excel"}, "STORE_DRIVER"},
		{"sheets complete", map[string]string{"STORE_DRIVER": "sheets", "GOOGLE_SHEET_ID": "abc", "GOOGLE_CREDENTIALS_JSON": "{}"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(MapLookup(tt.env))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("LoadFrom() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadFrom() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_Duration(t *testing.T) {
	cfg, err := LoadFrom(MapLookup(map[string]string{
		"SERVER_READ_TIMEOUT": "45s",
		"SYNC_LOCK_WAIT":      "1m30s",
	}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.Server.ReadTimeout != 45*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want %v", cfg.Server.ReadTimeout, 45*time.Second)
	}
	if cfg.Sync.LockWait != 90*time.Second {
		t.Errorf("Sync.LockWait = %v, want %v", cfg.Sync.LockWait, 90*time.Second)
	}
}

func TestLoad_InvalidValue(t *testing.T) {
	_, err := LoadFrom(MapLookup(map[string]string{"SYNC_LOCK_WAIT": "soon"}))
	if err == nil || !strings.Contains(err.Error(), "SYNC_LOCK_WAIT") {
		t.Errorf("LoadFrom() error = %v, want SYNC_LOCK_WAIT parse error", err)
	}
}

func TestLoad_CommaSeparatedSlice(t *testing.T) {
	cfg, err := LoadFrom(MapLookup(map[string]string{
		"TRUSTED_PROXIES": "10.0.0.0/8, 172.16.0.0/12 , 192.168.0.0/16",
		"SYNC_DATASETS":   "Draft, Submitted,,BGV closed",
	}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	expected := []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}
	if len(cfg.Security.TrustedProxies) != len(expected) {
		t.Fatalf("TrustedProxies length = %d, want %d", len(cfg.Security.TrustedProxies), len(expected))
	}
	for i, v := range expected {
		if cfg.Security.TrustedProxies[i] != v {
			t.Errorf("TrustedProxies[%d] = %q, want %q", i, cfg.Security.TrustedProxies[i], v)
		}
	}

	if got := strings.Join(cfg.Sync.Datasets, "|"); got != "Draft|Submitted|BGV closed" {
		t.Errorf("Sync.Datasets = %q", got)
	}
}

func TestOverlay(t *testing.T) {
	base := MapLookup(map[string]string{"STORE_DRIVER": "sheets", "LOG_LEVEL": "warn"})
	lookup := Overlay(map[string]string{"STORE_DRIVER": "memory", "LOG_LEVEL": ""}, base)

	if v, _ := lookup("STORE_DRIVER"); v != "memory" {
		t.Errorf("STORE_DRIVER = %q, want overlay value", v)
	}
	if v, _ := lookup("LOG_LEVEL"); v != "warn" {
		t.Errorf("LOG_LEVEL = %q, empty overlay should fall through", v)
	}
}

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080, ShutdownTimeout: time.Second},
		Store:    StoreConfig{Driver: DriverMemory},
		Sync:     SyncConfig{KeyColumn: "ID", AuditDataset: "_audit_log", LockWait: time.Second},
		Snapshot: SnapshotConfig{Dir: "/tmp/snaps"},
		Batch:    BatchConfig{MaxFileSize: 1, MaxUploadSize: 1},
		Rate:     RateLimitConfig{Enabled: true, RequestsPerMinute: 100, SyncLimit: 10},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"invalid port", func(c *Config) { c.Server.Port = 99999 }, "SERVER_PORT"},
		{"blank key column", func(c *Config) { c.Sync.KeyColumn = "  " }, "SYNC_KEY_COLUMN"},
		{"api keys required", func(c *Config) { c.Security.RequireAPIKey = true }, "API_KEYS is empty"},
		{"snapshot dir required", func(c *Config) { c.Snapshot.Dir = "" }, "SNAPSHOT_DIR"},
		{"snapshot disabled", func(c *Config) { c.Snapshot.Dir = ""; c.Snapshot.Disabled = true }, ""},
		{"audit dataset in list", func(c *Config) {
			c.Sync.Datasets = []string{"Draft", "changes"}
			c.Sync.AuditDataset = "changes"
		}, "SYNC_AUDIT_DATASET"},
		{"audit dataset is a default tab", func(c *Config) { c.Sync.AuditDataset = "Draft" }, "SYNC_AUDIT_DATASET"},
		{"audit dataset beside a datasets file", func(c *Config) {
			c.Sync.AuditDataset = "Draft"
			c.Sync.DatasetsFile = "/etc/tabsync/datasets.yaml"
		}, ""},
		{"upload size", func(c *Config) { c.Batch.MaxUploadSize = 0 }, "BATCH_MAX_UPLOAD_SIZE"},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }, "LOG_LEVEL"},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
		{"pool bounds", func(c *Config) {
			c.Store = StoreConfig{Driver: DriverPostgres, DatabaseURL: "postgres://x", MaxConns: 2, MinConns: 5}
		}, "DB_MAX_CONNS (2) must be >= DB_MIN_CONNS (5)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error")
	}
	for _, want := range []string{"SERVER_PORT", "LOG_LEVEL"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestString_MasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Store.DatabaseURL = "postgres://user:hunter2@db/prod"
	cfg.Store.CredentialsJSON = `{"private_key": "secret"}`
	cfg.Security.APIKeys = []string{"k-123"}

	s := cfg.String()
	for _, secret := range []string{"hunter2", "private_key", "k-123"} {
		if strings.Contains(s, secret) {
			t.Errorf("String() leaks %q: %s", secret, s)
		}
	}
	if !strings.Contains(s, "[MASKED]") {
		t.Errorf("String() = %s, want masked values", s)
	}
}

func TestServerAddr(t *testing.T) {
	c := ServerConfig{Host: "127.0.0.1", Port: 8080}
	if got := c.Addr(); got != "127.0.0.1:8080" {
		t.Errorf("Addr() = %q", got)
	}
	c.Host = ""
	if got := c.Addr(); got != ":8080" {
		t.Errorf("Addr() = %q", got)
	}
}

func TestSyncRegistry(t *testing.T) {
	fs := afero.NewMemMapFs()
	yamlData := `datasets:
  - name: Draft
    keyColumn: Candidate ID
    group: dashboard
  - name: Payroll
    keyColumn: Employee
    metadataColumn: Synced
    group: finance
`
	if err := afero.WriteFile(fs, "/etc/tabsync/datasets.yaml", []byte(yamlData), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("from file", func(t *testing.T) {
		reg, err := SyncConfig{DatasetsFile: "/etc/tabsync/datasets.yaml", Datasets: []string{"ignored"}}.Registry(fs)
		if err != nil {
			t.Fatalf("Registry() error = %v", err)
		}
		if reg.Len() != 2 {
			t.Fatalf("Len() = %d, want 2", reg.Len())
		}
		def, _ := reg.Get("Payroll")
		if def.KeyColumn != "Employee" || def.MetadataColumn != "Synced" || def.Group != "finance" {
			t.Errorf("Payroll = %+v", def)
		}
	})

	t.Run("from list", func(t *testing.T) {
		reg, err := SyncConfig{Datasets: []string{"A", "B"}}.Registry(fs)
		if err != nil {
			t.Fatalf("Registry() error = %v", err)
		}
		if reg.Len() != 2 {
			t.Errorf("Len() = %d, want 2", reg.Len())
		}
	})

	t.Run("default tabs", func(t *testing.T) {
		reg, err := SyncConfig{}.Registry(fs)
		if err != nil {
			t.Fatalf("Registry() error = %v", err)
		}
		if reg.Len() != 7 {
			t.Errorf("Len() = %d, want 7", reg.Len())
		}
	})

	t.Run("file names the audit dataset", func(t *testing.T) {
		_, err := SyncConfig{DatasetsFile: "/etc/tabsync/datasets.yaml", AuditDataset: "Payroll"}.Registry(fs)
		if !errors.Is(err, core.ErrAuditDatasetName) {
			t.Errorf("Registry() error = %v, want ErrAuditDatasetName", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := (SyncConfig{DatasetsFile: "/nope.yaml"}).Registry(fs); err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestParseDatasets_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown field", "datasets:\n  - name: Draft\n    keycolumn: ID\n"},
		{"no datasets", "datasets: []\n"},
		{"duplicate", "datasets:\n  - name: Draft\n  - name: Draft\n"},
		{"not yaml", "datasets: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseDatasets([]byte(tt.data)); err == nil {
				t.Error("ParseDatasets() expected error")
			}
		})
	}
}
