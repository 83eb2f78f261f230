// Package snapshot provides the file-backed local recovery copy of each
// dataset.
//
// One JSON file per dataset holds the last merged rows:
//
//	{"timestamp": "2025-01-02T15:04:05Z", "columns": ["ID", ...], "rows": [{"ID": "A", ...}]}
//
// Files written before columns were recorded, and bare JSON arrays of row
// objects, are still accepted. Writes go to a temp file that is renamed into
// place so a crash never leaves a half-written snapshot.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"

	"github.com/JonMunkholm/TabSync/internal/core"
)

const fileExt = ".json"

// timestampLayouts are tried in order when reading a snapshot timestamp.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	core.TimestampLayout,
}

// Store reads and writes snapshots under one directory.
type Store struct {
	fs  afero.Fs
	dir string

	mu sync.Mutex
}

// document is the on-disk layout.
type document struct {
	Timestamp string     `json:"timestamp"`
	Columns   []string   `json:"columns,omitempty"`
	Rows      []core.Row `json:"rows"`
}

// New creates a store rooted at dir on fs, creating dir if needed.
func New(fs afero.Fs, dir string) (*Store, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir %s: %w", dir, err)
	}
	return &Store{fs: fs, dir: dir}, nil
}

// NewOS creates a store on the OS filesystem. A leading ~ in dir is
// expanded to the user's home directory.
func NewOS(dir string) (*Store, error) {
	expanded, err := ExpandDir(dir)
	if err != nil {
		return nil, err
	}
	return New(afero.NewOsFs(), expanded)
}

// ExpandDir resolves a leading ~ in dir to the user's home directory.
func ExpandDir(dir string) (string, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return "", fmt.Errorf("expand snapshot dir %s: %w", dir, err)
	}
	return expanded, nil
}

// Dir returns the directory snapshots are written to.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file a dataset's snapshot is stored in.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, url.PathEscape(name)+fileExt)
}

// Save writes ds as the snapshot for name.
func (s *Store) Save(ctx context.Context, name string, ds core.Dataset, takenAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := document{
		Timestamp: takenAt.UTC().Format(time.RFC3339),
		Columns:   ds.Columns,
		Rows:      ds.Rows,
	}
	if doc.Rows == nil {
		doc.Rows = []core.Row{}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := afero.TempFile(s.fs, s.dir, url.PathEscape(name)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot %q: %w", name, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return fmt.Errorf("write snapshot %q: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("close snapshot %q: %w", name, err)
	}
	if err := s.fs.Rename(tmpName, s.Path(name)); err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("rename snapshot %q: %w", name, err)
	}
	return nil
}

// Load returns the snapshot for name. ok is false when none has been saved.
// Undecodable files return an error wrapping core.ErrSnapshotCorrupt.
func (s *Store) Load(ctx context.Context, name string) (core.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return core.Snapshot{}, false, err
	}

	s.mu.Lock()
	data, err := afero.ReadFile(s.fs, s.Path(name))
	s.mu.Unlock()

	if errors.Is(err, os.ErrNotExist) {
		return core.Snapshot{}, false, nil
	}
	if err != nil {
		return core.Snapshot{}, false, fmt.Errorf("%w: read %q: %w", core.ErrSnapshotCorrupt, name, err)
	}

	doc, err := decode(data)
	if err != nil {
		return core.Snapshot{}, false, fmt.Errorf("%w: decode %q: %w", core.ErrSnapshotCorrupt, name, err)
	}

	return core.Snapshot{
		TakenAt: parseTimestamp(doc.Timestamp),
		Dataset: core.NewDataset(name, doc.Columns, doc.Rows),
	}, true, nil
}

// Delete removes the snapshot for name. Deleting a missing snapshot is not
// an error.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.fs.Remove(s.Path(name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete snapshot %q: %w", name, err)
	}
	return nil
}

// List returns the names of all stored snapshots, sorted.
func (s *Store) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		name, err := url.PathUnescape(strings.TrimSuffix(e.Name(), fileExt))
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ReadFile decodes the snapshot document at path, e.g. a copy taken out of
// the snapshot directory. The dataset is named after the file.
func ReadFile(fs afero.Fs, path string) (core.Snapshot, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}

	doc, err := decode(data)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("%w: decode %s: %w", core.ErrSnapshotCorrupt, path, err)
	}

	base := strings.TrimSuffix(filepath.Base(path), fileExt)
	name, err := url.PathUnescape(base)
	if err != nil {
		name = base
	}

	return core.Snapshot{
		TakenAt: parseTimestamp(doc.Timestamp),
		Dataset: core.NewDataset(name, doc.Columns, doc.Rows),
	}, nil
}

// decode accepts the document layout or a bare array of row objects.
func decode(data []byte) (document, error) {
	var doc document

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &doc.Rows); err != nil {
			return document{}, err
		}
		return doc, nil
	}

	var raw struct {
		Timestamp string          `json:"timestamp"`
		Columns   []string        `json:"columns"`
		Rows      json.RawMessage `json:"rows"`
	}
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return document{}, err
	}
	if len(raw.Rows) == 0 {
		return document{}, errors.New("missing rows")
	}
	if err := json.Unmarshal(raw.Rows, &doc.Rows); err != nil {
		return document{}, fmt.Errorf("rows: %w", err)
	}
	doc.Timestamp = raw.Timestamp
	doc.Columns = raw.Columns
	return doc, nil
}

func parseTimestamp(v string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
