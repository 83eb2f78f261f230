// Package memory provides an in-process TabularStore.
//
// It is used by tests and by the "memory" store driver for local runs.
// Failures can be injected per operation to exercise degraded sync paths.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JonMunkholm/TabSync/internal/core"
)

// Store keeps datasets in memory. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	datasets map[string]core.Dataset

	readErr   error
	writeErr  error
	appendErr error

	reads, writes, appends int
}

// New creates an empty store.
func New() *Store {
	return &Store{datasets: make(map[string]core.Dataset)}
}

// Seed stores ds under name without counting as a write.
func (s *Store) Seed(name string, ds core.Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds = ds.Clone()
	ds.Name = name
	s.datasets[name] = ds
}

// FailReads makes every ReadDataset return err. Nil clears it.
func (s *Store) FailReads(err error) {
	s.mu.Lock()
	s.readErr = err
	s.mu.Unlock()
}

// FailWrites makes every WriteDataset return err. Nil clears it.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	s.writeErr = err
	s.mu.Unlock()
}

// FailAppends makes every AppendRows return err. Nil clears it.
func (s *Store) FailAppends(err error) {
	s.mu.Lock()
	s.appendErr = err
	s.mu.Unlock()
}

// ReadDataset returns a copy of the named dataset, or an empty one.
func (s *Store) ReadDataset(ctx context.Context, name string) (core.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return core.Dataset{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.readErr != nil {
		return core.Dataset{}, s.readErr
	}
	ds, ok := s.datasets[name]
	if !ok {
		return core.NewDataset(name, nil, nil), nil
	}
	return ds.Clone(), nil
}

// WriteDataset replaces the named dataset with a copy of ds.
func (s *Store) WriteDataset(ctx context.Context, name string, ds core.Dataset) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.writeErr != nil {
		return s.writeErr
	}
	ds = ds.Clone()
	ds.Name = name
	s.datasets[name] = ds
	return nil
}

// AppendRows appends copies of rows, creating the dataset with columns as
// its header on first use.
func (s *Store) AppendRows(ctx context.Context, name string, columns []string, rows []core.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.appends++
	if s.appendErr != nil {
		return s.appendErr
	}
	ds, ok := s.datasets[name]
	if !ok {
		ds = core.NewDataset(name, columns, nil)
	}
	for _, r := range rows {
		ds.Rows = append(ds.Rows, r.Clone())
	}
	s.datasets[name] = ds
	return nil
}

// Dataset returns a copy of the named dataset for inspection.
func (s *Store) Dataset(name string) (core.Dataset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds, ok := s.datasets[name]
	if !ok {
		return core.Dataset{}, false
	}
	return ds.Clone(), true
}

// Names returns the names of all stored datasets.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.datasets))
	for n := range s.datasets {
		names = append(names, n)
	}
	return names
}

// Counts returns how many reads, writes and appends were attempted.
func (s *Store) Counts() (reads, writes, appends int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads, s.writes, s.appends
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Datasets lists stored dataset names in order.
func (s *Store) Datasets(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	names := s.Names()
	sort.Strings(names)
	return names, nil
}

// Close is a no-op.
func (s *Store) Close() {}
