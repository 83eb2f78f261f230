package core

// locks.go serializes sync passes per dataset name.
//
// The remote store offers no version token, so two passes over the same
// dataset would both read the same baseline and the last writer would
// silently discard the other's updates. DatasetLocker holds one weighted
// semaphore of size 1 per dataset. Passes over different datasets never
// contend.
//
// WaitForDrain blocks until no pass holds a lock, for graceful shutdown.

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultLockWait is how long a pass waits for its dataset before giving up.
const DefaultLockWait = 30 * time.Second

// DatasetLocker grants exclusive access to a dataset for one pass at a time.
type DatasetLocker struct {
	maxWait time.Duration

	mu     sync.Mutex
	sems   map[string]*semaphore.Weighted
	held   map[string]bool
	active int
}

// NewDatasetLocker creates a locker. Acquire waits at most maxWait.
func NewDatasetLocker(maxWait time.Duration) *DatasetLocker {
	if maxWait <= 0 {
		maxWait = DefaultLockWait
	}
	return &DatasetLocker{
		maxWait: maxWait,
		sems:    make(map[string]*semaphore.Weighted),
		held:    make(map[string]bool),
	}
}

func (l *DatasetLocker) sem(name string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sems[name]
	if !ok {
		s = semaphore.NewWeighted(1)
		l.sems[name] = s
	}
	return s
}

// Acquire blocks until the dataset is free, ctx is done, or the wait expires.
// Returns ErrDatasetBusy on expiry. The caller MUST call the returned release
// func exactly once (use defer).
func (l *DatasetLocker) Acquire(ctx context.Context, name string) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	s := l.sem(name)
	if err := s.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrDatasetBusy
	}
	return l.markHeld(name, s), nil
}

// TryAcquire takes the dataset lock without blocking.
func (l *DatasetLocker) TryAcquire(name string) (func(), bool) {
	s := l.sem(name)
	if !s.TryAcquire(1) {
		return nil, false
	}
	return l.markHeld(name, s), true
}

func (l *DatasetLocker) markHeld(name string, s *semaphore.Weighted) func() {
	l.mu.Lock()
	l.active++
	l.held[name] = true
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.active--
			delete(l.held, name)
			l.mu.Unlock()
			s.Release(1)
		})
	}
}

// ActiveCount returns the number of passes currently holding a lock.
func (l *DatasetLocker) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// WaitForDrain blocks until no lock is held or ctx is cancelled.
func (l *DatasetLocker) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// LockerStatus is a point-in-time view of the locker.
type LockerStatus struct {
	Active   int      `json:"active"`
	Datasets []string `json:"datasets"`
}

// Status returns the current locker state for monitoring.
func (l *DatasetLocker) Status() LockerStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	names := make([]string, 0, len(l.held))
	for n := range l.held {
		names = append(names, n)
	}
	sort.Strings(names)
	return LockerStatus{Active: l.active, Datasets: names}
}
