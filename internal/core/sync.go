package core

// sync.go sequences one dataset's pass: load, merge, persist, audit.
//
//	START -> LOADING -> MERGING -> PERSISTING -> AUDITING -> DONE
//	                                  |
//	                                  +-> FAILED (remote write error)
//
// Load failures degrade instead of failing: a remote read error or an empty
// remote dataset falls back to the snapshot, and a missing or corrupt
// snapshot falls back to an empty dataset (the first-ever sync). The
// snapshot is written even when the remote write fails so the next pass has
// a correct baseline. Audit failures are attached to the summary as warnings.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/JonMunkholm/TabSync/internal/logging"
)

// snapshotSaveTimeout bounds a snapshot write once it is detached from the
// caller's context.
const snapshotSaveTimeout = 30 * time.Second

// SyncerOptions configures a Syncer. Zero values select defaults.
type SyncerOptions struct {
	// Snapshots is the local recovery store. Nil disables snapshots.
	Snapshots SnapshotStore

	// AuditDataset names the append-only audit dataset.
	AuditDataset string

	// Defaults fills SyncConfig fields a caller leaves empty.
	Defaults SyncConfig

	// Locker serializes passes per dataset. A private one is created if nil.
	Locker   *DatasetLocker
	LockWait time.Duration

	// ReadTimeout and WriteTimeout bound each remote call. Zero means no
	// limit beyond the caller's context.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Clock clockwork.Clock
}

// Syncer runs sync passes against a TabularStore.
type Syncer struct {
	store     TabularStore
	snapshots SnapshotStore
	audit     *AuditWriter
	locker    *DatasetLocker
	clock     clockwork.Clock
	defaults  SyncConfig

	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewSyncer creates a Syncer writing data and audit entries to store.
func NewSyncer(store TabularStore, opts SyncerOptions) *Syncer {
	defaults := opts.Defaults.withDefaults(SyncConfig{
		KeyColumn:      DefaultKeyColumn,
		MetadataColumn: DefaultMetadataColumn,
	})

	locker := opts.Locker
	if locker == nil {
		locker = NewDatasetLocker(opts.LockWait)
	}

	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Syncer{
		store:        store,
		snapshots:    opts.Snapshots,
		audit:        NewAuditWriter(store, opts.AuditDataset),
		locker:       locker,
		clock:        clock,
		defaults:     defaults,
		readTimeout:  opts.ReadTimeout,
		writeTimeout: opts.WriteTimeout,
	}
}

// Defaults returns the SyncConfig applied to unset fields.
func (s *Syncer) Defaults() SyncConfig {
	return s.defaults
}

// AuditDataset returns the name of the audit dataset.
func (s *Syncer) AuditDataset() string {
	return s.audit.Dataset()
}

// Locker returns the per-dataset locker, e.g. for draining on shutdown.
func (s *Syncer) Locker() *DatasetLocker {
	return s.locker
}

// Sync merges batch into the dataset called name and persists the result.
//
// Sync never returns an error: failures are reported on the summary via
// Err/Error and recovered problems via Warnings.
func (s *Syncer) Sync(ctx context.Context, name string, batch Batch, cfg SyncConfig) (summary SyncSummary) {
	start := s.clock.Now()
	cfg = cfg.withDefaults(s.defaults)

	summary = SyncSummary{Dataset: name, Phase: PhaseStart, KeyColumn: cfg.KeyColumn}
	defer func() {
		summary.Duration = s.clock.Since(start)
	}()

	logger := logging.WithFields(ctx, "dataset", name)
	if t, ok := TriggerFromContext(ctx); ok {
		logger = logger.With(t.logArgs()...)
	}

	if name == s.audit.Dataset() {
		summary.fail(fmt.Errorf("%w: %q", ErrAuditDatasetName, name))
		logger.Error("refusing to sync the audit dataset")
		return summary
	}

	if batch.IsEmpty() {
		logger.Warn("batch is empty, nothing to sync")
		summary.Phase = PhaseDone
		return summary
	}

	release, err := s.locker.Acquire(ctx, name)
	if err != nil {
		summary.fail(fmt.Errorf("lock %q: %w", name, err))
		logger.Error("could not acquire dataset lock", "error", err)
		return summary
	}
	defer release()

	logger.Info("sync started", "batch_rows", batch.Len(), "key_column", cfg.KeyColumn)

	// LOADING
	summary.Phase = PhaseLoading
	existing, source := s.loadExisting(ctx, logger, name, &summary)
	summary.Source = source

	// MERGING
	summary.Phase = PhaseMerging
	now := s.clock.Now()
	res := Merge(existing, batch, cfg, now)
	if res.KeyFallback {
		err := fmt.Errorf("%w: %q, using first column %q", ErrKeyColumnMissing, cfg.KeyColumn, res.EffectiveKey)
		summary.warnf(err)
		logger.Warn("key column not found, using first column",
			"key_column", cfg.KeyColumn,
			"effective_key", res.EffectiveKey,
		)
	}
	summary.New = res.Summary.New
	summary.Updated = res.Summary.Updated
	summary.Skipped = res.Summary.Skipped
	summary.AuditEntries = len(res.Audit)
	summary.KeyColumn = res.EffectiveKey

	merged := res.Dataset
	merged.Name = name
	merged = StampMetadata(merged, cfg.MetadataColumn, now)
	summary.Rows = merged.Len()

	// PERSISTING
	summary.Phase = PhasePersisting
	writeErr := s.writeRemote(ctx, name, merged)
	s.saveSnapshot(ctx, logger, name, merged, now)
	if writeErr != nil {
		summary.fail(writeErr)
		logger.Error("remote write failed, snapshot kept as baseline", "error", writeErr)
		return summary
	}

	// AUDITING
	summary.Phase = PhaseAuditing
	if len(res.Audit) > 0 {
		auditCtx, cancel := withTimeout(ctx, s.writeTimeout)
		err := s.audit.Append(auditCtx, name, res.Audit)
		cancel()
		if err != nil {
			summary.warnf(err)
			logger.Warn("audit append failed", "entries", len(res.Audit), "error", err)
		}
	}

	summary.Phase = PhaseDone
	logger.Info("sync complete",
		"new", summary.New,
		"updated", summary.Updated,
		"skipped", summary.Skipped,
		"rows", summary.Rows,
		"source", summary.Source,
	)
	return summary
}

// loadExisting returns the baseline for a pass: the remote dataset, else the
// snapshot, else an empty dataset.
func (s *Syncer) loadExisting(ctx context.Context, logger *slog.Logger, name string, summary *SyncSummary) (Dataset, BaselineSource) {
	readCtx, cancel := withTimeout(ctx, s.readTimeout)
	ds, err := s.store.ReadDataset(readCtx, name)
	cancel()

	switch {
	case err != nil:
		err = fmt.Errorf("%w: read %q: %w", ErrSourceRead, name, err)
		summary.warnf(err)
		logger.Warn("remote read failed, falling back to snapshot", "error", err)
	case !ds.IsEmpty():
		ds.Name = name
		return ds, SourceRemote
	default:
		logger.Debug("remote dataset is empty, falling back to snapshot")
	}

	if s.snapshots != nil {
		snap, ok, err := s.snapshots.Load(ctx, name)
		switch {
		case err != nil:
			if !errors.Is(err, ErrSnapshotCorrupt) {
				err = fmt.Errorf("%w: %w", ErrSnapshotCorrupt, err)
			}
			summary.warnf(err)
			logger.Warn("snapshot unreadable, treating as absent", "error", err)
		case ok && !snap.Dataset.IsEmpty():
			logger.Info("using snapshot baseline",
				"rows", snap.Dataset.Len(),
				"taken_at", snap.TakenAt.Format(time.RFC3339),
			)
			ds := snap.Dataset
			ds.Name = name
			return ds, SourceSnapshot
		}
	}

	return NewDataset(name, nil, nil), SourceEmpty
}

func (s *Syncer) writeRemote(ctx context.Context, name string, ds Dataset) error {
	writeCtx, cancel := withTimeout(ctx, s.writeTimeout)
	defer cancel()

	if err := s.store.WriteDataset(writeCtx, name, ds); err != nil {
		return fmt.Errorf("%w: write %q: %w", ErrSourceWrite, name, err)
	}
	return nil
}

// saveSnapshot is best effort: failures are logged and swallowed. It runs
// detached from ctx so a pass whose remote write timed out still leaves the
// merged rows behind.
func (s *Syncer) saveSnapshot(ctx context.Context, logger *slog.Logger, name string, ds Dataset, at time.Time) {
	if s.snapshots == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), snapshotSaveTimeout)
	defer cancel()
	if err := s.snapshots.Save(saveCtx, name, ds, at); err != nil {
		logger.Error("snapshot save failed", "error", err)
	}
}

// SyncAll runs one pass per batch, sequentially. A failing dataset never
// aborts the others; every input produces exactly one summary.
func (s *Syncer) SyncAll(ctx context.Context, batches []DatasetBatch) []SyncSummary {
	if logging.RunID(ctx) == "" {
		ctx = logging.WithRunID(ctx, uuid.New().String())
	}

	results := make([]SyncSummary, 0, len(batches))
	for _, b := range batches {
		results = append(results, s.syncOne(ctx, b))
	}
	return results
}

// Run is SyncAll with the results tallied into a RunResult.
func (s *Syncer) Run(ctx context.Context, batches []DatasetBatch) RunResult {
	runID := logging.RunID(ctx)
	if runID == "" {
		runID = uuid.New().String()
		ctx = logging.WithRunID(ctx, runID)
	}

	result := NewRunResult(runID, s.SyncAll(ctx, batches))
	logging.FromContext(ctx).Info("sync run complete",
		"total", result.Total,
		"successful", result.Successful,
		"failed", result.Failed,
	)
	return result
}

// syncOne shields SyncAll from a panicking store adapter.
func (s *Syncer) syncOne(ctx context.Context, b DatasetBatch) (summary SyncSummary) {
	defer func() {
		if r := recover(); r != nil {
			summary = FailedSummary(b.Name, fmt.Errorf("sync %q panicked: %v", b.Name, r))
			logging.WithFields(ctx, "dataset", b.Name).Error("sync panicked", "panic", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return FailedSummary(b.Name, fmt.Errorf("sync %q: %w", b.Name, err))
	}
	return s.Sync(ctx, b.Name, b.Batch, b.Config)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
