package core

import (
	"context"
	"time"
)

// TimestampLayout is the text layout used for audit timestamps and the
// metadata column written on every synced row.
const TimestampLayout = "2006-01-02 15:04:05"

// DefaultKeyColumn is the key column used when no dataset override exists.
const DefaultKeyColumn = "Candidate ID"

// DefaultMetadataColumn is the store-managed column stamped on every write.
const DefaultMetadataColumn = "LastSyncedAt"

// DefaultAuditDataset is the name of the append-only audit dataset.
const DefaultAuditDataset = "_audit_log"

// SyncConfig carries the per-dataset settings for one sync pass.
type SyncConfig struct {
	// KeyColumn identifies rows within the dataset.
	KeyColumn string

	// MetadataColumn is managed by the store and never compared.
	// Empty disables stamping.
	MetadataColumn string
}

// withDefaults fills unset fields from the package defaults.
func (c SyncConfig) withDefaults(fallback SyncConfig) SyncConfig {
	if c.KeyColumn == "" {
		c.KeyColumn = fallback.KeyColumn
	}
	if c.MetadataColumn == "" {
		c.MetadataColumn = fallback.MetadataColumn
	}
	return c
}

// TabularStore is the remote system of record for datasets.
//
// WriteDataset has full-replace semantics: the dataset's entire contents are
// overwritten. AppendRows adds rows to the end of a dataset, creating it
// (with columns as its header) on first use.
type TabularStore interface {
	ReadDataset(ctx context.Context, name string) (Dataset, error)
	WriteDataset(ctx context.Context, name string, ds Dataset) error
	AppendRows(ctx context.Context, name string, columns []string, rows []Row) error
}

// Snapshot is a locally persisted copy of a dataset.
type Snapshot struct {
	TakenAt time.Time
	Dataset Dataset
}

// SnapshotStore persists the last known merged dataset per name.
//
// Load returns ok=false when no snapshot has been saved yet; that is not an
// error. A snapshot that cannot be decoded returns an error wrapping
// ErrSnapshotCorrupt.
type SnapshotStore interface {
	Save(ctx context.Context, name string, ds Dataset, takenAt time.Time) error
	Load(ctx context.Context, name string) (Snapshot, bool, error)
}

// SyncPhase indicates the current stage of a sync pass.
type SyncPhase string

const (
	PhaseStart      SyncPhase = "start"
	PhaseLoading    SyncPhase = "loading"
	PhaseMerging    SyncPhase = "merging"
	PhasePersisting SyncPhase = "persisting"
	PhaseAuditing   SyncPhase = "auditing"
	PhaseDone       SyncPhase = "done"
	PhaseFailed     SyncPhase = "failed"
)

// BaselineSource records where the existing dataset of a pass came from.
type BaselineSource string

const (
	SourceRemote   BaselineSource = "remote"
	SourceSnapshot BaselineSource = "snapshot"
	SourceEmpty    BaselineSource = "empty"
)

// SyncSummary is the outcome of one dataset's sync pass.
type SyncSummary struct {
	Dataset      string         `json:"dataset"`
	New          int            `json:"new"`
	Updated      int            `json:"updated"`
	Skipped      int            `json:"skipped"`
	AuditEntries int            `json:"auditEntries"`
	Rows         int            `json:"rows"`
	Phase        SyncPhase      `json:"phase"`
	Source       BaselineSource `json:"source,omitempty"`
	KeyColumn    string         `json:"keyColumn,omitempty"`
	Duration     time.Duration  `json:"durationNs"`
	Error        string         `json:"error,omitempty"`
	Warnings     []string       `json:"warnings,omitempty"`

	err  error
	warn []error
}

// Err returns the error that failed the pass, or nil.
func (s SyncSummary) Err() error {
	return s.err
}

// WarningErrs returns the recovered errors raised during the pass.
func (s SyncSummary) WarningErrs() []error {
	return s.warn
}

// Failed reports whether the pass ended in the failed phase.
func (s SyncSummary) Failed() bool {
	return s.err != nil
}

func (s *SyncSummary) fail(err error) {
	s.err = err
	s.Error = err.Error()
	s.Phase = PhaseFailed
}

func (s *SyncSummary) warnf(err error) {
	s.warn = append(s.warn, err)
	s.Warnings = append(s.Warnings, err.Error())
}

// FailedSummary reports a dataset that could not be synced at all, e.g.
// because its export could not be read.
func FailedSummary(name string, err error) SyncSummary {
	s := SyncSummary{Dataset: name}
	s.fail(err)
	return s
}

// DatasetBatch pairs a dataset name with the batch extracted for it.
type DatasetBatch struct {
	Name   string
	Batch  Batch
	Config SyncConfig
}

// RunResult aggregates the summaries of a multi-dataset run. OK is set
// only when every dataset succeeded.
type RunResult struct {
	RunID      string        `json:"runId"`
	OK         bool          `json:"ok"`
	Results    []SyncSummary `json:"results"`
	Total      int           `json:"total"`
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
}

// NewRunResult tallies summaries into a RunResult.
func NewRunResult(runID string, results []SyncSummary) RunResult {
	r := RunResult{
		RunID:   runID,
		Results: results,
		Total:   len(results),
	}
	for _, s := range results {
		if s.Failed() || s.Error != "" {
			r.Failed++
		} else {
			r.Successful++
		}
	}
	r.OK = r.Failed == 0
	return r
}
