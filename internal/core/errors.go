package core

import "errors"

// Error kinds raised by a sync pass. All I/O failures are converted into one
// of these at the Syncer and can be matched with errors.Is.
var (
	// ErrEmptyBatch marks a pass whose batch had no rows. Not a failure.
	ErrEmptyBatch = errors.New("empty batch")

	// ErrKeyColumnMissing is raised when the configured key column is not in
	// the batch header and the first column was used instead.
	ErrKeyColumnMissing = errors.New("key column not found in batch")

	// ErrSourceRead is raised when the remote dataset could not be read.
	// The pass falls back to the snapshot.
	ErrSourceRead = errors.New("source read failed")

	// ErrSnapshotCorrupt is raised when a snapshot exists but cannot be decoded.
	ErrSnapshotCorrupt = errors.New("snapshot corrupt")

	// ErrSourceWrite is raised when the merged dataset could not be written
	// to the remote store. The pass is failed.
	ErrSourceWrite = errors.New("source write failed")

	// ErrAuditWrite is raised when audit entries could not be appended.
	ErrAuditWrite = errors.New("audit write failed")

	// ErrDatasetBusy is returned when another pass holds the dataset lock
	// past the configured wait.
	ErrDatasetBusy = errors.New("dataset sync already in progress")

	// ErrUnknownDataset is returned for names absent from the registry.
	ErrUnknownDataset = errors.New("unknown dataset")

	// ErrAuditDatasetName is returned when a data dataset shares its name
	// with the audit dataset. Syncing it would overwrite the audit log.
	ErrAuditDatasetName = errors.New("dataset name is reserved for the audit log")
)
