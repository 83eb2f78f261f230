// Package core provides the incremental synchronization engine for tabular
// datasets.
//
// This package is the heart of the service, containing all domain logic
// independent of any transport or storage backend. It can be used by the HTTP
// server, the CLI, or tests without modification.
//
// # Architecture
//
//   - Merge: a pure function reconciling a freshly extracted [Batch] with
//     the existing [Dataset], classifying rows as new, updated or skipped and
//     emitting one [AuditEntry] per changed column.
//   - Syncer: sequences load, merge, persist and audit for one dataset
//     ([Syncer.Sync]) or many ([Syncer.SyncAll]).
//   - AuditWriter: appends audit entries to a dedicated append-only dataset.
//   - DatasetLocker: serializes passes per dataset name.
//   - Registry: the datasets the service knows, with per-dataset key columns.
//
// Storage is abstracted behind [TabularStore] (the remote system of record)
// and [SnapshotStore] (the local recovery copy).
//
// # Sync Pass
//
//	syncer := core.NewSyncer(store, core.SyncerOptions{Snapshots: snaps})
//	summary := syncer.Sync(ctx, "Draft", batch, core.SyncConfig{KeyColumn: "Candidate ID"})
//	if summary.Failed() {
//	    // remote write failed; the snapshot still holds the merged rows
//	}
//
// # Error Handling
//
// I/O errors are converted to the sentinels in errors.go. A remote read
// error degrades to the snapshot, a corrupt snapshot to an empty baseline.
// Only a remote write error fails a pass. Use [MapError] to turn any of them
// into a user-facing message with a support code.
package core
