package core

import (
	"context"
	"fmt"
)

// AuditColumns is the header of the audit dataset.
var AuditColumns = []string{"Timestamp", "DatasetName", "Key", "Action", "Column", "OldValue", "NewValue"}

// AuditWriter appends field-level change records to a dedicated audit
// dataset. The audit dataset is a pure append log: no key, no dedup.
type AuditWriter struct {
	store   TabularStore
	dataset string
}

// NewAuditWriter creates a writer that appends to dataset on store.
func NewAuditWriter(store TabularStore, dataset string) *AuditWriter {
	if dataset == "" {
		dataset = DefaultAuditDataset
	}
	return &AuditWriter{store: store, dataset: dataset}
}

// Dataset returns the name of the audit dataset.
func (w *AuditWriter) Dataset() string {
	return w.dataset
}

// Append writes entries in input order. Entries with no dataset name are
// recorded under datasetName. A failure wraps ErrAuditWrite; it never undoes
// anything written before it.
func (w *AuditWriter) Append(ctx context.Context, datasetName string, entries []AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}

	rows := make([]Row, 0, len(entries))
	for _, e := range entries {
		if e.Dataset == "" {
			e.Dataset = datasetName
		}
		rows = append(rows, e.Row())
	}

	if err := w.store.AppendRows(ctx, w.dataset, AuditColumns, rows); err != nil {
		return fmt.Errorf("%w: append %d entries for %q: %w", ErrAuditWrite, len(entries), datasetName, err)
	}
	return nil
}

// Row renders the entry in the audit dataset's column layout.
func (e AuditEntry) Row() Row {
	action := e.Action
	if action == "" {
		action = ActionUpdated
	}
	return NewRow(AuditColumns, []string{
		e.Timestamp.Format(TimestampLayout),
		e.Dataset,
		e.Key,
		action,
		e.Column,
		e.OldValue,
		e.NewValue,
	})
}
