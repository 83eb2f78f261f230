package core

// merge.go implements the pure merge of a batch into an existing dataset.
//
// The merge is a union: rows in the existing dataset that the batch does not
// mention are retained unchanged. Batch rows are classified as
//
//   - new:     key not in the existing dataset; appended, never audited
//   - updated: key exists and at least one compared column differs
//   - skipped: key exists and every compared column is equal
//
// Values are compared as trimmed strings with no type coercion, so "5" and
// "5.0" differ. The metadata column is never compared.

import (
	"strings"
	"time"
)

// ActionUpdated is the only action recorded in the audit log.
const ActionUpdated = "UPDATED"

// AuditEntry is a single field-level change of one updated row.
type AuditEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Dataset   string    `json:"dataset"`
	Key       string    `json:"key"`
	Action    string    `json:"action"`
	Column    string    `json:"column"`
	OldValue  string    `json:"oldValue"`
	NewValue  string    `json:"newValue"`
}

// MergeResult is the output of Merge.
type MergeResult struct {
	Dataset Dataset
	Summary SyncSummary
	Audit   []AuditEntry

	// EffectiveKey is the key column actually used.
	EffectiveKey string

	// KeyFallback is set when the configured key column was missing from
	// the batch and the first batch column was used instead.
	KeyFallback bool
}

// Merge reconciles batch into existing and returns the merged dataset,
// the new/updated/skipped counts, and one audit entry per changed column.
//
// Merge performs no I/O and never fails; now is used only for audit
// timestamps. existing is not modified.
func Merge(existing Dataset, batch Batch, cfg SyncConfig, now time.Time) MergeResult {
	res := MergeResult{
		Dataset:      existing,
		Summary:      SyncSummary{Dataset: existing.Name},
		EffectiveKey: cfg.KeyColumn,
	}

	batchCols := batch.columns()
	if batch.IsEmpty() || len(batchCols) == 0 {
		res.Summary.Rows = existing.Len()
		return res
	}

	key := cfg.KeyColumn
	if indexOf(batchCols, key) < 0 {
		key = batchCols[0]
		res.KeyFallback = true
	}
	res.EffectiveKey = key
	res.Summary.KeyColumn = key

	rows := DedupBatch(Batch{Columns: batchCols, Rows: batch.Rows}, key)

	merged := existing.Clone()
	if len(merged.Columns) == 0 {
		merged.Columns = columnsOf(merged.Rows)
	}

	// Existing rows without the key column cannot be matched; every batch
	// row is then appended as new.
	keyless := !merged.IsEmpty() && !merged.HasColumn(key)
	merged.Columns = unionColumns(merged.Columns, batchCols)

	index := make(map[string]int, len(merged.Rows))
	if !keyless {
		for i := range merged.Rows {
			k := NormalizeKey(merged.Rows[i].Get(key))
			merged.Rows[i].Set(key, k)
			if _, dup := index[k]; !dup {
				index[k] = i
			}
		}
	}

	for _, row := range rows {
		k := row.Get(key)

		pos, found := index[k]
		if !found || keyless {
			merged.Rows = append(merged.Rows, row)
			if !keyless {
				index[k] = len(merged.Rows) - 1
			}
			res.Summary.New++
			continue
		}

		current := &merged.Rows[pos]
		changed := diffRow(*current, row, batchCols, cfg.MetadataColumn)
		if len(changed) == 0 {
			res.Summary.Skipped++
			continue
		}

		for _, col := range changed {
			res.Audit = append(res.Audit, AuditEntry{
				Timestamp: now,
				Dataset:   existing.Name,
				Key:       k,
				Action:    ActionUpdated,
				Column:    col,
				OldValue:  current.Get(col),
				NewValue:  row.Get(col),
			})
		}
		for _, col := range batchCols {
			if col == cfg.MetadataColumn {
				continue
			}
			current.Set(col, row.Get(col))
		}
		res.Summary.Updated++
	}

	res.Dataset = merged
	res.Summary.AuditEntries = len(res.Audit)
	res.Summary.Rows = merged.Len()
	return res
}

// DedupBatch normalizes the key of every batch row and keeps only the last
// occurrence of each key, at that occurrence's position. The returned rows
// are copies; batch is not modified.
func DedupBatch(batch Batch, keyColumn string) []Row {
	last := make(map[string]int, len(batch.Rows))
	keys := make([]string, len(batch.Rows))
	for i, r := range batch.Rows {
		k := NormalizeKey(r.Get(keyColumn))
		keys[i] = k
		last[k] = i
	}

	out := make([]Row, 0, len(last))
	for i, r := range batch.Rows {
		if last[keys[i]] != i {
			continue
		}
		c := r.Clone()
		c.Set(keyColumn, keys[i])
		out = append(out, c)
	}
	return out
}

// diffRow returns the columns whose trimmed values differ between old and
// updated, in column order, ignoring the metadata column.
func diffRow(old, updated Row, columns []string, metadataColumn string) []string {
	var changed []string
	for _, col := range columns {
		if col == metadataColumn {
			continue
		}
		if strings.TrimSpace(old.Get(col)) != strings.TrimSpace(updated.Get(col)) {
			changed = append(changed, col)
		}
	}
	return changed
}

// unionColumns appends to base every column of extra it lacks.
func unionColumns(base, extra []string) []string {
	out := append([]string(nil), base...)
	for _, c := range extra {
		if indexOf(out, c) < 0 {
			out = append(out, c)
		}
	}
	return out
}

// StampMetadata sets column to the formatted time on every row, inserting
// it as the first header column when absent. Rows are modified in place.
// An empty column is a no-op.
func StampMetadata(ds Dataset, column string, at time.Time) Dataset {
	if column == "" || ds.IsEmpty() {
		return ds
	}
	if !ds.HasColumn(column) {
		ds.Columns = append([]string{column}, ds.Columns...)
	}
	stamp := at.Format(TimestampLayout)
	for i := range ds.Rows {
		ds.Rows[i].Set(column, stamp)
	}
	return ds
}
