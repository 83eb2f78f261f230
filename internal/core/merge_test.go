package core

import (
	"fmt"
	"reflect"
	"testing"
	"time"
)

var mergeNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func statusBatch(pairs ...string) Batch {
	records := make([][]string, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		records = append(records, []string{pairs[i], pairs[i+1]})
	}
	return NewBatch([]string{"ID", "Status"}, records)
}

func idConfig() SyncConfig {
	return SyncConfig{KeyColumn: "ID", MetadataColumn: DefaultMetadataColumn}
}

func assertCounts(t *testing.T, got SyncSummary, wantNew, wantUpdated, wantSkipped int) {
	t.Helper()
	if got.New != wantNew || got.Updated != wantUpdated || got.Skipped != wantSkipped {
		t.Errorf("counts = {new:%d updated:%d skipped:%d}, want {new:%d updated:%d skipped:%d}",
			got.New, got.Updated, got.Skipped, wantNew, wantUpdated, wantSkipped)
	}
}

func TestMerge_FirstSync(t *testing.T) {
	existing := NewDataset("Draft", nil, nil)
	batch := statusBatch("A", "Draft", "B", "Draft", "C", "Draft")

	res := Merge(existing, batch, idConfig(), mergeNow)

	assertCounts(t, res.Summary, 3, 0, 0)
	if res.Dataset.Len() != 3 {
		t.Errorf("merged rows = %d, want 3", res.Dataset.Len())
	}
	if len(res.Audit) != 0 {
		t.Errorf("new rows produced %d audit entries, want 0", len(res.Audit))
	}
	if got := res.Dataset.Keys("ID"); !reflect.DeepEqual(got, []string{"A", "B", "C"}) {
		t.Errorf("keys = %v, want [A B C]", got)
	}
}

func TestMerge_RerunSkipsEverything(t *testing.T) {
	batch := statusBatch("A", "Draft", "B", "Draft", "C", "Draft")
	first := Merge(NewDataset("Draft", nil, nil), batch, idConfig(), mergeNow)

	second := Merge(first.Dataset, batch, idConfig(), mergeNow)

	assertCounts(t, second.Summary, 0, 0, 3)
	if len(second.Audit) != 0 {
		t.Errorf("audit entries = %d, want 0", len(second.Audit))
	}
	if !reflect.DeepEqual(second.Dataset.Records(), first.Dataset.Records()) {
		t.Errorf("rerun changed the dataset:\n got %v\nwant %v", second.Dataset.Records(), first.Dataset.Records())
	}
}

func TestMerge_UpdateEmitsAudit(t *testing.T) {
	existing := NewDataset("Draft", []string{"ID", "Status"}, []Row{
		NewRow([]string{"ID", "Status"}, []string{"A", "Draft"}),
	})
	batch := statusBatch("A", "Submitted")

	res := Merge(existing, batch, idConfig(), mergeNow)

	assertCounts(t, res.Summary, 0, 1, 0)
	if len(res.Audit) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(res.Audit))
	}

	want := AuditEntry{
		Timestamp: mergeNow,
		Dataset:   "Draft",
		Key:       "A",
		Action:    ActionUpdated,
		Column:    "Status",
		OldValue:  "Draft",
		NewValue:  "Submitted",
	}
	if res.Audit[0] != want {
		t.Errorf("audit = %+v, want %+v", res.Audit[0], want)
	}

	row, ok := res.Dataset.Find("ID", "A")
	if !ok || row.Get("Status") != "Submitted" {
		t.Errorf("row A status = %q, want Submitted", row.Get("Status"))
	}

	// existing is not modified
	if got := existing.Rows[0].Get("Status"); got != "Draft" {
		t.Errorf("existing mutated: status = %q", got)
	}
}

func TestMerge_RetainsRowsMissingFromBatch(t *testing.T) {
	existing := Merge(NewDataset("Draft", nil, nil),
		statusBatch("A", "Draft", "B", "Draft", "C", "Draft"), idConfig(), mergeNow).Dataset

	res := Merge(existing, statusBatch("D", "New"), idConfig(), mergeNow)

	assertCounts(t, res.Summary, 1, 0, 0)
	if got := res.Dataset.Keys("ID"); !reflect.DeepEqual(got, []string{"A", "B", "C", "D"}) {
		t.Errorf("keys = %v, want [A B C D]", got)
	}
}

func TestMerge_EmptyBatchIsNoop(t *testing.T) {
	existing := NewDataset("Draft", []string{"ID", "Status"}, []Row{
		NewRow([]string{"ID", "Status"}, []string{"A", "Draft"}),
	})

	res := Merge(existing, Batch{}, idConfig(), mergeNow)

	assertCounts(t, res.Summary, 0, 0, 0)
	if len(res.Audit) != 0 {
		t.Errorf("audit entries = %d, want 0", len(res.Audit))
	}
	if !reflect.DeepEqual(res.Dataset, existing) {
		t.Errorf("dataset changed on empty batch")
	}
}

func TestMerge_KeyFallbackToFirstColumn(t *testing.T) {
	batch := NewBatch([]string{"Ref", "Status"}, [][]string{{"R1", "Draft"}, {"R2", "Draft"}})

	res := Merge(NewDataset("Draft", nil, nil), batch, SyncConfig{KeyColumn: "Candidate ID"}, mergeNow)

	if !res.KeyFallback {
		t.Error("KeyFallback = false, want true")
	}
	if res.EffectiveKey != "Ref" {
		t.Errorf("EffectiveKey = %q, want Ref", res.EffectiveKey)
	}
	assertCounts(t, res.Summary, 2, 0, 0)
}

func TestMerge_KeylessExistingAppendsEverything(t *testing.T) {
	existing := NewDataset("Draft", []string{"Other"}, []Row{
		NewRow([]string{"Other"}, []string{"x"}),
	})

	res := Merge(existing, statusBatch("A", "Draft"), idConfig(), mergeNow)

	assertCounts(t, res.Summary, 1, 0, 0)
	if res.Dataset.Len() != 2 {
		t.Errorf("rows = %d, want 2", res.Dataset.Len())
	}
}

func TestMerge_DuplicateKeysLastWins(t *testing.T) {
	batch := statusBatch("A", "Draft", "B", "Draft", "A", "Submitted")

	res := Merge(NewDataset("Draft", nil, nil), batch, idConfig(), mergeNow)

	assertCounts(t, res.Summary, 2, 0, 0)
	row, _ := res.Dataset.Find("ID", "A")
	if got := row.Get("Status"); got != "Submitted" {
		t.Errorf("A status = %q, want Submitted", got)
	}
	if got := res.Dataset.Keys("ID"); !reflect.DeepEqual(got, []string{"B", "A"}) {
		t.Errorf("keys = %v, want [B A]", got)
	}
}

func TestMerge_KeyWhitespaceIsNormalized(t *testing.T) {
	existing := NewDataset("Draft", []string{"ID", "Status"}, []Row{
		NewRow([]string{"ID", "Status"}, []string{" A ", "Draft"}),
	})
	batch := statusBatch("A  ", "Draft", "  A", "Draft")

	res := Merge(existing, batch, idConfig(), mergeNow)

	assertCounts(t, res.Summary, 0, 0, 1)
	if got := res.Dataset.Keys("ID"); !reflect.DeepEqual(got, []string{"A"}) {
		t.Errorf("keys = %v, want [A]", got)
	}
	if got := res.Dataset.Rows[0].Get("ID"); got != "A" {
		t.Errorf("stored key = %q, want normalized A", got)
	}
}

func TestMerge_ComparisonSemantics(t *testing.T) {
	tests := []struct {
		name        string
		old, new    string
		wantUpdated int
	}{
		{"equal", "5", "5", 0},
		{"surrounding whitespace ignored", " 5 ", "5", 0},
		{"no numeric coercion", "5", "5.0", 1},
		{"case sensitive", "draft", "Draft", 1},
		{"empty to value", "", "x", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			existing := NewDataset("D", []string{"ID", "V"}, []Row{
				NewRow([]string{"ID", "V"}, []string{"A", tt.old}),
			})
			batch := NewBatch([]string{"ID", "V"}, [][]string{{"A", tt.new}})

			res := Merge(existing, batch, idConfig(), mergeNow)
			if res.Summary.Updated != tt.wantUpdated {
				t.Errorf("updated = %d, want %d", res.Summary.Updated, tt.wantUpdated)
			}
		})
	}
}

func TestMerge_MissingColumnsCompareAsEmpty(t *testing.T) {
	existing := NewDataset("D", []string{"ID", "Status"}, []Row{
		NewRow([]string{"ID", "Status"}, []string{"A", "Draft"}),
	})
	batch := NewBatch([]string{"ID", "Status", "Owner"}, [][]string{{"A", "Draft", ""}, {"B", "Draft"}})

	res := Merge(existing, batch, idConfig(), mergeNow)

	assertCounts(t, res.Summary, 1, 0, 1)
	if !reflect.DeepEqual(res.Dataset.Columns, []string{"ID", "Status", "Owner"}) {
		t.Errorf("columns = %v", res.Dataset.Columns)
	}
}

func TestMerge_MetadataColumnIgnored(t *testing.T) {
	cols := []string{DefaultMetadataColumn, "ID", "Status"}
	existing := NewDataset("D", cols, []Row{
		NewRow(cols, []string{"2024-01-01 00:00:00", "A", "Draft"}),
	})
	batch := NewBatch(cols, [][]string{{"2025-06-01 12:00:00", "A", "Draft"}})

	res := Merge(existing, batch, idConfig(), mergeNow)

	assertCounts(t, res.Summary, 0, 0, 1)
	if len(res.Audit) != 0 {
		t.Errorf("audit = %v, want none", res.Audit)
	}
}

func TestMerge_AuditCompleteness(t *testing.T) {
	cols := []string{"ID", "Status", "Owner", "Score"}
	existing := NewDataset("D", cols, []Row{
		NewRow(cols, []string{"A", "Draft", "ann", "1"}),
		NewRow(cols, []string{"B", "Draft", "bob", "2"}),
		NewRow(cols, []string{"C", "Draft", "cat", "3"}),
	})
	batch := NewBatch(cols, [][]string{
		{"A", "Submitted", "ann", "10"}, // 2 changes
		{"B", "Draft", "bob", "2"},      // unchanged
		{"C", "Closed", "dan", "4"},     // 3 changes
		{"E", "New", "eve", "5"},        // new
	})

	res := Merge(existing, batch, idConfig(), mergeNow)

	assertCounts(t, res.Summary, 1, 2, 1)
	if len(res.Audit) != 5 {
		t.Fatalf("audit entries = %d, want 5", len(res.Audit))
	}
	if res.Summary.AuditEntries != 5 {
		t.Errorf("Summary.AuditEntries = %d, want 5", res.Summary.AuditEntries)
	}

	var got []string
	for _, e := range res.Audit {
		got = append(got, e.Key+"."+e.Column)
	}
	want := []string{"A.Status", "A.Score", "C.Status", "C.Owner", "C.Score"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("audit order = %v, want %v", got, want)
	}
}

func TestMerge_Properties(t *testing.T) {
	cols := []string{"ID", "Status"}
	var existingRows []Row
	for i := 0; i < 20; i++ {
		existingRows = append(existingRows, NewRow(cols, []string{fmt.Sprintf("K%02d", i), "Draft"}))
	}
	existing := NewDataset("D", cols, existingRows)

	var records [][]string
	for i := 10; i < 30; i++ {
		status := "Draft"
		if i%3 == 0 {
			status = "Submitted"
		}
		records = append(records, []string{fmt.Sprintf(" K%02d", i), status})
	}
	records = append(records, []string{"K12", "Closed"})
	batch := NewBatch(cols, records)

	first := Merge(existing, batch, idConfig(), mergeNow)

	t.Run("union cardinality", func(t *testing.T) {
		if got := first.Dataset.Len(); got != 30 {
			t.Errorf("rows = %d, want 30", got)
		}
	})

	t.Run("key uniqueness", func(t *testing.T) {
		seen := make(map[string]bool)
		for _, k := range first.Dataset.Keys("ID") {
			if seen[k] {
				t.Errorf("duplicate key %q", k)
			}
			seen[k] = true
		}
	})

	t.Run("counts partition deduped batch", func(t *testing.T) {
		s := first.Summary
		if total := s.New + s.Updated + s.Skipped; total != 20 {
			t.Errorf("new+updated+skipped = %d, want 20", total)
		}
	})

	t.Run("idempotence", func(t *testing.T) {
		second := Merge(first.Dataset, batch, idConfig(), mergeNow)
		assertCounts(t, second.Summary, 0, 0, 20)
		if len(second.Audit) != 0 {
			t.Errorf("audit entries = %d, want 0", len(second.Audit))
		}
		if !reflect.DeepEqual(second.Dataset.Records(), first.Dataset.Records()) {
			t.Error("second merge changed the dataset")
		}
	})
}

func TestDedupBatch(t *testing.T) {
	batch := statusBatch("A", "1", " B", "2", "A ", "3", "C", "4", "B", "5")

	rows := DedupBatch(batch, "ID")

	var got []string
	for _, r := range rows {
		got = append(got, r.Get("ID")+"="+r.Get("Status"))
	}
	want := []string{"A=3", "C=4", "B=5"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DedupBatch = %v, want %v", got, want)
	}
	if batch.Rows[1].Get("ID") != " B" {
		t.Error("DedupBatch modified its input")
	}
}

func TestStampMetadata(t *testing.T) {
	ds := NewDataset("D", []string{"ID"}, []Row{
		NewRow([]string{"ID"}, []string{"A"}),
		NewRow([]string{"ID"}, []string{"B"}),
	})

	ds = StampMetadata(ds, DefaultMetadataColumn, mergeNow)

	if !reflect.DeepEqual(ds.Columns, []string{DefaultMetadataColumn, "ID"}) {
		t.Errorf("columns = %v", ds.Columns)
	}
	for _, r := range ds.Rows {
		if got := r.Get(DefaultMetadataColumn); got != "2025-03-14 09:30:00" {
			t.Errorf("stamp = %q", got)
		}
	}

	// Already present columns are not duplicated
	ds = StampMetadata(ds, DefaultMetadataColumn, mergeNow.Add(time.Hour))
	if len(ds.Columns) != 2 {
		t.Errorf("columns = %v, want 2 entries", ds.Columns)
	}
	if got := ds.Rows[0].Get(DefaultMetadataColumn); got != "2025-03-14 10:30:00" {
		t.Errorf("restamp = %q", got)
	}

	if out := StampMetadata(ds, "", mergeNow); !reflect.DeepEqual(out.Columns, ds.Columns) {
		t.Error("empty column should be a no-op")
	}
}
