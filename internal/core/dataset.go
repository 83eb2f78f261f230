package core

import (
	"encoding/json"
	"sort"
	"strings"
)

// Row is an ordered mapping from column name to text value.
// Reading a column the row does not have yields "".
type Row struct {
	columns []string
	values  map[string]string
}

// NewRow builds a row by pairing header columns with record values.
// Missing trailing values read as ""; extra values are dropped.
func NewRow(columns []string, values []string) Row {
	r := Row{
		columns: make([]string, 0, len(columns)),
		values:  make(map[string]string, len(columns)),
	}
	for i, col := range columns {
		v := ""
		if i < len(values) {
			v = values[i]
		}
		r.Set(col, v)
	}
	return r
}

// RowFromMap builds a row from a map. Columns are ordered alphabetically
// since maps carry no order.
func RowFromMap(m map[string]string) Row {
	cols := make([]string, 0, len(m))
	for k := range m {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	r := Row{columns: cols, values: make(map[string]string, len(m))}
	for k, v := range m {
		r.values[k] = v
	}
	return r
}

// Get returns the value for col, or "" when absent.
func (r Row) Get(col string) string {
	return r.values[col]
}

// Has reports whether the row carries col.
func (r Row) Has(col string) bool {
	_, ok := r.values[col]
	return ok
}

// Set assigns a value, appending col to the row's order if it is new.
func (r *Row) Set(col, value string) {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, ok := r.values[col]; !ok {
		r.columns = append(r.columns, col)
	}
	r.values[col] = value
}

// Columns returns the row's columns in insertion order.
func (r Row) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// Len returns the number of columns on the row.
func (r Row) Len() int {
	return len(r.columns)
}

// Values projects the row onto columns, "" for any the row lacks.
func (r Row) Values(columns []string) []string {
	out := make([]string, len(columns))
	for i, col := range columns {
		out[i] = r.values[col]
	}
	return out
}

// Map returns a copy of the row's values.
func (r Row) Map() map[string]string {
	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Clone returns a deep copy.
func (r Row) Clone() Row {
	c := Row{
		columns: make([]string, len(r.columns)),
		values:  make(map[string]string, len(r.values)),
	}
	copy(c.columns, r.columns)
	for k, v := range r.values {
		c.values[k] = v
	}
	return c
}

// IsBlank reports whether every value is empty after trimming.
func (r Row) IsBlank() bool {
	for _, v := range r.values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the row as a flat JSON object.
func (r Row) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.values)
}

// MarshalYAML encodes the row as a flat mapping.
func (r Row) MarshalYAML() (any, error) {
	return r.values, nil
}

// UnmarshalJSON decodes a flat JSON object. Non-string scalars are kept in
// their JSON text form and null decodes as "".
func (r *Row) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m := make(map[string]string, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			m[k] = s
			continue
		}
		if string(v) == "null" {
			m[k] = ""
			continue
		}
		m[k] = string(v)
	}
	*r = RowFromMap(m)
	return nil
}

// Dataset is a named collection of rows sharing an ordered header.
// Rows are unique on their normalized key once produced by Merge.
type Dataset struct {
	Name    string
	Columns []string
	Rows    []Row
}

// NewDataset creates a dataset. If columns is empty it is derived from rows.
func NewDataset(name string, columns []string, rows []Row) Dataset {
	ds := Dataset{Name: name, Columns: append([]string(nil), columns...), Rows: rows}
	if len(ds.Columns) == 0 {
		ds.Columns = columnsOf(rows)
	}
	return ds
}

// Len returns the number of rows.
func (d Dataset) Len() int {
	return len(d.Rows)
}

// IsEmpty reports whether the dataset has no rows.
func (d Dataset) IsEmpty() bool {
	return len(d.Rows) == 0
}

// HasColumn reports whether col is part of the header.
func (d Dataset) HasColumn(col string) bool {
	return indexOf(d.Columns, col) >= 0
}

// Clone returns a deep copy.
func (d Dataset) Clone() Dataset {
	c := Dataset{
		Name:    d.Name,
		Columns: append([]string(nil), d.Columns...),
		Rows:    make([]Row, len(d.Rows)),
	}
	for i, r := range d.Rows {
		c.Rows[i] = r.Clone()
	}
	return c
}

// Keys returns the normalized key of every row in order.
func (d Dataset) Keys(keyColumn string) []string {
	keys := make([]string, len(d.Rows))
	for i, r := range d.Rows {
		keys[i] = NormalizeKey(r.Get(keyColumn))
	}
	return keys
}

// Find returns the first row whose normalized key equals key.
func (d Dataset) Find(keyColumn, key string) (Row, bool) {
	key = NormalizeKey(key)
	for _, r := range d.Rows {
		if NormalizeKey(r.Get(keyColumn)) == key {
			return r, true
		}
	}
	return Row{}, false
}

// Records returns the header followed by every row projected onto it.
func (d Dataset) Records() [][]string {
	out := make([][]string, 0, len(d.Rows)+1)
	out = append(out, append([]string(nil), d.Columns...))
	for _, r := range d.Rows {
		out = append(out, r.Values(d.Columns))
	}
	return out
}

// Batch is a freshly extracted dataset-shaped input. It may contain
// duplicate keys and may be empty.
type Batch struct {
	Columns []string
	Rows    []Row
}

// NewBatch creates a batch from a header and raw records.
func NewBatch(columns []string, records [][]string) Batch {
	b := Batch{Columns: append([]string(nil), columns...), Rows: make([]Row, 0, len(records))}
	for _, rec := range records {
		b.Rows = append(b.Rows, NewRow(columns, rec))
	}
	return b
}

// Len returns the number of rows.
func (b Batch) Len() int {
	return len(b.Rows)
}

// IsEmpty reports whether the batch has no rows.
func (b Batch) IsEmpty() bool {
	return len(b.Rows) == 0
}

// columns returns the batch header, deriving it from rows when unset.
func (b Batch) columns() []string {
	if len(b.Columns) > 0 {
		return b.Columns
	}
	return columnsOf(b.Rows)
}

// NormalizeKey returns the canonical form of a key value.
func NormalizeKey(v string) string {
	return strings.TrimSpace(v)
}

// columnsOf returns the union of row columns in first-seen order.
func columnsOf(rows []Row) []string {
	var cols []string
	seen := make(map[string]bool)
	for _, r := range rows {
		for _, c := range r.columns {
			if !seen[c] {
				seen[c] = true
				cols = append(cols, c)
			}
		}
	}
	return cols
}

func indexOf(cols []string, col string) int {
	for i, c := range cols {
		if c == col {
			return i
		}
	}
	return -1
}
