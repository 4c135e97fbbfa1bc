// Package records holds the in-memory tabular shape passed between pipeline
// stages. A nil cell means the value is missing; an empty string is a value.
package records

import "fmt"

// Record is a single row keyed by column name. It is the convenient shape for
// building inputs by hand and for document sources.
type Record map[string]any

// RecordSet is a positional table: every row has len(Columns) cells.
type RecordSet struct {
	Columns []string
	Rows    [][]any

	index map[string]int
}

// New builds a RecordSet. Rows are used as-is (not copied).
func New(columns []string, rows [][]any) *RecordSet {
	rs := &RecordSet{
		Columns: append([]string(nil), columns...),
		Rows:    rows,
	}
	rs.reindex()
	return rs
}

// FromRecords converts map records into a RecordSet aligned to columns.
// Keys absent from a record become nil.
func FromRecords(columns []string, recs []Record) *RecordSet {
	rows := make([][]any, 0, len(recs))
	for _, r := range recs {
		row := make([]any, len(columns))
		for i, c := range columns {
			row[i] = r[c]
		}
		rows = append(rows, row)
	}
	return New(columns, rows)
}

func (rs *RecordSet) reindex() {
	rs.index = make(map[string]int, len(rs.Columns))
	for i, c := range rs.Columns {
		if _, dup := rs.index[c]; !dup {
			rs.index[c] = i
		}
	}
}

// Len returns the number of rows.
func (rs *RecordSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Rows)
}

// Index returns the position of col.
func (rs *RecordSet) Index(col string) (int, bool) {
	if rs.index == nil {
		rs.reindex()
	}
	i, ok := rs.index[col]
	return i, ok
}

// Has reports whether col is part of the set.
func (rs *RecordSet) Has(col string) bool {
	_, ok := rs.Index(col)
	return ok
}

// Indices resolves cols to positions. The first unknown column is returned
// as missing.
func (rs *RecordSet) Indices(cols []string) (idx []int, missing string) {
	idx = make([]int, len(cols))
	for i, c := range cols {
		j, ok := rs.Index(c)
		if !ok {
			return nil, c
		}
		idx[i] = j
	}
	return idx, ""
}

// Value returns the cell at (row, col), or nil when col is unknown.
func (rs *RecordSet) Value(row int, col string) any {
	i, ok := rs.Index(col)
	if !ok {
		return nil
	}
	return rs.Rows[row][i]
}

// Record returns row i as a map.
func (rs *RecordSet) Record(i int) Record {
	out := make(Record, len(rs.Columns))
	for j, c := range rs.Columns {
		out[c] = rs.Rows[i][j]
	}
	return out
}

// Project returns a new set holding only cols, in that order.
func (rs *RecordSet) Project(cols []string) (*RecordSet, error) {
	idx, missing := rs.Indices(cols)
	if missing != "" {
		return nil, fmt.Errorf("records: unknown column %q", missing)
	}
	rows := make([][]any, len(rs.Rows))
	for r, src := range rs.Rows {
		row := make([]any, len(idx))
		for i, j := range idx {
			row[i] = src[j]
		}
		rows[r] = row
	}
	return New(cols, rows), nil
}

// WithColumn returns a new set with name appended and values[i] set on row i.
// The receiver is not modified.
func (rs *RecordSet) WithColumn(name string, values []any) *RecordSet {
	cols := make([]string, 0, len(rs.Columns)+1)
	cols = append(cols, rs.Columns...)
	cols = append(cols, name)

	rows := make([][]any, len(rs.Rows))
	for r, src := range rs.Rows {
		row := make([]any, len(src)+1)
		copy(row, src)
		if r < len(values) {
			row[len(src)] = values[r]
		}
		rows[r] = row
	}
	return New(cols, rows)
}

// Filter returns a new set sharing the rows for which keep returns true.
func (rs *RecordSet) Filter(keep func(row []any) bool) *RecordSet {
	rows := make([][]any, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		if keep(row) {
			rows = append(rows, row)
		}
	}
	return New(rs.Columns, rows)
}
