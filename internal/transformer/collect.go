package transformer

import (
	"context"

	"gtdetl/pkg/records"
)

// Collect drains in into a RecordSet aligned to columns. Row values are
// copied before the Row is freed.
//
// A column is kept when at least one row marks it present or carries a
// non-nil value for it, or when no rows arrived at all. Columns the source
// carried only as nulls are kept; columns it never carried are dropped.
func Collect(ctx context.Context, columns []string, in <-chan *Row) (*records.RecordSet, error) {
	seen := make([]bool, len(columns))
	var rows [][]any

	for r := range in {
		if ctx.Err() != nil {
			r.Drop()
			continue
		}
		row := make([]any, len(columns))
		n := copy(row, r.V)
		for i := 0; i < n; i++ {
			if row[i] != nil || (i < len(r.Present) && r.Present[i]) {
				seen[i] = true
			}
		}
		rows = append(rows, row)
		r.Free()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return records.New(columns, nil), nil
	}

	keep := make([]int, 0, len(columns))
	kept := make([]string, 0, len(columns))
	for i, c := range columns {
		if seen[i] {
			keep = append(keep, i)
			kept = append(kept, c)
		}
	}
	if len(keep) == len(columns) {
		return records.New(columns, rows), nil
	}
	for r, row := range rows {
		out := make([]any, len(keep))
		for j, i := range keep {
			out[j] = row[i]
		}
		rows[r] = out
	}
	return records.New(kept, rows), nil
}
