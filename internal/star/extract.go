package star

import (
	"fmt"

	"gtdetl/internal/etlerr"
	"gtdetl/internal/transformer/builtin"
	"gtdetl/pkg/records"
)

// DimensionRows is a built dimension: one row per distinct tuple, laid out
// as (key, Columns...).
type DimensionRows struct {
	Spec DimensionSpec
	Rows [][]any
}

// Columns is the insert column order of Rows.
func (d DimensionRows) Columns() []string {
	return append([]string{d.Spec.Key}, d.Spec.Columns...)
}

// Extract builds the dimension described by spec and returns rs augmented
// with spec.Key.
//
// Tuples with any missing (nil) column are not part of the dimension and
// their records get a nil key. Distinct tuples are numbered from 1 in the
// order they first occur in rs. An empty string is a value, not missing.
func Extract(rs *records.RecordSet, spec DimensionSpec) (DimensionRows, *records.RecordSet, error) {
	dim := DimensionRows{Spec: spec}

	idx, missing := rs.Indices(spec.Columns)
	if missing != "" {
		return dim, nil, &etlerr.MissingRequiredColumn{Column: missing, Stage: "extract " + spec.Name}
	}
	if rs.Has(spec.Key) {
		return dim, nil, fmt.Errorf("extract %s: record set already has column %q", spec.Name, spec.Key)
	}

	keys := make(map[string]int64)
	fks := make([]any, rs.Len())
	tuple := make([]any, len(idx))

	for r, row := range rs.Rows {
		complete := true
		for i, j := range idx {
			tuple[i] = row[j]
			if row[j] == nil {
				complete = false
				break
			}
		}
		if !complete {
			continue
		}

		k := builtin.CanonicalKey(tuple)
		id, seen := keys[k]
		if !seen {
			id = int64(len(dim.Rows) + 1)
			keys[k] = id

			out := make([]any, 0, len(tuple)+1)
			out = append(out, id)
			out = append(out, tuple...)
			dim.Rows = append(dim.Rows, out)
		}
		fks[r] = id
	}

	return dim, rs.WithColumn(spec.Key, fks), nil
}
