package transformer

import (
	"gtdetl/pkg/records"
)

// Measures filled with 0 by CleanOptions.FillMeasures.
var (
	IntMeasures   = []string{"nkill", "nwound", "success", "iyear", "imonth", "iday"}
	FloatMeasures = []string{"propvalue", "latitude", "longitude"}
)

type CleanOptions struct {
	FillMeasures     bool
	DropUnknownDates bool
}

type CleanStats struct {
	Filled       map[string]int
	DroppedDates int
}

// Clean applies the pre-modeling cleanup to a typed record set and returns a
// new set. Columns the set does not carry are skipped.
//
// FillMeasures replaces missing IntMeasures with int64(0) and missing
// FloatMeasures with 0.0. DropUnknownDates removes records whose imonth or
// iday is 0; records with a missing month or day are kept.
func Clean(rs *records.RecordSet, opt CleanOptions) (*records.RecordSet, CleanStats) {
	stats := CleanStats{Filled: map[string]int{}}

	rows := make([][]any, len(rs.Rows))
	for i, src := range rs.Rows {
		rows[i] = append([]any(nil), src...)
	}
	out := records.New(rs.Columns, rows)

	if opt.FillMeasures {
		fill := func(cols []string, zero any) {
			for _, c := range cols {
				i, ok := out.Index(c)
				if !ok {
					continue
				}
				for _, row := range out.Rows {
					if row[i] == nil {
						row[i] = zero
						stats.Filled[c]++
					}
				}
			}
		}
		fill(IntMeasures, int64(0))
		fill(FloatMeasures, 0.0)
	}

	if opt.DropUnknownDates {
		mi, okM := out.Index("imonth")
		di, okD := out.Index("iday")
		before := out.Len()
		out = out.Filter(func(row []any) bool {
			if okM && isZero(row[mi]) {
				return false
			}
			if okD && isZero(row[di]) {
				return false
			}
			return true
		})
		stats.DroppedDates = before - out.Len()
	}

	return out, stats
}

func isZero(v any) bool {
	switch t := v.(type) {
	case int64:
		return t == 0
	case int:
		return t == 0
	case float64:
		return t == 0
	}
	return false
}
