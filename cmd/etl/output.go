package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"gtdetl/pkg/records"
)

// writeCSV writes rs with a header row. Missing values are empty cells.
func writeCSV(w io.Writer, rs *records.RecordSet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(rs.Columns); err != nil {
		return err
	}

	rec := make([]string, len(rs.Columns))
	for _, row := range rs.Rows {
		for i, v := range row {
			rec[i] = formatCell(v)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
