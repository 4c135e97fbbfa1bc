package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gtdetl/pkg/records"
)

// CoerceStats counts values that could not be converted to their column's
// kind. Such values become missing.
type CoerceStats struct {
	Invalid map[string]int
}

// Total returns the number of invalid values across all columns.
func (s CoerceStats) Total() int {
	n := 0
	for _, v := range s.Invalid {
		n += v
	}
	return n
}

// Present returns the descriptor columns carried by rs, resolving aliases.
func (d Descriptor) Present(rs *records.RecordSet) []string {
	aliases := d.AliasMap()
	seen := map[string]bool{}
	for _, c := range rs.Columns {
		if canon, ok := aliases[c]; ok {
			c = canon
		}
		seen[c] = true
	}
	var out []string
	for _, c := range d.Columns {
		if seen[c.Name] {
			out = append(out, c.Name)
		}
	}
	return out
}

// Coerce returns a new set holding the descriptor columns found in rs (in
// descriptor order, aliases renamed) with every value converted to its kind.
// Columns rs carries that the descriptor does not know are dropped.
//
// Strings are kept verbatim, so "" stays a value. Blank numerics become
// missing.
func (d Descriptor) Coerce(rs *records.RecordSet) (*records.RecordSet, CoerceStats) {
	stats := CoerceStats{Invalid: map[string]int{}}

	aliases := d.AliasMap()
	srcIdx := map[string]int{}
	for i, c := range rs.Columns {
		name := c
		if canon, ok := aliases[c]; ok {
			name = canon
		}
		// Canonical name wins over an alias when both exist.
		if _, dup := srcIdx[name]; dup && name != c {
			continue
		}
		srcIdx[name] = i
	}

	type pick struct {
		src  int
		kind Kind
		name string
	}
	var picks []pick
	var cols []string
	for _, c := range d.Columns {
		i, ok := srcIdx[c.Name]
		if !ok {
			continue
		}
		picks = append(picks, pick{src: i, kind: c.Kind, name: c.Name})
		cols = append(cols, c.Name)
	}

	rows := make([][]any, len(rs.Rows))
	for r, src := range rs.Rows {
		row := make([]any, len(picks))
		for j, p := range picks {
			v, ok := CoerceValue(p.kind, src[p.src])
			if !ok {
				stats.Invalid[p.name]++
			}
			row[j] = v
		}
		rows[r] = row
	}
	return records.New(cols, rows), stats
}

// CoerceValue converts v to kind. ok is false when v was present but could
// not be converted; the returned value is then nil.
func CoerceValue(kind Kind, v any) (any, bool) {
	if v == nil {
		return nil, true
	}
	switch kind {
	case KindInt:
		return toInt(v)
	case KindFloat:
		return toFloat(v)
	default:
		return toString(v), true
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(v)
	}
}

func toInt(v any) (any, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case float32:
		return floatToInt(float64(t))
	case float64:
		return floatToInt(t)
	case bool:
		if t {
			return int64(1), true
		}
		return int64(0), true
	case json.Number:
		return parseInt(t.String())
	case string:
		return parseInt(t)
	case []byte:
		return parseInt(string(t))
	default:
		return parseInt(fmt.Sprint(v))
	}
}

func floatToInt(f float64) (any, bool) {
	if math.IsNaN(f) {
		return nil, true
	}
	if math.IsInf(f, 0) {
		return nil, false
	}
	return int64(math.Trunc(f)), true
}

func parseInt(s string) (any, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return nil, true
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return floatToInt(f)
	}
	return nil, false
}

func toFloat(v any) (any, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) {
			return nil, true
		}
		return t, true
	case float32:
		return toFloat(float64(t))
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case json.Number:
		return parseFloat(t.String())
	case string:
		return parseFloat(t)
	case []byte:
		return parseFloat(string(t))
	default:
		return parseFloat(fmt.Sprint(v))
	}
}

func parseFloat(s string) (any, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return nil, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) {
		return nil, false
	}
	if math.IsNaN(f) {
		return nil, true
	}
	return f, true
}
