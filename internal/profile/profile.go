// Package profile computes a data-quality report over an incident record
// set: missing values per column, bounded distinct counts, duplicate
// identifiers and records, and the distinct values of text columns.
//
// Profiling never fails; odd values are counted, not rejected.
package profile

import (
	"fmt"
	"sort"
	"strings"

	"gtdetl/internal/transformer/builtin"
	"gtdetl/pkg/records"
)

// Defaults for Options zero values.
const (
	DefaultDistinctCap      = 10000
	DefaultKeyColumn        = "eventid"
	DefaultCategoricalLimit = 20
	DefaultCategoricalShow  = 15
	DefaultHighMissingPct   = 50.0
)

// Options tune the report. Zero values take the defaults above.
type Options struct {
	// DistinctCap bounds the distinct set tracked per column.
	DistinctCap int
	// KeyColumn is checked for duplicate values.
	KeyColumn string
	// CategoricalLimit is the distinct count above which a text column's
	// value listing is truncated to CategoricalShow entries.
	CategoricalLimit int
	CategoricalShow  int
	// HighMissingPct marks columns whose missing share is at least this.
	HighMissingPct float64
}

func (o Options) withDefaults() Options {
	if o.DistinctCap <= 0 {
		o.DistinctCap = DefaultDistinctCap
	}
	if o.KeyColumn == "" {
		o.KeyColumn = DefaultKeyColumn
	}
	if o.CategoricalLimit <= 0 {
		o.CategoricalLimit = DefaultCategoricalLimit
	}
	if o.CategoricalShow <= 0 {
		o.CategoricalShow = DefaultCategoricalShow
	}
	if o.HighMissingPct <= 0 {
		o.HighMissingPct = DefaultHighMissingPct
	}
	return o
}

// ColumnStats is the quality summary of one column.
type ColumnStats struct {
	Column     string  `json:"column" yaml:"column"`
	Kind       string  `json:"kind" yaml:"kind"`
	Nulls      int     `json:"nulls" yaml:"nulls"`
	Empty      int     `json:"empty" yaml:"empty"`
	Missing    int     `json:"missing" yaml:"missing"`
	MissingPct float64 `json:"missing_pct" yaml:"missing_pct"`
	Distinct   int     `json:"distinct" yaml:"distinct"`
	Capped     bool    `json:"capped,omitempty" yaml:"capped,omitempty"`
}

// Categorical lists the distinct non-empty values of a text column in
// first-seen order.
type Categorical struct {
	Column    string   `json:"column" yaml:"column"`
	Distinct  int      `json:"distinct" yaml:"distinct"`
	Values    []string `json:"values" yaml:"values"`
	Truncated bool     `json:"truncated,omitempty" yaml:"truncated,omitempty"`
}

// Report is the full profile.
type Report struct {
	Rows int `json:"rows" yaml:"rows"`
	// Columns is sorted by Missing descending, then name.
	Columns          []ColumnStats `json:"columns" yaml:"columns"`
	HighMissing      []string      `json:"high_missing,omitempty" yaml:"high_missing,omitempty"`
	KeyColumn        string        `json:"key_column" yaml:"key_column"`
	KeyPresent       bool          `json:"key_present" yaml:"key_present"`
	DuplicateKeys    int           `json:"duplicate_keys" yaml:"duplicate_keys"`
	DuplicateRecords int           `json:"duplicate_records" yaml:"duplicate_records"`
	Categorical      []Categorical `json:"categorical,omitempty" yaml:"categorical,omitempty"`
}

// MissingColumns returns the columns with at least one missing value.
func (r Report) MissingColumns() []string {
	var out []string
	for _, c := range r.Columns {
		if c.Missing > 0 {
			out = append(out, c.Column)
		}
	}
	return out
}

type columnState struct {
	stats    ColumnStats
	distinct map[string]struct{}

	strings int
	others  int

	catSeen  map[string]struct{}
	catOrder []string
}

// Build profiles rs.
func Build(rs *records.RecordSet, opt Options) Report {
	opt = opt.withDefaults()

	rep := Report{Rows: rs.Len(), KeyColumn: opt.KeyColumn}
	states := make([]*columnState, len(rs.Columns))
	for i, c := range rs.Columns {
		states[i] = &columnState{
			stats:    ColumnStats{Column: c},
			distinct: map[string]struct{}{},
			catSeen:  map[string]struct{}{},
		}
	}

	keyIdx, keyOK := rs.Index(opt.KeyColumn)
	rep.KeyPresent = keyOK
	keys := map[string]struct{}{}
	fingerprints := make(map[string]struct{}, rs.Len())

	for _, row := range rs.Rows {
		for i, v := range row {
			states[i].observe(v, opt)
		}

		if keyOK {
			k := builtin.CanonicalKey([]any{row[keyIdx]})
			if _, dup := keys[k]; dup {
				rep.DuplicateKeys++
			} else {
				keys[k] = struct{}{}
			}
		}

		fp := builtin.Fingerprint(row)
		if _, dup := fingerprints[fp]; dup {
			rep.DuplicateRecords++
		} else {
			fingerprints[fp] = struct{}{}
		}
	}

	for _, st := range states {
		s := st.stats
		s.Missing = s.Nulls + s.Empty
		if rep.Rows > 0 {
			s.MissingPct = float64(s.Missing) / float64(rep.Rows) * 100
		}
		if s.Capped {
			s.Distinct = opt.DistinctCap
		} else {
			s.Distinct = len(st.distinct)
		}
		s.Kind = st.kind()
		rep.Columns = append(rep.Columns, s)

		if s.Kind == "string" {
			rep.Categorical = append(rep.Categorical, st.categorical(opt))
		}
		if s.Missing > 0 && s.MissingPct >= opt.HighMissingPct {
			rep.HighMissing = append(rep.HighMissing, s.Column)
		}
	}

	sort.SliceStable(rep.Columns, func(i, j int) bool {
		if rep.Columns[i].Missing == rep.Columns[j].Missing {
			return rep.Columns[i].Column < rep.Columns[j].Column
		}
		return rep.Columns[i].Missing > rep.Columns[j].Missing
	})
	return rep
}

func (st *columnState) observe(v any, opt Options) {
	if v == nil {
		st.stats.Nulls++
		return
	}
	s, isString := v.(string)
	if isString {
		st.strings++
		if s == "" {
			st.stats.Empty++
			return
		}
	} else {
		st.others++
	}

	if !st.stats.Capped {
		st.distinct[builtin.CanonicalKey([]any{v})] = struct{}{}
		if len(st.distinct) >= opt.DistinctCap {
			st.stats.Capped = true
			st.distinct = nil
		}
	}

	if isString && st.catSeen != nil {
		if _, ok := st.catSeen[s]; !ok {
			st.catSeen[s] = struct{}{}
			st.catOrder = append(st.catOrder, s)
			if len(st.catOrder) >= opt.DistinctCap {
				st.catSeen = nil
			}
		}
	}
}

func (st *columnState) kind() string {
	switch {
	case st.strings > 0 && st.others == 0:
		return "string"
	case st.strings == 0 && st.others > 0:
		return "number"
	case st.strings > 0:
		return "mixed"
	default:
		return "empty"
	}
}

func (st *columnState) categorical(opt Options) Categorical {
	c := Categorical{Column: st.stats.Column, Distinct: len(st.catOrder), Values: st.catOrder}
	if c.Distinct > opt.CategoricalLimit {
		c.Values = append([]string(nil), st.catOrder[:opt.CategoricalShow]...)
		c.Truncated = true
	}
	if c.Values == nil {
		c.Values = []string{}
	}
	return c
}

// Summary is a one-line description for logs.
func (r Report) Summary() string {
	return fmt.Sprintf("rows=%d columns_with_missing=%d duplicate_%s=%d duplicate_records=%d",
		r.Rows, len(r.MissingColumns()), r.KeyColumn, r.DuplicateKeys, r.DuplicateRecords)
}

func quoteAll(vals []string) string {
	q := make([]string, len(vals))
	for i, v := range vals {
		q[i] = fmt.Sprintf("%q", v)
	}
	return strings.Join(q, ", ")
}
