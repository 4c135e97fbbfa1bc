// Package transformer holds the record-level steps between the source
// parsers and the star model: pooled rows, collection, cleaning and
// weapon explosion.
package transformer

import "sync"

// Row is a pooled positional row handed from a parser to the collector.
//
// Ownership contract:
//   - Exactly one goroutine owns a Row at a time; sending it on a channel
//     transfers ownership.
//   - The final consumer calls Free() once it no longer references r.V.
//   - On cancellation paths use Drop() instead, so a row still visible to a
//     draining stage is never handed back out by the pool.
type Row struct {
	V    []any
	Line int // 1-based record number in the source, if known

	// Present marks the columns the source record carried, null or not.
	Present []bool
}

var rowPool sync.Pool

// GetRow returns a Row of length colCount with every cell nil.
func GetRow(colCount int) *Row {
	if v := rowPool.Get(); v != nil {
		r := v.(*Row)
		if cap(r.V) < colCount {
			r.V = make([]any, colCount)
		}
		r.V = r.V[:colCount]
		for i := range r.V {
			r.V[i] = nil
		}
		if cap(r.Present) < colCount {
			r.Present = make([]bool, colCount)
		}
		r.Present = r.Present[:colCount]
		for i := range r.Present {
			r.Present[i] = false
		}
		r.Line = 0
		return r
	}
	return &Row{V: make([]any, colCount), Present: make([]bool, colCount)}
}

// Set stores v in column i and marks the column present.
func (r *Row) Set(i int, v any) {
	r.V[i] = v
	r.Present[i] = true
}

// Free returns the Row to the pool.
func (r *Row) Free() {
	rowPool.Put(r)
}

// Drop discards the Row without re-pooling it.
func (r *Row) Drop() {
	r.V = nil
	r.Present = nil
	r.Line = 0
}
