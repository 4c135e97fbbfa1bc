// Package csv streams delimited incident exports into pooled rows.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"gtdetl/internal/config"
	"gtdetl/internal/transformer"
	"gtdetl/internal/transformer/builtin"
)

// Decode wraps r so it yields UTF-8. GTD exports are distributed as
// ISO-8859-1; "latin1", "latin-1" and "iso-8859-1" select that decoder.
// Anything else passes r through.
func Decode(r io.Reader, encoding string) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "latin1", "latin-1", "iso-8859-1":
		return charmap.ISO8859_1.NewDecoder().Reader(r)
	default:
		return r
	}
}

// StreamRows streams CSV from src into pooled *transformer.Row objects
// aligned to columns.
//
// Headers are trimmed, stripped of a UTF-8 BOM, lower-cased with spaces
// turned into underscores, then renamed through header_map. Columns missing
// from the header stay nil on every row; an empty cell in a present column is
// kept as "".
//
// Options: has_header (true), comma (','), trim_space (true), lazy_quotes
// (false), fields_per_record (0 = variable), header_map, encoding.
//
// On ctx cancellation in-flight rows are dropped, not re-pooled.
func StreamRows(
	ctx context.Context,
	src io.ReadCloser,
	columns []string,
	opt config.Options,
	out chan<- *transformer.Row,
	onErr func(line int, err error),
) error {
	defer src.Close()

	var line int

	hasHeader := opt.Bool("has_header", true)
	trim := opt.Bool("trim_space", true)
	hm := opt.StringMap("header_map")

	cr := csv.NewReader(Decode(src, opt.String("encoding", "")))
	cr.Comma = opt.Rune("comma", ',')
	cr.ReuseRecord = true
	cr.LazyQuotes = opt.Bool("lazy_quotes", false)
	if n := opt.Int("fields_per_record", 0); n != 0 {
		cr.FieldsPerRecord = n
	} else {
		cr.FieldsPerRecord = -1
	}

	colIx := make([]int, len(columns))
	for i := range colIx {
		colIx[i] = -1
	}

	readRec := func() ([]string, error) {
		line++
		return cr.Read()
	}

	if hasHeader {
		hdr, err := readRec()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if onErr != nil {
				onErr(line, fmt.Errorf("read header: %w", err))
			}
			return err
		}
		srcToIdx := make(map[string]int, len(hdr))
		for i, h := range hdr {
			srcToIdx[NormalizeHeader(h, i == 0, hm)] = i
		}
		for t, target := range columns {
			if si, ok := srcToIdx[target]; ok {
				colIx[t] = si
			}
		}
	} else {
		for i := range columns {
			colIx[i] = i
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := readRec()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if onErr != nil {
				onErr(line, fmt.Errorf("csv read: %w", err))
			}
			continue
		}

		row := transformer.GetRow(len(columns))
		row.Line = line

		for t := range columns {
			si := colIx[t]
			if si < 0 {
				continue
			}
			if si >= len(rec) {
				row.Set(t, "")
				continue
			}
			v := rec[si]
			if trim && builtin.HasEdgeSpace(v) {
				v = strings.TrimSpace(v)
			}
			row.Set(t, v)
		}

		select {
		case out <- row:
		case <-ctx.Done():
			row.Drop()
			return ctx.Err()
		}
	}
}

// NormalizeHeader canonicalizes a raw header cell.
func NormalizeHeader(h string, first bool, headerMap map[string]string) string {
	if first {
		h = strings.TrimPrefix(h, "\uFEFF")
	}
	if builtin.HasEdgeSpace(h) {
		h = strings.TrimSpace(h)
	}
	if mapped, ok := headerMap[h]; ok {
		return mapped
	}
	h = strings.ReplaceAll(strings.ToLower(h), " ", "_")
	if mapped, ok := headerMap[h]; ok {
		return mapped
	}
	return h
}
