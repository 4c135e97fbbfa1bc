// Package json streams incident documents from JSON exports into pooled rows.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gtdetl/internal/config"
	"gtdetl/internal/transformer"
)

// StreamRows decodes r and streams one row per incident object into out.
//
// Accepted layouts:
//   - a root array of objects: [{...}, {...}]
//   - an envelope object whose first array-valued field holds the objects:
//     {"meta": {...}, "incidents": [{...}]}
//   - a stream of objects (JSONL / concatenated), including objects
//     trailing one of the above
//
// Numbers are decoded as json.Number and left for the schema coercer. Keys
// are matched to columns directly, then through header_map (source key ->
// column). Arrays of strings are joined with array_join_separator (",").
func StreamRows(
	ctx context.Context,
	r io.Reader,
	columns []string,
	opt config.Options,
	out chan<- *transformer.Row,
	onErr func(line int, err error),
) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	s := &streamer{
		ctx:     ctx,
		dec:     dec,
		columns: columns,
		keys:    sourceKeys(columns, opt.StringMap("header_map")),
		sep:     opt.String("array_join_separator", ","),
		out:     out,
		onErr:   onErr,
	}
	if s.sep == "" {
		s.sep = ","
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return s.fail(fmt.Errorf("json: read token: %w", err))
		}

		d, ok := tok.(json.Delim)
		if !ok {
			return s.fail(fmt.Errorf("json: unsupported root token %T (want object or array)", tok))
		}
		switch d {
		case '[':
			if err := s.array(); err != nil {
				return err
			}
		case '{':
			if err := s.rootObject(); err != nil {
				return err
			}
		default:
			return s.fail(fmt.Errorf("json: unexpected delimiter %q", d))
		}
	}
}

type streamer struct {
	ctx     context.Context
	dec     *json.Decoder
	columns []string
	keys    [][]string
	sep     string
	out     chan<- *transformer.Row
	onErr   func(line int, err error)
	line    int
}

func (s *streamer) fail(err error) error {
	if s.onErr != nil {
		s.onErr(s.line+1, err)
	}
	return err
}

// array streams the elements of an array whose '[' was consumed, then
// consumes ']'.
func (s *streamer) array() error {
	for s.dec.More() {
		var raw any
		if err := s.dec.Decode(&raw); err != nil {
			return s.fail(fmt.Errorf("json: decode array element: %w", err))
		}
		if raw == nil {
			continue
		}
		obj, ok := raw.(map[string]any)
		if !ok {
			return s.fail(fmt.Errorf("json: array element not an object (got %T)", raw))
		}
		if err := s.emit(obj); err != nil {
			return err
		}
	}
	if _, err := s.dec.Token(); err != nil {
		return s.fail(fmt.Errorf("json: read array end: %w", err))
	}
	return nil
}

// rootObject handles an object whose '{' was consumed. The first
// array-valued field is streamed as records and the rest of the object is
// discarded; with no such field the object itself is one record.
func (s *streamer) rootObject() error {
	single := map[string]any{}
	enveloped := false

	for s.dec.More() {
		kt, err := s.dec.Token()
		if err != nil {
			return s.fail(fmt.Errorf("json: read key: %w", err))
		}
		key, _ := kt.(string)

		if enveloped {
			var skip json.RawMessage
			if err := s.dec.Decode(&skip); err != nil {
				return s.fail(fmt.Errorf("json: skip %q: %w", key, err))
			}
			continue
		}

		var val json.RawMessage
		if err := s.dec.Decode(&val); err != nil {
			return s.fail(fmt.Errorf("json: decode %q: %w", key, err))
		}
		trimmed := strings.TrimSpace(string(val))
		if strings.HasPrefix(trimmed, "[") && looksLikeObjectArray(trimmed) {
			if err := s.rawArray(val); err != nil {
				return err
			}
			enveloped = true
			continue
		}
		var v any
		if err := decodeNumber(val, &v); err != nil {
			return s.fail(fmt.Errorf("json: decode %q: %w", key, err))
		}
		single[key] = v
	}
	if _, err := s.dec.Token(); err != nil {
		return s.fail(fmt.Errorf("json: read object end: %w", err))
	}

	if enveloped {
		return nil
	}
	return s.emit(single)
}

func (s *streamer) rawArray(raw json.RawMessage) error {
	var items []map[string]any
	if err := decodeNumber(raw, &items); err != nil {
		return s.fail(fmt.Errorf("json: decode envelope array: %w", err))
	}
	for _, obj := range items {
		if obj == nil {
			continue
		}
		if err := s.emit(obj); err != nil {
			return err
		}
	}
	return nil
}

func (s *streamer) emit(obj map[string]any) error {
	s.line++

	row := transformer.GetRow(len(s.columns))
	row.Line = s.line
	for i, keys := range s.keys {
		for _, k := range keys {
			if v, ok := obj[k]; ok {
				row.Set(i, flatten(v, s.sep))
				break
			}
		}
	}

	select {
	case s.out <- row:
		return nil
	case <-s.ctx.Done():
		row.Drop()
		return s.ctx.Err()
	}
}

// sourceKeys lists, per column, the object keys that may carry it.
func sourceKeys(columns []string, headerMap map[string]string) [][]string {
	rev := map[string][]string{}
	for src, col := range headerMap {
		rev[col] = append(rev[col], src)
	}
	out := make([][]string, len(columns))
	for i, c := range columns {
		out[i] = append([]string{c}, rev[c]...)
	}
	return out
}

func looksLikeObjectArray(s string) bool {
	s = strings.TrimSpace(strings.TrimPrefix(s, "["))
	return strings.HasPrefix(s, "{")
}

func decodeNumber(raw []byte, dst any) error {
	d := json.NewDecoder(strings.NewReader(string(raw)))
	d.UseNumber()
	return d.Decode(dst)
}

// flatten joins arrays of strings; other values pass through.
func flatten(v any, sep string) any {
	arr, ok := v.([]any)
	if !ok {
		return v
	}
	ss := make([]string, 0, len(arr))
	for _, it := range arr {
		if it == nil {
			continue
		}
		s, ok := it.(string)
		if !ok {
			return v
		}
		ss = append(ss, s)
	}
	return strings.Join(ss, sep)
}
