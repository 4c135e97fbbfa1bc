package config

import (
	"strconv"
	"strings"
)

// Options is a free-form option bag for parsers. Values come from JSON/YAML
// so numbers may arrive as float64, int or string.
type Options map[string]any

// Any returns the raw value for key, or nil.
func (o Options) Any(key string) any {
	if o == nil {
		return nil
	}
	return o[key]
}

// String returns key as a string, or def.
func (o Options) String(key, def string) string {
	switch v := o.Any(key).(type) {
	case string:
		return v
	case nil:
		return def
	default:
		return def
	}
}

// Bool returns key as a bool, or def. "true"/"false" strings are accepted.
func (o Options) Bool(key string, def bool) bool {
	switch v := o.Any(key).(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return def
		}
		return b
	default:
		return def
	}
}

// Int returns key as an int, or def.
func (o Options) Int(key string, def int) int {
	switch v := o.Any(key).(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return def
		}
		return n
	default:
		return def
	}
}

// Rune returns the first rune of a string option, or def. "\t" and "tab"
// both mean a tab.
func (o Options) Rune(key string, def rune) rune {
	s, ok := o.Any(key).(string)
	if !ok || s == "" {
		return def
	}
	if s == `\t` || strings.EqualFold(s, "tab") {
		return '\t'
	}
	return []rune(s)[0]
}

// StringMap returns key as map[string]string, dropping non-string values.
func (o Options) StringMap(key string) map[string]string {
	out := map[string]string{}
	switch m := o.Any(key).(type) {
	case map[string]string:
		for k, v := range m {
			out[k] = v
		}
	case map[string]any:
		for k, v := range m {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
	}
	return out
}
