// Package builtin contains small value helpers shared by parsers and the
// star model.
package builtin

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const sep = '\x1f'

// HasEdgeSpace reports whether s starts or ends with ASCII whitespace.
// It lets hot paths skip strings.TrimSpace for the common case.
func HasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	return isSpace(s[0]) || isSpace(s[len(s)-1])
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\v' || b == '\f'
}

// CanonicalKey encodes a tuple of values into a string usable as a map key.
//
// Rules:
//   - nil encodes as a single NUL byte, so missing differs from "".
//   - Every other value is written as <tag><len>:<payload>, e.g. "s4:Lima".
//     The type tag keeps int64(1) apart from "1" and the length keeps
//     payloads containing the separator from shifting tuple boundaries.
//   - Components are joined with ASCII Unit Separator (0x1f).
func CanonicalKey(vals []any) string {
	var b strings.Builder
	b.Grow(len(vals) * 16)
	for i, v := range vals {
		if i > 0 {
			b.WriteByte(sep)
		}
		appendCanonicalValue(&b, v)
	}
	return b.String()
}

// Fingerprint is the hex SHA-256 of CanonicalKey(vals).
func Fingerprint(vals []any) string {
	sum := sha256.Sum256([]byte(CanonicalKey(vals)))
	return hex.EncodeToString(sum[:])
}

func appendCanonicalValue(b *strings.Builder, v any) {
	if v == nil {
		b.WriteByte('\x00')
		return
	}
	tag, payload := canonicalValue(v)
	b.WriteByte(tag)
	b.WriteString(strconv.Itoa(len(payload)))
	b.WriteByte(':')
	b.WriteString(payload)
}

func canonicalValue(v any) (byte, string) {
	switch t := v.(type) {
	case string:
		return 's', t
	case []byte:
		return 's', string(t)
	case bool:
		return 'b', strconv.FormatBool(t)
	case int:
		return 'i', strconv.Itoa(t)
	case int32:
		return 'i', strconv.FormatInt(int64(t), 10)
	case int64:
		return 'i', strconv.FormatInt(t, 10)
	case float32:
		return 'f', strconv.FormatFloat(float64(t), 'g', -1, 32)
	case float64:
		return 'f', strconv.FormatFloat(t, 'g', -1, 64)
	case time.Time:
		return 't', t.UTC().Format(time.RFC3339Nano)
	default:
		return 'x', fmt.Sprint(t)
	}
}
