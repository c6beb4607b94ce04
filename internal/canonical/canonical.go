package canonical

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// Indent is the per-level indentation of a canonical document.
const Indent = "    "

// Marshal produces the canonical params document used for content-addressed
// run identity.
// CRITICAL: This is the ONLY serialization that may feed a run fingerprint.
//
// The layout is fixed:
//  1. Object keys sorted by code point
//  2. One member per line, four-space indentation
//  3. Key separator is ": "
//  4. Strings are NFC normalized, then every rune outside printable ASCII
//     (control characters, DEL and non-ASCII) is \u escaped
//  5. Two keys that normalize to the same string are an error
//  6. Integers and floats stay distinct: 1 and 1.0 are different documents
//
// Supported values: nil, bool, int, int64, float64, string, []any and
// map[string]any (recursively).
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, v any, level int) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case float64:
		buf.WriteString(FormatFloat(val))
	case string:
		writeString(buf, val)
	case []any:
		return encodeArray(buf, val, level)
	case map[string]any:
		return encodeObject(buf, val, level)
	default:
		return fmt.Errorf("unsupported type for canonical document: %T", v)
	}
	return nil
}

func encodeArray(buf *bytes.Buffer, arr []any, level int) error {
	if len(arr) == 0 {
		buf.WriteString("[]")
		return nil
	}

	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		newline(buf, level+1)
		if err := encode(buf, elem, level+1); err != nil {
			return fmt.Errorf("array[%d]: %w", i, err)
		}
	}
	newline(buf, level)
	buf.WriteByte(']')
	return nil
}

func encodeObject(buf *bytes.Buffer, obj map[string]any, level int) error {
	if len(obj) == 0 {
		buf.WriteString("{}")
		return nil
	}

	// Normalize before sorting so the order matches the bytes written.
	keys := make([]string, 0, len(obj))
	byKey := make(map[string]string, len(obj))
	for k := range obj {
		nk := norm.NFC.String(k)
		if prev, dup := byKey[nk]; dup {
			return fmt.Errorf("keys %q and %q collide after NFC normalization", prev, k)
		}
		keys = append(keys, nk)
		byKey[nk] = k
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		newline(buf, level+1)
		writeString(buf, k)
		buf.WriteString(": ")
		if err := encode(buf, obj[byKey[k]], level+1); err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
	}
	newline(buf, level)
	buf.WriteByte('}')
	return nil
}

func newline(buf *bytes.Buffer, level int) {
	buf.WriteByte('\n')
	buf.WriteString(strings.Repeat(Indent, level))
}

// writeString writes s as an ASCII-only JSON string literal.
func writeString(buf *bytes.Buffer, s string) {
	s = norm.NFC.String(s)

	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			switch {
			case r < 0x20:
				fmt.Fprintf(buf, `\u%04x`, r)
			case r < 0x7f:
				buf.WriteRune(r)
			case r > 0xFFFF:
				hi, lo := utf16.EncodeRune(r)
				fmt.Fprintf(buf, `\u%04x\u%04x`, hi, lo)
			default:
				fmt.Fprintf(buf, `\u%04x`, r)
			}
		}
	}
	buf.WriteByte('"')
}

// FormatFloat renders f as the shortest string that round-trips, always
// keeping a fractional part or exponent so floats never collide with ints.
// Positional notation is used for decimal exponents in [-4, 16).
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}

	sign := ""
	if math.Signbit(f) {
		sign = "-"
		f = -f
	}

	// Shortest scientific form: "d.ddde±XX"
	sci := strconv.FormatFloat(f, 'e', -1, 64)
	mant, expStr, _ := strings.Cut(sci, "e")
	exp, _ := strconv.Atoi(expStr)
	digits := strings.Replace(mant, ".", "", 1)

	if exp >= -4 && exp < 16 {
		if exp < 0 {
			return sign + "0." + strings.Repeat("0", -exp-1) + digits
		}
		if len(digits) <= exp+1 {
			return sign + digits + strings.Repeat("0", exp+1-len(digits)) + ".0"
		}
		return sign + digits[:exp+1] + "." + digits[exp+1:]
	}

	out := digits[:1]
	if len(digits) > 1 {
		out += "." + digits[1:]
	}
	expSign := "+"
	if exp < 0 {
		expSign = "-"
		exp = -exp
	}
	return fmt.Sprintf("%s%se%s%02d", sign, out, expSign, exp)
}
