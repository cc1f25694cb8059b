package trace

import (
	"bytes"
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 canonical JSON. It is the only
// serialization content-addressed IDs may be computed over.
//
// Canonical form differs from encoding/json defaults in four ways:
// object keys sort by UTF-16 code units, strings are NFC normalized,
// HTML characters stay unescaped, and U+2028/U+2029 stay literal.
// Null and floats are rejected outright: a canonical trace payload is
// strings, integers, booleans, arrays, and objects.
func MarshalCanonical(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("nil value in canonical JSON")
	case Null:
		return nil, fmt.Errorf("null is forbidden in canonical JSON")
	case Str:
		return canonicalString(string(val))
	case Int:
		return []byte(fmt.Sprintf("%d", int64(val))), nil
	case Bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case Array:
		return canonicalArray(val)
	case Object:
		return canonicalObject(val)
	default:
		return nil, fmt.Errorf("unsupported value type for canonical JSON: %T", v)
	}
}

func canonicalArray(arr Array) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := MarshalCanonical(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func canonicalObject(obj Object) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := canonicalString(k)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := MarshalCanonical(obj[k])
		if err != nil {
			return nil, fmt.Errorf("value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// canonicalString encodes one string in canonical form: NFC
// normalized, minimal escapes, no HTML escaping.
func canonicalString(s string) ([]byte, error) {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}

	// Encoder appends a newline.
	out := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))

	// encoding/json escapes U+2028 and U+2029 for JavaScript embedding;
	// RFC 8785 wants them literal. Their escape sequences can only come
	// from the encoder itself, since a literal backslash in the input is
	// doubled during encoding.
	return unescapeLineSeparators(out), nil
}

// unescapeLineSeparators rewrites   and   escape sequences
// back to the literal characters, leaving \\u2028 (a real backslash in
// the source string) alone. A sequence counts as an encoder escape
// only when preceded by an even number of backslashes.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	var out bytes.Buffer
	out.Grow(len(data))
	backslashes := 0
	for i := 0; i < len(data); {
		if data[i] == '\\' && backslashes%2 == 0 && i+6 <= len(data) &&
			bytes.HasPrefix(data[i:], []byte(`\u202`)) &&
			(data[i+5] == '8' || data[i+5] == '9') {
			if data[i+5] == '8' {
				out.WriteString(" ")
			} else {
				out.WriteString(" ")
			}
			i += 6
			backslashes = 0
			continue
		}
		if data[i] == '\\' {
			backslashes++
		} else {
			backslashes = 0
		}
		out.WriteByte(data[i])
		i++
	}
	return out.Bytes()
}
