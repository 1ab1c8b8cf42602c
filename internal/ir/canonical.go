package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf8"
)

// MarshalCanonical produces the canonical JSON text of a value.
// This is the only encoding written to the *_json columns.
//
// Differences from json.Marshal:
//  1. Object keys sorted by UTF-16 code units (RFC 8785)
//  2. No HTML escaping (< > & are written as-is)
//  3. U+2028 and U+2029 are written literally
//  4. Floats always carry a fraction or exponent; NaN and Inf are errors
//  5. nil (as opposed to Null{}) is an error
//  6. Strings and keys that are not valid UTF-8 are errors
//
// Strings are written byte-for-byte; no Unicode normalization happens here,
// so decoding the output yields a value Equal to the input.
func MarshalCanonical(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("nil value cannot be encoded (use ir.Null{})")
	case Null:
		buf.WriteString("null")
	case String:
		b, err := marshalCanonicalString(string(val))
		if err != nil {
			return err
		}
		buf.Write(b)
	case Int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case Float:
		b, err := formatFloat(float64(val))
		if err != nil {
			return err
		}
		buf.Write(b)
	case Bool:
		buf.WriteString(strconv.FormatBool(bool(val)))
	case Array:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, k := range val.SortedKeys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := marshalCanonicalString(k)
			if err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("value for key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported value type: %T", v)
	}
	return nil
}

// marshalCanonicalString encodes s as a JSON string without HTML escaping.
// Only control characters, backslash and quote are escaped.
// encoding/json would replace invalid bytes with U+FFFD, so they are rejected.
func marshalCanonicalString(s string) ([]byte, error) {
	if !utf8.ValidString(s) {
		return nil, fmt.Errorf("invalid UTF-8 in string %q", s)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	// Encoder appends a newline.
	out := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
	return unescapeLineSeparators(out), nil
}

// unescapeLineSeparators rewrites the \u2028 and \u2029 escapes that
// encoding/json emits back to literal characters. An escaped backslash
// followed by "u2028" is left untouched.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] != '\\' || i+1 >= len(data) {
			out = append(out, data[i])
			continue
		}
		if data[i+1] == 'u' && i+6 <= len(data) {
			switch string(data[i+2 : i+6]) {
			case "2028":
				out = append(out, "\u2028"...)
				i += 5
				continue
			case "2029":
				out = append(out, "\u2029"...)
				i += 5
				continue
			}
		}
		// Any other escape: copy both bytes so an escaped backslash
		// never pairs with the following text.
		out = append(out, data[i], data[i+1])
		i++
	}
	return out
}
