package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"unicode/utf16"
)

// Value is a sealed interface representing an opaque structured payload.
// Only Null, String, Int, Float, Bool, Array, and Object implement this.
//
// Int and Float are distinct so that a payload decoded from storage
// compares equal to the payload that was written.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null represents a JSON null.
// Using an explicit type keeps nil out of Arrays and Objects.
type Null struct{}

func (Null) value() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String represents a string value.
type String string

func (String) value() {}

// Int represents an integer value. Always int64.
type Int int64

func (Int) value() {}

// Float represents a finite floating point value.
// NaN and infinities cannot be encoded and are rejected at marshal time.
type Float float64

func (Float) value() {}

// MarshalJSON implements json.Marshaler for Float.
func (f Float) MarshalJSON() ([]byte, error) {
	return formatFloat(float64(f))
}

// Bool represents a boolean value.
type Bool bool

func (Bool) value() {}

// Array represents an ordered sequence of values.
type Array []Value

func (Array) value() {}

// Object represents a mapping of string keys to values.
// Use SortedKeys() for deterministic iteration.
type Object map[string]Value

func (Object) value() {}

// Pair is a key-value pair for Object construction.
type Pair struct {
	Key   string
	Value Value
}

// O is a shorthand for Pair.
// Example: NewObject(O("total", Int(72)), O("label", String("promote")))
func O(key string, v Value) Pair {
	return Pair{Key: key, Value: v}
}

// NewObject creates an Object from key-value pairs.
// Later pairs win on duplicate keys.
func NewObject(pairs ...Pair) Object {
	obj := make(Object, len(pairs))
	for _, p := range pairs {
		obj[p.Key] = p.Value
	}
	return obj
}

// NewArray creates an Array from values.
func NewArray(vals ...Value) Array {
	if vals == nil {
		return Array{}
	}
	return Array(vals)
}

// Strings creates an Array of String values.
func Strings(ss ...string) Array {
	arr := make(Array, len(ss))
	for i, s := range ss {
		arr[i] = String(s)
	}
	return arr
}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
// Go's native string comparison uses UTF-8 bytes, which differs for
// characters outside the BMP.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysUTF16)
	return keys
}

func compareKeysUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// UnmarshalJSON implements json.Unmarshaler for Object.
func (obj *Object) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("expected object, got null")
	}

	*obj = make(Object, len(raw))
	for k, v := range raw {
		val, err := unmarshalValue(v)
		if err != nil {
			return fmt.Errorf("object key %q: %w", k, err)
		}
		(*obj)[k] = val
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for Array.
func (arr *Array) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("expected array, got null")
	}

	*arr = make(Array, len(raw))
	for i, v := range raw {
		val, err := unmarshalValue(v)
		if err != nil {
			return fmt.Errorf("array index %d: %w", i, err)
		}
		(*arr)[i] = val
	}
	return nil
}

// unmarshalValue decodes one JSON value into the matching Value type.
// Numbers with a fraction or exponent become Float; all others Int.
func unmarshalValue(data []byte) (Value, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return String(s), nil

	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return Bool(b), nil

	case 'n':
		if string(data) != "null" {
			return nil, fmt.Errorf("invalid JSON literal %q", data)
		}
		return Null{}, nil

	case '[':
		var arr Array
		if err := json.Unmarshal(data, &arr); err != nil {
			return nil, err
		}
		return arr, nil

	case '{':
		var obj Object
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, err
		}
		return obj, nil

	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, err
		}
		return numberValue(n)
	}
}

// numberValue converts a JSON number literal to Int or Float.
func numberValue(n json.Number) (Value, error) {
	s := string(n)
	if !bytes.ContainsAny([]byte(s), ".eE") {
		if i, err := n.Int64(); err == nil {
			return Int(i), nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return Float(f), nil
}

// formatFloat renders a float the way encoding/json does (plain decimal
// between 1e-6 and 1e21, exponent outside), except that integral values
// keep a ".0" suffix so that decoding yields a Float again.
func formatFloat(f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite float %v cannot be encoded", f)
	}

	format := byte('f')
	if abs := math.Abs(f); abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	b := strconv.AppendFloat(nil, f, format, -1, 64)
	if format == 'e' {
		// e-07 -> e-7
		n := len(b)
		if n >= 4 && b[n-4] == 'e' && b[n-3] == '-' && b[n-2] == '0' {
			b[n-2] = b[n-1]
			b = b[:n-1]
		}
	}
	if !bytes.ContainsAny(b, ".eE") {
		b = append(b, ".0"...)
	}
	return b, nil
}

// MarshalJSON implements json.Marshaler for Object with sorted keys.
func (obj Object) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(obj)
}

// MarshalJSON implements json.Marshaler for Array.
func (arr Array) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(arr)
}

// Equal reports whether two values are structurally identical.
// Int(1) and Float(1) are not equal.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case Null:
		_, ok := b.(Null)
		return ok
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Float:
		bv, ok := b.(Float)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, present := bv[k]
			if !present || !Equal(v, w) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
