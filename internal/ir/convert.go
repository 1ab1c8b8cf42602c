package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"golang.org/x/text/unicode/norm"
)

// UnmarshalValue decodes exactly one JSON value.
// Trailing data after the value is an error.
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return fromDecoded(raw, false)
}

// UnmarshalObject decodes a JSON object. Any other JSON type is an error.
func UnmarshalObject(data []byte) (Object, error) {
	v, err := UnmarshalValue(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(Object)
	if !ok {
		return nil, fmt.Errorf("expected JSON object, got %s", Kind(v))
	}
	return obj, nil
}

// FromAny converts a decoded document (encoding/json, yaml.v3 or
// jsonschema output) into a Value. Object keys are NFC-normalized so that
// visually identical keys from different producers collapse to one.
func FromAny(v any) (Value, error) {
	return fromDecoded(v, true)
}

func fromDecoded(v any, normalize bool) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case json.Number:
		return numberValue(val)
	case int:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return Float(float64(val)), nil
		}
		return Int(int64(val)), nil
	case float32:
		return Float(val), nil
	case float64:
		return Float(val), nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			e, err := fromDecoded(elem, normalize)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = e
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			e, err := fromDecoded(elem, normalize)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[normalizeKey(k, normalize)] = e
		}
		return obj, nil
	case map[any]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("object key %v: keys must be strings, got %T", k, k)
			}
			e, err := fromDecoded(elem, normalize)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", ks, err)
			}
			obj[normalizeKey(ks, normalize)] = e
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

func normalizeKey(k string, normalize bool) string {
	if !normalize {
		return k
	}
	return norm.NFC.String(k)
}

// ToAny converts a Value into plain Go types (map[string]any, []any,
// string, int64, float64, bool, nil) for libraries that walk documents
// reflectively.
func ToAny(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case Bool:
		return bool(val)
	case Array:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = ToAny(e)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = ToAny(e)
		}
		return out
	default:
		return nil
	}
}

// Kind names the JSON type of a value, for error messages.
func Kind(v Value) string {
	switch v.(type) {
	case nil:
		return "nil"
	case Null:
		return "null"
	case String:
		return "string"
	case Int, Float:
		return "number"
	case Bool:
		return "boolean"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
