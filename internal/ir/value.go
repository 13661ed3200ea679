package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is a sealed interface representing the scalar and list values that
// can appear in a condition field or a recorded data slot.
// Only Missing, String, Int, Float, Bool, and List implement this.
type Value interface {
	value() // Sealed - only these types implement it
}

// Missing is the "not yet recorded" sentinel. Every data slot starts as
// Missing and stays that way until a value is written for its trial.
type Missing struct{}

func (Missing) value() {}

// String represents a string value.
type String string

func (String) value() {}

// Int represents an integer value.
type Int int64

func (Int) value() {}

// Float represents a floating-point value.
// NaN and infinities are rejected by ValueOf and by canonical marshaling.
type Float float64

func (Float) value() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) value() {}

// List represents an ordered list of values, e.g. a staircase step schedule
// stored in a condition row.
type List []Value

func (List) value() {}

// IsMissing reports whether v is the Missing sentinel (or a nil interface).
func IsMissing(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Missing)
	return ok
}

// AsFloat returns v as a float64 when it is numeric.
// Bools count as numeric (0/1) so correctness columns can be averaged.
func AsFloat(v Value) (float64, bool) {
	switch val := v.(type) {
	case Int:
		return float64(val), true
	case Float:
		return float64(val), true
	case Bool:
		if val {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// ValueOf converts a Go value to a Value.
// Accepts Values, strings, all integer kinds, float32/float64, bools,
// []any and []float64. nil becomes Missing.
func ValueOf(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Missing{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case int:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case float32:
		return floatValue(float64(val))
	case float64:
		return floatValue(val)
	case bool:
		return Bool(val), nil
	case []float64:
		list := make(List, len(val))
		for i, f := range val {
			fv, err := floatValue(f)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			list[i] = fv
		}
		return list, nil
	case []any:
		list := make(List, len(val))
		for i, elem := range val {
			ev, err := ValueOf(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			list[i] = ev
		}
		return list, nil
	default:
		return nil, fmt.Errorf("unsupported value type: %T", v)
	}
}

func floatValue(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite float %v", f)
	}
	return Float(f), nil
}

// MustValue is ValueOf for literals in tests and fixtures. It panics on error.
func MustValue(v any) Value {
	val, err := ValueOf(v)
	if err != nil {
		panic(err)
	}
	return val
}

// FormatValue renders a value the way exports print it.
// Missing renders as the empty string; floats use the shortest
// representation that round-trips.
func FormatValue(v Value) string {
	switch val := v.(type) {
	case nil, Missing:
		return ""
	case String:
		return string(val)
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Float:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case Bool:
		if val {
			return "True"
		}
		return "False"
	case List:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = formatListElem(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// formatListElem quotes strings inside lists so "[resp0, resp1]" stays
// distinguishable from a list of identifiers.
func formatListElem(v Value) string {
	if s, ok := v.(String); ok {
		return "'" + string(s) + "'"
	}
	if IsMissing(v) {
		return "--"
	}
	return FormatValue(v)
}

// MarshalValue marshals a Value to JSON bytes. Missing becomes null.
// NOTE: This is NOT canonical marshaling. Use MarshalCanonical for hashing.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil, Missing:
		return []byte("null"), nil
	case String:
		return json.Marshal(string(val))
	case Int:
		return json.Marshal(int64(val))
	case Float:
		return json.Marshal(float64(val))
	case Bool:
		return json.Marshal(bool(val))
	case List:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := MarshalValue(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown Value type: %T", v)
	}
}

// MarshalJSON implements json.Marshaler for List.
func (l List) MarshalJSON() ([]byte, error) {
	return MarshalValue(l)
}

// MarshalJSON implements json.Marshaler for Missing.
func (Missing) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// UnmarshalValue decodes JSON into a Value.
// Numbers without a fraction or exponent become Int, others Float.
// null becomes Missing. Objects are rejected: conditions are flat records.
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return convertJSON(raw)
}

func convertJSON(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Missing{}, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case json.Number:
		s := string(val)
		if !strings.ContainsAny(s, ".eE") {
			n, err := val.Int64()
			if err == nil {
				return Int(n), nil
			}
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %s: %w", s, err)
		}
		return floatValue(f)
	case []any:
		list := make(List, len(val))
		for i, elem := range val {
			ev, err := convertJSON(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			list[i] = ev
		}
		return list, nil
	default:
		return nil, fmt.Errorf("unsupported JSON value: %T", v)
	}
}

// EqualValues compares two values structurally. Int(1) and Float(1) are
// different values.
func EqualValues(a, b Value) bool {
	if IsMissing(a) || IsMissing(b) {
		return IsMissing(a) && IsMissing(b)
	}
	la, aList := a.(List)
	lb, bList := b.(List)
	if aList || bList {
		if !aList || !bList || len(la) != len(lb) {
			return false
		}
		for i := range la {
			if !EqualValues(la[i], lb[i]) {
				return false
			}
		}
		return true
	}
	return a == b
}
