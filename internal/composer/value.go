package composer

import (
	"math"
	"strconv"
)

// ValueKind discriminates the variants of a Value.
type ValueKind int

const (
	// KindUnresolved marks a value that could not be computed (unknown
	// variable, type mismatch). It renders visibly instead of failing.
	KindUnresolved ValueKind = iota
	KindNumber
	KindBool
	KindString
)

// Value is the tagged union carried by sensor variables and computed overlay
// variables: a number, a boolean, a string, or the unresolved sentinel.
type Value struct {
	kind ValueKind
	num  float64
	b    bool
	str  string
}

// Number returns a numeric Value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Str returns a string Value.
func Str(s string) Value { return Value{kind: KindString, str: s} }

// Unresolved returns the unresolved sentinel.
func Unresolved() Value { return Value{kind: KindUnresolved} }

// ValueOf converts a decoded JSON/YAML scalar into a Value. Unsupported types
// map to the unresolved sentinel.
func ValueOf(v any) Value {
	switch x := v.(type) {
	case float64:
		return Number(x)
	case float32:
		return Number(float64(x))
	case int:
		return Number(float64(x))
	case int64:
		return Number(float64(x))
	case bool:
		return Bool(x)
	case string:
		return Str(x)
	default:
		return Unresolved()
	}
}

// Kind returns the variant tag.
func (v Value) Kind() ValueKind { return v.kind }

// IsResolved reports whether the value holds an actual number, bool, or string.
func (v Value) IsResolved() bool { return v.kind != KindUnresolved }

// AsNumber returns the numeric payload. ok is false for non-numbers.
func (v Value) AsNumber() (f float64, ok bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// AsBool returns the boolean payload. ok is false for non-bools.
func (v Value) AsBool() (b, ok bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// String renders the value for template substitution. Numbers use plain
// decimal notation, never exponent form: the substituted text feeds back into
// condition and formula parsing, which reads decimal literals only.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		if math.IsNaN(v.num) {
			return "NaN"
		}
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindString:
		return v.str
	default:
		return ""
	}
}

// FormatFixed renders a number with the given number of decimal places.
// ok is false for non-numeric values, in which case callers should emit the
// unresolved marker instead.
func (v Value) FormatFixed(precision int) (s string, ok bool) {
	if v.kind != KindNumber {
		return "", false
	}
	return strconv.FormatFloat(v.num, 'f', precision, 64), true
}

// Equal compares two values. Values of different kinds are never equal;
// the unresolved sentinel is not equal to anything, itself included.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind || v.kind == KindUnresolved {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	default:
		return v.str == o.str
	}
}
