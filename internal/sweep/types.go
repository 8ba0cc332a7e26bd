package sweep

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Type is the scalar type of a parameter value.
type Type int

const (
	TypeInt Type = iota + 1
	TypeFloat
	TypeString
	TypeBool
)

// ParseType maps a type name from an experiment file to a Type.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int", "integer", "int64":
		return TypeInt, nil
	case "float", "float64", "double", "real":
		return TypeFloat, nil
	case "string", "str":
		return TypeString, nil
	case "bool", "boolean":
		return TypeBool, nil
	}
	return 0, fmt.Errorf("parameter type %q currently not supported, choose from int, float, string, bool", s)
}

func (t Type) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	case TypeBool:
		return "bool"
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Valid reports whether t is one of the supported types.
func (t Type) Valid() bool {
	return t >= TypeInt && t <= TypeBool
}

// Numeric reports whether t can be sampled from a numeric range.
func (t Type) Numeric() bool {
	return t == TypeInt || t == TypeFloat
}

// Matches reports whether the dynamic type of v is exactly t's Go type:
// int, float64, string or bool.
func (t Type) Matches(v any) bool {
	switch v.(type) {
	case int:
		return t == TypeInt
	case float64:
		return t == TypeFloat
	case string:
		return t == TypeString
	case bool:
		return t == TypeBool
	}
	return false
}

// Parse converts node text into a value of type t.
func (t Type) Parse(text string) (any, error) {
	s := strings.TrimSpace(text)
	switch t {
	case TypeInt:
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("%w: cannot parse %q as int", ErrParse, text)
		}
		return n, nil
	case TypeFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: cannot parse %q as float", ErrParse, text)
		}
		return f, nil
	case TypeString:
		return text, nil
	case TypeBool:
		return ParseBool(s)
	}
	return nil, fmt.Errorf("%w: unsupported type %v", ErrParse, t)
}

// ParseBool accepts exactly True/true/TRUE/1 and False/false/FALSE/0.
// Anything else is rejected rather than coerced.
func ParseBool(s string) (bool, error) {
	switch s {
	case "True", "true", "TRUE", "1":
		return true, nil
	case "False", "false", "FALSE", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: could not identify if input %q is true or false", ErrParse, s)
}

// Format renders v in the canonical text form written to documents. Floats
// use the shortest representation that parses back to the same value.
func Format(v any) string {
	switch val := v.(type) {
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		if val {
			return "True"
		}
		return "False"
	case string:
		return val
	}
	return fmt.Sprintf("%v", v)
}

// toFloat64 converts a decoded numeric value to float64.
func toFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	}
	return 0, false
}

// toInt converts a decoded numeric value to int. Floats are only accepted
// when they hold an integral value.
func toInt(v interface{}) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		// 2^63 is exactly representable; anything at or beyond it overflows int.
		if val == math.Trunc(val) && val >= math.MinInt64 && val < -math.MinInt64 {
			return int(val), true
		}
	}
	return 0, false
}

// coerceValue widens decoded literals to t's Go type: integers given for a
// float parameter, and integral floats (as JSON decodes every number) for an
// int parameter. Lossy conversions are refused.
func coerceValue(v any, t Type) (any, error) {
	if t.Matches(v) {
		return v, nil
	}
	switch t {
	case TypeFloat:
		if _, isInt := v.(int); isInt {
			f, _ := toFloat64(v)
			return f, nil
		}
		if i64, ok := v.(int64); ok {
			return float64(i64), nil
		}
	case TypeInt:
		if n, ok := toInt(v); ok {
			return n, nil
		}
	}
	return nil, typeErrorf("value %v (%T) does not match type %v", v, v, t)
}
