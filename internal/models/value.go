package models

import (
	"encoding/json"
	"math"
	"strconv"
)

// Value is a captured field value tagged with the field type that produced it.
// Integer and currency values live in Int; enum, string and date values in Text.
type Value struct {
	Type FieldType
	Int  int64
	Text string
}

// IntValue builds a numeric value.
func IntValue(ft FieldType, n int64) Value {
	return Value{Type: ft, Int: n}
}

// TextValue builds a textual value.
func TextValue(ft FieldType, s string) Value {
	return Value{Type: ft, Text: s}
}

// IsNumeric reports whether the value is stored in Int.
func (v Value) IsNumeric() bool {
	return v.Type == FieldTypeInteger || v.Type == FieldTypeCurrency
}

// Any returns the representation stored in the state document.
func (v Value) Any() any {
	if v.IsNumeric() {
		return v.Int
	}
	return v.Text
}

// String renders the value for logs and prompts.
func (v Value) String() string {
	if v.IsNumeric() {
		return strconv.FormatInt(v.Int, 10)
	}
	return v.Text
}

// ValueFromAny converts a document value into a typed Value for the declared field type.
// Numbers decoded from JSON arrive as float64 or json.Number; only integral amounts
// convert for numeric types. The second result is false when the shape does not fit.
func ValueFromAny(ft FieldType, raw any) (Value, bool) {
	switch ft {
	case FieldTypeInteger, FieldTypeCurrency:
		n, ok := AsInt64(raw)
		if !ok {
			return Value{}, false
		}
		return IntValue(ft, n), true
	case FieldTypeEnum, FieldTypeString, FieldTypeDate:
		s, ok := raw.(string)
		if !ok {
			return Value{}, false
		}
		return TextValue(ft, s), true
	default:
		return Value{}, false
	}
}

// AsInt64 converts the numeric kinds that appear in decoded documents.
func AsInt64(raw any) (int64, bool) {
	switch n := raw.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt(f)
	default:
		return 0, false
	}
}

// AsFloat64 converts any numeric kind to float64.
func AsFloat64(raw any) (float64, bool) {
	switch n := raw.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func floatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}
