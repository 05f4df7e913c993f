package message

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Kind identifies the value shape a field carries on the wire.
type Kind int

const (
	// KindString is a JSON string
	KindString Kind = iota
	// KindInt is a JSON number with no fractional part, held as int
	KindInt
	// KindFloat is any JSON number, held as float64
	KindFloat
	// KindBool is a JSON boolean
	KindBool
	// KindStringList is a JSON array of strings, held as []string
	KindStringList
	// KindQuantity is a QuantityBlock
	KindQuantity
	// KindQuantityArray is a QuantityArrayBlock
	KindQuantityArray
	// KindTimeSeries is a TimeSeriesBlock
	KindTimeSeries
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindStringList:
		return "string_list"
	case KindQuantity:
		return "quantity"
	case KindQuantityArray:
		return "quantity_array"
	case KindTimeSeries:
		return "time_series"
	default:
		return "unknown"
	}
}

// IsBlock reports whether the kind is one of the structured blocks.
func (k Kind) IsBlock() bool {
	return k == KindQuantity || k == KindQuantityArray || k == KindTimeSeries
}

func (k Kind) valid() bool {
	return k >= KindString && k <= KindTimeSeries
}

// Validator is a pure predicate over a single, already type-checked field value.
// It receives the canonical Go type for the field's Kind.
type Validator func(value any) bool

// Field describes one payload attribute of a message kind.
type Field struct {
	// Attribute is the wire name, e.g. "MaxPower".
	Attribute string
	// Property is the local name, e.g. "max_power". Lookups accept either name.
	Property string
	Kind     Kind
	Optional bool
	// Validator is applied after the kind check. Nil accepts any value of Kind.
	Validator Validator
	// Unit pins the UnitOfMeasure of block kinds. Empty accepts any unit.
	Unit string
}

// Required declares a mandatory field.
func Required(attribute, property string, kind Kind, validator Validator) Field {
	return Field{Attribute: attribute, Property: property, Kind: kind, Validator: validator}
}

// Optional declares a field that may be omitted.
func Optional(attribute, property string, kind Kind, validator Validator) Field {
	return Field{Attribute: attribute, Property: property, Kind: kind, Optional: true, Validator: validator}
}

// WithUnit returns a copy of the field that only accepts blocks measured in unit.
func (f Field) WithUnit(unit string) Field {
	f.Unit = unit
	return f
}

// check converts value into the canonical type for the field and applies the unit and
// validator rules. The returned reason is empty on success.
func (f Field) check(value any, strict bool) (any, string) {
	canonical, err := coerce(f.Kind, value, strict)
	if err != nil {
		return nil, err.Error()
	}

	if f.Kind.IsBlock() {
		if err := validateBlock(canonical); err != nil {
			return nil, err.Error()
		}
		if f.Unit != "" {
			if unit := blockUnit(canonical); unit != f.Unit {
				return nil, fmt.Sprintf("unit %q does not match expected %q", unit, f.Unit)
			}
		}
	}

	if f.Validator != nil && !f.Validator(canonical) {
		return nil, "value rejected by validator"
	}

	return canonical, ""
}

// coerce converts a Go value, including the json.Number and []any values produced by a
// JSON decoder, into the canonical type for kind. Strict mode refuses any value whose
// shape differs from the kind; lenient mode parses numeric strings and integral floats.
func coerce(kind Kind, value any, strict bool) (any, error) {
	if value == nil {
		return nil, fmt.Errorf("expected %s, got null", kind)
	}

	switch kind {
	case KindString:
		return coerceString(value, strict)
	case KindInt:
		return coerceInt(value, strict)
	case KindFloat:
		return coerceFloat(value, strict)
	case KindBool:
		return coerceBool(value, strict)
	case KindStringList:
		return coerceStringList(value)
	case KindQuantity:
		switch v := value.(type) {
		case QuantityBlock:
			return v, nil
		case *QuantityBlock:
			if v != nil {
				return *v, nil
			}
		}
	case KindQuantityArray:
		switch v := value.(type) {
		case QuantityArrayBlock:
			return v.clone(), nil
		case *QuantityArrayBlock:
			if v != nil {
				return v.clone(), nil
			}
		}
	case KindTimeSeries:
		switch v := value.(type) {
		case TimeSeriesBlock:
			return v.clone(), nil
		case *TimeSeriesBlock:
			if v != nil {
				return v.clone(), nil
			}
		}
	default:
		return nil, fmt.Errorf("unsupported kind %d", kind)
	}

	return nil, fmt.Errorf("expected %s, got %T", kind, value)
}

func coerceString(value any, strict bool) (any, error) {
	switch v := value.(type) {
	case string:
		if !utf8.ValidString(v) {
			return nil, errInvalidUTF8
		}
		return v, nil
	case json.Number:
		if !strict {
			return v.String(), nil
		}
	case int, int32, int64, float64, bool:
		if !strict {
			return fmt.Sprint(v), nil
		}
	}
	return nil, fmt.Errorf("expected string, got %T", value)
}

func coerceInt(value any, strict bool) (any, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int8:
		return int(v), nil
	case int16:
		return int(v), nil
	case int32:
		return int(v), nil
	case int64:
		if v < math.MinInt || v > math.MaxInt {
			return nil, fmt.Errorf("integer %d out of range", v)
		}
		return int(v), nil
	case uint8:
		return int(v), nil
	case uint16:
		return int(v), nil
	case uint32:
		return int(v), nil
	case uint:
		if uint64(v) > math.MaxInt {
			return nil, fmt.Errorf("integer %d out of range", v)
		}
		return int(v), nil
	case uint64:
		if v > math.MaxInt {
			return nil, fmt.Errorf("integer %d out of range", v)
		}
		return int(v), nil
	case json.Number:
		if i, err := strconv.ParseInt(v.String(), 10, 0); err == nil {
			return int(i), nil
		}
		if !strict {
			if f, err := v.Float64(); err == nil {
				return integralFloat(f)
			}
		}
		return nil, fmt.Errorf("expected integer, got %s", v.String())
	case float64:
		if !strict {
			return integralFloat(v)
		}
	case float32:
		if !strict {
			return integralFloat(float64(v))
		}
	case string:
		if !strict {
			i, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("expected integer, got %q", v)
			}
			return i, nil
		}
	}
	return nil, fmt.Errorf("expected int, got %T", value)
}

func integralFloat(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, fmt.Errorf("expected integer, got %v", f)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return nil, fmt.Errorf("integer %v out of range", f)
	}
	return int(f), nil
}

func coerceFloat(value any, strict bool) (any, error) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("expected number, got %s", v.String())
		}
		f = parsed
	case string:
		if strict {
			return nil, fmt.Errorf("expected float, got string")
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("expected number, got %q", v)
		}
		f = parsed
	default:
		return nil, fmt.Errorf("expected float, got %T", value)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("expected finite number, got %v", f)
	}
	return f, nil
}

func coerceBool(value any, strict bool) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		if !strict {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("expected boolean, got %q", v)
			}
			return b, nil
		}
	}
	return nil, fmt.Errorf("expected bool, got %T", value)
}

func coerceStringList(value any) (any, error) {
	switch v := value.(type) {
	case []string:
		return checkUTF8List(append([]string{}, v...))
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("element %d: expected string, got %T", i, item)
			}
			out = append(out, s)
		}
		return checkUTF8List(out)
	}
	return nil, fmt.Errorf("expected string list, got %T", value)
}

// JSON encoding replaces invalid UTF-8 with U+FFFD, so such strings would not
// survive a round trip.
var errInvalidUTF8 = fmt.Errorf("string is not valid UTF-8")

func checkUTF8List(list []string) (any, error) {
	for i, s := range list {
		if !utf8.ValidString(s) {
			return nil, fmt.Errorf("element %d: %w", i, errInvalidUTF8)
		}
	}
	return list, nil
}
