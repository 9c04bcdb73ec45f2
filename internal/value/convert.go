package value

import (
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FromAny converts a Go-native value supplied through the public map-based
// API (spec.md §9: "the core only speaks in {field_name -> value} maps and
// typed scalar variants") into a Value of the given kind/array-ness,
// converting where a safe widening/narrowing conversion exists and
// rejecting otherwise with a descriptive error.
func FromAny(kind Kind, isArray bool, v any) (Value, error) {
	if isArray {
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return Value{}, fmt.Errorf("value: expected array for kind %v, got %T", kind, v)
		}
		elems := make([]Value, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			e, err := FromAny(kind, false, rv.Index(i).Interface())
			if err != nil {
				return Value{}, err
			}
			elems[i] = e
		}
		return Array(kind, elems), nil
	}

	switch kind {
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return Value{}, fmt.Errorf("value: expected bool, got %T", v)
		}
		return Bool(b), nil
	case KindByte:
		n, err := toInt64(v)
		if err != nil {
			return Value{}, err
		}
		return ByteVal(byte(n)), nil
	case KindInt32:
		n, err := toInt64(v)
		if err != nil {
			return Value{}, err
		}
		return Int32(int32(n)), nil
	case KindUInt32:
		n, err := toInt64(v)
		if err != nil {
			return Value{}, err
		}
		return UInt32(uint32(n)), nil
	case KindInt64:
		n, err := toInt64(v)
		if err != nil {
			return Value{}, err
		}
		return Int64(n), nil
	case KindFloat32:
		f, err := toFloat64(v)
		if err != nil {
			return Value{}, err
		}
		return Float32(float32(f)), nil
	case KindFloat64:
		f, err := toFloat64(v)
		if err != nil {
			return Value{}, err
		}
		return Float64(f), nil
	case KindDecimal128:
		switch t := v.(type) {
		case decimal.Decimal:
			return Decimal(t), nil
		case string:
			d, err := decimal.NewFromString(t)
			if err != nil {
				return Value{}, fmt.Errorf("value: invalid decimal %q: %w", t, err)
			}
			return Decimal(d), nil
		case float64:
			return Decimal(decimal.NewFromFloat(t)), nil
		default:
			return Value{}, fmt.Errorf("value: expected decimal, got %T", v)
		}
	case KindDateTime:
		switch t := v.(type) {
		case time.Time:
			k := Unspecified
			if t.Location() == time.UTC {
				k = UTC
			} else if t.Location() == time.Local {
				k = Local
			}
			return DateTime(t, k), nil
		default:
			return Value{}, fmt.Errorf("value: expected time.Time, got %T", v)
		}
	case KindString:
		s, ok := v.(string)
		if !ok {
			return Value{}, fmt.Errorf("value: expected string, got %T", v)
		}
		return String(s), nil
	case KindGuid:
		switch t := v.(type) {
		case uuid.UUID:
			return Guid(t), nil
		case string:
			g, err := uuid.Parse(t)
			if err != nil {
				return Value{}, fmt.Errorf("value: invalid guid %q: %w", t, err)
			}
			return Guid(g), nil
		case []byte:
			if len(t) != 16 {
				return Value{}, fmt.Errorf("value: guid byte array must be 16 bytes")
			}
			var g uuid.UUID
			copy(g[:], t)
			return Guid(g), nil
		default:
			return Value{}, fmt.Errorf("value: guid must be uuid.UUID, string, or []byte, got %T", v)
		}
	}
	return Value{}, fmt.Errorf("value: unknown kind %v", kind)
}

// ToAny converts v back into an idiomatic Go-native value for the public
// API's returned records.
func ToAny(v Value) any {
	if v.IsArray {
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = ToAny(e)
		}
		return out
	}
	switch v.Kind {
	case KindBool:
		return v.b
	case KindByte:
		return v.byt
	case KindInt32:
		return v.i32
	case KindUInt32:
		return v.u32
	case KindInt64:
		return v.i64
	case KindFloat32:
		return v.f32
	case KindFloat64:
		return v.f64
	case KindDecimal128:
		return v.dec
	case KindDateTime:
		return v.dt
	case KindString:
		return v.str
	case KindGuid:
		return v.guid
	}
	return nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("value: cannot convert %T to integer", v)
	}
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("value: cannot convert %T to float", v)
	}
}

// CoerceFromString converts a parsed filter-literal string into a Value of
// kind, used when the filter parser yields a string atom for a non-string
// field (spec.md §4.6, "In rhs ... coerced to the field type ... lazily,
// once").
func CoerceFromString(kind Kind, s string) (Value, error) {
	switch kind {
	case KindString:
		return String(s), nil
	case KindGuid:
		g, err := uuid.Parse(s)
		if err != nil {
			return Value{}, fmt.Errorf("value: invalid guid literal %q: %w", s, err)
		}
		return Guid(g), nil
	case KindDecimal128:
		d, err := decimal.NewFromString(s)
		if err != nil {
			return Value{}, fmt.Errorf("value: invalid decimal literal %q: %w", s, err)
		}
		return Decimal(d), nil
	case KindDateTime:
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return Value{}, fmt.Errorf("value: invalid datetime literal %q: %w", s, err)
		}
		return DateTime(t, UTC), nil
	default:
		var f float64
		var err error
		if f, err = parseFloatStrict(s); err != nil {
			return Value{}, fmt.Errorf("value: cannot coerce literal %q to %v: %w", s, kind, err)
		}
		return FromAny(kind, false, f)
	}
}

func parseFloatStrict(s string) (float64, error) {
	var f float64
	n, err := fmt.Sscanf(s, "%g", &f)
	if err != nil || n != 1 {
		return 0, fmt.Errorf("not a number")
	}
	return f, nil
}
