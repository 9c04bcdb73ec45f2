// Package value implements the typed scalar variant that backs every field
// value in a record (spec.md §3, §9 "Polymorphic field values"): a tagged
// struct with one case per supported data type, plus a dedicated array
// wrapper, instead of the boxed-object representation the source uses.
package value

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind enumerates the eleven field data types spec.md §3 supports. The
// numeric values are this module's own wire type codes (spec.md §4.1 leaves
// the concrete type_code values unspecified, only the field width); they are
// stable across versions of this module and documented here for anyone
// reading raw bytes off disk.
type Kind int16

const (
	KindBool Kind = iota + 1
	KindByte
	KindInt32
	KindUInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindDecimal128
	KindDateTime
	KindString
	KindGuid
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "Bool"
	case KindByte:
		return "Byte"
	case KindInt32:
		return "Int32"
	case KindUInt32:
		return "UInt32"
	case KindInt64:
		return "Int64"
	case KindFloat32:
		return "Float32"
	case KindFloat64:
		return "Float64"
	case KindDecimal128:
		return "Decimal128"
	case KindDateTime:
		return "DateTime"
	case KindString:
		return "String"
	case KindGuid:
		return "Guid"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Valid reports whether k is one of the eleven known scalar kinds.
func (k Kind) Valid() bool { return k >= KindBool && k <= KindGuid }

// DateTimeKind mirrors the source's DateTimeKind enum, persisted as the
// trailing byte of the 10-byte DateTime wire encoding (spec.md §4.1).
type DateTimeKind uint8

const (
	Unspecified DateTimeKind = 0
	UTC         DateTimeKind = 1
	Local       DateTimeKind = 2
)

// Value is the tagged scalar/array variant every record field holds. Null is
// tracked separately by the record's nullmask (spec.md §3); a Value read
// from a null field is the zero Value of its Kind and must not be consulted.
//
// Arrays hold their element Kind in Kind and their per-element payload in
// arr; IsArray distinguishes a Guid array from a bare Guid, etc. Array
// elements are never themselves arrays or null (spec.md §3: "no
// per-element nullability").
type Value struct {
	Kind    Kind
	IsArray bool

	b    bool
	byt  byte
	i32  int32
	u32  uint32
	i64  int64
	f32  float32
	f64  float64
	dec  decimal.Decimal
	dt   time.Time
	dtK  DateTimeKind
	str  string
	guid uuid.UUID

	arr []Value
}

func Bool(v bool) Value                   { return Value{Kind: KindBool, b: v} }
func ByteVal(v byte) Value                { return Value{Kind: KindByte, byt: v} }
func Int32(v int32) Value                 { return Value{Kind: KindInt32, i32: v} }
func UInt32(v uint32) Value               { return Value{Kind: KindUInt32, u32: v} }
func Int64(v int64) Value                 { return Value{Kind: KindInt64, i64: v} }
func Float32(v float32) Value             { return Value{Kind: KindFloat32, f32: v} }
func Float64(v float64) Value             { return Value{Kind: KindFloat64, f64: v} }
func Decimal(v decimal.Decimal) Value     { return Value{Kind: KindDecimal128, dec: v} }
func String(v string) Value               { return Value{Kind: KindString, str: v} }
func Guid(v uuid.UUID) Value              { return Value{Kind: KindGuid, guid: v} }

// DateTime builds a DateTime value; kind records the source's original
// DateTimeKind tag since Go's time.Time does not distinguish "local" from
// "unspecified".
func DateTime(v time.Time, kind DateTimeKind) Value {
	return Value{Kind: KindDateTime, dt: v, dtK: kind}
}

// Array wraps elems (each of kind and non-array) as an array Value.
func Array(kind Kind, elems []Value) Value {
	return Value{Kind: kind, IsArray: true, arr: elems}
}

func (v Value) AsBool() bool             { return v.b }
func (v Value) AsByte() byte             { return v.byt }
func (v Value) AsInt32() int32           { return v.i32 }
func (v Value) AsUInt32() uint32         { return v.u32 }
func (v Value) AsInt64() int64           { return v.i64 }
func (v Value) AsFloat32() float32       { return v.f32 }
func (v Value) AsFloat64() float64       { return v.f64 }
func (v Value) AsDecimal() decimal.Decimal { return v.dec }
func (v Value) AsDateTime() time.Time    { return v.dt }
func (v Value) DateTimeKind() DateTimeKind { return v.dtK }
func (v Value) AsString() string         { return v.str }
func (v Value) AsGuid() uuid.UUID        { return v.guid }
func (v Value) AsArray() []Value         { return v.arr }

// Equal reports deep equality of two values, used by codec round-trip tests
// (spec.md §8 property 5) and by the evaluator's Eq/Ne/In operators.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind || v.IsArray != o.IsArray {
		return false
	}
	if v.IsArray {
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	}
	switch v.Kind {
	case KindBool:
		return v.b == o.b
	case KindByte:
		return v.byt == o.byt
	case KindInt32:
		return v.i32 == o.i32
	case KindUInt32:
		return v.u32 == o.u32
	case KindInt64:
		return v.i64 == o.i64
	case KindFloat32:
		return v.f32 == o.f32
	case KindFloat64:
		return v.f64 == o.f64
	case KindDecimal128:
		return v.dec.Equal(o.dec)
	case KindDateTime:
		return v.dt.Equal(o.dt) && v.dtK == o.dtK
	case KindString:
		return v.str == o.str
	case KindGuid:
		return v.guid == o.guid
	}
	return false
}

// Compare returns -1/0/1 for ordering comparisons on numeric, string, and
// datetime kinds. Callers must not use the result for types where ordering
// is undefined (arrays); the filter evaluator guards this itself.
func (v Value) Compare(o Value) int {
	switch v.Kind {
	case KindBool:
		return boolCmp(v.b, o.b)
	case KindByte:
		return intCmp(int64(v.byt), int64(o.byt))
	case KindInt32:
		return intCmp(int64(v.i32), int64(o.i32))
	case KindUInt32:
		return intCmp(int64(v.u32), int64(o.u32))
	case KindInt64:
		return intCmp(v.i64, o.i64)
	case KindFloat32:
		return floatCmp(float64(v.f32), float64(o.f32))
	case KindFloat64:
		return floatCmp(v.f64, o.f64)
	case KindDecimal128:
		return v.dec.Cmp(o.dec)
	case KindDateTime:
		if v.dt.Before(o.dt) {
			return -1
		}
		if v.dt.After(o.dt) {
			return 1
		}
		return 0
	case KindString:
		if v.str < o.str {
			return -1
		}
		if v.str > o.str {
			return 1
		}
		return 0
	case KindGuid:
		for i := 0; i < 16; i++ {
			if v.guid[i] != o.guid[i] {
				if v.guid[i] < o.guid[i] {
					return -1
				}
				return 1
			}
		}
		return 0
	}
	return 0
}

func boolCmp(a, b bool) int {
	if a == b {
		return 0
	}
	if !a && b {
		return -1
	}
	return 1
}

func intCmp(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func floatCmp(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Text renders the value's textual representation, used by CONTAINS
// substring matching and by diagnostics (spec.md §4.6).
func (v Value) Text() string {
	if v.IsArray {
		return "[array]"
	}
	switch v.Kind {
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindByte:
		return fmt.Sprintf("%d", v.byt)
	case KindInt32:
		return fmt.Sprintf("%d", v.i32)
	case KindUInt32:
		return fmt.Sprintf("%d", v.u32)
	case KindInt64:
		return fmt.Sprintf("%d", v.i64)
	case KindFloat32:
		return fmt.Sprintf("%g", v.f32)
	case KindFloat64:
		return fmt.Sprintf("%g", v.f64)
	case KindDecimal128:
		return v.dec.String()
	case KindDateTime:
		return v.dt.Format(time.RFC3339Nano)
	case KindString:
		return v.str
	case KindGuid:
		return v.guid.String()
	}
	return ""
}
