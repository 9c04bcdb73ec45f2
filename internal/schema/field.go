// Package schema implements the fixed header, the schema descriptor, and
// field-level metadata described in spec.md §3 and §4.1.
package schema

import (
	"fmt"

	"github.com/eztools-software/filedb/internal/value"
)

// FieldFlag bits, written in the schema descriptor's per-field flags word
// (spec.md §4.1: "0x1 = autoinc, 0x2 = array").
const (
	FlagAutoInc uint32 = 0x1
	FlagArray   uint32 = 0x2
)

// Field describes one column: name, type, array-ness, ordinal position,
// primary-key-ness, autoincrement state, and an optional comment
// (spec.md §3, "Field descriptor").
type Field struct {
	Name         string
	Type         value.Kind
	IsArray      bool
	Ordinal      int
	IsPrimaryKey bool

	// AutoIncStart is nil when the field is not an autoincrement field.
	// Only Int32, non-array fields may be autoincrement (spec.md §3).
	AutoIncStart *int32
	CurAutoInc   int32

	Comment string
}

// NewField builds a plain, non-key, non-autoinc field descriptor; callers
// set IsPrimaryKey/AutoIncStart/Comment afterward as needed before the
// field list is handed to NewSchema, which validates and orders it.
func NewField(name string, typ value.Kind, isArray bool) Field {
	return Field{Name: name, Type: typ, IsArray: isArray}
}

// WithAutoInc returns a copy of f configured as an autoincrement field
// starting at start.
func (f Field) WithAutoInc(start int32) Field {
	f.AutoIncStart = &start
	f.CurAutoInc = start
	return f
}

// WithComment returns a copy of f carrying the given comment.
func (f Field) WithComment(c string) Field {
	f.Comment = c
	return f
}

// validate checks the invariants spec.md §3 places on a single field in
// isolation (type validity, PK type restriction, autoinc restriction).
func (f Field) validate() error {
	if f.Name == "" {
		return fmt.Errorf("field name is empty")
	}
	if !f.Type.Valid() {
		return fmt.Errorf("invalid type in schema for field %q", f.Name)
	}
	if f.IsPrimaryKey {
		if f.IsArray {
			return fmt.Errorf("invalid primary key type for field %q: array fields cannot be primary keys", f.Name)
		}
		if f.Type != value.KindInt32 && f.Type != value.KindString {
			return fmt.Errorf("invalid primary key type for field %q: must be Int32 or String", f.Name)
		}
	}
	if f.AutoIncStart != nil {
		if f.IsArray || f.Type != value.KindInt32 {
			return fmt.Errorf("field %q: autoincrement is only valid for non-array Int32 fields", f.Name)
		}
	}
	return nil
}

func (f Field) flags() uint32 {
	var fl uint32
	if f.AutoIncStart != nil {
		fl |= FlagAutoInc
	}
	if f.IsArray {
		fl |= FlagArray
	}
	return fl
}
