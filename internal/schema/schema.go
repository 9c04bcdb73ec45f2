package schema

import "strings"

// Schema is the ordered list of field descriptors for the table. If one
// field is the primary key it is always at ordinal 0 (spec.md §3: "If a
// field is the primary key, it is moved to ordinal 0 at creation and
// persisted first").
type Schema struct {
	Fields       []Field
	PrimaryKey   int // index into Fields, or -1 if none
}

// NewSchema validates fields and returns an ordered Schema with the primary
// key (if any) moved to ordinal 0.
func NewSchema(fields []Field) (*Schema, error) {
	if len(fields) == 0 {
		return nil, errFieldListEmpty
	}

	seen := make(map[string]bool, len(fields))
	pkCount := 0
	for _, f := range fields {
		if err := f.validate(); err != nil {
			return nil, err
		}
		lower := strings.ToLower(f.Name)
		if seen[lower] {
			return nil, errDuplicateName(f.Name)
		}
		seen[lower] = true
		if f.IsPrimaryKey {
			pkCount++
		}
	}
	if pkCount > 1 {
		return nil, errMultiplePK
	}

	ordered := make([]Field, 0, len(fields))
	pkIdx := -1
	for _, f := range fields {
		if f.IsPrimaryKey {
			pkIdx = len(ordered)
			ordered = append(ordered, f)
		}
	}
	for _, f := range fields {
		if !f.IsPrimaryKey {
			ordered = append(ordered, f)
		}
	}
	for i := range ordered {
		ordered[i].Ordinal = i
	}

	return &Schema{Fields: ordered, PrimaryKey: pkIdx}, nil
}

// HasPrimaryKey reports whether the table has a primary key field.
func (s *Schema) HasPrimaryKey() bool { return s.PrimaryKey >= 0 }

// PK returns the primary key field; callers must check HasPrimaryKey first.
func (s *Schema) PK() *Field { return &s.Fields[s.PrimaryKey] }

// FieldByName looks up a field case-insensitively, as required by
// spec.md §3 ("Name (case-insensitive unique per table)").
func (s *Schema) FieldByName(name string) (*Field, int, bool) {
	lower := strings.ToLower(name)
	for i := range s.Fields {
		if strings.ToLower(s.Fields[i].Name) == lower {
			return &s.Fields[i], i, true
		}
	}
	return nil, -1, false
}

// NullmaskBytes returns the byte width of the per-record null bitmask,
// ceil(field_count / 8) per spec.md §4.1.
func (s *Schema) NullmaskBytes() int {
	return (len(s.Fields) + 7) / 8
}

// Clone deep-copies the schema, used before mutating it in place for schema
// evolution so the original stays valid until the rewrite commits.
func (s *Schema) Clone() *Schema {
	fields := make([]Field, len(s.Fields))
	for i, f := range s.Fields {
		cp := f
		if f.AutoIncStart != nil {
			v := *f.AutoIncStart
			cp.AutoIncStart = &v
		}
		fields[i] = cp
	}
	return &Schema{Fields: fields, PrimaryKey: s.PrimaryKey}
}

// WithAddedFields returns a new Schema with extra fields appended after the
// existing ones (spec.md §4.5, add_fields). Extra fields may not be primary
// keys (spec.md error PrimaryKeyCannotBeAdded is enforced by the caller,
// which checks IsPrimaryKey before calling this).
func (s *Schema) WithAddedFields(extra []Field) (*Schema, error) {
	all := append(append([]Field{}, s.Fields...), extra...)
	return NewSchema(all)
}

// WithoutFields returns a new Schema with the named fields removed.
func (s *Schema) WithoutFields(names []string) (*Schema, error) {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[strings.ToLower(n)] = true
	}
	kept := make([]Field, 0, len(s.Fields))
	for _, f := range s.Fields {
		if !drop[strings.ToLower(f.Name)] {
			kept = append(kept, f)
		}
	}
	return NewSchema(kept)
}

// WithRenamedField returns a new Schema with oldName renamed to newName,
// preserving ordinal order and all other metadata.
func (s *Schema) WithRenamedField(oldName, newName string) (*Schema, error) {
	fields := make([]Field, len(s.Fields))
	copy(fields, s.Fields)
	found := false
	for i := range fields {
		if strings.EqualFold(fields[i].Name, oldName) {
			fields[i].Name = newName
			found = true
			break
		}
	}
	if !found {
		return nil, errFieldNotFound(oldName)
	}
	return NewSchema(fields)
}
