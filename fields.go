package filedb

import "github.com/eztools-software/filedb/internal/schema"

// Field describes one column passed to Create/AddFields: name, type,
// array-ness, primary-key-ness, and optional autoincrement/comment
// metadata (spec.md §3).
type Field = schema.Field

// NewField builds a plain, non-key, non-autoinc field descriptor. Chain
// WithAutoInc/WithComment, or set IsPrimaryKey directly, before passing the
// result to Create or AddFields.
func NewField(name string, kind ValueKind, isArray bool) Field {
	return schema.NewField(name, kind, isArray)
}
