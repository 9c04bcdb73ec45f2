package filedb

import "github.com/eztools-software/filedb/internal/value"

// ValueKind identifies one of the eleven scalar field types spec.md §3
// defines. It is a re-export of the internal value package's Kind so
// callers outside this module can build Field descriptors without
// reaching into an internal package.
type ValueKind = value.Kind

const (
	KindBool       = value.KindBool
	KindByte       = value.KindByte
	KindInt32      = value.KindInt32
	KindUInt32     = value.KindUInt32
	KindInt64      = value.KindInt64
	KindFloat32    = value.KindFloat32
	KindFloat64    = value.KindFloat64
	KindDecimal128 = value.KindDecimal128
	KindDateTime   = value.KindDateTime
	KindString     = value.KindString
	KindGuid       = value.KindGuid
)
