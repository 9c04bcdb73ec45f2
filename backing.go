package filedb

import "github.com/eztools-software/filedb/internal/backing"

// Backing is the seekable byte-stream trait Create/Open persist through
// (spec.md §9, "Memory vs file backing"). Build one with OpenFileBacking or
// NewMemoryBacking.
type Backing = backing.Backing

// OpenFileBacking opens (creating if writable and absent) the database file
// at path as a Backing suitable for Create/Open.
func OpenFileBacking(path string, writable bool) (Backing, error) {
	return backing.OpenFile(path, writable)
}

// NewMemoryBacking returns an empty in-memory Backing.
func NewMemoryBacking() Backing {
	return backing.NewMemoryBacking()
}
