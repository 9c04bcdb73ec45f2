// Package backing implements the seekable byte-stream abstraction the
// storage engine persists through — a file or an in-memory buffer, chosen at
// construction time (spec.md §9, "Memory vs file backing"). No other part of
// this module touches the filesystem or a raw []byte buffer directly.
package backing

// Backing is the trait every persistence operation in the storage engine
// goes through. It intentionally looks like a narrowed-down *os.File: the
// engine always knows the absolute offset it wants to read or write, so
// every call is positional (ReadAt/WriteAt) rather than stateful-seek based.
type Backing interface {
	// Len returns the current logical length of the backing store.
	Len() (int64, error)

	// ReadAt reads len(p) bytes starting at off. It behaves like io.ReaderAt:
	// a short read past EOF is an error.
	ReadAt(p []byte, off int64) (int, error)

	// WriteAt writes p at off, growing the backing store if necessary.
	WriteAt(p []byte, off int64) (int, error)

	// Truncate resizes the backing store to exactly size bytes.
	Truncate(size int64) error

	// Flush pushes buffered writes to stable storage (a no-op for memory
	// backings).
	Flush() error

	// Close releases any underlying resource (file descriptor, etc).
	Close() error

	// Writable reports whether the backing was opened for writing.
	Writable() bool
}

// Copier is implemented by backings that can produce an independent,
// detached copy of their current bytes — used by the transaction snapshot
// (spec.md §4.10) and by compaction staging (spec.md §4.8).
type Copier interface {
	CopyTo(dst Backing) error
}
