package backing

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// FileBacking is a file-backed Backing. It issues golang.org/x/sys/unix
// Pread/Pwrite/Fsync directly rather than going through *os.File's own
// ReadAt/WriteAt/Sync, generalizing the teacher's raw syscall.Pwrite/
// syscall.Fsync durability pattern (Linux-only `syscall` package) into the
// portable golang.org/x/sys/unix equivalent used across the wider ecosystem.
type FileBacking struct {
	f        *os.File
	writable bool
}

// OpenFile opens (creating if necessary when writable) the database file at
// path. It mirrors the teacher's createFileSync: on creation of a brand new
// file it also fsyncs the parent directory entry so the file's existence
// survives a crash, not just its contents.
func OpenFile(path string, writable bool) (*FileBacking, error) {
	if path == "" {
		return nil, fmt.Errorf("empty filename")
	}

	flags := os.O_RDONLY
	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	if writable {
		flags = os.O_RDWR
		if isNew {
			flags |= os.O_CREATE
		}
	} else if isNew {
		return nil, fmt.Errorf("database file not found: %s", path)
	}

	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if writable && isNew {
		dir := filepath.Dir(path)
		if dirFd, derr := unix.Open(dir, unix.O_RDONLY|unix.O_DIRECTORY, 0); derr == nil {
			_ = unix.Fsync(dirFd)
			_ = unix.Close(dirFd)
		}
	}

	return &FileBacking{f: f, writable: writable}, nil
}

func (b *FileBacking) Len() (int64, error) {
	info, err := b.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (b *FileBacking) ReadAt(p []byte, off int64) (int, error) {
	n, err := unix.Pread(int(b.f.Fd()), p, off)
	if err != nil {
		return n, fmt.Errorf("pread: %w", err)
	}
	if n < len(p) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

func (b *FileBacking) WriteAt(p []byte, off int64) (int, error) {
	if !b.writable {
		return 0, fmt.Errorf("backing store is read-only")
	}
	n, err := unix.Pwrite(int(b.f.Fd()), p, off)
	if err != nil {
		return n, fmt.Errorf("pwrite: %w", err)
	}
	return n, nil
}

func (b *FileBacking) Truncate(size int64) error {
	if !b.writable {
		return fmt.Errorf("backing store is read-only")
	}
	return b.f.Truncate(size)
}

func (b *FileBacking) Flush() error {
	return unix.Fsync(int(b.f.Fd()))
}

func (b *FileBacking) Close() error {
	return b.f.Close()
}

func (b *FileBacking) Writable() bool { return b.writable }

// CopyTo implements Copier by streaming the full file content into dst.
func (b *FileBacking) CopyTo(dst Backing) error {
	size, err := b.Len()
	if err != nil {
		return err
	}
	const chunk = 1 << 20
	buf := make([]byte, chunk)
	var off int64
	for off < size {
		n := chunk
		if remaining := size - off; remaining < int64(n) {
			n = int(remaining)
		}
		if _, err := b.ReadAt(buf[:n], off); err != nil {
			return err
		}
		if _, err := dst.WriteAt(buf[:n], off); err != nil {
			return err
		}
		off += int64(n)
	}
	return dst.Truncate(size)
}
