package record

import (
	"fmt"

	"github.com/eztools-software/filedb/internal/backing"
)

// CopyFrame copies the live frame (size prefix + payload, still encrypted
// if it was) at srcOffset verbatim to dstOffset, without decoding it
// (spec.md §4.8: "copy record bytes verbatim (encrypted payload
// included)"). It returns the number of bytes copied, including the size
// prefix. CopyFrame refuses to copy a tombstoned frame.
func CopyFrame(src backing.Backing, srcOffset int64, dst backing.Backing, dstOffset int64) (int, error) {
	size, err := readSize(src, srcOffset)
	if err != nil {
		return 0, err
	}
	if size < 0 {
		return 0, fmt.Errorf("record: refusing to copy tombstoned frame at offset %d", srcOffset)
	}
	total := sizePrefixBytes + int(size)
	buf := make([]byte, total)
	if _, err := src.ReadAt(buf, srcOffset); err != nil {
		return 0, fmt.Errorf("record: read frame to copy: %w", err)
	}
	if _, err := dst.WriteAt(buf, dstOffset); err != nil {
		return 0, fmt.Errorf("record: write copied frame: %w", err)
	}
	return total, nil
}
