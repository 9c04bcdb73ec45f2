// Package index implements the in-memory live-index and free-list arrays,
// their persistence at the file tail, and the primary-key binary search
// (spec.md §4.3, §4.4).
package index

import (
	"encoding/binary"
	"fmt"

	"github.com/eztools-software/filedb/internal/backing"
	"github.com/eztools-software/filedb/internal/crypt"
	"github.com/eztools-software/filedb/internal/record"
	"github.com/eztools-software/filedb/internal/schema"
	"github.com/eztools-software/filedb/internal/value"
)

// Index holds the two offset arrays the engine keeps entirely in memory
// between persists: Live (sorted by primary key when one exists, else
// insertion order) and Free (tombstoned slots available for reuse).
type Index struct {
	Live []int32
	Free []int32
}

// Load reads the live index, free-list, and trailing user blob from the
// file tail, starting at h.IndexStartOffset, using h.NumRecords/
// h.NumDeleted as the array lengths (spec.md §4.3). The user blob occupies
// whatever remains between the end of the free list and the end of the
// stream; there is no separate length field for it (spec.md §4.1, "opt").
func Load(b backing.Backing, h *schema.Header) (*Index, []byte, error) {
	ix := &Index{
		Live: make([]int32, h.NumRecords),
		Free: make([]int32, h.NumDeleted),
	}
	off := int64(h.IndexStartOffset)

	if err := readOffsets(b, off, ix.Live); err != nil {
		return nil, nil, fmt.Errorf("index: read live index: %w", err)
	}
	off += 4 * int64(len(ix.Live))

	if err := readOffsets(b, off, ix.Free); err != nil {
		return nil, nil, fmt.Errorf("index: read free list: %w", err)
	}
	off += 4 * int64(len(ix.Free))

	length, err := b.Len()
	if err != nil {
		return nil, nil, fmt.Errorf("index: stream length: %w", err)
	}
	blobLen := length - off
	if blobLen <= 0 {
		return ix, nil, nil
	}
	blob := make([]byte, blobLen)
	if _, err := b.ReadAt(blob, off); err != nil {
		return nil, nil, fmt.Errorf("index: read user blob: %w", err)
	}
	return ix, blob, nil
}

// Persist writes the live index, the free list, and userBlob at
// indexStart, then truncates the stream to exactly that length
// (spec.md §4.3: "write_index").
func (ix *Index) Persist(b backing.Backing, indexStart int64, userBlob []byte) error {
	buf := make([]byte, 4*(len(ix.Live)+len(ix.Free))+len(userBlob))
	pos := 0
	for _, o := range ix.Live {
		binary.LittleEndian.PutUint32(buf[pos:], uint32(o))
		pos += 4
	}
	for _, o := range ix.Free {
		binary.LittleEndian.PutUint32(buf[pos:], uint32(o))
		pos += 4
	}
	copy(buf[pos:], userBlob)

	if _, err := b.WriteAt(buf, indexStart); err != nil {
		return fmt.Errorf("index: write tail: %w", err)
	}
	return b.Truncate(indexStart + int64(len(buf)))
}

func readOffsets(b backing.Backing, off int64, dst []int32) error {
	if len(dst) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(dst))
	if _, err := b.ReadAt(buf, off); err != nil {
		return err
	}
	for i := range dst {
		dst[i] = int32(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return nil
}

// Search performs a lower-bound binary search for key over the live index,
// reading only the primary-key field of each probed record (spec.md §4.4).
// found reports an exact match; pos is either the matching position or the
// insertion position that keeps Live sorted.
func Search(b backing.Backing, s *schema.Schema, cipher crypt.Cipher, live []int32, key value.Value) (pos int, found bool, err error) {
	lo, hi := 0, len(live)
	for lo < hi {
		mid := (lo + hi) / 2
		probe, isNull, _, rerr := record.ReadKeyOnly(b, int64(live[mid]), s, cipher)
		if rerr != nil {
			return 0, false, fmt.Errorf("index: probe offset %d: %w", live[mid], rerr)
		}
		if isNull {
			return 0, false, fmt.Errorf("index: primary key field is null at offset %d", live[mid])
		}
		if probe.Compare(key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(live) {
		probe, isNull, _, rerr := record.ReadKeyOnly(b, int64(live[lo]), s, cipher)
		if rerr != nil {
			return 0, false, fmt.Errorf("index: probe offset %d: %w", live[lo], rerr)
		}
		if !isNull && probe.Equal(key) {
			return lo, true, nil
		}
	}
	return lo, false, nil
}

// FirstFit scans the free list for the first tombstoned slot whose
// capacity is at least need bytes (spec.md §4.4, "Walk free_list
// first-fit"). It returns the slot's position within Free, its offset, and
// whether one was found.
func FirstFit(b backing.Backing, free []int32, need int) (pos int, offset int32, ok bool, err error) {
	for i, off := range free {
		cap, cerr := record.CapacityAt(b, int64(off))
		if cerr != nil {
			return 0, 0, false, fmt.Errorf("index: capacity at offset %d: %w", off, cerr)
		}
		if cap >= need {
			return i, off, true, nil
		}
	}
	return 0, 0, false, nil
}

// InsertLiveAt inserts offset into Live at pos, shifting later entries up.
func (ix *Index) InsertLiveAt(pos int, offset int32) {
	ix.Live = append(ix.Live, 0)
	copy(ix.Live[pos+1:], ix.Live[pos:])
	ix.Live[pos] = offset
}

// RemoveLiveAt removes and returns the offset at pos in Live.
func (ix *Index) RemoveLiveAt(pos int) int32 {
	off := ix.Live[pos]
	ix.Live = append(ix.Live[:pos], ix.Live[pos+1:]...)
	return off
}

// RemoveFreeAt removes the entry at pos in Free.
func (ix *Index) RemoveFreeAt(pos int) {
	ix.Free = append(ix.Free[:pos], ix.Free[pos+1:]...)
}

// PushFree appends offset to Free (a newly tombstoned slot).
func (ix *Index) PushFree(offset int32) {
	ix.Free = append(ix.Free, offset)
}
