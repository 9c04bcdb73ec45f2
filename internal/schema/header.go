package schema

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/eztools-software/filedb/internal/backing"
)

// Signature is the fixed 4-byte magic every valid database file starts with
// (spec.md §4.1, §8 property 1).
const Signature uint32 = 0x0123BABE

// CurrentMajor and CurrentMinor identify the format version this module
// writes (spec.md §4.1: "Major version (current = 6)").
const (
	CurrentMajor byte = 6
	CurrentMinor byte = 0
)

// MinReadableMajor is the oldest major version this module can open
// read-only and upgrade (spec.md §6: "older major versions (>= 2) must be
// readable and convertible to 6 via the upgrade path").
const MinReadableMajor byte = 2

const (
	FlagEncrypted uint32 = 0x1
)

// Header is the fixed leading structure of the file (spec.md §4.1).
type Header struct {
	Major byte
	Minor byte
	Flags uint32

	NumRecords       int32
	NumDeleted       int32
	IndexStartOffset int32
	UserVersion      float32 // present when Major >= 3
}

// Size returns the byte width of the fixed header fields preceding the
// schema descriptor: the counters start at H (14 when major >= 6, else 6),
// followed by the three int32 counters and, when major >= 3, the user
// version, so a major-6 header is 30 bytes.
func (h *Header) Size() int {
	n := 6
	if h.Major >= 6 {
		n += 8
	}
	n += 12
	if h.Major >= 3 {
		n += 4
	}
	return n
}

// IsEncrypted reports whether the encrypted flag bit is set.
func (h *Header) IsEncrypted() bool { return h.Flags&FlagEncrypted != 0 }

// ReadHeader parses the header starting at offset 0 of b.
func ReadHeader(b backing.Backing) (*Header, error) {
	head := make([]byte, 4)
	if _, err := b.ReadAt(head, 0); err != nil {
		return nil, fmt.Errorf("read signature: %w", err)
	}
	sig := binary.LittleEndian.Uint32(head)
	if sig != Signature {
		return nil, fmt.Errorf("invalid signature %#x", sig)
	}

	verBuf := make([]byte, 2)
	if _, err := b.ReadAt(verBuf, 4); err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	h := &Header{Major: verBuf[0], Minor: verBuf[1]}
	if h.Major > CurrentMajor {
		return nil, fmt.Errorf("unsupported newer version %d.%d", h.Major, h.Minor)
	}
	if h.Major < MinReadableMajor {
		return nil, fmt.Errorf("unsupported older version %d.%d", h.Major, h.Minor)
	}

	pos := int64(6)
	if h.Major >= 6 {
		fr := make([]byte, 8)
		if _, err := b.ReadAt(fr, pos); err != nil {
			return nil, fmt.Errorf("read flags: %w", err)
		}
		h.Flags = binary.LittleEndian.Uint32(fr[0:4])
		// bytes 4:8 are the reserved word, intentionally ignored.
		pos += 8
	}

	counters := make([]byte, 12)
	if _, err := b.ReadAt(counters, pos); err != nil {
		return nil, fmt.Errorf("read counters: %w", err)
	}
	h.NumRecords = int32(binary.LittleEndian.Uint32(counters[0:4]))
	h.NumDeleted = int32(binary.LittleEndian.Uint32(counters[4:8]))
	h.IndexStartOffset = int32(binary.LittleEndian.Uint32(counters[8:12]))
	pos += 12

	if h.Major >= 3 {
		uv := make([]byte, 4)
		if _, err := b.ReadAt(uv, pos); err != nil {
			return nil, fmt.Errorf("read user version: %w", err)
		}
		bits := binary.LittleEndian.Uint32(uv)
		h.UserVersion = float32FromBits(bits)
	}

	return h, nil
}

// WriteHeader serializes h at offset 0 of b, in the layout of h.Major: the
// flags and reserved word are written only when major >= 6 and the user
// version only when major >= 3, so the bytes written are h.Size() long.
func WriteHeader(b backing.Backing, h *Header) error {
	var buf bytes.Buffer
	var sigBuf [4]byte
	binary.LittleEndian.PutUint32(sigBuf[:], Signature)
	buf.Write(sigBuf[:])
	buf.WriteByte(h.Major)
	buf.WriteByte(h.Minor)

	if h.Major >= 6 {
		binary.Write(&buf, binary.LittleEndian, h.Flags)
		binary.Write(&buf, binary.LittleEndian, uint32(0))
	}

	binary.Write(&buf, binary.LittleEndian, h.NumRecords)
	binary.Write(&buf, binary.LittleEndian, h.NumDeleted)
	binary.Write(&buf, binary.LittleEndian, h.IndexStartOffset)

	if h.Major >= 3 {
		binary.Write(&buf, binary.LittleEndian, float32Bits(h.UserVersion))
	}

	_, err := b.WriteAt(buf.Bytes(), 0)
	return err
}

func float32Bits(f float32) uint32 {
	return math.Float32bits(f)
}

func float32FromBits(b uint32) float32 {
	return math.Float32frombits(b)
}
