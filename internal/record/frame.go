package record

import (
	"encoding/binary"
	"fmt"

	"github.com/eztools-software/filedb/internal/backing"
	"github.com/eztools-software/filedb/internal/crypt"
	"github.com/eztools-software/filedb/internal/schema"
	"github.com/eztools-software/filedb/internal/value"
)

// sizePrefixBytes is the width of a frame's leading size field
// (spec.md §4.2: "[size:i32]").
const sizePrefixBytes = 4

// EncodePayload serializes rec and, if cipher is set, encrypts the result —
// the exact bytes a frame's capacity is measured against for free-list
// first-fit (spec.md §4.4: ciphertext length when encryption is on).
// Callers that need to know a record's on-disk size before choosing where
// to write it call this first, then WriteRawFrame.
func EncodePayload(rec *Record, s *schema.Schema, cipher crypt.Cipher) ([]byte, error) {
	payload, err := Encode(rec, s)
	if err != nil {
		return nil, err
	}
	if cipher != nil {
		payload, err = cipher.Encrypt(payload)
		if err != nil {
			return nil, fmt.Errorf("record: encrypt frame: %w", err)
		}
	}
	return payload, nil
}

// WriteRawFrame writes [size:i32][payload] at offset, size always positive.
// It returns len(payload).
func WriteRawFrame(b backing.Backing, offset int64, payload []byte) (int, error) {
	var prefix [sizePrefixBytes]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(int32(len(payload))))
	if _, err := b.WriteAt(prefix[:], offset); err != nil {
		return 0, fmt.Errorf("record: write size prefix: %w", err)
	}
	if _, err := b.WriteAt(payload, offset+sizePrefixBytes); err != nil {
		return 0, fmt.Errorf("record: write payload: %w", err)
	}
	return len(payload), nil
}

// WriteFrame serializes rec, optionally runs it through cipher, and writes
// [size:i32][payload] at offset. size is always written positive; callers
// tombstone a slot afterward with Tombstone. It returns the written
// payload's length, which is also the slot's current capacity for
// free-list first-fit purposes (spec.md §4.4).
func WriteFrame(b backing.Backing, offset int64, rec *Record, s *schema.Schema, cipher crypt.Cipher) (int, error) {
	payload, err := EncodePayload(rec, s, cipher)
	if err != nil {
		return 0, err
	}
	return WriteRawFrame(b, offset, payload)
}

// ReadFrame reads the frame at offset, decrypting and decoding it. It
// reports whether the slot is tombstoned (negative size) along with the
// payload length (the slot's capacity).
func ReadFrame(b backing.Backing, offset int64, s *schema.Schema, cipher crypt.Cipher) (rec *Record, tombstoned bool, payloadLen int, err error) {
	size, err := readSize(b, offset)
	if err != nil {
		return nil, false, 0, err
	}
	tombstoned = size < 0
	n := int(abs32(size))

	payload := make([]byte, n)
	if _, err := b.ReadAt(payload, offset+sizePrefixBytes); err != nil {
		return nil, false, 0, fmt.Errorf("record: read payload: %w", err)
	}
	if cipher != nil {
		payload, err = cipher.Decrypt(payload)
		if err != nil {
			return nil, false, 0, fmt.Errorf("record: decrypt frame: %w", err)
		}
	}

	rec, err = Decode(payload, s)
	if err != nil {
		return nil, false, 0, err
	}
	return rec, tombstoned, n, nil
}

// ReadKeyOnly reads the frame at offset and decodes only its primary-key
// value, skipping the rest of the fields.
func ReadKeyOnly(b backing.Backing, offset int64, s *schema.Schema, cipher crypt.Cipher) (pkValue value.Value, isNull bool, tombstoned bool, err error) {
	size, err := readSize(b, offset)
	if err != nil {
		return value.Value{}, false, false, err
	}
	tombstoned = size < 0
	n := int(abs32(size))

	payload := make([]byte, n)
	if _, err := b.ReadAt(payload, offset+sizePrefixBytes); err != nil {
		return value.Value{}, false, false, fmt.Errorf("record: read payload: %w", err)
	}
	if cipher != nil {
		payload, err = cipher.Decrypt(payload)
		if err != nil {
			return value.Value{}, false, false, fmt.Errorf("record: decrypt frame: %w", err)
		}
	}

	v, null, err := DecodeKeyOnly(payload, s)
	if err != nil {
		return value.Value{}, false, false, err
	}
	return v, null, tombstoned, nil
}

// Tombstone negates the stored size at offset, marking the slot free. It is
// idempotent: tombstoning an already-tombstoned slot is a no-op.
func Tombstone(b backing.Backing, offset int64) error {
	size, err := readSize(b, offset)
	if err != nil {
		return err
	}
	if size < 0 {
		return nil
	}
	var buf [sizePrefixBytes]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(-size))
	_, err = b.WriteAt(buf[:], offset)
	return err
}

// CapacityAt reads the |size| of the slot at offset without decoding its
// payload, for free-list first-fit comparisons.
func CapacityAt(b backing.Backing, offset int64) (int, error) {
	size, err := readSize(b, offset)
	if err != nil {
		return 0, err
	}
	return int(abs32(size)), nil
}

func readSize(b backing.Backing, offset int64) (int32, error) {
	var buf [sizePrefixBytes]byte
	if _, err := b.ReadAt(buf[:], offset); err != nil {
		return 0, fmt.Errorf("record: read size prefix: %w", err)
	}
	return int32(binary.LittleEndian.Uint32(buf[:])), nil
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
