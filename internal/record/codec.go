package record

import (
	"bytes"
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/eztools-software/filedb/internal/schema"
	"github.com/eztools-software/filedb/internal/value"
)

// Encode serializes rec as [nullmask][fields], the payload that sits after
// the frame's size prefix and (optionally) inside the encryption envelope
// (spec.md §4.2).
func Encode(rec *Record, s *schema.Schema) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(packNullmask(rec.Null, len(s.Fields)))

	for i, f := range s.Fields {
		if rec.Null.Test(uint(i)) {
			continue
		}
		if err := value.WriteTo(&buf, rec.Fields[i]); err != nil {
			return nil, fmt.Errorf("record: encode field %q: %w", f.Name, err)
		}
	}
	return buf.Bytes(), nil
}

// Decode parses a [nullmask][fields] payload back into a Record.
func Decode(payload []byte, s *schema.Schema) (*Record, error) {
	nmBytes := s.NullmaskBytes()
	if len(payload) < nmBytes {
		return nil, fmt.Errorf("record: payload shorter than nullmask (%d < %d)", len(payload), nmBytes)
	}
	null := unpackNullmask(payload[:nmBytes], len(s.Fields))

	r := value.NewReader(payload[nmBytes:])
	fields := make([]value.Value, len(s.Fields))
	for i, f := range s.Fields {
		if null.Test(uint(i)) {
			continue
		}
		v, err := value.ReadValue(r, f.Type, f.IsArray)
		if err != nil {
			return nil, fmt.Errorf("record: decode field %q: %w", f.Name, err)
		}
		fields[i] = v
	}
	return &Record{Null: null, Present: fullBitset(uint(len(s.Fields))), Fields: fields}, nil
}

// DecodeKeyOnly parses only the primary-key field (ordinal 0) out of a
// payload, skipping every other field. Used by the index for binary-search
// probes that would otherwise decode and discard the whole row (spec.md
// §4.4: "the index never needs more than the key field to compare").
func DecodeKeyOnly(payload []byte, s *schema.Schema) (value.Value, bool, error) {
	if !s.HasPrimaryKey() {
		return value.Value{}, false, fmt.Errorf("record: schema has no primary key")
	}
	nmBytes := s.NullmaskBytes()
	if len(payload) < nmBytes {
		return value.Value{}, false, fmt.Errorf("record: payload shorter than nullmask")
	}
	null := unpackNullmask(payload[:nmBytes], len(s.Fields))
	pk := s.PK()
	if null.Test(0) {
		return value.Value{}, true, nil
	}

	r := value.NewReader(payload[nmBytes:])
	v, err := value.ReadValue(r, pk.Type, pk.IsArray)
	if err != nil {
		return value.Value{}, false, fmt.Errorf("record: decode key field: %w", err)
	}
	return v, false, nil
}

func packNullmask(null *bitset.BitSet, numFields int) []byte {
	n := (numFields + 7) / 8
	out := make([]byte, n)
	for i := 0; i < numFields; i++ {
		if null.Test(uint(i)) {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

func unpackNullmask(b []byte, numFields int) *bitset.BitSet {
	bs := bitset.New(uint(numFields))
	for i := 0; i < numFields; i++ {
		if b[i/8]&(1<<uint(i%8)) != 0 {
			bs.Set(uint(i))
		}
	}
	return bs
}
