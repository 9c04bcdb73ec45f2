package schema

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/eztools-software/filedb/internal/value"
)

// EncodeDescriptor writes the schema descriptor: primary key name, field
// count, then each field in write order (PK first, already guaranteed by
// NewSchema) — spec.md §4.1, "Schema descriptor".
func EncodeDescriptor(buf *bytes.Buffer, s *Schema, major byte) {
	pkName := ""
	if s.HasPrimaryKey() {
		pkName = s.PK().Name
	}
	value.WriteLenString(buf, pkName)
	binary.Write(buf, binary.LittleEndian, int32(len(s.Fields)))

	for _, f := range s.Fields {
		value.WriteLenString(buf, f.Name)
		binary.Write(buf, binary.LittleEndian, int16(f.Type))
		binary.Write(buf, binary.LittleEndian, f.flags())
		if f.AutoIncStart != nil {
			binary.Write(buf, binary.LittleEndian, *f.AutoIncStart)
			binary.Write(buf, binary.LittleEndian, f.CurAutoInc)
		}
		if major >= 2 {
			value.WriteLenString(buf, f.Comment)
		}
	}
}

// DecodeDescriptor parses a schema descriptor out of buf starting at
// offset 0, returning the resulting Schema and the number of bytes
// consumed (so the caller can locate data_start, spec.md §4.1).
func DecodeDescriptor(buf []byte, major byte) (*Schema, int, error) {
	r := value.NewReader(buf)

	pkName, err := value.ReadLenString(r)
	if err != nil {
		return nil, 0, fmt.Errorf("read primary key name: %w", err)
	}

	countBytes, err := readN(r, 4)
	if err != nil {
		return nil, 0, fmt.Errorf("read field count: %w", err)
	}
	count := int(int32(binary.LittleEndian.Uint32(countBytes)))
	if count <= 0 {
		return nil, 0, fmt.Errorf("invalid field count %d", count)
	}

	fields := make([]Field, count)
	for i := 0; i < count; i++ {
		name, err := value.ReadLenString(r)
		if err != nil {
			return nil, 0, fmt.Errorf("read field %d name: %w", i, err)
		}
		typeBytes, err := readN(r, 2)
		if err != nil {
			return nil, 0, fmt.Errorf("read field %d type: %w", i, err)
		}
		typ := value.Kind(int16(binary.LittleEndian.Uint16(typeBytes)))

		flagBytes, err := readN(r, 4)
		if err != nil {
			return nil, 0, fmt.Errorf("read field %d flags: %w", i, err)
		}
		flags := binary.LittleEndian.Uint32(flagBytes)

		f := Field{
			Name:    name,
			Type:    typ,
			IsArray: flags&FlagArray != 0,
		}
		// Case-sensitive on purpose: pkName and name both came off this
		// same descriptor, written by EncodeDescriptor from the same
		// Field.Name byte-for-byte, so they always match in the casing
		// they were originally created with. Schema.FieldByName's
		// case-insensitive lookup is for caller-supplied names, which is
		// a different comparison than this round-trip of stored bytes.
		if pkName != "" && name == pkName {
			f.IsPrimaryKey = true
		}

		if flags&FlagAutoInc != 0 {
			startBytes, err := readN(r, 4)
			if err != nil {
				return nil, 0, fmt.Errorf("read field %d autoinc start: %w", i, err)
			}
			start := int32(binary.LittleEndian.Uint32(startBytes))
			curBytes, err := readN(r, 4)
			if err != nil {
				return nil, 0, fmt.Errorf("read field %d cur autoinc: %w", i, err)
			}
			cur := int32(binary.LittleEndian.Uint32(curBytes))
			f.AutoIncStart = &start
			f.CurAutoInc = cur
		}

		if major >= 2 {
			comment, err := value.ReadLenString(r)
			if err != nil {
				return nil, 0, fmt.Errorf("read field %d comment: %w", i, err)
			}
			f.Comment = comment
		}

		f.Ordinal = i
		fields[i] = f
	}

	pkIdx := -1
	for i, f := range fields {
		if f.IsPrimaryKey {
			pkIdx = i
			break
		}
	}

	s := &Schema{Fields: fields, PrimaryKey: pkIdx}
	return s, r.Pos(), nil
}

func readN(r *value.Reader, n int) ([]byte, error) {
	return r.ReadBytes(n)
}
