package value

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Size returns the exact serialized byte width of v, matching byte-for-byte
// what WriteTo produces (spec.md §4.2: "codec carries per-type sizers that
// must agree with writer byte-for-byte").
func Size(v Value) (int, error) {
	if v.IsArray {
		n := 4
		for _, e := range v.arr {
			s, err := Size(e)
			if err != nil {
				return 0, err
			}
			n += s
		}
		return n, nil
	}
	switch v.Kind {
	case KindBool, KindByte:
		return 1, nil
	case KindInt32, KindUInt32, KindFloat32:
		return 4, nil
	case KindInt64, KindFloat64:
		return 8, nil
	case KindDecimal128:
		return 16, nil
	case KindDateTime:
		return 10, nil
	case KindString:
		return stringSize(v.str), nil
	case KindGuid:
		return 16, nil
	}
	return 0, fmt.Errorf("value: unknown kind %v", v.Kind)
}

// WriteTo appends the wire encoding of v to buf.
func WriteTo(buf *bytes.Buffer, v Value) error {
	if v.IsArray {
		binary.Write(buf, binary.LittleEndian, int32(len(v.arr)))
		for _, e := range v.arr {
			if err := WriteTo(buf, e); err != nil {
				return err
			}
		}
		return nil
	}
	switch v.Kind {
	case KindBool:
		if v.b {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case KindByte:
		buf.WriteByte(v.byt)
	case KindInt32:
		binary.Write(buf, binary.LittleEndian, v.i32)
	case KindUInt32:
		binary.Write(buf, binary.LittleEndian, v.u32)
	case KindInt64:
		binary.Write(buf, binary.LittleEndian, v.i64)
	case KindFloat32:
		binary.Write(buf, binary.LittleEndian, v.f32)
	case KindFloat64:
		binary.Write(buf, binary.LittleEndian, v.f64)
	case KindDecimal128:
		return writeDecimal(buf, v.dec)
	case KindDateTime:
		writeDateTime(buf, v.dt, v.dtK)
	case KindString:
		writeString(buf, v.str)
	case KindGuid:
		writeGuid(buf, v.guid)
	default:
		return fmt.Errorf("value: unknown kind %v", v.Kind)
	}
	return nil
}

// Reader wraps a byte slice with a cursor, the shape used to parse a
// decoded record's nullmask+fields payload (spec.md §4.2).
type Reader struct {
	buf []byte
	pos int
}

func NewReader(b []byte) *Reader { return &Reader{buf: b} }

func (r *Reader) Pos() int { return r.pos }

// ReadBytes reads n raw bytes, for callers (like the schema descriptor
// codec) that need fixed-width fields not expressed as a Value.
func (r *Reader) ReadBytes(n int) ([]byte, error) { return r.bytes(n) }

func (r *Reader) bytes(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, fmt.Errorf("value: short read wanting %d bytes at pos %d of %d", n, r.pos, len(r.buf))
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadValue parses one value of kind (array or scalar) from the reader.
func ReadValue(r *Reader, kind Kind, isArray bool) (Value, error) {
	if isArray {
		lb, err := r.bytes(4)
		if err != nil {
			return Value{}, err
		}
		count := int(int32(binary.LittleEndian.Uint32(lb)))
		if count < 0 {
			return Value{}, fmt.Errorf("value: negative array length")
		}
		elems := make([]Value, count)
		for i := 0; i < count; i++ {
			e, err := ReadValue(r, kind, false)
			if err != nil {
				return Value{}, err
			}
			elems[i] = e
		}
		return Array(kind, elems), nil
	}

	switch kind {
	case KindBool:
		b, err := r.bytes(1)
		if err != nil {
			return Value{}, err
		}
		return Bool(b[0] != 0), nil
	case KindByte:
		b, err := r.bytes(1)
		if err != nil {
			return Value{}, err
		}
		return ByteVal(b[0]), nil
	case KindInt32:
		b, err := r.bytes(4)
		if err != nil {
			return Value{}, err
		}
		return Int32(int32(binary.LittleEndian.Uint32(b))), nil
	case KindUInt32:
		b, err := r.bytes(4)
		if err != nil {
			return Value{}, err
		}
		return UInt32(binary.LittleEndian.Uint32(b)), nil
	case KindInt64:
		b, err := r.bytes(8)
		if err != nil {
			return Value{}, err
		}
		return Int64(int64(binary.LittleEndian.Uint64(b))), nil
	case KindFloat32:
		b, err := r.bytes(4)
		if err != nil {
			return Value{}, err
		}
		bits := binary.LittleEndian.Uint32(b)
		return Float32(math.Float32frombits(bits)), nil
	case KindFloat64:
		b, err := r.bytes(8)
		if err != nil {
			return Value{}, err
		}
		bits := binary.LittleEndian.Uint64(b)
		return Float64(math.Float64frombits(bits)), nil
	case KindDecimal128:
		return readDecimal(r)
	case KindDateTime:
		return readDateTime(r)
	case KindString:
		return readString(r)
	case KindGuid:
		return readGuid(r)
	}
	return Value{}, fmt.Errorf("value: unknown kind %v", kind)
}

// --- string: .NET 7-bit length-prefixed UTF-8 convention ---

func stringSize(s string) int {
	n := len(s)
	lenSize := 1
	v := n
	for v >= 0x80 {
		lenSize++
		v >>= 7
	}
	return lenSize + n
}

// WriteLenString and ReadLenString expose the .NET 7-bit length-prefixed
// string codec for callers outside this package (schema names, field
// comments) that need the same convention but are not
// encoding a String-kind field Value.
func WriteLenString(buf *bytes.Buffer, s string) { writeString(buf, s) }

func ReadLenString(r *Reader) (string, error) {
	v, err := readString(r)
	if err != nil {
		return "", err
	}
	return v.AsString(), nil
}

func writeString(buf *bytes.Buffer, s string) {
	n := uint32(len(s))
	for n >= 0x80 {
		buf.WriteByte(byte(n&0x7f) | 0x80)
		n >>= 7
	}
	buf.WriteByte(byte(n))
	buf.WriteString(s)
}

func readString(r *Reader) (Value, error) {
	var n uint32
	var shift uint
	for {
		b, err := r.bytes(1)
		if err != nil {
			return Value{}, err
		}
		n |= uint32(b[0]&0x7f) << shift
		if b[0]&0x80 == 0 {
			break
		}
		shift += 7
		if shift > 35 {
			return Value{}, fmt.Errorf("value: corrupt string length varint")
		}
	}
	data, err := r.bytes(int(n))
	if err != nil {
		return Value{}, err
	}
	return String(string(data)), nil
}

// --- guid: canonical 16-byte little-endian-struct layout ---

func writeGuid(buf *bytes.Buffer, g uuid.UUID) {
	buf.Write(guidToWire(g))
}

func readGuid(r *Reader) (Value, error) {
	b, err := r.bytes(16)
	if err != nil {
		return Value{}, err
	}
	return Guid(wireToGuid(b)), nil
}

// guidToWire converts a standard RFC-4122 uuid.UUID (big-endian field byte
// order, matching its string form) into the canonical little-endian-struct
// layout used by this format: Data1 (4 bytes, LE), Data2 (2 bytes, LE),
// Data3 (2 bytes, LE), Data4 (8 bytes, unchanged).
func guidToWire(g uuid.UUID) []byte {
	out := make([]byte, 16)
	out[0], out[1], out[2], out[3] = g[3], g[2], g[1], g[0]
	out[4], out[5] = g[5], g[4]
	out[6], out[7] = g[7], g[6]
	copy(out[8:], g[8:])
	return out
}

func wireToGuid(b []byte) uuid.UUID {
	var g uuid.UUID
	g[0], g[1], g[2], g[3] = b[3], b[2], b[1], b[0]
	g[4], g[5] = b[5], b[4]
	g[6], g[7] = b[7], b[6]
	copy(g[8:], b[8:])
	return g
}

// --- datetime: 10-byte layout ---

func writeDateTime(buf *bytes.Buffer, t time.Time, kind DateTimeKind) {
	binary.Write(buf, binary.LittleEndian, int16(t.Year()))
	buf.WriteByte(byte(t.Month()))
	buf.WriteByte(byte(t.Day()))
	buf.WriteByte(byte(t.Hour()))
	buf.WriteByte(byte(t.Minute()))
	buf.WriteByte(byte(t.Second()))
	binary.Write(buf, binary.LittleEndian, uint16(t.Nanosecond()/1e6))
	buf.WriteByte(byte(kind))
}

func readDateTime(r *Reader) (Value, error) {
	b, err := r.bytes(10)
	if err != nil {
		return Value{}, err
	}
	year := int(int16(binary.LittleEndian.Uint16(b[0:2])))
	month := time.Month(b[2])
	day := int(b[3])
	hour := int(b[4])
	min := int(b[5])
	sec := int(b[6])
	ms := int(binary.LittleEndian.Uint16(b[7:9]))
	kind := DateTimeKind(b[9])

	loc := time.UTC
	if kind == Local {
		loc = time.Local
	}
	t := time.Date(year, month, day, hour, min, sec, ms*1e6, loc)
	return DateTime(t, kind), nil
}

// --- decimal128: sign/scale/hi/mid/lo, 4 x int32 words ---
//
// Word layout: word0 = flags (bit31 = sign, bits16-23 = scale), word1 = hi,
// word2 = mid, word3 = lo, matching the four-word grouping spec.md §4.1
// names "sign/scale/hi/mid/lo" (sign and scale share the first word, as in
// the source's System.Decimal internal representation).
func writeDecimal(buf *bytes.Buffer, d decimal.Decimal) error {
	sign, scale, hi, mid, lo, err := decimalToWire(d)
	if err != nil {
		return err
	}
	var flags uint32
	if sign {
		flags |= 1 << 31
	}
	flags |= (uint32(scale) & 0xff) << 16
	binary.Write(buf, binary.LittleEndian, flags)
	binary.Write(buf, binary.LittleEndian, hi)
	binary.Write(buf, binary.LittleEndian, mid)
	binary.Write(buf, binary.LittleEndian, lo)
	return nil
}

func readDecimal(r *Reader) (Value, error) {
	b, err := r.bytes(16)
	if err != nil {
		return Value{}, err
	}
	flags := binary.LittleEndian.Uint32(b[0:4])
	hi := binary.LittleEndian.Uint32(b[4:8])
	mid := binary.LittleEndian.Uint32(b[8:12])
	lo := binary.LittleEndian.Uint32(b[12:16])

	sign := flags&(1<<31) != 0
	scale := uint8((flags >> 16) & 0xff)

	d := wireToDecimal(sign, scale, hi, mid, lo)
	return Decimal(d), nil
}

func decimalToWire(d decimal.Decimal) (sign bool, scale uint8, hi, mid, lo uint32, err error) {
	exp := d.Exponent()
	if exp > 0 {
		d = d.Shift(exp)
		exp = 0
	}
	if -int32(exp) > 28 {
		return false, 0, 0, 0, 0, fmt.Errorf("value: decimal scale %d exceeds 28", -exp)
	}
	scale = uint8(-exp)

	coeff := d.Coefficient() // *big.Int, may be negative
	sign = coeff.Sign() < 0
	abs := new(big.Int).Abs(coeff)

	if abs.BitLen() > 96 {
		return false, 0, 0, 0, 0, fmt.Errorf("value: decimal coefficient overflows 96 bits")
	}

	mask32 := big.NewInt(0xFFFFFFFF)
	loBig := new(big.Int).And(abs, mask32)
	midBig := new(big.Int).And(new(big.Int).Rsh(abs, 32), mask32)
	hiBig := new(big.Int).And(new(big.Int).Rsh(abs, 64), mask32)

	lo = uint32(loBig.Uint64())
	mid = uint32(midBig.Uint64())
	hi = uint32(hiBig.Uint64())
	return sign, scale, hi, mid, lo, nil
}

func wireToDecimal(sign bool, scale uint8, hi, mid, lo uint32) decimal.Decimal {
	value := new(big.Int).Lsh(big.NewInt(int64(hi)), 64)
	value.Or(value, new(big.Int).Lsh(big.NewInt(int64(mid)), 32))
	value.Or(value, big.NewInt(int64(lo)))
	if sign {
		value.Neg(value)
	}
	return decimal.NewFromBigInt(value, -int32(scale))
}

