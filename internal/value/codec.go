package value

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeValues serializes an ordered value list into the opaque forward
// blob format stored alongside a row: the blob deserializes into an
// ordered list of tagged generic values. Each entry is a 1-byte Kind tag
// followed by a fixed or length-prefixed payload.
func EncodeValues(vals []Value) []byte {
	var buf []byte
	for _, v := range vals {
		buf = append(buf, byte(v.kind))
		switch v.kind {
		case KindInvalid:
			// no payload
		case KindInt32:
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], uint32(v.i64))
			buf = append(buf, b[:]...)
		case KindUint32:
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], uint32(v.u64))
			buf = append(buf, b[:]...)
		case KindInt64:
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], uint64(v.i64))
			buf = append(buf, b[:]...)
		case KindUint64:
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], v.u64)
			buf = append(buf, b[:]...)
		case KindFloat:
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], math.Float32bits(float32(v.f64)))
			buf = append(buf, b[:]...)
		case KindDouble:
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], math.Float64bits(v.f64))
			buf = append(buf, b[:]...)
		case KindString:
			buf = appendLenPrefixed(buf, []byte(v.str))
		case KindBytes:
			buf = appendLenPrefixed(buf, v.buf)
		}
	}
	return buf
}

func appendLenPrefixed(buf, data []byte) []byte {
	var lb [4]byte
	binary.LittleEndian.PutUint32(lb[:], uint32(len(data)))
	buf = append(buf, lb[:]...)
	return append(buf, data...)
}

// DecodeValues parses a forward blob back into its ordered value list.
func DecodeValues(buf []byte) ([]Value, error) {
	var out []Value
	pos := 0
	for pos < len(buf) {
		kind := Kind(buf[pos])
		pos++
		switch kind {
		case KindInvalid:
			out = append(out, Null())
		case KindInt32:
			if pos+4 > len(buf) {
				return nil, fmt.Errorf("value: truncated int32")
			}
			out = append(out, Int32(int32(binary.LittleEndian.Uint32(buf[pos:]))))
			pos += 4
		case KindUint32:
			if pos+4 > len(buf) {
				return nil, fmt.Errorf("value: truncated uint32")
			}
			out = append(out, Uint32(binary.LittleEndian.Uint32(buf[pos:])))
			pos += 4
		case KindInt64:
			if pos+8 > len(buf) {
				return nil, fmt.Errorf("value: truncated int64")
			}
			out = append(out, Int64(int64(binary.LittleEndian.Uint64(buf[pos:]))))
			pos += 8
		case KindUint64:
			if pos+8 > len(buf) {
				return nil, fmt.Errorf("value: truncated uint64")
			}
			out = append(out, Uint64(binary.LittleEndian.Uint64(buf[pos:])))
			pos += 8
		case KindFloat:
			if pos+4 > len(buf) {
				return nil, fmt.Errorf("value: truncated float")
			}
			out = append(out, Float(math.Float32frombits(binary.LittleEndian.Uint32(buf[pos:]))))
			pos += 4
		case KindDouble:
			if pos+8 > len(buf) {
				return nil, fmt.Errorf("value: truncated double")
			}
			out = append(out, Double(math.Float64frombits(binary.LittleEndian.Uint64(buf[pos:]))))
			pos += 8
		case KindString:
			data, next, err := readLenPrefixed(buf, pos)
			if err != nil {
				return nil, err
			}
			out = append(out, String(string(data)))
			pos = next
		case KindBytes:
			data, next, err := readLenPrefixed(buf, pos)
			if err != nil {
				return nil, err
			}
			out = append(out, Bytes(data))
			pos = next
		default:
			return nil, fmt.Errorf("value: unknown kind tag %d", kind)
		}
	}
	return out, nil
}

func readLenPrefixed(buf []byte, pos int) ([]byte, int, error) {
	if pos+4 > len(buf) {
		return nil, 0, fmt.Errorf("value: truncated length prefix")
	}
	n := int(binary.LittleEndian.Uint32(buf[pos:]))
	pos += 4
	if pos+n > len(buf) {
		return nil, 0, fmt.Errorf("value: truncated payload")
	}
	return buf[pos : pos+n], pos + n, nil
}
