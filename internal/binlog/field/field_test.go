package field

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alibaba/proxima-sub000/internal/binlog/event"
)

func TestDecodeTinyAndLong(t *testing.T) {
	v, err := Decode(event.ColumnInfo{Type: byte(wireTiny)}, []byte{0xFF}, NotBinary)
	require.NoError(t, err)
	assert.Equal(t, int32(-1), v.Int32())

	v, err = Decode(event.ColumnInfo{Type: byte(wireLong)}, []byte{32, 0, 0, 0}, NotBinary)
	require.NoError(t, err)
	assert.Equal(t, int32(32), v.Int32())
}

func TestDecodeYear(t *testing.T) {
	v, err := Decode(event.ColumnInfo{Type: byte(wireYear)}, []byte{120}, NotBinary)
	require.NoError(t, err)
	assert.Equal(t, int32(2020), v.Int32())

	v, err = Decode(event.ColumnInfo{Type: byte(wireYear)}, []byte{0}, NotBinary)
	require.NoError(t, err)
	assert.Equal(t, "0000", v.String())
}

func TestDecodeVarcharOneByteLen(t *testing.T) {
	raw := append([]byte{5}, []byte("hello")...)
	v, err := Decode(event.ColumnInfo{Type: byte(wireVarchar), Meta: 255}, raw, NotBinary)
	require.NoError(t, err)
	assert.Equal(t, "hello", v.String())
}

func TestDecodeDate(t *testing.T) {
	packed := uint32(2024)*512 + 3*32 + 15
	raw := []byte{byte(packed), byte(packed >> 8), byte(packed >> 16)}
	v, err := Decode(event.ColumnInfo{Type: byte(wireDate)}, raw, NotBinary)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", v.String())
}

func TestDecodeBit(t *testing.T) {
	v, err := Decode(event.ColumnInfo{Type: byte(wireBit), Meta: uint16(1)<<8 | 0}, []byte{0x03}, NotBinary)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), v.Uint64())
}

func TestDecodeNewDecimalPositive(t *testing.T) {
	// precision=9, scale=2: 7 integer digits, all in one partial group
	// (4 bytes for int_full=0,int_partial=7), frac 2 digits (1 compressed byte).
	// Encode 12345.67 manually per MySQL's compressed-group scheme.
	raw := []byte{0x80, 0x00, 0x30, 0x39, 67} // sign bit + 12345 (4 bytes, partial=7) + .67 (1 byte, partial=2)
	s, err := decodeNewDecimal(raw, 9, 2)
	require.NoError(t, err)
	assert.Equal(t, "12345.67", s)
}

func TestConvertCharsetPassthroughUTF8(t *testing.T) {
	out, err := ConvertCharset([]byte("hello"), "utf8mb4_general_ci")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), out)
}
