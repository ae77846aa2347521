package event

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHeader(t *testing.T) {
	buf := make([]byte, HeaderSize+3)
	binary.LittleEndian.PutUint32(buf[0:4], 1000)
	buf[4] = byte(TypeQuery)
	binary.LittleEndian.PutUint32(buf[5:9], 42)
	binary.LittleEndian.PutUint32(buf[9:13], HeaderSize+3)
	binary.LittleEndian.PutUint32(buf[13:17], 500)
	binary.LittleEndian.PutUint16(buf[17:19], 0)
	copy(buf[19:], []byte{1, 2, 3})

	h, rest, err := ParseHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), h.Timestamp)
	assert.Equal(t, TypeQuery, h.Type)
	assert.Equal(t, uint32(42), h.ServerID)
	assert.Equal(t, []byte{1, 2, 3}, rest)
}

func TestParseHeaderTooShort(t *testing.T) {
	_, _, err := ParseHeader(make([]byte, 10))
	assert.Error(t, err)
}

func buildQueryEventBody(schema, query string, statusVars []byte) []byte {
	buf := make([]byte, 4+4+1+2+2+len(statusVars)+len(schema)+1+len(query))
	pos := 0
	binary.LittleEndian.PutUint32(buf[pos:], 7) // slave id
	pos += 4
	binary.LittleEndian.PutUint32(buf[pos:], 0) // exec time
	pos += 4
	buf[pos] = byte(len(schema))
	pos++
	binary.LittleEndian.PutUint16(buf[pos:], 0) // error code
	pos += 2
	binary.LittleEndian.PutUint16(buf[pos:], uint16(len(statusVars)))
	pos += 2
	copy(buf[pos:], statusVars)
	pos += len(statusVars)
	copy(buf[pos:], schema)
	pos += len(schema)
	buf[pos] = 0
	pos++
	copy(buf[pos:], query)
	return buf
}

func TestParseQueryEvent(t *testing.T) {
	body := buildQueryEventBody("mytest", "ALTER TABLE mytest.t ADD COLUMN x INT", []byte{1, 2})
	e, err := ParseQueryEvent(body)
	require.NoError(t, err)
	assert.Equal(t, "mytest", e.Schema)
	assert.Equal(t, "ALTER TABLE mytest.t ADD COLUMN x INT", e.Query)
	assert.Equal(t, uint32(7), e.SlaveID)
}

func TestParseRotateEvent(t *testing.T) {
	body := make([]byte, 8+len("binlog.000005"))
	binary.LittleEndian.PutUint64(body[0:8], 4)
	copy(body[8:], "binlog.000005")

	e, err := ParseRotateEvent(body)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), e.Position)
	assert.Equal(t, "binlog.000005", e.NextFile)
}

func buildTableMapBody(db, tbl string, colTypes []byte, meta []byte) []byte {
	nullBitmapLen := (len(colTypes) + 7) / 8
	buf := make([]byte, 0, 6+2+1+len(db)+1+1+len(tbl)+1+1+len(colTypes)+1+len(meta)+nullBitmapLen)
	buf = append(buf, make([]byte, 6)...) // table_id
	buf = append(buf, 0, 0)               // flags
	buf = append(buf, byte(len(db)))
	buf = append(buf, []byte(db)...)
	buf = append(buf, 0)
	buf = append(buf, byte(len(tbl)))
	buf = append(buf, []byte(tbl)...)
	buf = append(buf, 0)
	buf = append(buf, byte(len(colTypes))) // col_count lenenc (small form)
	buf = append(buf, colTypes...)
	buf = append(buf, byte(len(meta)))
	buf = append(buf, meta...)
	buf = append(buf, make([]byte, nullBitmapLen)...)
	return buf
}

func TestParseTableMapEvent(t *testing.T) {
	colTypes := []byte{byte(typeLong), byte(typeVarchar)}
	meta := []byte{0xFF, 0x00} // varchar meta, 2 bytes, little-endian 255
	body := buildTableMapBody("mytest", "t", colTypes, meta)

	e, err := ParseTableMapEvent(body)
	require.NoError(t, err)
	assert.Equal(t, "mytest", e.Schema)
	assert.Equal(t, "t", e.Table)
	require.Len(t, e.Columns, 2)
	assert.Equal(t, byte(typeLong), e.Columns[0].Type)
	assert.Equal(t, uint16(0), e.Columns[0].Meta)
	assert.Equal(t, byte(typeVarchar), e.Columns[1].Type)
	assert.Equal(t, uint16(255), e.Columns[1].Meta)
}

func TestParseTableMapEventRejectsOversizedMeta(t *testing.T) {
	colTypes := []byte{byte(typeLong)}
	// meta block of 3 bytes for 1 column with a 4-byte fixed type exceeds 2*col_count.
	meta := []byte{0x01, 0x02, 0x03}
	body := buildTableMapBody("db", "t", colTypes, meta)
	_, err := ParseTableMapEvent(body)
	assert.Error(t, err)
}

// buildWriteRowsBody constructs a V2 WRITE_ROWS body with one row per value,
// each a single present, non-null 4-byte INT column.
func buildWriteRowsBody(values []int32) []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, make([]byte, 6)...) // table_id
	buf = append(buf, 0, 0)               // flags
	buf = append(buf, 2, 0)               // extra_len = 2 (no extra data)
	buf = append(buf, 1)                  // col_count lenenc = 1
	buf = append(buf, 0x01)               // present bitmap: column 0 present

	for _, v := range values {
		buf = append(buf, 0x00) // null bitmap: not null
		valBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(valBuf, uint32(v))
		buf = append(buf, valBuf...)
	}
	return buf
}

func TestRowsEventCursorConsumesExactlyKRows(t *testing.T) {
	body := buildWriteRowsBody([]int32{1, 2, 3})
	re, err := NewRowsEvent(body, true, TypeWriteRowsV2)
	require.NoError(t, err)

	cols := []ColumnInfo{{Type: byte(typeLong)}}

	var got []int32
	for i := 0; i < 3; i++ {
		require.False(t, re.IsFinished())
		before, after, err := re.Next(cols)
		require.NoError(t, err)
		assert.Nil(t, after)
		got = append(got, int32(binary.LittleEndian.Uint32(before[0])))
	}
	assert.True(t, re.IsFinished())
	assert.Equal(t, []int32{1, 2, 3}, got)
}

func TestRowsEventRejectsShortExtraLen(t *testing.T) {
	buf := make([]byte, 0, 16)
	buf = append(buf, make([]byte, 6)...)
	buf = append(buf, 0, 0)
	buf = append(buf, 1, 0) // extra_len = 1, invalid (< 2)
	_, err := NewRowsEvent(buf, true, TypeWriteRowsV2)
	assert.Error(t, err)
}
