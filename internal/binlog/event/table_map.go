package event

import (
	"fmt"

	"github.com/alibaba/proxima-sub000/internal/errcode"
)

// ColumnInfo is one column's wire type and decoded metadata, produced from
// TABLE_MAP_EVENT's per-column meta block.
type ColumnInfo struct {
	Type     byte
	Meta     uint16
	Nullable bool
}

// TableMapEvent maps a table_id to its schema for subsequent ROWS events.
type TableMapEvent struct {
	TableID uint64
	Flags   uint16
	Schema  string
	Table   string
	Columns []ColumnInfo
}

// ParseTableMapEvent decodes a TABLE_MAP_EVENT body.
func ParseTableMapEvent(body []byte) (TableMapEvent, error) {
	var e TableMapEvent
	pos := 0

	if len(body) < 6+2+1 {
		return e, fmt.Errorf("event: table map body too short")
	}
	e.TableID = readUint48LE(body[pos:])
	pos += 6
	e.Flags = leUint16(body[pos:])
	pos += 2

	dbLen := int(body[pos])
	pos++
	if pos+dbLen+1 > len(body) {
		return e, fmt.Errorf("event: table map db name overrun")
	}
	e.Schema = string(body[pos : pos+dbLen])
	pos += dbLen + 1

	if pos >= len(body) {
		return e, fmt.Errorf("event: table map truncated before table name")
	}
	tblLen := int(body[pos])
	pos++
	if pos+tblLen+1 > len(body) {
		return e, fmt.Errorf("event: table map table name overrun")
	}
	e.Table = string(body[pos : pos+tblLen])
	pos += tblLen + 1

	colCount, n, err := readLenEnc(body[pos:])
	if err != nil {
		return e, err
	}
	pos += n

	if pos+int(colCount) > len(body) {
		return e, fmt.Errorf("event: table map column types overrun")
	}
	colTypes := body[pos : pos+int(colCount)]
	pos += int(colCount)

	metaLen, n, err := readLenEnc(body[pos:])
	if err != nil {
		return e, err
	}
	pos += n
	if metaLen > 2*colCount {
		return e, errcode.Newf(errcode.InvalidRowData, "table map meta block length %d exceeds 2x column count %d", metaLen, colCount)
	}
	if pos+int(metaLen) > len(body) {
		return e, fmt.Errorf("event: table map meta block overrun")
	}
	metaBlock := body[pos : pos+int(metaLen)]
	pos += int(metaLen)

	nullBitmapLen := (int(colCount) + 7) / 8
	var nullBitmap []byte
	if pos+nullBitmapLen <= len(body) {
		nullBitmap = body[pos : pos+nullBitmapLen]
	}

	e.Columns = make([]ColumnInfo, colCount)
	metaPos := 0
	for i := 0; i < int(colCount); i++ {
		t := colTypes[i]
		meta, consumed := decodeColumnMeta(t, metaBlock[metaPos:])
		metaPos += consumed
		nullable := false
		if nullBitmap != nil {
			nullable = (nullBitmap[i/8]>>(uint(i)%8))&1 == 1
		}
		e.Columns[i] = ColumnInfo{Type: t, Meta: meta, Nullable: nullable}
	}
	return e, nil
}

// decodeColumnMeta interprets a column's meta bytes by MySQL type family,
// returning the meta value and the number of bytes it consumed from the
// meta block.
func decodeColumnMeta(colType byte, meta []byte) (uint16, int) {
	switch mysqlType(colType) {
	case typeFloat, typeDouble, typeBlob, typeGeometry, typeJSON,
		typeVarString, typeVarchar, typeBit, typeNewDecimal, typeString:
		if len(meta) < 2 {
			return 0, len(meta)
		}
		return leUint16(meta), 2
	case typeTime2, typeDatetime2, typeTimestamp2:
		if len(meta) < 1 {
			return 0, 0
		}
		return uint16(meta[0]), 1
	default:
		return 0, 0
	}
}

func readUint48LE(b []byte) uint64 {
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 |
		uint64(b[3])<<24 | uint64(b[4])<<32 | uint64(b[5])<<40
}

func leUint16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }

// readLenEnc decodes a MySQL length-encoded integer, returning the value
// and the number of bytes consumed.
func readLenEnc(b []byte) (uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, fmt.Errorf("event: empty length-encoded integer")
	}
	switch {
	case b[0] < 0xfb:
		return uint64(b[0]), 1, nil
	case b[0] == 0xfc:
		if len(b) < 3 {
			return 0, 0, fmt.Errorf("event: truncated 2-byte length-encoded integer")
		}
		return uint64(leUint16(b[1:])), 3, nil
	case b[0] == 0xfd:
		if len(b) < 4 {
			return 0, 0, fmt.Errorf("event: truncated 3-byte length-encoded integer")
		}
		return uint64(b[1]) | uint64(b[2])<<8 | uint64(b[3])<<16, 4, nil
	case b[0] == 0xfe:
		if len(b) < 9 {
			return 0, 0, fmt.Errorf("event: truncated 8-byte length-encoded integer")
		}
		v := uint64(0)
		for i := 0; i < 8; i++ {
			v |= uint64(b[1+i]) << (8 * i)
		}
		return v, 9, nil
	default:
		return 0, 0, fmt.Errorf("event: invalid length-encoded integer prefix 0x%x", b[0])
	}
}
