package event

import (
	"fmt"

	"github.com/alibaba/proxima-sub000/internal/errcode"
)

// RowImage is one row's before-or-after column values, keyed by column
// index in the owning TableMapEvent's Columns slice. A nil entry at index i
// means column i was absent from the present bitmap (not NULL, not sent).
type RowImage [][]byte

// RowsEvent is a cursor over a ROWS_EVENT body. WRITE rows
// carry one image per row; UPDATE rows carry a before/after pair; DELETE
// rows carry one image per row. Construct with NewRowsEvent, then call
// Next repeatedly until IsFinished reports true — the cursor holds the
// whole event body, and each Next call decodes the next row from it.
type RowsEvent struct {
	TableID       uint64
	Flags         uint16
	IsUpdate      bool
	ColumnCount   uint64
	PresentBefore []byte
	PresentAfter  []byte

	body   []byte
	cursor int
}

// NewRowsEvent parses the fixed header of a V1 or V2 ROWS_EVENT body and
// returns a cursor positioned at the start of the row data. v2 selects the
// wire layout: V2 events carry a 2-byte extra_len plus extra data; V1 does
// not.
func NewRowsEvent(body []byte, v2 bool, eventType Type) (*RowsEvent, error) {
	if len(body) < 6+2 {
		return nil, fmt.Errorf("event: rows event body too short")
	}
	pos := 0
	tableID := readUint48LE(body[pos:])
	pos += 6
	flags := leUint16(body[pos:])
	pos += 2

	if v2 {
		if pos+2 > len(body) {
			return nil, fmt.Errorf("event: rows event v2 extra_len overrun")
		}
		extraLen := int(leUint16(body[pos:]))
		pos += 2
		if extraLen < 2 {
			return nil, errcode.Newf(errcode.InvalidRowData, "rows event v2 extra_len %d below minimum of 2", extraLen)
		}
		skip := extraLen - 2
		if pos+skip > len(body) {
			return nil, fmt.Errorf("event: rows event extra data overrun")
		}
		pos += skip
	}

	colCount, n, err := readLenEnc(body[pos:])
	if err != nil {
		return nil, err
	}
	pos += n

	bitmapLen := int((colCount + 7) / 8)
	if pos+bitmapLen > len(body) {
		return nil, fmt.Errorf("event: rows event present bitmap overrun")
	}
	present := body[pos : pos+bitmapLen]
	pos += bitmapLen

	isUpdate := eventType == TypeUpdateRowsV1 || eventType == TypeUpdateRowsV2

	var presentUpdate []byte
	if isUpdate {
		if pos+bitmapLen > len(body) {
			return nil, fmt.Errorf("event: rows event update bitmap overrun")
		}
		presentUpdate = body[pos : pos+bitmapLen]
		pos += bitmapLen
	}

	return &RowsEvent{
		TableID:       tableID,
		Flags:         flags,
		IsUpdate:      isUpdate,
		ColumnCount:   colCount,
		PresentBefore: present,
		PresentAfter:  presentUpdate,
		body:          body,
		cursor:        pos,
	}, nil
}

// IsFinished reports whether every row in the event has been consumed.
func (r *RowsEvent) IsFinished() bool { return r.cursor >= len(r.body) }

// Next decodes the next row image (or before/after pair, for UPDATE) using
// cols to size each column's on-wire length. It advances the cursor past
// the consumed bytes.
func (r *RowsEvent) Next(cols []ColumnInfo) (before, after RowImage, err error) {
	if r.IsFinished() {
		return nil, nil, fmt.Errorf("event: rows event cursor already exhausted")
	}

	before, err = r.readImage(cols, r.PresentBefore)
	if err != nil {
		return nil, nil, err
	}
	if !r.IsUpdate {
		return before, nil, nil
	}

	after, err = r.readImage(cols, r.PresentAfter)
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

// readImage decodes one row image: a null bitmap sized to the number of
// columns present in bitmap, followed by each present column's raw bytes
// in column order. Column-type-specific length rules live in the field
// package; readImage only knows how to find the boundary between columns,
// which for most types requires the field codec's fixed/variable-length
// table. Callers needing decoded values pass the raw bytes to field.Decode.
func (r *RowsEvent) readImage(cols []ColumnInfo, present []byte) (RowImage, error) {
	presentCount := 0
	for i := range cols {
		if bitSet(present, i) {
			presentCount++
		}
	}
	nullBitmapLen := (presentCount + 7) / 8
	if r.cursor+nullBitmapLen > len(r.body) {
		return nil, fmt.Errorf("event: row null bitmap overrun")
	}
	nullBitmap := r.body[r.cursor : r.cursor+nullBitmapLen]
	r.cursor += nullBitmapLen

	img := make(RowImage, len(cols))
	presentIdx := 0
	for i, col := range cols {
		if !bitSet(present, i) {
			continue
		}
		isNull := bitSet(nullBitmap, presentIdx)
		presentIdx++
		if isNull {
			continue
		}
		n, err := fieldLength(col, r.body[r.cursor:])
		if err != nil {
			return nil, err
		}
		if r.cursor+n > len(r.body) {
			return nil, fmt.Errorf("event: row column %d overruns body", i)
		}
		img[i] = r.body[r.cursor : r.cursor+n]
		r.cursor += n
	}
	return img, nil
}

func bitSet(bitmap []byte, i int) bool {
	byteIdx := i / 8
	if byteIdx >= len(bitmap) {
		return false
	}
	return (bitmap[byteIdx]>>(uint(i)%8))&1 == 1
}
