package reader

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alibaba/proxima-sub000/internal/binlog/event"
	"github.com/alibaba/proxima-sub000/internal/errcode"
)

// scriptedFetcher replays a fixed list of raw event bodies (header + payload
// already framed), then reports BinlogNoMoreData.
type scriptedFetcher struct {
	bodies [][]byte
	idx    int

	file string
	pos  uint32
}

func (f *scriptedFetcher) Fetch(context.Context) ([]byte, error) {
	if f.idx >= len(f.bodies) {
		return nil, errcode.New(errcode.BinlogNoMoreData, "no more scripted events")
	}
	b := f.bodies[f.idx]
	f.idx++
	return b, nil
}
func (f *scriptedFetcher) AdvanceRotate(file string, position uint64) {
	f.file = file
	f.pos = uint32(position)
}
func (f *scriptedFetcher) Advance(position uint32) { f.pos = position }
func (f *scriptedFetcher) Position() (string, uint32) { return f.file, f.pos }

type fakeRefresher struct {
	cols       []event.ColumnInfo
	compatible bool
}

func (f *fakeRefresher) Refresh(context.Context, string, string) ([]event.ColumnInfo, bool, error) {
	return f.cols, f.compatible, nil
}

func buildEvent(t byte, body []byte) []byte {
	return buildEventAt(t, body, 0)
}

func buildEventAt(t byte, body []byte, logPos uint32) []byte {
	header := make([]byte, event.HeaderSize)
	header[4] = t
	binary.LittleEndian.PutUint32(header[13:17], logPos)
	return append(header, body...)
}

func buildTableMapEventBody(db, tbl string, colTypes []byte) []byte {
	nullBitmapLen := (len(colTypes) + 7) / 8
	buf := make([]byte, 0, 32)
	buf = append(buf, make([]byte, 6)...)
	buf = append(buf, 0, 0)
	buf = append(buf, byte(len(db)))
	buf = append(buf, []byte(db)...)
	buf = append(buf, 0)
	buf = append(buf, byte(len(tbl)))
	buf = append(buf, []byte(tbl)...)
	buf = append(buf, 0)
	buf = append(buf, byte(len(colTypes)))
	buf = append(buf, colTypes...)
	buf = append(buf, 0) // meta block length 0 (only LONG columns, no meta)
	buf = append(buf, make([]byte, nullBitmapLen)...)
	return buf
}

func buildWriteRowsEventBody(pk int32) []byte {
	buf := make([]byte, 0, 16)
	buf = append(buf, make([]byte, 6)...)
	buf = append(buf, 0, 0)
	buf = append(buf, 2, 0) // extra_len = 2
	buf = append(buf, 1)    // col_count = 1
	buf = append(buf, 0x01) // present bitmap
	buf = append(buf, 0x00) // null bitmap: not null
	v := make([]byte, 4)
	binary.LittleEndian.PutUint32(v, uint32(pk))
	buf = append(buf, v...)
	return buf
}

func TestBinlogReaderEmitsRowsAfterTableMap(t *testing.T) {
	colTypes := []byte{3} // MYSQL_TYPE_LONG
	bodies := [][]byte{
		buildEvent(byte(event.TypeTableMapEvent), buildTableMapEventBody("mytest", "t", colTypes)),
		buildEvent(byte(event.TypeWriteRowsV2), buildWriteRowsEventBody(1)),
		buildEvent(byte(event.TypeWriteRowsV2), buildWriteRowsEventBody(2)),
	}
	f := &scriptedFetcher{bodies: bodies}
	r := NewBinlogReader(f, &fakeRefresher{}, "mytest", "t")

	row1, status1, err := r.GetNextRowData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusRow, status1)
	assert.Equal(t, uint64(1), row1.PrimaryKey)

	row2, status2, err := r.GetNextRowData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusRow, status2)
	assert.Equal(t, uint64(2), row2.PrimaryKey)

	_, status3, err := r.GetNextRowData(context.Background())
	assert.Equal(t, StatusNoMoreData, status3)
	assert.Equal(t, errcode.BinlogNoMoreData, errcode.CodeOf(err))
}

func TestBinlogReaderRowLSNTracksLogPosNotPrimaryKey(t *testing.T) {
	colTypes := []byte{3}
	f := &scriptedFetcher{file: "mysql-bin.000001", bodies: [][]byte{
		buildEventAt(byte(event.TypeTableMapEvent), buildTableMapEventBody("mytest", "t", colTypes), 100),
		buildEventAt(byte(event.TypeWriteRowsV2), buildWriteRowsEventBody(42), 250),
	}}
	r := NewBinlogReader(f, &fakeRefresher{}, "mytest", "t")

	row, status, err := r.GetNextRowData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusRow, status)
	assert.Equal(t, uint64(42), row.PrimaryKey)

	wantLSN := LsnContext{File: "mysql-bin.000001", Position: 250}.Encode()
	assert.Equal(t, wantLSN, row.LSN)
	assert.NotEqual(t, row.PrimaryKey, row.LSN, "LSN must be the binlog position, not the primary key")

	gotFile, gotPos := f.Position()
	assert.Equal(t, "mysql-bin.000001", gotFile)
	assert.Equal(t, uint32(250), gotPos, "fetcher cursor must advance past a fully-consumed rows event")
}

func TestBinlogReaderResumedReaderNeverReemitsAPastRow(t *testing.T) {
	colTypes := []byte{3}
	bodies := [][]byte{
		buildEventAt(byte(event.TypeTableMapEvent), buildTableMapEventBody("mytest", "t", colTypes), 100),
		buildEventAt(byte(event.TypeWriteRowsV2), buildWriteRowsEventBody(1), 200),
		buildEventAt(byte(event.TypeTableMapEvent), buildTableMapEventBody("mytest", "t", colTypes), 250),
		buildEventAt(byte(event.TypeWriteRowsV2), buildWriteRowsEventBody(2), 350),
	}

	f1 := &scriptedFetcher{file: "mysql-bin.000001", bodies: bodies}
	r1 := NewBinlogReader(f1, &fakeRefresher{}, "mytest", "t")

	row1, _, err := r1.GetNextRowData(context.Background())
	require.NoError(t, err)
	resumeFile, resumePos := f1.Position()

	// A fresh reader opened from the exact position the first reader had
	// reached after consuming row1 must not hand row1 back out again: the
	// scripted fetcher below starts mid-stream, as if it had re-dumped from
	// (resumeFile, resumePos).
	f2 := &scriptedFetcher{file: resumeFile, pos: resumePos, bodies: bodies[2:]}
	r2 := NewBinlogReader(f2, &fakeRefresher{}, "mytest", "t")

	row2, status2, err := r2.GetNextRowData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusRow, status2)
	assert.NotEqual(t, row1.PrimaryKey, row2.PrimaryKey)
	assert.Equal(t, uint64(2), row2.PrimaryKey)
}

func TestBinlogReaderDropsRowsForUnwatchedTable(t *testing.T) {
	colTypes := []byte{3}
	bodies := [][]byte{
		buildEvent(byte(event.TypeTableMapEvent), buildTableMapEventBody("other", "u", colTypes)),
		buildEvent(byte(event.TypeWriteRowsV2), buildWriteRowsEventBody(1)),
	}
	f := &scriptedFetcher{bodies: bodies}
	r := NewBinlogReader(f, &fakeRefresher{}, "mytest", "t")

	_, status, err := r.GetNextRowData(context.Background())
	assert.Equal(t, StatusNoMoreData, status)
	assert.Equal(t, errcode.BinlogNoMoreData, errcode.CodeOf(err))
}

func buildQueryEventBodyForTest(schema, query string) []byte {
	buf := make([]byte, 0, 32+len(schema)+len(query))
	buf = append(buf, make([]byte, 4)...) // slave id
	buf = append(buf, make([]byte, 4)...) // exec time
	buf = append(buf, byte(len(schema)))
	buf = append(buf, 0, 0) // error code
	buf = append(buf, 0, 0) // status vars len
	buf = append(buf, []byte(schema)...)
	buf = append(buf, 0)
	buf = append(buf, []byte(query)...)
	return buf
}

func TestBinlogReaderSchemaChangedOnAlterTable(t *testing.T) {
	bodies := [][]byte{
		buildEvent(byte(event.TypeQuery), buildQueryEventBodyForTest("mytest", "  ALTER TABLE mytest.t ADD COLUMN x INT")),
	}
	f := &scriptedFetcher{bodies: bodies}
	r := NewBinlogReader(f, &fakeRefresher{compatible: true}, "mytest", "t")

	_, status, err := r.GetNextRowData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusSchemaChanged, status)
}

func TestBinlogReaderSuspendsOnIncompatibleSchema(t *testing.T) {
	bodies := [][]byte{
		buildEvent(byte(event.TypeQuery), buildQueryEventBodyForTest("mytest", "ALTER TABLE mytest.t DROP COLUMN face")),
	}
	f := &scriptedFetcher{bodies: bodies}
	r := NewBinlogReader(f, &fakeRefresher{compatible: false}, "mytest", "t")

	_, status, err := r.GetNextRowData(context.Background())
	assert.Equal(t, StatusSuspended, status)
	assert.Equal(t, errcode.Suspended, errcode.CodeOf(err))

	_, status2, err2 := r.GetNextRowData(context.Background())
	assert.Equal(t, StatusSuspended, status2)
	assert.Equal(t, errcode.Suspended, errcode.CodeOf(err2))
}
