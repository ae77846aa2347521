// Package record defines the row-level write unit shared by the direct
// write path (IndexService.WriteRecords) and the binlog ingestion pipeline,
// so both sources funnel into the same Collection.WriteRecords signature.
package record

import "github.com/alibaba/proxima-sub000/internal/value"

// Op is the kind of change a Row represents.
type Op uint8

const (
	// OpInsert adds a new row. On the direct-write path (LSN == 0), a
	// primary key that already exists in the collection is rejected with
	// errcode.DuplicateKey rather than overwritten; a replicated insert
	// (LSN != 0) overwrites instead, since CDC naturally re-applies row
	// changes as fresh inserts.
	OpInsert Op = iota
	// OpUpdate overwrites an existing row; kernels may treat this the same
	// as OpInsert (segment Insert is idempotent by primary key).
	OpUpdate
	// OpDelete removes a row by primary key.
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpInsert:
		return "INSERT"
	case OpUpdate:
		return "UPDATE"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Row is one logical write against a collection: a primary key, the
// per-index-column vector values (nil for OpDelete), and the opaque
// forward-column payload (nil for OpDelete).
type Row struct {
	Op          Op
	PrimaryKey  uint64
	IndexValues map[string]value.Value
	Forward     []byte
	// LSN is the binlog (file, position)-derived sequence number this row
	// was produced from, or 0 for a direct write. Collection tracks the
	// highest value seen so GetLatestLsn can report ingestion progress.
	LSN uint64
}

// Dataset is an ordered batch of rows applied as one WriteRecords call.
// Order matters: later rows for the same primary key win.
type Dataset []Row
