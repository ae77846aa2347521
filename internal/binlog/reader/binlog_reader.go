// Package reader implements the two binlog-driven row-data cursors:
// BinlogReader, a change-data cursor over a replication stream, and
// TableReader, the initial full-scan cursor.
package reader

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/alibaba/proxima-sub000/internal/binlog/event"
	"github.com/alibaba/proxima-sub000/internal/binlog/field"
	"github.com/alibaba/proxima-sub000/internal/errcode"
	"github.com/alibaba/proxima-sub000/internal/record"
	"github.com/alibaba/proxima-sub000/internal/value"
)

// Status is the outcome of one GetNextRowData call.
type Status int

const (
	StatusRow Status = iota
	StatusSchemaChanged
	StatusSuspended
	StatusNoMoreData
)

// SchemaRefresher re-reads a table's current schema when an ALTER TABLE is
// observed in the stream, and reports whether it remains compatible with
// the collection config the reader is feeding.
type SchemaRefresher interface {
	Refresh(ctx context.Context, db, table string) (columns []event.ColumnInfo, compatible bool, err error)
}

var alterTablePattern = regexp.MustCompile(`(?i)^\s*ALTER\s+TABLE\s+`)

// Fetcher is the binlog event source BinlogReader drives. fetcher.EventFetcher
// satisfies this; tests substitute a fake to exercise reader logic without a
// live MySQL connection. Advance and Position let BinlogReader keep the
// fetcher's resumable (file, position) cursor current as it consumes each
// event, independently of AdvanceRotate's file changes.
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
	AdvanceRotate(file string, position uint64)
	Advance(position uint32)
	Position() (file string, position uint32)
}

// BinlogReader is the change-data cursor. It holds the current
// TableMapEvent, a pending QueryEvent awaiting schema refresh, and an
// in-progress RowsEvent cursor; GetNextRowData resumes whichever of those is
// outstanding before fetching new events. Every row it emits carries an LSN
// encoding the (file, position) immediately after the event the row came
// from, so reopening a reader at that same position never re-emits the row.
type BinlogReader struct {
	fetch     Fetcher
	refresher SchemaRefresher
	watchDB   string
	watchTbl  string

	tableMap     *event.TableMapEvent
	columns      []event.ColumnInfo
	pendingQuery *event.QueryEvent
	rowsCursor   *event.RowsEvent
	rowsType     event.Type
	rowsLogPos   uint32
	suspended    bool
}

// NewBinlogReader builds a reader watching exactly one (db, table).
func NewBinlogReader(fetch Fetcher, refresher SchemaRefresher, db, table string) *BinlogReader {
	return &BinlogReader{fetch: fetch, refresher: refresher, watchDB: db, watchTbl: table}
}

// GetNextRowData resumes in-progress state (rows cursor, then pending
// query) or loops fetching events until it has one logical row, a schema
// change, or end-of-stream to report.
func (r *BinlogReader) GetNextRowData(ctx context.Context) (record.Row, Status, error) {
	if r.suspended {
		return record.Row{}, StatusSuspended, errcode.New(errcode.Suspended, "binlog reader suspended on incompatible schema change")
	}

	if r.rowsCursor != nil && !r.rowsCursor.IsFinished() {
		row, ok, err := r.nextFromRowsCursor()
		if err != nil {
			return record.Row{}, StatusRow, err
		}
		if ok {
			return row, StatusRow, nil
		}
	}

	if r.pendingQuery != nil {
		q := r.pendingQuery
		r.pendingQuery = nil
		return r.handleSchemaChange(ctx, q)
	}

	for {
		body, err := r.fetch.Fetch(ctx)
		if err != nil {
			if errcode.CodeOf(err) == errcode.BinlogNoMoreData {
				return record.Row{}, StatusNoMoreData, err
			}
			return record.Row{}, StatusRow, err
		}

		h, rest, err := event.ParseHeader(body)
		if err != nil {
			log.Printf("binlog_reader: malformed event header: %v", err)
			continue
		}

		switch h.Type {
		case event.TypeQuery:
			qe, err := event.ParseQueryEvent(rest)
			if err != nil {
				log.Printf("binlog_reader: malformed query event: %v", err)
				continue
			}
			if alterTablePattern.MatchString(qe.Query) {
				r.fetch.Advance(h.LogPos)
				return r.handleSchemaChange(ctx, &qe)
			}
			r.fetch.Advance(h.LogPos)
			continue

		case event.TypeRotate:
			re, err := event.ParseRotateEvent(rest)
			if err != nil {
				log.Printf("binlog_reader: malformed rotate event: %v", err)
				continue
			}
			r.fetch.AdvanceRotate(re.NextFile, re.Position)
			continue

		case event.TypeTableMapEvent:
			tm, err := event.ParseTableMapEvent(rest)
			if err != nil {
				log.Printf("binlog_reader: malformed table map event: %v", err)
				continue
			}
			if strings.EqualFold(tm.Schema, r.watchDB) && strings.EqualFold(tm.Table, r.watchTbl) {
				r.tableMap = &tm
				r.columns = tm.Columns
			} else {
				r.tableMap = nil
			}
			r.fetch.Advance(h.LogPos)
			continue

		case event.TypeWriteRowsV1, event.TypeWriteRowsV2,
			event.TypeUpdateRowsV1, event.TypeUpdateRowsV2,
			event.TypeDeleteRowsV1, event.TypeDeleteRowsV2:
			if r.tableMap == nil {
				r.fetch.Advance(h.LogPos)
				continue // dropped: rows for an unwatched or mismatched table
			}
			v2 := h.Type == event.TypeWriteRowsV2 || h.Type == event.TypeUpdateRowsV2 || h.Type == event.TypeDeleteRowsV2
			re, err := event.NewRowsEvent(rest, v2, h.Type)
			if err != nil {
				log.Printf("binlog_reader: malformed rows event: %v", err)
				continue
			}
			r.rowsCursor = re
			r.rowsType = h.Type
			r.rowsLogPos = h.LogPos
			row, ok, err := r.nextFromRowsCursor()
			if err != nil {
				return record.Row{}, StatusRow, err
			}
			if ok {
				return row, StatusRow, nil
			}
			continue

		default:
			r.fetch.Advance(h.LogPos)
			continue
		}
	}
}

func (r *BinlogReader) handleSchemaChange(ctx context.Context, qe *event.QueryEvent) (record.Row, Status, error) {
	cols, compatible, err := r.refresher.Refresh(ctx, r.watchDB, r.watchTbl)
	if err != nil {
		return record.Row{}, StatusRow, fmt.Errorf("binlog_reader: refresh schema after %q: %w", qe.Query, err)
	}
	if !compatible {
		r.suspended = true
		return record.Row{}, StatusSuspended, errcode.New(errcode.Suspended, "schema change incompatible with collection config")
	}
	r.columns = cols
	return record.Row{}, StatusSchemaChanged, nil
}

// nextFromRowsCursor decodes the next row out of the in-progress RowsEvent.
// Every row from the same event shares one LSN, encoding the (file,
// position) immediately after that event — MySQL's own binlog position
// marks event boundaries, not individual rows within a multi-row event, so
// a reader resumed from a row's LSN always starts at or after it. Once the
// last row of the event has been returned, the fetcher's resumable cursor
// is advanced past it.
func (r *BinlogReader) nextFromRowsCursor() (record.Row, bool, error) {
	if r.rowsCursor == nil || r.rowsCursor.IsFinished() {
		return record.Row{}, false, nil
	}
	before, after, err := r.rowsCursor.Next(r.columns)
	if err != nil {
		return record.Row{}, false, err
	}

	op := opFromEventType(r.rowsType)
	img := before
	if op == record.OpUpdate {
		img = after
	}

	vals := make(map[string]value.Value, len(r.columns))
	var pk uint64
	for i, col := range r.columns {
		raw := img[i]
		if raw == nil {
			continue
		}
		v, derr := field.Decode(col, raw, field.NotBinary)
		if derr != nil {
			return record.Row{}, false, fmt.Errorf("binlog_reader: decode column %d: %w", i, derr)
		}
		vals[fmt.Sprintf("col%d", i)] = v
		if i == 0 {
			pk = uint64(v.Int64())
		}
	}

	curFile, _ := r.fetch.Position()
	lsn := LsnContext{File: curFile, Position: r.rowsLogPos}.Encode()

	if r.rowsCursor.IsFinished() {
		r.fetch.Advance(r.rowsLogPos)
	}

	return record.Row{
		Op:          op,
		PrimaryKey:  pk,
		IndexValues: vals,
		LSN:         lsn,
	}, true, nil
}

func opFromEventType(t event.Type) record.Op {
	switch t {
	case event.TypeUpdateRowsV1, event.TypeUpdateRowsV2:
		return record.OpUpdate
	case event.TypeDeleteRowsV1, event.TypeDeleteRowsV2:
		return record.OpDelete
	default:
		return record.OpInsert
	}
}
