package reader

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/alibaba/proxima-sub000/internal/record"
	"github.com/alibaba/proxima-sub000/internal/value"
)

// TableReader is the initial full-scan cursor: it issues
// `SELECT pk, <cols> FROM db.tbl WHERE pk > :seq ORDER BY pk`, streams rows
// without client-side buffering, and reconnects-and-resumes from the last
// emitted seq_id on error.
type TableReader struct {
	open    func(ctx context.Context) (*sql.DB, error)
	db      string
	table   string
	pkCol   string
	cols    []string
	lastSeq uint64
}

// NewTableReader builds a TableReader. open is called to (re)establish the
// underlying connection on reconnect; pkCol and cols name the primary key
// and the selected index/forward columns in schema order.
func NewTableReader(open func(ctx context.Context) (*sql.DB, error), db, table, pkCol string, cols []string, startSeq uint64) *TableReader {
	return &TableReader{open: open, db: db, table: table, pkCol: pkCol, cols: cols, lastSeq: startSeq}
}

// Scan streams every row with pk > startSeq in ascending pk order, calling
// emit once per row with an INSERT record.Row whose LSN is the row's pk.
// On read error or connection loss it reconnects and resumes with
// `pk > lastEmittedSeq`.
func (r *TableReader) Scan(ctx context.Context, emit func(record.Row) error) error {
	for {
		err := r.scanOnce(ctx, emit)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("table_reader: scan interrupted at seq %d, resuming: %v", r.lastSeq, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func (r *TableReader) scanOnce(ctx context.Context, emit func(record.Row) error) error {
	db, err := r.open(ctx)
	if err != nil {
		return fmt.Errorf("table_reader: open connection: %w", err)
	}
	defer db.Close()

	selectCols := append([]string{r.pkCol}, r.cols...)
	query := fmt.Sprintf("SELECT %s FROM %s.%s WHERE %s > ? ORDER BY %s",
		joinCols(selectCols), r.db, r.table, r.pkCol, r.pkCol)

	rows, err := db.QueryContext(ctx, query, r.lastSeq)
	if err != nil {
		return fmt.Errorf("table_reader: query: %w", err)
	}
	defer rows.Close()

	dest := make([]any, len(selectCols))
	raw := make([][]byte, len(selectCols))
	for i := range dest {
		dest[i] = &raw[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("table_reader: scan row: %w", err)
		}
		var pk uint64
		fmt.Sscanf(string(raw[0]), "%d", &pk)

		vals := make(map[string]value.Value, len(r.cols))
		for i, col := range r.cols {
			vals[col] = value.String(string(raw[i+1]))
		}

		row := record.Row{
			Op:          record.OpInsert,
			PrimaryKey:  pk,
			IndexValues: vals,
			LSN:         pk,
		}
		if err := emit(row); err != nil {
			return fmt.Errorf("table_reader: emit: %w", err)
		}
		r.lastSeq = pk
	}
	return rows.Err()
}

func joinCols(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

// LastSeq reports the most recently emitted seq_id (pk).
func (r *TableReader) LastSeq() uint64 { return r.lastSeq }
