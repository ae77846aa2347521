// Package fetcher wraps a dedicated MySQL connection dumping ROW-format
// binlog events.
package fetcher

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"

	"github.com/alibaba/proxima-sub000/internal/binlog/mysqlconn"
	"github.com/alibaba/proxima-sub000/internal/errcode"
)

// Position is a resumable point in the binlog stream.
type Position struct {
	File     string
	Position uint32
}

// Config configures a dump connection.
type Config struct {
	Addr     string // host:port
	User     string
	Password string
	DB       string
	DialTimeout time.Duration
}

// EventFetcher owns one dedicated connection streaming binlog events from
// a fixed starting position, reconnecting with linear backoff on drop.
type EventFetcher struct {
	cfg      Config
	admin    *sql.DB
	conn     *mysqlconn.Conn
	pos      Position
	serverID uint32
}

// NewEventFetcher validates the starting position and opens the dump
// connection.
func NewEventFetcher(ctx context.Context, cfg Config, start Position) (*EventFetcher, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s)/%s", cfg.User, cfg.Password, cfg.Addr, cfg.DB)
	admin, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errcode.Wrap(errcode.ConnectMysql, err, "open admin connection")
	}
	if err := admin.PingContext(ctx); err != nil {
		return nil, errcode.Wrap(errcode.ConnectMysql, err, "ping mysql")
	}

	f := &EventFetcher{cfg: cfg, admin: admin, pos: start, serverID: syntheticServerID()}
	validated, err := f.validatePosition(ctx, start)
	if err != nil {
		return nil, err
	}
	f.pos = validated

	if err := f.connectDump(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

func syntheticServerID() uint32 {
	// timestamp-derived, nonzero, > 10000.
	return uint32(time.Now().UnixNano()%1_000_000) + 10001
}

// validatePosition checks (file, position) via SHOW BINLOG EVENTS; on
// failure it falls back to the smallest file name strictly greater than
// the given file at position 4.
func (f *EventFetcher) validatePosition(ctx context.Context, want Position) (Position, error) {
	rows, err := f.admin.QueryContext(ctx, fmt.Sprintf("SHOW BINLOG EVENTS IN '%s' FROM %d LIMIT 1", want.File, want.Position))
	if err == nil {
		defer rows.Close()
		if rows.Next() {
			return want, nil
		}
	}

	names, lerr := f.listBinlogFiles(ctx)
	if lerr != nil {
		return Position{}, errcode.Wrap(errcode.InvalidMysqlResult, lerr, "list binlog files for fallback")
	}
	for _, name := range names {
		if name > want.File {
			return Position{File: name, Position: 4}, nil
		}
	}
	return Position{}, errcode.Newf(errcode.InvalidMysqlResult, "no binlog file found after %q", want.File)
}

func (f *EventFetcher) listBinlogFiles(ctx context.Context) ([]string, error) {
	rows, err := f.admin.QueryContext(ctx, "SHOW BINARY LOGS")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		var size int64
		if err := rows.Scan(&name, &size); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// connectDump opens the dedicated raw connection, disables checksum, and
// issues COM_BINLOG_DUMP at f.pos.
func (f *EventFetcher) connectDump(ctx context.Context) error {
	timeout := f.cfg.DialTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	conn, err := mysqlconn.Dial(f.cfg.Addr, timeout)
	if err != nil {
		return errcode.Wrap(errcode.ConnectMysql, err, "dial binlog dump connection")
	}
	if err := mysqlconn.Handshake(conn, f.cfg.User, f.cfg.Password, f.cfg.DB); err != nil {
		conn.Close()
		return errcode.Wrap(errcode.ConnectMysql, err, "handshake")
	}

	// Checksum negotiation is retried once before the connection is given up.
	if _, err := mysqlconn.Query(conn, "SET @master_binlog_checksum='NONE'"); err != nil {
		if _, err = mysqlconn.Query(conn, "SET @master_binlog_checksum='NONE'"); err != nil {
			conn.Close()
			return errcode.Wrap(errcode.ExecuteSimpleCommand, err, "disable binlog checksum")
		}
	}

	_ = mysqlconn.RegisterSlave(conn, f.serverID, "")

	if err := mysqlconn.DumpBinlog(conn, f.pos.File, f.pos.Position, f.serverID); err != nil {
		conn.Close()
		return errcode.Wrap(errcode.ExecuteMysql, err, "COM_BINLOG_DUMP")
	}
	f.conn = conn
	return nil
}

// Fetch reads the next event's raw body. It returns errcode.BinlogNoMoreData
// when the stream reports EOF, and transparently reconnects (linear 1s
// backoff) on connection loss, resuming from the last observed position.
// A call after end-of-data redials the dump connection first.
func (f *EventFetcher) Fetch(ctx context.Context) ([]byte, error) {
	if f.conn == nil {
		if err := f.connectDump(ctx); err != nil {
			return nil, err
		}
	}
	body, eof, err := mysqlconn.ReadBinlogEvent(f.conn)
	if err == nil {
		if eof {
			f.conn.Close()
			f.conn = nil
			return nil, errcode.New(errcode.BinlogNoMoreData, "binlog stream reported end-of-data")
		}
		return body, nil
	}

	log.Printf("fetcher: connection lost, reconnecting: %v", err)
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}

	bo := backoff.NewConstantBackOff(time.Second)
	reErr := backoff.Retry(func() error {
		return f.connectDump(ctx)
	}, backoff.WithContext(bo, ctx))
	if reErr != nil {
		return nil, errcode.Wrap(errcode.ConnectMysql, reErr, "reconnect binlog dump")
	}
	return f.Fetch(ctx)
}

// AdvanceRotate updates the in-memory position after a ROTATE_EVENT.
func (f *EventFetcher) AdvanceRotate(file string, position uint64) {
	f.pos = Position{File: strings.TrimSpace(file), Position: uint32(position)}
}

// Advance updates the in-memory position within the current file after the
// caller has fully consumed an event, without touching the file (see
// AdvanceRotate for that). A reconnect dumps from this position, not from
// wherever the last ROTATE_EVENT left it, so a dropped connection resumes
// without re-emitting already-consumed events.
func (f *EventFetcher) Advance(position uint32) {
	f.pos.Position = position
}

// Position reports the current (file, position) as a file name and byte
// offset pair.
func (f *EventFetcher) Position() (string, uint32) { return f.pos.File, f.pos.Position }

// Admin exposes the relational admin connection so callers can run their
// own queries against it (e.g. internal/binlog/refresher's
// information_schema.columns re-read) without opening a second connection
// pool to the same server.
func (f *EventFetcher) Admin() *sql.DB { return f.admin }

// Close releases both the admin and dump connections.
func (f *EventFetcher) Close() error {
	if f.conn != nil {
		f.conn.Close()
	}
	return f.admin.Close()
}
