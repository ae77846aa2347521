// Package refresher implements reader.SchemaRefresher against a live MySQL
// connection: on an observed ALTER TABLE it re-reads information_schema.columns
// and reports whether the table's column count and ordered type list are
// still compatible with what the collection was configured to expect.
package refresher

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/alibaba/proxima-sub000/internal/binlog/event"
)

// wire type byte values, mirrored from internal/binlog/event's unexported
// mysqlType constants (TABLE_MAP_EVENT's col_types wire values) since that
// package does not export them.
const (
	wireTiny       = 1
	wireShort      = 2
	wireLong       = 3
	wireFloat      = 4
	wireDouble     = 5
	wireLongLong   = 8
	wireInt24      = 9
	wireDate       = 10
	wireDatetime2  = 18
	wireTimestamp2 = 17
	wireVarString  = 253
	wireNewDecimal = 246
	wireBlob       = 252
	wireJSON       = 245

	typeClassUnknown = iota
	typeClassInt
	typeClassFloat
	typeClassString
	typeClassTemporal
	typeClassDecimal
	typeClassBlob
)

// DBRefresher re-reads a table's schema via the admin connection the
// EventFetcher also uses for SHOW BINLOG EVENTS/SHOW BINARY LOGS.
type DBRefresher struct {
	db       *sql.DB
	expected []event.ColumnInfo
}

// New builds a DBRefresher. expected is the column list the collection's
// index/forward mapping was built against; Refresh reports incompatible if
// a re-read table no longer has the same ordered type-class sequence.
func New(db *sql.DB, expected []event.ColumnInfo) *DBRefresher {
	return &DBRefresher{db: db, expected: expected}
}

// Refresh implements reader.SchemaRefresher.
func (r *DBRefresher) Refresh(ctx context.Context, dbName, table string) ([]event.ColumnInfo, bool, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT COLUMN_TYPE, IS_NULLABLE, CHARACTER_MAXIMUM_LENGTH, NUMERIC_PRECISION, NUMERIC_SCALE, DATETIME_PRECISION
		FROM information_schema.columns
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`, dbName, table)
	if err != nil {
		return nil, false, fmt.Errorf("refresher: query information_schema.columns: %w", err)
	}
	defer rows.Close()

	var cols []event.ColumnInfo
	for rows.Next() {
		var (
			columnType        string
			isNullable        string
			charMaxLen        sql.NullInt64
			numericPrecision  sql.NullInt64
			numericScale      sql.NullInt64
			datetimePrecision sql.NullInt64
		)
		if err := rows.Scan(&columnType, &isNullable, &charMaxLen, &numericPrecision, &numericScale, &datetimePrecision); err != nil {
			return nil, false, fmt.Errorf("refresher: scan column: %w", err)
		}
		cols = append(cols, columnInfoFromType(columnType, isNullable == "YES", charMaxLen, numericPrecision, numericScale, datetimePrecision))
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("refresher: iterate columns: %w", err)
	}

	return cols, r.compatible(cols), nil
}

func (r *DBRefresher) compatible(cols []event.ColumnInfo) bool {
	if len(r.expected) == 0 {
		return true
	}
	if len(cols) != len(r.expected) {
		return false
	}
	for i := range cols {
		if typeClass(cols[i].Type) != typeClass(r.expected[i].Type) {
			return false
		}
	}
	return true
}

func typeClass(wireType byte) int {
	switch wireType {
	case wireTiny, wireShort, wireLong, wireLongLong, wireInt24:
		return typeClassInt
	case wireFloat, wireDouble:
		return typeClassFloat
	case wireVarString:
		return typeClassString
	case wireDate, wireDatetime2, wireTimestamp2:
		return typeClassTemporal
	case wireNewDecimal:
		return typeClassDecimal
	case wireBlob, wireJSON:
		return typeClassBlob
	default:
		return typeClassUnknown
	}
}

// columnInfoFromType maps one information_schema.columns row to a
// ColumnInfo whose Meta matches the conventions event.fieldLength expects:
// VARCHAR/VAR_STRING meta is the max byte length, NEWDECIMAL meta packs
// precision<<8|scale, and the V2 temporal types carry their fsp directly.
func columnInfoFromType(columnType string, nullable bool, charMaxLen, numericPrecision, numericScale, datetimePrecision sql.NullInt64) event.ColumnInfo {
	base, _, _ := strings.Cut(columnType, "(")
	base = strings.TrimSpace(strings.ToLower(base))

	switch {
	case base == "tinyint":
		return event.ColumnInfo{Type: wireTiny, Nullable: nullable}
	case base == "smallint":
		return event.ColumnInfo{Type: wireShort, Nullable: nullable}
	case base == "mediumint":
		return event.ColumnInfo{Type: wireInt24, Nullable: nullable}
	case base == "int":
		return event.ColumnInfo{Type: wireLong, Nullable: nullable}
	case base == "bigint":
		return event.ColumnInfo{Type: wireLongLong, Nullable: nullable}
	case base == "float":
		return event.ColumnInfo{Type: wireFloat, Nullable: nullable}
	case base == "double":
		return event.ColumnInfo{Type: wireDouble, Nullable: nullable}
	case base == "decimal" || base == "numeric":
		meta := uint16(numericPrecision.Int64)<<8 | uint16(numericScale.Int64)
		return event.ColumnInfo{Type: wireNewDecimal, Meta: meta, Nullable: nullable}
	case base == "date":
		return event.ColumnInfo{Type: wireDate, Nullable: nullable}
	case base == "datetime":
		return event.ColumnInfo{Type: wireDatetime2, Meta: uint16(datetimePrecision.Int64), Nullable: nullable}
	case base == "timestamp":
		return event.ColumnInfo{Type: wireTimestamp2, Meta: uint16(datetimePrecision.Int64), Nullable: nullable}
	case base == "varchar" || base == "char":
		return event.ColumnInfo{Type: wireVarString, Meta: uint16(charMaxLen.Int64), Nullable: nullable}
	case base == "json":
		return event.ColumnInfo{Type: wireJSON, Meta: 4, Nullable: nullable}
	case strings.Contains(base, "blob") || base == "text" || strings.Contains(base, "text"):
		return event.ColumnInfo{Type: wireBlob, Meta: 2, Nullable: nullable}
	default:
		return event.ColumnInfo{Type: wireVarString, Meta: uint16(charMaxLen.Int64), Nullable: nullable}
	}
}
