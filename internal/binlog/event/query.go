package event

import (
	"encoding/binary"
	"fmt"
)

// QueryEvent carries a SQL statement executed on the master. ParseQueryEvent
// strips no checksum: the fetcher disables binlog checksums before the dump
// starts, so the statement runs to the end of body.
type QueryEvent struct {
	SlaveID       uint32
	ExecTime      uint32
	ErrorCode     uint16
	Schema        string
	StatusVars    []byte
	Query         string
}

// ParseQueryEvent decodes a QUERY_EVENT body (header already stripped).
func ParseQueryEvent(body []byte) (QueryEvent, error) {
	if len(body) < 4+4+1+2+2 {
		return QueryEvent{}, fmt.Errorf("event: query event body too short")
	}
	var e QueryEvent
	pos := 0
	e.SlaveID = binary.LittleEndian.Uint32(body[pos:])
	pos += 4
	e.ExecTime = binary.LittleEndian.Uint32(body[pos:])
	pos += 4
	schemaLen := int(body[pos])
	pos++
	e.ErrorCode = binary.LittleEndian.Uint16(body[pos:])
	pos += 2
	statusVarsLen := int(binary.LittleEndian.Uint16(body[pos:]))
	pos += 2

	if pos+statusVarsLen > len(body) {
		return QueryEvent{}, fmt.Errorf("event: status vars overrun")
	}
	e.StatusVars = body[pos : pos+statusVarsLen]
	pos += statusVarsLen

	if pos+schemaLen+1 > len(body) {
		return QueryEvent{}, fmt.Errorf("event: schema name overrun")
	}
	e.Schema = string(body[pos : pos+schemaLen])
	pos += schemaLen + 1 // trailing 0x00

	e.Query = string(body[pos:])
	return e, nil
}

// RotateEvent points the reader at the next binlog file.
type RotateEvent struct {
	Position uint64
	NextFile string
}

// ParseRotateEvent decodes a ROTATE_EVENT body. Whether trailing CRC bytes
// are present depends on whether this is the stream's first event; callers
// trim the checksum before calling this, so body holds exactly
// `{position, next_file}`.
func ParseRotateEvent(body []byte) (RotateEvent, error) {
	if len(body) < 8 {
		return RotateEvent{}, fmt.Errorf("event: rotate event body too short")
	}
	return RotateEvent{
		Position: binary.LittleEndian.Uint64(body[0:8]),
		NextFile: string(body[8:]),
	}, nil
}
