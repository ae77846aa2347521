// Package mysqlconn implements the slice of the MySQL client/server wire
// protocol the binlog pipeline needs but database/sql cannot expose:
// COM_BINLOG_DUMP and raw packet framing. It is not a
// general-purpose driver; ordinary queries (SHOW BINLOG EVENTS, the
// full-scan SELECT) run over go-sql-driver/mysql through database/sql, and
// this package handles only the dump connection: its handshake, the SET
// @master_binlog_checksum issued on it, and the binlog dump itself.
package mysqlconn

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"
)

const maxPacketSize = 1<<24 - 1

// Conn wraps a raw TCP connection opened by Dial and authenticated by this
// package's Handshake, speaking the packet-framing layer of the protocol.
// It is a dedicated connection for COM_BINLOG_DUMP, since that command
// commandeers the connection for a long-lived streaming read.
type Conn struct {
	nc  net.Conn
	br  *bufio.Reader
	seq byte
}

// Dial opens a raw TCP connection to addr, for use after the caller drives
// the handshake itself (see Handshake).
func Dial(addr string, timeout time.Duration) (*Conn, error) {
	nc, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("mysqlconn: dial %s: %w", addr, err)
	}
	return &Conn{nc: nc, br: bufio.NewReaderSize(nc, 64*1024)}, nil
}

// Close releases the underlying connection.
func (c *Conn) Close() error { return c.nc.Close() }

// ResetSeq resets the packet sequence counter, required before issuing a
// new top-level command.
func (c *Conn) ResetSeq() { c.seq = 0 }

// WritePacket frames and writes a single command packet.
func (c *Conn) WritePacket(payload []byte) error {
	if len(payload) > maxPacketSize {
		return fmt.Errorf("mysqlconn: payload %d exceeds max packet size", len(payload))
	}
	header := make([]byte, 4)
	header[0] = byte(len(payload))
	header[1] = byte(len(payload) >> 8)
	header[2] = byte(len(payload) >> 16)
	header[3] = c.seq
	c.seq++
	if _, err := c.nc.Write(header); err != nil {
		return fmt.Errorf("mysqlconn: write packet header: %w", err)
	}
	if _, err := c.nc.Write(payload); err != nil {
		return fmt.Errorf("mysqlconn: write packet payload: %w", err)
	}
	return nil
}

// ReadPacket reads one framed packet, reassembling any payload split
// across the 16MB packet boundary.
func (c *Conn) ReadPacket() ([]byte, error) {
	var full []byte
	for {
		header := make([]byte, 4)
		if _, err := io.ReadFull(c.br, header); err != nil {
			return nil, fmt.Errorf("mysqlconn: read packet header: %w", err)
		}
		length := int(header[0]) | int(header[1])<<8 | int(header[2])<<16
		c.seq = header[3] + 1

		buf := make([]byte, length)
		if length > 0 {
			if _, err := io.ReadFull(c.br, buf); err != nil {
				return nil, fmt.Errorf("mysqlconn: read packet payload: %w", err)
			}
		}
		full = append(full, buf...)
		if length < maxPacketSize {
			break
		}
	}
	return full, nil
}

func leUint16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }
func leUint32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
