package mysqlconn

import (
	"fmt"
)

const (
	comQuery       byte = 0x03
	comBinlogDump  byte = 0x12
	comRegisterSlave byte = 0x15
)

// RegisterSlave issues COM_REGISTER_SLAVE with the synthetic server id the
// fetcher assigned this connection (> 10000, timestamp-derived, nonzero).
// Some MySQL configurations require
// registration before COM_BINLOG_DUMP will be honored; others accept the
// dump unregistered. The caller ignores failures here.
func RegisterSlave(c *Conn, serverID uint32, reportHost string) error {
	c.ResetSeq()
	buf := []byte{comRegisterSlave}
	buf = appendUint32(buf, serverID)
	buf = append(buf, byte(len(reportHost)))
	buf = append(buf, []byte(reportHost)...)
	buf = append(buf, 0) // report_user len
	buf = append(buf, 0) // report_password len
	buf = appendUint16(buf, 0) // report_port
	buf = appendUint32(buf, 0) // rpl_recovery_rank
	buf = appendUint32(buf, 0) // master_id
	if err := c.WritePacket(buf); err != nil {
		return err
	}
	resp, err := c.ReadPacket()
	if err != nil {
		return err
	}
	if len(resp) > 0 && resp[0] == 0xFF {
		return fmt.Errorf("mysqlconn: register slave rejected: %s", parseErrPacket(resp))
	}
	return nil
}

// DumpBinlog issues COM_BINLOG_DUMP at the given file/position with the
// given synthetic server id. The connection becomes a long-lived event
// stream after this call; subsequent reads come from ReadBinlogEvent.
func DumpBinlog(c *Conn, file string, position uint32, serverID uint32) error {
	c.ResetSeq()
	buf := []byte{comBinlogDump}
	buf = appendUint32(buf, position)
	buf = appendUint16(buf, 0) // flags
	buf = appendUint32(buf, serverID)
	buf = append(buf, []byte(file)...)
	return c.WritePacket(buf)
}

// Query issues a COM_QUERY and returns the raw first response packet,
// which the caller interprets (OK/ERR/result-set). Used only for the
// checksum negotiation the fetcher needs on the dedicated dump connection
// before dump starts — binlog position validation and anything relational
// run through database/sql instead.
func Query(c *Conn, sql string) ([]byte, error) {
	c.ResetSeq()
	buf := append([]byte{comQuery}, []byte(sql)...)
	if err := c.WritePacket(buf); err != nil {
		return nil, err
	}
	return c.ReadPacket()
}

func appendUint16(buf []byte, v uint16) []byte {
	return append(buf, byte(v), byte(v>>8))
}

// ReadBinlogEvent reads one packet from an active COM_BINLOG_DUMP stream.
// A 0x00 prefix byte means "ok, event follows" (stripped here); a 0xFF
// prefix is an ERR packet; a 0xFE prefix shorter than 8 bytes is EOF, which
// the caller reports as BinlogNoMoreData after clearing the connection.
func ReadBinlogEvent(c *Conn) (eventBody []byte, eof bool, err error) {
	pkt, err := c.ReadPacket()
	if err != nil {
		return nil, false, err
	}
	if len(pkt) == 0 {
		return nil, false, fmt.Errorf("mysqlconn: empty binlog packet")
	}
	switch pkt[0] {
	case 0x00:
		return pkt[1:], false, nil
	case 0xFE:
		if len(pkt) < 8 {
			return nil, true, nil
		}
		return pkt[1:], false, nil
	case 0xFF:
		return nil, false, fmt.Errorf("mysqlconn: binlog dump error: %s", parseErrPacket(pkt))
	default:
		return nil, false, fmt.Errorf("mysqlconn: unexpected binlog packet prefix 0x%x", pkt[0])
	}
}
