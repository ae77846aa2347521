package mysqlconn

import (
	"crypto/sha1"
	"fmt"
)

const (
	capLongPassword  = 0x00000001
	capProtocol41    = 0x00000200
	capSecureConn    = 0x00008000
	capPluginAuth    = 0x00080000
	capLongFlag      = 0x00000004
	capTransactions  = 0x00002000
	capMultiResults  = 0x00020000
)

// handshakeV10 is the server's initial greeting.
type handshakeV10 struct {
	ProtocolVersion byte
	ServerVersion   string
	ConnectionID    uint32
	AuthPluginData  []byte
	Capabilities    uint32
	AuthPluginName  string
}

// Handshake performs the MySQL connection handshake (protocol version 10,
// mysql_native_password only) and authenticates as user/pass against
// database db. This duplicates a slice of what go-sql-driver/mysql does
// internally for ordinary queries; a dedicated raw connection is needed
// here because COM_BINLOG_DUMP commandeers the connection for a long-lived
// streaming read that database/sql's pooled-connection model cannot
// express.
func Handshake(c *Conn, user, pass, db string) error {
	pkt, err := c.ReadPacket()
	if err != nil {
		return fmt.Errorf("mysqlconn: read handshake packet: %w", err)
	}
	greeting, err := parseHandshakeV10(pkt)
	if err != nil {
		return err
	}
	if greeting.AuthPluginName != "" && greeting.AuthPluginName != "mysql_native_password" {
		return fmt.Errorf("mysqlconn: unsupported auth plugin %q", greeting.AuthPluginName)
	}

	authResp := scrambleNativePassword(greeting.AuthPluginData, pass)
	resp := buildHandshakeResponse41(user, authResp, db)
	c.seq = 1
	if err := c.WritePacket(resp); err != nil {
		return fmt.Errorf("mysqlconn: write handshake response: %w", err)
	}

	ack, err := c.ReadPacket()
	if err != nil {
		return fmt.Errorf("mysqlconn: read handshake ack: %w", err)
	}
	if len(ack) > 0 && ack[0] == 0xFF {
		return fmt.Errorf("mysqlconn: handshake rejected: %s", parseErrPacket(ack))
	}
	return nil
}

func parseHandshakeV10(pkt []byte) (handshakeV10, error) {
	var h handshakeV10
	if len(pkt) < 1 {
		return h, fmt.Errorf("mysqlconn: empty handshake packet")
	}
	pos := 0
	h.ProtocolVersion = pkt[pos]
	pos++
	end := indexByte(pkt[pos:], 0)
	if end < 0 {
		return h, fmt.Errorf("mysqlconn: malformed server version")
	}
	h.ServerVersion = string(pkt[pos : pos+end])
	pos += end + 1

	if pos+4 > len(pkt) {
		return h, fmt.Errorf("mysqlconn: truncated connection id")
	}
	h.ConnectionID = leUint32(pkt[pos:])
	pos += 4

	authData := append([]byte{}, pkt[pos:pos+8]...)
	pos += 8 + 1 // + filler

	if pos+2 > len(pkt) {
		return h, fmt.Errorf("mysqlconn: truncated capability flags")
	}
	capLower := uint32(leUint16(pkt[pos:]))
	pos += 2

	var authLen int
	if pos < len(pkt) {
		pos++ // charset
	}
	if pos+2 > len(pkt) {
		return h, fmt.Errorf("mysqlconn: truncated status flags")
	}
	pos += 2 // status flags
	if pos+2 > len(pkt) {
		return h, fmt.Errorf("mysqlconn: truncated capability flags (upper)")
	}
	capUpper := uint32(leUint16(pkt[pos:])) << 16
	pos += 2
	h.Capabilities = capLower | capUpper

	if h.Capabilities&capPluginAuth != 0 {
		if pos < len(pkt) {
			authLen = int(pkt[pos])
		}
		pos++
	} else {
		pos++
	}
	pos += 10 // reserved

	if h.Capabilities&capSecureConn != 0 {
		n := authLen - 8
		if n < 13 {
			n = 13
		}
		if pos+n <= len(pkt) {
			authData = append(authData, pkt[pos:pos+n-1]...)
			pos += n
		}
	}
	if h.Capabilities&capPluginAuth != 0 && pos < len(pkt) {
		rest := pkt[pos:]
		end := indexByte(rest, 0)
		if end >= 0 {
			h.AuthPluginName = string(rest[:end])
		} else {
			h.AuthPluginName = string(rest)
		}
	}
	h.AuthPluginData = authData
	return h, nil
}

// scrambleNativePassword implements mysql_native_password:
// SHA1(password) XOR SHA1(scramble + SHA1(SHA1(password))).
func scrambleNativePassword(scramble []byte, password string) []byte {
	if password == "" {
		return nil
	}
	stage1 := sha1.Sum([]byte(password))
	stage2 := sha1.Sum(stage1[:])
	h := sha1.New()
	h.Write(scramble)
	h.Write(stage2[:])
	stage3 := h.Sum(nil)

	out := make([]byte, len(stage3))
	for i := range out {
		out[i] = stage3[i] ^ stage1[i]
	}
	return out
}

func buildHandshakeResponse41(user string, authResp []byte, db string) []byte {
	caps := uint32(capLongPassword | capProtocol41 | capSecureConn | capPluginAuth | capLongFlag | capTransactions | capMultiResults)
	if db != "" {
		caps |= 0x00000008 // CLIENT_CONNECT_WITH_DB
	}

	buf := make([]byte, 0, 64+len(user)+len(authResp)+len(db))
	buf = appendUint32(buf, caps)
	buf = appendUint32(buf, 1<<24-1) // max packet size
	buf = append(buf, 0x21)          // utf8mb4 collation
	buf = append(buf, make([]byte, 23)...)
	buf = append(buf, []byte(user)...)
	buf = append(buf, 0)
	buf = append(buf, byte(len(authResp)))
	buf = append(buf, authResp...)
	if db != "" {
		buf = append(buf, []byte(db)...)
		buf = append(buf, 0)
	}
	buf = append(buf, []byte("mysql_native_password")...)
	buf = append(buf, 0)
	return buf
}

func appendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

func parseErrPacket(pkt []byte) string {
	if len(pkt) < 3 {
		return "unknown error"
	}
	code := leUint16(pkt[1:3])
	msg := ""
	if len(pkt) > 9 && pkt[3] == '#' {
		msg = string(pkt[9:])
	} else if len(pkt) > 3 {
		msg = string(pkt[3:])
	}
	return fmt.Sprintf("code=%d: %s", code, msg)
}
