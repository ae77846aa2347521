package reader

import (
	"strconv"
	"strings"
)

// LsnContext is a resumable position in the binlog stream: the file a row's
// event was read from and the byte offset immediately after that event.
// Encode packs it into the single uint64 LSN carried on record.Row, so
// Collection's monotonic-max LSN tracking orders rows across file rotations
// as well as within one file.
type LsnContext struct {
	File     string
	Position uint32
}

// Encode packs c into a uint64: the binlog file's numeric suffix (e.g. 7 for
// "mysql-bin.000007") in the high 32 bits, the byte position in the low 32
// bits. Two readers that observe the same (File, Position) encode to the
// same value, which is what lets a resumed reader and a fresh one agree on
// how far ingestion has progressed.
func (c LsnContext) Encode() uint64 {
	return uint64(fileSequence(c.File))<<32 | uint64(c.Position)
}

// DecodeLSN splits an encoded LSN back into its file-sequence and
// in-file-position components.
func DecodeLSN(lsn uint64) (fileSeq uint32, position uint32) {
	return uint32(lsn >> 32), uint32(lsn)
}

// fileSequence extracts the numeric suffix from a binlog file name such as
// "mysql-bin.000007", returning 0 if the name carries none.
func fileSequence(file string) uint32 {
	i := strings.LastIndexByte(file, '.')
	if i < 0 || i+1 >= len(file) {
		return 0
	}
	n, err := strconv.ParseUint(file[i+1:], 10, 32)
	if err != nil {
		return 0
	}
	return uint32(n)
}
