package reader

import "testing"

func TestLsnContextEncodeDecodeRoundTrip(t *testing.T) {
	c := LsnContext{File: "mysql-bin.000007", Position: 4521}
	lsn := c.Encode()

	seq, pos := DecodeLSN(lsn)
	if seq != 7 {
		t.Fatalf("seq = %d, want 7", seq)
	}
	if pos != 4521 {
		t.Fatalf("pos = %d, want 4521", pos)
	}
}

func TestLsnContextOrdersAcrossFileRotation(t *testing.T) {
	before := LsnContext{File: "mysql-bin.000007", Position: 999_999}.Encode()
	after := LsnContext{File: "mysql-bin.000008", Position: 4}.Encode()

	if !(before < after) {
		t.Fatalf("expected rotation into a new file to always encode greater, before=%d after=%d", before, after)
	}
}

func TestFileSequenceUnrecognizedNameDefaultsToZero(t *testing.T) {
	c := LsnContext{File: "not-a-binlog-name", Position: 10}
	seq, pos := DecodeLSN(c.Encode())
	if seq != 0 {
		t.Fatalf("seq = %d, want 0", seq)
	}
	if pos != 10 {
		t.Fatalf("pos = %d, want 10", pos)
	}
}
