// Package value implements the tagged generic value container that flows
// out of the binlog field codecs and into forward-column storage, plus the
// typed byte-buffer views (Blob, Vector[T]) used for index-column feature
// data.
package value

import (
	"fmt"
	"math"
)

// Kind tags the concrete type carried by a Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindFloat
	KindDouble
	KindString
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindInt32:
		return "int32"
	case KindUint32:
		return "uint32"
	case KindInt64:
		return "int64"
	case KindUint64:
		return "uint64"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	default:
		return "invalid"
	}
}

// Value is a single tagged, immutable scalar. Field codecs emit Values;
// forward-column lists are ordered slices of Value.
type Value struct {
	kind Kind
	i64  int64
	u64  uint64
	f64  float64
	str  string
	buf  []byte
}

func Int32(v int32) Value   { return Value{kind: KindInt32, i64: int64(v)} }
func Uint32(v uint32) Value { return Value{kind: KindUint32, u64: uint64(v)} }
func Int64(v int64) Value   { return Value{kind: KindInt64, i64: v} }
func Uint64(v uint64) Value { return Value{kind: KindUint64, u64: v} }
func Float(v float32) Value { return Value{kind: KindFloat, f64: float64(v)} }
func Double(v float64) Value { return Value{kind: KindDouble, f64: v} }
func String(v string) Value { return Value{kind: KindString, str: v} }
func Bytes(v []byte) Value  { return Value{kind: KindBytes, buf: v} }

// Null returns the zero Value, KindInvalid, used to represent a decoded SQL
// NULL distinctly from an absent column.
func Null() Value { return Value{kind: KindInvalid} }

func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsNull() bool  { return v.kind == KindInvalid }
func (v Value) Int32() int32  { return int32(v.i64) }
func (v Value) Uint32() uint32 { return uint32(v.u64) }
func (v Value) Int64() int64  { return v.i64 }
func (v Value) Uint64() uint64 { return v.u64 }
func (v Value) Float() float32 { return float32(v.f64) }
func (v Value) Double() float64 { return v.f64 }
func (v Value) String() string { return v.str }
func (v Value) Bytes() []byte  { return v.buf }

// GoString renders the value generically, used for debug logging and test
// assertions; it does not attempt to match MySQL's textual rendering rules
// (those live in the binlog/field package for DATETIME/DECIMAL/etc.).
func (v Value) GoString() string {
	switch v.kind {
	case KindInvalid:
		return "<null>"
	case KindInt32:
		return fmt.Sprintf("%d", v.i64)
	case KindUint32:
		return fmt.Sprintf("%d", v.u64)
	case KindInt64:
		return fmt.Sprintf("%d", v.i64)
	case KindUint64:
		return fmt.Sprintf("%d", v.u64)
	case KindFloat, KindDouble:
		return fmt.Sprintf("%v", v.f64)
	case KindString:
		return v.str
	case KindBytes:
		return fmt.Sprintf("%x", v.buf)
	default:
		return "<invalid>"
	}
}

// Equal reports whether two Values carry the same kind and payload.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindInvalid:
		return true
	case KindInt32, KindInt64:
		return a.i64 == b.i64
	case KindUint32, KindUint64:
		return a.u64 == b.u64
	case KindFloat:
		return math.Float32bits(float32(a.f64)) == math.Float32bits(float32(b.f64))
	case KindDouble:
		return a.f64 == b.f64
	case KindString:
		return a.str == b.str
	case KindBytes:
		if len(a.buf) != len(b.buf) {
			return false
		}
		for i := range a.buf {
			if a.buf[i] != b.buf[i] {
				return false
			}
		}
		return true
	}
	return false
}
