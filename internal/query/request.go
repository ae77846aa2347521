// Package query implements the four-phase query lifecycle (validate ->
// prepare -> evaluate -> finalize): KNN and equality search fanned out
// across a collection's segments via the executor, with top-k merging and
// forward-column filling.
package query

import "github.com/alibaba/proxima-sub000/internal/value"

// Type selects which Query implementation a factory builds.
type Type int

const (
	// TypeUndefined builds a no-op query that fails every phase.
	TypeUndefined Type = iota
	TypeKNN
	TypeEqual
)

// KNNParam carries a kNN request's column and batch parameters.
type KNNParam struct {
	ColumnName string
	TopK       uint32
	Dimension  uint32
	DataType   value.DataType

	// Exactly one of Features or Matrix is populated by the caller.
	Features []byte
	// Matrix holds per-query feature rows when the caller sent JSON instead
	// of a pre-encoded byte buffer; len(Matrix) == BatchCount.
	Matrix [][]float64

	BatchCount  uint32
	Radius      float32
	IsLinear    bool
	ExtraParams map[string]string
}

// Request is a QueryRequest.
type Request struct {
	CollectionName string
	QueryType      Type
	DebugMode      bool
	KNNParam       KNNParam
}

// KV is one forward column's name and decoded value.
type KV struct {
	Key   string
	Value value.Value
}

// Document is one result row.
type Document struct {
	PrimaryKey          uint64
	Score               float32
	ForwardColumnValues []KV
}

// ResultGroup holds one logical query's matched documents (batch index i of
// a kNN request).
type ResultGroup struct {
	Documents []Document
}

// Response is a QueryResponse.
type Response struct {
	Results   []ResultGroup
	DebugInfo string
}

// GetDocumentRequest is search_by_key's request.
type GetDocumentRequest struct {
	CollectionName string
	PrimaryKey     uint64
	DebugMode      bool
}

// GetDocumentResponse is search_by_key's response. Document is the zero
// value (PrimaryKey == 0, no forward values) on a miss — callers
// distinguish a miss by checking len(Results) on the underlying Response or,
// for search_by_key, an explicit Found flag.
type GetDocumentResponse struct {
	Found     bool
	Document  Document
	DebugInfo string
}
