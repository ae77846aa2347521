// Package segment defines the opaque per-shard retrieval unit as a Go
// interface — the facade over the external IndexKernel. Everything upstream
// (Collection, the query engine) talks to segments only through this
// interface; the concrete kernel implementation is out of scope.
package segment

import (
	"context"

	"github.com/alibaba/proxima-sub000/internal/value"
)

// InvalidKey is the sentinel primary key meaning "no hit".
const InvalidKey uint64 = 0xFFFFFFFFFFFFFFFF

// QueryParams carries one kNN query's tuning knobs, translated from the
// request proto by the query engine during its prepare phase.
type QueryParams struct {
	QueryID     uint64
	TopK        uint32
	DataType    value.DataType
	Dimension   uint32
	Radius      float32
	IsLinear    bool
	ExtraParams map[string]string
}

// QueryResult is one candidate returned by a segment, or a response
// document after forward filling.
type QueryResult struct {
	PrimaryKey   uint64
	Score        float32
	Revision     uint64
	LSN          uint64
	ForwardData  []byte
}

// Less orders results by score ascending, breaking ties by primary key
// ascending for a stable, deterministic merge order.
func Less(a, b QueryResult) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.PrimaryKey < b.PrimaryKey
}

// QueryResultList is one logical query's already score-sorted candidate
// stream returned by a single segment.
type QueryResultList []QueryResult

// Stats aggregates a collection's segments for get_collection_stats.
type Stats struct {
	DocCount        uint64
	SegmentCount    int
	IndexFileBytes  uint64
}

// Segment is the opaque single-shard kernel facade. doc_count's
// monotonic-increase and "union contains every primary key exactly once"
// invariants are the kernel's responsibility; Segment only exposes the
// operations the core subsystems drive.
type Segment interface {
	// ID returns the segment's identifier, unique within its collection.
	ID() uint64

	// DocCount returns the number of live documents in the segment.
	DocCount() uint64

	// KNNSearch runs a batched approximate (or, with params.IsLinear, exact)
	// nearest-neighbor search over column, returning one QueryResultList per
	// logical query in the batch. features holds batch*dim*type_size bytes.
	KNNSearch(ctx context.Context, column string, features []byte, params QueryParams, batch uint32) ([]QueryResultList, error)

	// KVSearch performs an exact primary-key lookup, returning at most one
	// hit. A miss is reported as a QueryResult with PrimaryKey == InvalidKey,
	// not an error.
	KVSearch(ctx context.Context, primaryKey uint64) (QueryResult, error)

	// Insert appends or updates a row.
	Insert(ctx context.Context, pk uint64, indexValues []value.Value, forward []byte) error

	// Remove deletes a row by primary key.
	Remove(ctx context.Context, pk uint64) error

	// Optimize rewrites the segment, compacting deletes and updates.
	Optimize(ctx context.Context) error

	// Flush persists in-memory state to durable storage.
	Flush(ctx context.Context) error
}
