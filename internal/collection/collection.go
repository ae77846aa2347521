// Package collection implements the named, schema-revisioned index
// partition. A Collection owns an ordered list of Segments, routes writes
// to the newest one (rolling over onto a freshly created segment once
// capacity is reached), and holds only the current schema, which
// UpdateSchema replaces; forward-column names for older revisions are
// resolved through meta.MetaWrapper at query time.
package collection

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/alibaba/proxima-sub000/internal/errcode"
	"github.com/alibaba/proxima-sub000/internal/record"
	"github.com/alibaba/proxima-sub000/internal/schema"
	"github.com/alibaba/proxima-sub000/internal/segment"
	"github.com/alibaba/proxima-sub000/internal/value"
)

// indexValuesInOrder projects a row's by-name index values into the
// schema's declared index-column order, so Segment.Insert always receives
// a positional slice regardless of map iteration order. A missing column
// is passed as value.Null.
func indexValuesInOrder(s schema.Schema, byName map[string]value.Value) []value.Value {
	vals := make([]value.Value, len(s.IndexColumns))
	for i, col := range s.IndexColumns {
		if v, ok := byName[col.Name]; ok {
			vals[i] = v
		} else {
			vals[i] = value.Null()
		}
	}
	return vals
}

// SegmentFactory creates a new, empty Segment for the next rollover slot.
// id is unique within the owning Collection.
type SegmentFactory func(id uint64) (segment.Segment, error)

// Config bundles the construction-time parameters for a Collection.
type Config struct {
	Name            string
	Schema          schema.Schema
	NewSegment      SegmentFactory
	SegmentCapacity uint64 // documents per segment before rollover; 0 disables rollover
}

// Collection is a single named, schema-revisioned index partition.
//
// Writes are serialized by mu, which is held only long enough to choose
// (and, on rollover, create) the active segment — the segment call itself
// happens outside the lock, so a slow kernel insert never blocks readers
// or writers destined for other segments.
type Collection struct {
	name string

	mu            sync.Mutex
	segments      []segment.Segment
	nextSegmentID uint64
	newSegment    SegmentFactory
	capacity      uint64

	schemaMu sync.RWMutex
	schema   schema.Schema

	writeSuspended atomic.Bool
	readSuspended  atomic.Bool
	latestLSN      atomic.Uint64
}

// New constructs an empty Collection with one initial segment.
func New(cfg Config) (*Collection, error) {
	if cfg.Name == "" {
		return nil, errcode.New(errcode.InvalidArgument, "collection name must not be empty")
	}
	if cfg.NewSegment == nil {
		return nil, errcode.New(errcode.InvalidArgument, "collection requires a segment factory")
	}

	c := &Collection{
		name:       cfg.Name,
		schema:     cfg.Schema,
		newSegment: cfg.NewSegment,
		capacity:   cfg.SegmentCapacity,
	}

	seg, err := cfg.NewSegment(0)
	if err != nil {
		return nil, errcode.Wrap(errcode.RuntimeError, err, "create initial segment")
	}
	c.nextSegmentID = 1
	c.segments = append(c.segments, seg)
	return c, nil
}

// Name returns the collection's name.
func (c *Collection) Name() string { return c.name }

// Schema returns a defensive copy of the collection's current schema, so a
// caller mutating the returned columns (e.g. to build the next revision)
// can never reach back into the live schema.
func (c *Collection) Schema() schema.Schema {
	c.schemaMu.RLock()
	defer c.schemaMu.RUnlock()

	s := c.schema
	s.ForwardColumns = append([]schema.ForwardColumn(nil), c.schema.ForwardColumns...)
	s.IndexColumns = append([]schema.IndexColumn(nil), c.schema.IndexColumns...)
	return s
}

// UpdateSchema installs next as the collection's current schema, provided
// it is a compatible forward-column-only update.
func (c *Collection) UpdateSchema(next schema.Schema) error {
	c.schemaMu.Lock()
	defer c.schemaMu.Unlock()

	if !c.schema.CompatibleUpdate(next) {
		return errcode.New(errcode.MismatchedSchema, "schema update must only change forward columns and strictly increase the revision")
	}
	c.schema = next
	return nil
}

// SuspendWrites stops WriteRecords from accepting new rows.
func (c *Collection) SuspendWrites() { c.writeSuspended.Store(true) }

// ResumeWrites clears a previous SuspendWrites.
func (c *Collection) ResumeWrites() { c.writeSuspended.Store(false) }

// WritesSuspended reports whether writes are currently refused.
func (c *Collection) WritesSuspended() bool { return c.writeSuspended.Load() }

// SuspendReads stops queries from being served against this collection.
func (c *Collection) SuspendReads() { c.readSuspended.Store(true) }

// ResumeReads clears a previous SuspendReads.
func (c *Collection) ResumeReads() { c.readSuspended.Store(false) }

// ReadsSuspended reports whether queries are currently refused.
func (c *Collection) ReadsSuspended() bool { return c.readSuspended.Load() }

// LatestLSN returns the highest binlog LSN folded into a WriteRecords call
// so far, or 0 if the collection has only ever taken direct writes.
func (c *Collection) LatestLSN() uint64 { return c.latestLSN.Load() }

// activeSegment returns the current write target, rolling over onto a
// freshly created segment when capacity has been reached. Called with mu
// held.
func (c *Collection) activeSegment() (segment.Segment, error) {
	active := c.segments[len(c.segments)-1]
	if c.capacity == 0 || active.DocCount() < c.capacity {
		return active, nil
	}

	seg, err := c.newSegment(c.nextSegmentID)
	if err != nil {
		return nil, errcode.Wrap(errcode.RuntimeError, err, "roll over segment")
	}
	c.nextSegmentID++
	c.segments = append(c.segments, seg)
	return seg, nil
}

// hasPrimaryKey reports whether pk already exists in any of the
// collection's current segments. It is a best-effort check: two concurrent
// direct writes for the same new primary key can still both pass it before
// either insert completes, matching the rest of WriteRecords' narrow
// locking (mu only guards active-segment selection, not the full call).
func (c *Collection) hasPrimaryKey(ctx context.Context, pk uint64) (bool, error) {
	for _, seg := range c.Segments() {
		res, err := seg.KVSearch(ctx, pk)
		if err != nil {
			return false, err
		}
		if res.PrimaryKey != segment.InvalidKey {
			return true, nil
		}
	}
	return false, nil
}

// WriteRecords applies rows to the collection in order, routing each to
// the active segment. Rows from the same Dataset may land on different
// segments only across a rollover boundary; within one call the active
// segment is re-resolved per row so a mid-batch rollover is handled.
func (c *Collection) WriteRecords(ctx context.Context, rows record.Dataset) error {
	if c.writeSuspended.Load() {
		return errcode.New(errcode.StoppedService, "collection writes are suspended")
	}

	s := c.Schema()
	var maxLSN uint64
	for _, row := range rows {
		c.mu.Lock()
		seg, err := c.activeSegment()
		c.mu.Unlock()
		if err != nil {
			return err
		}

		switch row.Op {
		case record.OpDelete:
			if err := seg.Remove(ctx, row.PrimaryKey); err != nil {
				return errcode.Wrap(errcode.RuntimeError, err, "remove row")
			}
		default:
			if row.Op == record.OpInsert && row.LSN == 0 {
				exists, err := c.hasPrimaryKey(ctx, row.PrimaryKey)
				if err != nil {
					return errcode.Wrap(errcode.RuntimeError, err, "check existing primary key")
				}
				if exists {
					return errcode.Newf(errcode.DuplicateKey, "primary key %d already exists in collection %q", row.PrimaryKey, c.name)
				}
			}
			vals := indexValuesInOrder(s, row.IndexValues)
			if err := seg.Insert(ctx, row.PrimaryKey, vals, row.Forward); err != nil {
				return errcode.Wrap(errcode.RuntimeError, err, "insert row")
			}
		}

		if row.LSN > maxLSN {
			maxLSN = row.LSN
		}
	}

	if maxLSN > 0 {
		for {
			prev := c.latestLSN.Load()
			if maxLSN <= prev || c.latestLSN.CompareAndSwap(prev, maxLSN) {
				break
			}
		}
	}
	return nil
}

// Flush persists every segment's in-memory state.
func (c *Collection) Flush(ctx context.Context) error {
	c.mu.Lock()
	segments := append([]segment.Segment(nil), c.segments...)
	c.mu.Unlock()

	for _, seg := range segments {
		if err := seg.Flush(ctx); err != nil {
			return errcode.Wrap(errcode.RuntimeError, err, "flush segment")
		}
	}
	return nil
}

// Optimize compacts every segment.
func (c *Collection) Optimize(ctx context.Context) error {
	c.mu.Lock()
	segments := append([]segment.Segment(nil), c.segments...)
	c.mu.Unlock()

	for _, seg := range segments {
		if err := seg.Optimize(ctx); err != nil {
			return errcode.Wrap(errcode.RuntimeError, err, "optimize segment")
		}
	}
	return nil
}

// Segments returns a snapshot of the collection's current segment list.
// Safe to iterate concurrently with writes; a rollover during iteration is
// simply not reflected in an already-taken snapshot.
func (c *Collection) Segments() []segment.Segment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]segment.Segment(nil), c.segments...)
}

// Stats aggregates doc and segment counts for get_collection_stats.
func (c *Collection) Stats() segment.Stats {
	segments := c.Segments()
	stats := segment.Stats{SegmentCount: len(segments)}
	for _, seg := range segments {
		stats.DocCount += seg.DocCount()
	}
	return stats
}
