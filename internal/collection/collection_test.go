package collection

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alibaba/proxima-sub000/internal/errcode"
	"github.com/alibaba/proxima-sub000/internal/record"
	"github.com/alibaba/proxima-sub000/internal/schema"
	"github.com/alibaba/proxima-sub000/internal/segment"
	"github.com/alibaba/proxima-sub000/internal/value"
)

// fakeSegment is a minimal in-memory Segment stand-in for exercising
// Collection's routing and rollover behavior without a real kernel.
type fakeSegment struct {
	id uint64

	mu    sync.Mutex
	rows  map[uint64][]value.Value
	flush int
	opt   int
}

func newFakeSegment(id uint64) (segment.Segment, error) {
	return &fakeSegment{id: id, rows: make(map[uint64][]value.Value)}, nil
}

func (s *fakeSegment) ID() uint64 { return s.id }

func (s *fakeSegment) DocCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.rows))
}

func (s *fakeSegment) KNNSearch(context.Context, string, []byte, segment.QueryParams, uint32) ([]segment.QueryResultList, error) {
	return nil, nil
}

func (s *fakeSegment) KVSearch(_ context.Context, pk uint64) (segment.QueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[pk]; !ok {
		return segment.QueryResult{PrimaryKey: segment.InvalidKey}, nil
	}
	return segment.QueryResult{PrimaryKey: pk}, nil
}

func (s *fakeSegment) Insert(_ context.Context, pk uint64, vals []value.Value, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[pk] = vals
	return nil
}

func (s *fakeSegment) Remove(_ context.Context, pk uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, pk)
	return nil
}

func (s *fakeSegment) Optimize(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opt++
	return nil
}

func (s *fakeSegment) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flush++
	return nil
}

func testSchema() schema.Schema {
	return schema.Schema{
		Revision:       1,
		ForwardColumns: []schema.ForwardColumn{{Name: "title"}},
		IndexColumns: []schema.IndexColumn{
			{Name: "embedding", DataType: value.DataTypeFP32, Dimension: 8},
		},
	}
}

func newTestCollection(t *testing.T, capacity uint64) *Collection {
	t.Helper()
	c, err := New(Config{
		Name:            "docs",
		Schema:          testSchema(),
		NewSegment:      newFakeSegment,
		SegmentCapacity: capacity,
	})
	require.NoError(t, err)
	return c
}

func TestWriteRecordsRoutesToActiveSegment(t *testing.T) {
	c := newTestCollection(t, 0)

	err := c.WriteRecords(context.Background(), record.Dataset{
		{Op: record.OpInsert, PrimaryKey: 1, IndexValues: map[string]value.Value{"embedding": value.Float(1)}},
		{Op: record.OpInsert, PrimaryKey: 2, IndexValues: map[string]value.Value{"embedding": value.Float(2)}},
	})
	require.NoError(t, err)

	assert.Len(t, c.Segments(), 1)
	assert.Equal(t, uint64(2), c.Stats().DocCount)
}

func TestWriteRecordsRollsOverAtCapacity(t *testing.T) {
	c := newTestCollection(t, 2)

	err := c.WriteRecords(context.Background(), record.Dataset{
		{Op: record.OpInsert, PrimaryKey: 1, IndexValues: map[string]value.Value{"embedding": value.Float(1)}},
		{Op: record.OpInsert, PrimaryKey: 2, IndexValues: map[string]value.Value{"embedding": value.Float(2)}},
		{Op: record.OpInsert, PrimaryKey: 3, IndexValues: map[string]value.Value{"embedding": value.Float(3)}},
	})
	require.NoError(t, err)

	segments := c.Segments()
	assert.Len(t, segments, 2)
	assert.Equal(t, uint64(2), segments[0].DocCount())
	assert.Equal(t, uint64(1), segments[1].DocCount())
}

func TestWriteRecordsDelete(t *testing.T) {
	c := newTestCollection(t, 0)
	ctx := context.Background()

	require.NoError(t, c.WriteRecords(ctx, record.Dataset{
		{Op: record.OpInsert, PrimaryKey: 1, IndexValues: map[string]value.Value{"embedding": value.Float(1)}},
	}))
	require.NoError(t, c.WriteRecords(ctx, record.Dataset{
		{Op: record.OpDelete, PrimaryKey: 1},
	}))

	assert.Equal(t, uint64(0), c.Stats().DocCount)
}

func TestWriteRecordsTracksLatestLSN(t *testing.T) {
	c := newTestCollection(t, 0)
	ctx := context.Background()

	require.NoError(t, c.WriteRecords(ctx, record.Dataset{
		{Op: record.OpInsert, PrimaryKey: 1, LSN: 5},
		{Op: record.OpInsert, PrimaryKey: 2, LSN: 3},
	}))

	assert.Equal(t, uint64(5), c.LatestLSN())
}

func TestWriteRecordsRefusedWhenSuspended(t *testing.T) {
	c := newTestCollection(t, 0)
	c.SuspendWrites()

	err := c.WriteRecords(context.Background(), record.Dataset{{Op: record.OpInsert, PrimaryKey: 1}})
	assert.Error(t, err)

	c.ResumeWrites()
	assert.NoError(t, c.WriteRecords(context.Background(), record.Dataset{{Op: record.OpInsert, PrimaryKey: 1}}))
}

func TestWriteRecordsRejectsDuplicatePrimaryKeyOnDirectWrite(t *testing.T) {
	c := newTestCollection(t, 0)
	ctx := context.Background()

	require.NoError(t, c.WriteRecords(ctx, record.Dataset{
		{Op: record.OpInsert, PrimaryKey: 1, IndexValues: map[string]value.Value{"embedding": value.Float(1)}},
	}))

	err := c.WriteRecords(ctx, record.Dataset{
		{Op: record.OpInsert, PrimaryKey: 1, IndexValues: map[string]value.Value{"embedding": value.Float(2)}},
	})
	require.Error(t, err)
	assert.Equal(t, errcode.DuplicateKey, errcode.CodeOf(err))
}

func TestWriteRecordsReplicatedInsertOverwritesDuplicate(t *testing.T) {
	c := newTestCollection(t, 0)
	ctx := context.Background()

	require.NoError(t, c.WriteRecords(ctx, record.Dataset{
		{Op: record.OpInsert, PrimaryKey: 1, LSN: 1, IndexValues: map[string]value.Value{"embedding": value.Float(1)}},
	}))
	require.NoError(t, c.WriteRecords(ctx, record.Dataset{
		{Op: record.OpInsert, PrimaryKey: 1, LSN: 2, IndexValues: map[string]value.Value{"embedding": value.Float(2)}},
	}))

	assert.Equal(t, uint64(1), c.Stats().DocCount)
}

func TestUpdateSchemaRejectsIndexColumnChange(t *testing.T) {
	c := newTestCollection(t, 0)

	next := c.Schema()
	next.Revision = 2
	next.IndexColumns[0].Dimension = 16

	assert.Error(t, c.UpdateSchema(next))
}

func TestUpdateSchemaAcceptsForwardColumnAddition(t *testing.T) {
	c := newTestCollection(t, 0)

	next := c.Schema()
	next.Revision = 2
	next.ForwardColumns = append(next.ForwardColumns, schema.ForwardColumn{Name: "author"})

	require.NoError(t, c.UpdateSchema(next))
	assert.Equal(t, schema.Revision(2), c.Schema().Revision)
}

func TestFlushAndOptimizeReachEverySegment(t *testing.T) {
	c := newTestCollection(t, 1)
	ctx := context.Background()

	require.NoError(t, c.WriteRecords(ctx, record.Dataset{
		{Op: record.OpInsert, PrimaryKey: 1},
		{Op: record.OpInsert, PrimaryKey: 2},
	}))
	require.NoError(t, c.Flush(ctx))
	require.NoError(t, c.Optimize(ctx))

	for _, seg := range c.Segments() {
		fs := seg.(*fakeSegment)
		assert.Equal(t, 1, fs.flush)
		assert.Equal(t, 1, fs.opt)
	}
}
