package indexservice

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alibaba/proxima-sub000/internal/record"
	"github.com/alibaba/proxima-sub000/internal/schema"
	"github.com/alibaba/proxima-sub000/internal/segment"
	"github.com/alibaba/proxima-sub000/internal/value"
)

type fakeSegment struct {
	id uint64

	mu    sync.Mutex
	rows  map[uint64]struct{}
	flush int
	opt   int
}

func newFakeSegmentFactory(dir, name string, id uint64, concurrency int) (segment.Segment, error) {
	return &fakeSegment{id: id, rows: make(map[uint64]struct{})}, nil
}

func (s *fakeSegment) ID() uint64      { return s.id }
func (s *fakeSegment) DocCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.rows))
}
func (s *fakeSegment) KNNSearch(context.Context, string, []byte, segment.QueryParams, uint32) ([]segment.QueryResultList, error) {
	return nil, nil
}
func (s *fakeSegment) KVSearch(context.Context, uint64) (segment.QueryResult, error) {
	return segment.QueryResult{PrimaryKey: segment.InvalidKey}, nil
}
func (s *fakeSegment) Insert(_ context.Context, pk uint64, _ []value.Value, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[pk] = struct{}{}
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
		Revision:     1,
		IndexColumns: []schema.IndexColumn{{Name: "embedding", DataType: value.DataTypeFP32, Dimension: 4}},
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	s, err := New(Config{IndexDir: dir, Concurrency: 2}, newFakeSegmentFactory)
	require.NoError(t, err)
	require.NoError(t, s.Init())
	require.NoError(t, s.Start())
	t.Cleanup(func() {
		require.NoError(t, s.Stop())
		require.NoError(t, s.Cleanup())
	})
	return s
}

func TestLifecycleRejectsOutOfOrderTransitions(t *testing.T) {
	s, err := New(Config{IndexDir: t.TempDir()}, newFakeSegmentFactory)
	require.NoError(t, err)

	assert.Error(t, s.Start()) // CREATED -> STARTED is illegal
	require.NoError(t, s.Init())
	assert.Error(t, s.Init()) // already INITIALIZED
	require.NoError(t, s.Start())
	require.NoError(t, s.Stop())
	require.NoError(t, s.Cleanup())
}

func TestOperationsRequireStarted(t *testing.T) {
	s, err := New(Config{IndexDir: t.TempDir()}, newFakeSegmentFactory)
	require.NoError(t, err)

	err = s.CreateCollection(context.Background(), "docs", testSchema())
	assert.Error(t, err)
}

func TestCreateAndDropCollection(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.CreateCollection(ctx, "docs", testSchema()))
	assert.True(t, s.HasCollection("docs"))

	err := s.CreateCollection(ctx, "docs", testSchema())
	assert.Error(t, err)

	require.NoError(t, s.DropCollection(ctx, "docs"))
	assert.False(t, s.HasCollection("docs"))
}

func TestWriteRecordsAndStats(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	require.NoError(t, s.CreateCollection(ctx, "docs", testSchema()))

	require.NoError(t, s.WriteRecords(ctx, "docs", record.Dataset{
		{Op: record.OpInsert, PrimaryKey: 1},
		{Op: record.OpInsert, PrimaryKey: 2},
	}))

	stats, err := s.GetCollectionStats("docs")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.DocCount)
}

func TestBackgroundFlushLoopReachesCollections(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Config{IndexDir: dir, Concurrency: 2, FlushInterval: 5 * time.Millisecond}, newFakeSegmentFactory)
	require.NoError(t, err)
	require.NoError(t, s.Init())
	require.NoError(t, s.Start())

	ctx := context.Background()
	require.NoError(t, s.CreateCollection(ctx, "docs", testSchema()))

	require.Eventually(t, func() bool {
		c, err := s.lookup("docs")
		if err != nil {
			return false
		}
		for _, seg := range c.Segments() {
			fs := seg.(*fakeSegment)
			fs.mu.Lock()
			flushed := fs.flush
			fs.mu.Unlock()
			if flushed > 0 {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	require.NoError(t, s.Cleanup())
}
