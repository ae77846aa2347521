package meta

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alibaba/proxima-sub000/internal/schema"
)

type fakeService struct {
	calls atomic.Int32
}

func (f *fakeService) SchemaAt(_ context.Context, collection string, rev schema.Revision) (schema.Schema, error) {
	f.calls.Add(1)
	return schema.Schema{
		Revision:       rev,
		ForwardColumns: []schema.ForwardColumn{{Name: "title"}, {Name: "author"}},
	}, nil
}

func TestForwardColumnNamesCachesPerRevision(t *testing.T) {
	svc := &fakeService{}
	w := NewMetaWrapper(svc, 0)

	names, err := w.ForwardColumnNames(context.Background(), "docs", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"title", "author"}, names)

	_, err = w.ForwardColumnNames(context.Background(), "docs", 3)
	require.NoError(t, err)
	assert.Equal(t, int32(1), svc.calls.Load())

	_, err = w.ForwardColumnNames(context.Background(), "docs", 4)
	require.NoError(t, err)
	assert.Equal(t, int32(2), svc.calls.Load())
}

func TestInvalidateDropsAllRevisionsForCollection(t *testing.T) {
	svc := &fakeService{}
	w := NewMetaWrapper(svc, 0)

	_, _ = w.ForwardColumnNames(context.Background(), "docs", 1)
	_, _ = w.ForwardColumnNames(context.Background(), "docs", 2)
	assert.Equal(t, int32(2), svc.calls.Load())

	w.Invalidate("docs")
	_, _ = w.ForwardColumnNames(context.Background(), "docs", 1)
	assert.Equal(t, int32(3), svc.calls.Load())
}

func TestEvictsLeastRecentlyUsedAtCapacity(t *testing.T) {
	svc := &fakeService{}
	w := NewMetaWrapper(svc, 1)

	_, _ = w.ForwardColumnNames(context.Background(), "docs", 1)
	_, _ = w.ForwardColumnNames(context.Background(), "docs", 2)
	assert.Equal(t, int32(2), svc.calls.Load())

	// revision 1 was evicted; re-fetching it costs another call.
	_, _ = w.ForwardColumnNames(context.Background(), "docs", 1)
	assert.Equal(t, int32(3), svc.calls.Load())
}
