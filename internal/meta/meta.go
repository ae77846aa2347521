// Package meta defines the MetaService collaborator interface (metadata
// persistence: revisioned collection schemas) and MetaWrapper, the
// read-only, LRU-cached projection over it that the query stack uses to
// resolve a forward blob's originating revision into its column-name list.
package meta

import (
	"container/list"
	"context"
	"sync"

	"github.com/alibaba/proxima-sub000/internal/errcode"
	"github.com/alibaba/proxima-sub000/internal/schema"
)

// Service is the external metadata store: revisioned collection schemas,
// out of scope for this module and specified only by interface.
type Service interface {
	// SchemaAt returns the schema a collection had at revision rev.
	SchemaAt(ctx context.Context, collection string, rev schema.Revision) (schema.Schema, error)
}

type cacheKey struct {
	collection string
	revision   schema.Revision
}

// MetaWrapper is a read-only, process-wide LRU projection over a Service,
// caching (collection, revision) -> forward column names so consecutive
// queries against the same collection don't each pay a MetaService round
// trip.
type MetaWrapper struct {
	svc Service

	mu       sync.Mutex
	capacity int
	entries  map[cacheKey]*list.Element
	order    *list.List // front = most recently used
}

type cacheEntry struct {
	key   cacheKey
	names []string
}

// NewMetaWrapper builds a wrapper bounded to capacity entries (0 means
// unbounded).
func NewMetaWrapper(svc Service, capacity int) *MetaWrapper {
	return &MetaWrapper{
		svc:      svc,
		capacity: capacity,
		entries:  make(map[cacheKey]*list.Element),
		order:    list.New(),
	}
}

// ForwardColumnNames resolves the forward-column name list for collection
// at revision rev, consulting the cache before calling into the Service.
func (w *MetaWrapper) ForwardColumnNames(ctx context.Context, collection string, rev schema.Revision) ([]string, error) {
	key := cacheKey{collection, rev}

	w.mu.Lock()
	if el, ok := w.entries[key]; ok {
		w.order.MoveToFront(el)
		names := el.Value.(*cacheEntry).names
		w.mu.Unlock()
		return names, nil
	}
	w.mu.Unlock()

	s, err := w.svc.SchemaAt(ctx, collection, rev)
	if err != nil {
		return nil, errcode.Wrap(errcode.RuntimeError, err, "resolve schema revision")
	}
	names := s.ForwardColumnNames()

	w.mu.Lock()
	defer w.mu.Unlock()
	if el, ok := w.entries[key]; ok {
		w.order.MoveToFront(el)
		return el.Value.(*cacheEntry).names, nil
	}
	el := w.order.PushFront(&cacheEntry{key: key, names: names})
	w.entries[key] = el
	if w.capacity > 0 && w.order.Len() > w.capacity {
		oldest := w.order.Back()
		if oldest != nil {
			w.order.Remove(oldest)
			delete(w.entries, oldest.Value.(*cacheEntry).key)
		}
	}
	return names, nil
}

// Invalidate drops every cached revision for collection, called on
// update_collection so a stale forward-column list can never be served.
func (w *MetaWrapper) Invalidate(collection string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for key, el := range w.entries {
		if key.collection == collection {
			w.order.Remove(el)
			delete(w.entries, key)
		}
	}
}
