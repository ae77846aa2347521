// Package metastore is a reference in-process implementation of
// meta.Service, the revisioned collection-schema store. It exists so
// CreateCollection/UpdateCollection have somewhere real to record a schema
// revision and so MetaWrapper has a live Service to query during forward
// filling — a production deployment would point meta.MetaWrapper at an
// actual metadata service instead.
package metastore

import (
	"context"
	"sync"

	"github.com/alibaba/proxima-sub000/internal/errcode"
	"github.com/alibaba/proxima-sub000/internal/schema"
)

// Store keeps every schema revision ever recorded for each collection, so
// SchemaAt can resolve an old forward-column layout for rows written under
// a prior revision.
type Store struct {
	mu   sync.RWMutex
	revs map[string]map[schema.Revision]schema.Schema
}

// New builds an empty Store.
func New() *Store {
	return &Store{revs: make(map[string]map[schema.Revision]schema.Schema)}
}

// Record stores sc as collection's schema at sc.Revision, called by the
// collection lifecycle path whenever a collection is created or its schema
// updated.
func (s *Store) Record(collection string, sc schema.Schema) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byRev, ok := s.revs[collection]
	if !ok {
		byRev = make(map[schema.Revision]schema.Schema)
		s.revs[collection] = byRev
	}
	byRev[sc.Revision] = sc
}

// SchemaAt implements meta.Service.
func (s *Store) SchemaAt(_ context.Context, collection string, rev schema.Revision) (schema.Schema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byRev, ok := s.revs[collection]
	if !ok {
		return schema.Schema{}, errcode.New(errcode.InexistentCollection, collection)
	}
	sc, ok := byRev[rev]
	if !ok {
		return schema.Schema{}, errcode.Newf(errcode.InvalidRevision, "collection %q has no recorded revision %d", collection, rev)
	}
	return sc, nil
}
