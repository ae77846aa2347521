// Package indexservice implements the collection registry, lifecycle state
// machine and background flush/optimize loops.
package indexservice

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/alibaba/proxima-sub000/internal/collection"
	"github.com/alibaba/proxima-sub000/internal/errcode"
	"github.com/alibaba/proxima-sub000/internal/record"
	"github.com/alibaba/proxima-sub000/internal/schema"
	"github.com/alibaba/proxima-sub000/internal/segment"
)

// Config is the service's construction-time configuration snapshot.
type Config struct {
	IndexDir         string
	Concurrency      int // build_threads + query_threads, passed to the kernel per collection
	FlushInterval    time.Duration
	OptimizeInterval time.Duration

	// MetaRecord, if set, is called with a collection's name and schema on
	// every CreateCollection/UpdateCollection, so the metadata store has a
	// revision to serve back through MetaWrapper. MetaInvalidate, if set, is
	// then called to drop any cached forward-column list for that
	// collection so a stale revision is never served mid-update. Both are
	// closures rather than a meta.Service dependency, matching the
	// SegmentFactory/CollectionLookup pattern used elsewhere to avoid
	// import cycles.
	MetaRecord     func(collection string, sc schema.Schema)
	MetaInvalidate func(collection string)
}

// SegmentFactory builds a Segment for collection name/id, opening existing
// on-disk state under dir when the manifest is present.
type SegmentFactory func(dir, name string, id uint64, concurrency int) (segment.Segment, error)

// Service is the collection registry plus lifecycle state machine.
type Service struct {
	cfg     Config
	newSeg  SegmentFactory

	phaseMu sync.Mutex
	phase   Phase

	shards []*shard

	group  *errgroup.Group
	cancel context.CancelFunc

	tracer trace.Tracer
	meter  metric.Meter

	collectionsTotal metric.Int64UpDownCounter
	recordsWritten   metric.Int64Counter
}

type shard struct {
	mu          sync.RWMutex
	collections map[string]*collection.Collection
}

const shardCount = 16

func shardFor(name string) int {
	var h uint32 = 2166136261
	for i := 0; i < len(name); i++ {
		h ^= uint32(name[i])
		h *= 16777619
	}
	return int(h % shardCount)
}

// New builds a Service in phase CREATED.
func New(cfg Config, newSeg SegmentFactory) (*Service, error) {
	if newSeg == nil {
		return nil, errcode.New(errcode.InvalidArgument, "indexservice requires a segment factory")
	}

	s := &Service{
		cfg:    cfg,
		newSeg: newSeg,
		phase:  PhaseCreated,
		tracer: otel.Tracer("indexservice"),
		meter:  otel.Meter("indexservice"),
	}
	s.shards = make([]*shard, shardCount)
	for i := range s.shards {
		s.shards[i] = &shard{collections: make(map[string]*collection.Collection)}
	}

	var err error
	if s.collectionsTotal, err = s.meter.Int64UpDownCounter("proxima.collections.total"); err != nil {
		return nil, fmt.Errorf("indexservice: build collections counter: %w", err)
	}
	if s.recordsWritten, err = s.meter.Int64Counter("proxima.records.written"); err != nil {
		return nil, fmt.Errorf("indexservice: build records counter: %w", err)
	}
	return s, nil
}

func (s *Service) transition(to Phase) error {
	s.phaseMu.Lock()
	defer s.phaseMu.Unlock()

	if !transitionAllowed(s.phase, to) {
		log.Printf("indexservice: invalid transition %s -> %s", s.phase, to)
		return errcode.Newf(errcode.StatusError, "invalid transition %s -> %s", s.phase, to)
	}
	s.phase = to
	return nil
}

func (s *Service) requireStarted() error {
	s.phaseMu.Lock()
	defer s.phaseMu.Unlock()
	if s.phase != PhaseStarted {
		return errcode.Newf(errcode.StatusError, "operation requires STARTED, current phase is %s", s.phase)
	}
	return nil
}

// Init moves CREATED -> INITIALIZED.
func (s *Service) Init() error { return s.transition(PhaseInitialized) }

// Start moves INITIALIZED -> STARTED, launching the background flush and
// optimize loops supervised by an errgroup keyed off a cancellable context.
func (s *Service) Start() error {
	if err := s.transition(PhaseStarted); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	s.group = g

	if s.cfg.FlushInterval > 0 {
		g.Go(func() error { return s.loop(gctx, "flush", s.cfg.FlushInterval, s.flushAll) })
	}
	if s.cfg.OptimizeInterval > 0 {
		g.Go(func() error { return s.loop(gctx, "optimize", s.cfg.OptimizeInterval, s.optimizeAll) })
	}
	return nil
}

// Stop moves STARTED -> INITIALIZED, cancelling and draining the background
// loops.
func (s *Service) Stop() error {
	if err := s.transition(PhaseInitialized); err != nil {
		return err
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.group != nil {
		_ = s.group.Wait()
	}
	return nil
}

// Cleanup moves INITIALIZED -> CREATED.
func (s *Service) Cleanup() error { return s.transition(PhaseCreated) }

func (s *Service) loop(ctx context.Context, name string, interval time.Duration, fn func(ctx context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				log.Printf("indexservice: %s loop: %v", name, err)
			}
		}
	}
}

func (s *Service) eachCollection(fn func(*collection.Collection)) []*collection.Collection {
	var all []*collection.Collection
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, c := range sh.collections {
			all = append(all, c)
		}
		sh.mu.RUnlock()
	}
	for _, c := range all {
		fn(c)
	}
	return all
}

func (s *Service) flushAll(ctx context.Context) error {
	sem := semaphore.NewWeighted(int64(max(s.cfg.Concurrency, 1)))
	g, gctx := errgroup.WithContext(ctx)
	s.eachCollection(func(c *collection.Collection) {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			return c.Flush(gctx)
		})
	})
	return g.Wait()
}

func (s *Service) optimizeAll(ctx context.Context) error {
	sem := semaphore.NewWeighted(int64(max(s.cfg.Concurrency, 1)))
	g, gctx := errgroup.WithContext(ctx)
	s.eachCollection(func(c *collection.Collection) {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			return c.Optimize(gctx)
		})
	})
	return g.Wait()
}

func (s *Service) getShard(name string) *shard { return s.shards[shardFor(name)] }

// manifestExists probes <dir>/<name>/manifest to detect pre-existing
// on-disk state for a collection.
func (s *Service) manifestExists(name string) bool {
	_, err := os.Stat(filepath.Join(s.cfg.IndexDir, name, "manifest"))
	return err == nil
}

// CreateCollection opens existing on-disk state when the manifest is
// present, otherwise creates a fresh collection.
func (s *Service) CreateCollection(ctx context.Context, name string, sc schema.Schema) error {
	if err := s.requireStarted(); err != nil {
		return err
	}
	ctx, span := s.tracer.Start(ctx, "indexservice.create_collection", trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()

	sh := s.getShard(name)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, exists := sh.collections[name]; exists {
		return errcode.New(errcode.DuplicateCollection, name)
	}

	opened := s.manifestExists(name)
	dir := filepath.Join(s.cfg.IndexDir, name)

	c, err := collection.New(collection.Config{
		Name:   name,
		Schema: sc,
		NewSegment: func(id uint64) (segment.Segment, error) {
			return s.newSeg(dir, name, id, s.cfg.Concurrency)
		},
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	sh.collections[name] = c
	s.collectionsTotal.Add(ctx, 1)
	if s.cfg.MetaRecord != nil {
		s.cfg.MetaRecord(name, sc)
	}
	log.Printf("indexservice: collection %q created (opened=%v)", name, opened)
	return nil
}

// DropCollection removes name from the registry and deletes on-disk state.
func (s *Service) DropCollection(ctx context.Context, name string) error {
	if err := s.requireStarted(); err != nil {
		return err
	}
	_, span := s.tracer.Start(ctx, "indexservice.drop_collection", trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()

	sh := s.getShard(name)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, exists := sh.collections[name]; !exists {
		return errcode.New(errcode.InexistentCollection, name)
	}
	delete(sh.collections, name)
	s.collectionsTotal.Add(ctx, -1)

	dir := filepath.Join(s.cfg.IndexDir, name)
	if err := os.RemoveAll(dir); err != nil {
		span.RecordError(err)
		return errcode.Wrap(errcode.RuntimeError, err, "remove collection directory")
	}
	return nil
}

// UpdateCollection forwards to Collection.UpdateSchema.
func (s *Service) UpdateCollection(ctx context.Context, name string, next schema.Schema) error {
	if err := s.requireStarted(); err != nil {
		return err
	}
	_, span := s.tracer.Start(ctx, "indexservice.update_collection", trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()

	c, err := s.lookup(name)
	if err != nil {
		return err
	}
	if err := c.UpdateSchema(next); err != nil {
		span.RecordError(err)
		return err
	}
	if s.cfg.MetaRecord != nil {
		s.cfg.MetaRecord(name, next)
	}
	if s.cfg.MetaInvalidate != nil {
		s.cfg.MetaInvalidate(name)
	}
	return nil
}

// WriteRecords routes to Collection.WriteRecords.
func (s *Service) WriteRecords(ctx context.Context, name string, rows record.Dataset) error {
	if err := s.requireStarted(); err != nil {
		return err
	}
	ctx, span := s.tracer.Start(ctx, "indexservice.write_records", trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()

	c, err := s.lookup(name)
	if err != nil {
		return err
	}
	if err := c.WriteRecords(ctx, rows); err != nil {
		span.RecordError(err)
		return err
	}
	s.recordsWritten.Add(ctx, int64(len(rows)))
	return nil
}

func (s *Service) lookup(name string) (*collection.Collection, error) {
	sh := s.getShard(name)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	c, ok := sh.collections[name]
	if !ok {
		return nil, errcode.New(errcode.InexistentCollection, name)
	}
	return c, nil
}

// Collection resolves name to its live Collection, satisfying
// query.CollectionLookup for wiring the query service without a direct
// import cycle.
func (s *Service) Collection(name string) (*collection.Collection, error) {
	return s.lookup(name)
}

// HasCollection reports whether name is registered.
func (s *Service) HasCollection(name string) bool {
	_, err := s.lookup(name)
	return err == nil
}

// ListCollections returns every registered collection name.
func (s *Service) ListCollections() []string {
	var names []string
	for _, sh := range s.shards {
		sh.mu.RLock()
		for name := range sh.collections {
			names = append(names, name)
		}
		sh.mu.RUnlock()
	}
	return names
}

// ListSegments returns the segment IDs belonging to name.
func (s *Service) ListSegments(name string) ([]uint64, error) {
	c, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	var ids []uint64
	for _, seg := range c.Segments() {
		ids = append(ids, seg.ID())
	}
	return ids, nil
}

// GetCollectionStats reports doc/segment counts for name.
func (s *Service) GetCollectionStats(name string) (segment.Stats, error) {
	c, err := s.lookup(name)
	if err != nil {
		return segment.Stats{}, err
	}
	return c.Stats(), nil
}

// GetLatestLsn reports the highest binlog LSN folded into name so far.
func (s *Service) GetLatestLsn(name string) (uint64, error) {
	c, err := s.lookup(name)
	if err != nil {
		return 0, err
	}
	return c.LatestLSN(), nil
}
