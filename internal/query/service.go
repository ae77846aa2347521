package query

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/alibaba/proxima-sub000/internal/collection"
	"github.com/alibaba/proxima-sub000/internal/executor"
	"github.com/alibaba/proxima-sub000/internal/meta"
	"github.com/alibaba/proxima-sub000/internal/profiler"
)

// CollectionLookup resolves a collection by name, mirroring
// indexservice.Service's read path without importing it directly (avoids a
// cyclic dependency between query and indexservice).
type CollectionLookup func(name string) (*collection.Collection, error)

// Service drives the four-phase query protocol for both search and
// search_by_key.
type Service struct {
	lookup   CollectionLookup
	executor executor.Executor
	meta     *meta.MetaWrapper
	tracer   trace.Tracer
}

// NewService builds a Service.
func NewService(lookup CollectionLookup, exec executor.Executor, metaWrapper *meta.MetaWrapper) *Service {
	return &Service{
		lookup:   lookup,
		executor: exec,
		meta:     metaWrapper,
		tracer:   otel.Tracer("query"),
	}
}

// Search runs a KNN query end to end.
func (s *Service) Search(ctx context.Context, req Request) (Response, error) {
	ctx, span := s.tracer.Start(ctx, "query.search", trace.WithAttributes(
		attribute.String("collection", req.CollectionName),
	))
	defer span.End()

	prof := profiler.New(req.DebugMode)
	prof.Start()

	c := newContext(ctx, prof)
	c.Request = req
	c.Executor = s.executor
	c.Meta = s.meta

	col, err := s.lookup(req.CollectionName)
	if err == nil {
		c.Collection = col
	}

	// A lookup failure leaves c.Collection nil; Validate rejects that with
	// InexistentCollection, so no separate error path is needed here.
	q := newQuery(req.QueryType)
	runErr := runPhases(q, c, prof, span)

	prof.Stop()
	c.Response.DebugInfo = prof.AsJSONString()
	if runErr != nil {
		span.RecordError(runErr)
	}
	return c.Response, runErr
}

// SearchByKey runs an equality lookup end to end.
func (s *Service) SearchByKey(ctx context.Context, req GetDocumentRequest) (GetDocumentResponse, error) {
	ctx, span := s.tracer.Start(ctx, "query.search_by_key", trace.WithAttributes(
		attribute.String("collection", req.CollectionName),
	))
	defer span.End()

	prof := profiler.New(req.DebugMode)
	prof.Start()

	c := newContext(ctx, prof)
	c.GetRequest = req
	c.Executor = s.executor
	c.Meta = s.meta

	col, err := s.lookup(req.CollectionName)
	if err == nil {
		c.Collection = col
	}

	q := newQuery(TypeEqual)
	runErr := runPhases(q, c, prof, span)

	prof.Stop()
	c.GetResponse.DebugInfo = prof.AsJSONString()
	if runErr != nil {
		span.RecordError(runErr)
	}
	return c.GetResponse, runErr
}

// runPhases drives validate/prepare/evaluate/finalize, wrapping each as a
// profiler stage and, when the request is in debug mode, a span event.
func runPhases(q Query, c *Context, prof *profiler.Profiler, span trace.Span) error {
	phase := func(name string, fn func(*Context) error) error {
		prof.OpenStage(name)
		defer prof.CloseStage()
		if prof.Enabled() {
			span.AddEvent(name)
		}
		return fn(c)
	}

	err := phase("validate", q.Validate)
	if err == nil {
		err = phase("prepare", q.Prepare)
	}
	if err == nil {
		err = phase("evaluate", q.Evaluate)
	}
	finalizeErr := phase("finalize", q.Finalize)
	if err != nil {
		log.Printf("query: phase failed: %v", err)
		return err
	}
	return finalizeErr
}
