package query

import (
	"context"

	"github.com/alibaba/proxima-sub000/internal/collection"
	"github.com/alibaba/proxima-sub000/internal/executor"
	"github.com/alibaba/proxima-sub000/internal/meta"
	"github.com/alibaba/proxima-sub000/internal/profiler"
	"github.com/alibaba/proxima-sub000/internal/schema"
	"github.com/alibaba/proxima-sub000/internal/segment"
)

// Context is per-request state threaded through validate/prepare/evaluate/
// finalize: the request, the response under construction, the collection
// being queried, the executor to fan out onto, the profiler, and a
// request-scoped forward-name cache layered on top of MetaWrapper's
// process-wide one.
type Context struct {
	Ctx        context.Context
	Request    Request
	GetRequest GetDocumentRequest

	Response    Response
	GetResponse GetDocumentResponse

	Collection *collection.Collection
	Executor   executor.Executor
	Meta       *meta.MetaWrapper
	Profiler   *profiler.Profiler

	forwardNames map[schema.Revision][]string
	segments     []segment.Segment
	knnTasks     []*knnTask
}

func newContext(ctx context.Context, prof *profiler.Profiler) *Context {
	return &Context{
		Ctx:          ctx,
		Profiler:     prof,
		forwardNames: make(map[schema.Revision][]string),
	}
}

// forwardColumnNames resolves rev's forward column names, checking the
// request-scoped cache before falling through to MetaWrapper.
func (c *Context) forwardColumnNames(rev schema.Revision) ([]string, error) {
	if names, ok := c.forwardNames[rev]; ok {
		return names, nil
	}
	names, err := c.Meta.ForwardColumnNames(c.Ctx, c.Collection.Name(), rev)
	if err != nil {
		return nil, err
	}
	c.forwardNames[rev] = names
	return names, nil
}
