package query

import (
	"github.com/alibaba/proxima-sub000/internal/errcode"
	"github.com/alibaba/proxima-sub000/internal/scheduler"
	"github.com/alibaba/proxima-sub000/internal/schema"
)

// equalQuery implements search_by_key's query lifecycle.
type equalQuery struct {
	tasks []*equalTask
}

func (q *equalQuery) Validate(c *Context) error {
	if c.Executor == nil {
		return errcode.New(errcode.InvalidQuery, "no executor configured")
	}
	if c.Collection == nil {
		return errcode.New(errcode.InexistentCollection, c.GetRequest.CollectionName)
	}
	if c.Collection.ReadsSuspended() {
		return errcode.New(errcode.SuspendedCollection, c.GetRequest.CollectionName)
	}
	return nil
}

func (q *equalQuery) Prepare(c *Context) error {
	c.segments = c.Collection.Segments()
	if len(c.segments) == 0 {
		return errcode.New(errcode.UnavailableSegment, c.GetRequest.CollectionName)
	}

	q.tasks = make([]*equalTask, len(c.segments))
	for i, seg := range c.segments {
		q.tasks[i] = newEqualTask(c.Ctx, seg, c.GetRequest.PrimaryKey)
	}
	return nil
}

func (q *equalQuery) Evaluate(c *Context) error {
	tasks := make([]*scheduler.Task, len(q.tasks))
	for i, t := range q.tasks {
		tasks[i] = t.Task
	}
	if code := c.Executor.ExecuteTasks(tasks); code != 0 {
		for _, t := range q.tasks {
			if t.err != nil {
				return t.err
			}
		}
		return errcode.Newf(errcode.RuntimeError, "equal task execution failed, exit code %d", code)
	}

	// On first hit, fills forward and stops — segments are scanned in
	// registry order; a miss across every segment leaves Found false.
	for _, t := range q.tasks {
		if t.hit == 0 {
			continue
		}
		names, err := c.forwardColumnNames(schema.Revision(t.result.Revision))
		if err != nil {
			return err
		}
		kvs, err := fillForward(t.result.ForwardData, names)
		if err != nil {
			return err
		}
		c.GetResponse.Found = true
		c.GetResponse.Document = Document{PrimaryKey: t.result.PrimaryKey, ForwardColumnValues: kvs}
		return nil
	}
	return nil
}

func (q *equalQuery) Finalize(c *Context) error { return nil }
