package query

import (
	"github.com/alibaba/proxima-sub000/internal/errcode"
	"github.com/alibaba/proxima-sub000/internal/scheduler"
	"github.com/alibaba/proxima-sub000/internal/schema"
	"github.com/alibaba/proxima-sub000/internal/segment"
	"github.com/alibaba/proxima-sub000/internal/value"
)

// knnQuery implements the KNN query lifecycle.
type knnQuery struct {
	columnType value.DataType
	features   []byte
	params     segment.QueryParams
}

func (q *knnQuery) Validate(c *Context) error {
	if c.Executor == nil {
		return errcode.New(errcode.InvalidQuery, "no executor configured")
	}
	if c.Collection == nil {
		return errcode.New(errcode.InexistentCollection, c.Request.CollectionName)
	}
	if c.Collection.ReadsSuspended() {
		return errcode.New(errcode.SuspendedCollection, c.Request.CollectionName)
	}
	col, ok := c.Collection.Schema().IndexColumn(c.Request.KNNParam.ColumnName)
	if !ok {
		return errcode.Newf(errcode.InvalidQuery, "column %q is not an index column", c.Request.KNNParam.ColumnName)
	}
	q.columnType = col.DataType
	return nil
}

func (q *knnQuery) Prepare(c *Context) error {
	c.segments = c.Collection.Segments()
	if len(c.segments) == 0 {
		return errcode.New(errcode.UnavailableSegment, c.Request.CollectionName)
	}

	p := c.Request.KNNParam
	features, err := transformFeatures(&p, q.columnType)
	if err != nil {
		return err
	}
	q.features = features
	q.params = segment.QueryParams{
		TopK:        p.TopK,
		DataType:    q.columnType,
		Dimension:   p.Dimension,
		Radius:      p.Radius,
		IsLinear:    p.IsLinear,
		ExtraParams: p.ExtraParams,
	}

	c.knnTasks = make([]*knnTask, len(c.segments))
	for i, seg := range c.segments {
		c.knnTasks[i] = newKNNTask(c.Ctx, seg, p.ColumnName, q.features, q.params, p.BatchCount)
	}
	return nil
}

func (q *knnQuery) Evaluate(c *Context) error {
	tasks := make([]*scheduler.Task, len(c.knnTasks))
	for i, t := range c.knnTasks {
		tasks[i] = t.Task
	}
	if code := c.Executor.ExecuteTasks(tasks); code != 0 {
		for _, t := range c.knnTasks {
			if t.err != nil {
				return t.err
			}
		}
		return errcode.Newf(errcode.RuntimeError, "knn task execution failed, exit code %d", code)
	}

	batch := c.Request.KNNParam.BatchCount
	topk := c.Request.KNNParam.TopK
	c.Response.Results = make([]ResultGroup, batch)

	for b := uint32(0); b < batch; b++ {
		var streams []segment.QueryResultList
		for _, t := range c.knnTasks {
			if int(b) < len(t.results) {
				streams = append(streams, t.results[b])
			}
		}
		merged := mergeTopK(streams, topk)

		docs := make([]Document, len(merged))
		for i, res := range merged {
			doc := Document{PrimaryKey: res.PrimaryKey, Score: res.Score}
			names, err := c.forwardColumnNames(schema.Revision(res.Revision))
			if err != nil {
				return err
			}
			kvs, err := fillForward(res.ForwardData, names)
			if err != nil {
				return err
			}
			doc.ForwardColumnValues = kvs
			docs[i] = doc
		}
		c.Response.Results[b] = ResultGroup{Documents: docs}
	}
	return nil
}

func (q *knnQuery) Finalize(c *Context) error { return nil }

// fillForward decodes a forward blob into an ordered KV list, matching its
// values to names positionally. A length mismatch is reported as
// MismatchedForward.
func fillForward(blob []byte, names []string) ([]KV, error) {
	if len(blob) == 0 && len(names) == 0 {
		return nil, nil
	}
	vals, err := value.DecodeValues(blob)
	if err != nil {
		return nil, errcode.Wrap(errcode.MismatchedForward, err, "decode forward blob")
	}
	if len(vals) != len(names) {
		return nil, errcode.Newf(errcode.MismatchedForward, "forward blob has %d values, schema has %d forward columns", len(vals), len(names))
	}
	kvs := make([]KV, len(names))
	for i, name := range names {
		kvs[i] = KV{Key: name, Value: vals[i]}
	}
	return kvs, nil
}
