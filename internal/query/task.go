package query

import (
	"context"

	"github.com/alibaba/proxima-sub000/internal/scheduler"
	"github.com/alibaba/proxima-sub000/internal/segment"
)

// knnTask runs one segment's knn_search as a scheduler.Task. results holds
// one QueryResultList per logical query in the batch, populated once the
// task runs.
type knnTask struct {
	*scheduler.Task
	seg     segment.Segment
	column  string
	features []byte
	params  segment.QueryParams
	batch   uint32
	results []segment.QueryResultList
	err     error
}

func newKNNTask(ctx context.Context, seg segment.Segment, column string, features []byte, params segment.QueryParams, batch uint32) *knnTask {
	t := &knnTask{seg: seg, column: column, features: features, params: params, batch: batch}
	t.Task = scheduler.NewTask("knn_task", func() int {
		results, err := seg.KNNSearch(ctx, column, features, params, batch)
		if err != nil {
			t.err = err
			return 1
		}
		t.results = results
		return 0
	})
	return t
}

// equalTask runs one segment's kv_search as a scheduler.Task. hit reports
// whether the lookup found a row (0 or 1).
type equalTask struct {
	*scheduler.Task
	seg    segment.Segment
	pk     uint64
	result segment.QueryResult
	hit    int
	err    error
}

func newEqualTask(ctx context.Context, seg segment.Segment, pk uint64) *equalTask {
	t := &equalTask{seg: seg, pk: pk}
	t.Task = scheduler.NewTask("equal_task", func() int {
		res, err := seg.KVSearch(ctx, pk)
		if err != nil {
			t.err = err
			return 1
		}
		t.result = res
		if res.PrimaryKey != segment.InvalidKey {
			t.hit = 1
		}
		return 0
	})
	return t
}
