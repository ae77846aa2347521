package query

import (
	"container/heap"
	"sort"

	"github.com/alibaba/proxima-sub000/internal/segment"
)

// resultHeap is a bounded max-heap over QueryResult ordered by score
// descending, so the worst candidate sits at the root and can be displaced
// in O(log topk).
type resultHeap []segment.QueryResult

func (h resultHeap) Len() int { return len(h) }
func (h resultHeap) Less(i, j int) bool {
	// Max-heap: "greater" score (or, tied, greater primary key) sorts first.
	a, b := h[i], h[j]
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.PrimaryKey > b.PrimaryKey
}
func (h resultHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *resultHeap) Push(x any)        { *h = append(*h, x.(segment.QueryResult)) }
func (h *resultHeap) Pop() any {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// mergeTopK merges per-segment, already score-ascending-sorted result
// streams into a single strictly-ascending-by-score sequence bounded to
// topk entries, breaking ties by primary key ascending. topk == 0 always
// yields an empty result, regardless of how many candidates the streams
// carry.
//
// Each stream is consumed only while the heap is not yet full, or while its
// next candidate could still displace the heap's current worst entry — the
// monotone lower-bound optimization: once the smallest-score stream's next
// candidate is worse than everything already kept, every later candidate in
// that stream (being ascending) is worse too, so iteration stops early.
func mergeTopK(streams []segment.QueryResultList, topk uint32) []segment.QueryResult {
	if topk == 0 {
		return nil
	}

	h := &resultHeap{}
	heap.Init(h)

	for _, stream := range streams {
		for _, cand := range stream {
			if uint32(h.Len()) < topk {
				heap.Push(h, cand)
				continue
			}
			worst := (*h)[0]
			if !segment.Less(cand, worst) {
				// Ascending stream: every later candidate is >= cand, so
				// none can displace worst either. Stop this stream.
				break
			}
			heap.Pop(h)
			heap.Push(h, cand)
		}
	}

	out := make([]segment.QueryResult, h.Len())
	copy(out, *h)
	sort.Slice(out, func(i, j int) bool { return segment.Less(out[i], out[j]) })
	return out
}
