package retrieval

import (
	"container/heap"
)

// TopN returns the n best results in Less order using a bounded min-heap,
// without sorting the full input.
func TopN(results []SearchResult, n int) []SearchResult {
	if n <= 0 {
		n = 10
	}
	h := &resultHeap{}
	heap.Init(h)
	for _, r := range results {
		heap.Push(h, r)
		if h.Len() > n {
			heap.Pop(h)
		}
	}
	out := make([]SearchResult, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(SearchResult)
	}
	return out
}

// resultHeap keeps the worst result at the root.
type resultHeap []SearchResult

func (h resultHeap) Len() int { return len(h) }

func (h resultHeap) Less(i, j int) bool { return Less(h[j], h[i]) }

func (h resultHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *resultHeap) Push(x interface{}) {
	*h = append(*h, x.(SearchResult))
}

func (h *resultHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
