package index

import (
	"container/heap"
	"sort"

	"github.com/poiesic/searchit/core"
)

// sortHits orders hits by descending score, breaking ties toward the
// smaller identifier. Every ranked surface in the system uses this order
// so that repeated queries return identical result lists.
func sortHits(hits []core.Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}

// mergeSource tracks the read position within one sorted hit list.
type mergeSource struct {
	hits []core.Hit
	pos  int
}

type mergeHeap []*mergeSource

func (m mergeHeap) Len() int { return len(m) }

func (m mergeHeap) Less(i, j int) bool {
	a, b := m[i].hits[m[i].pos], m[j].hits[m[j].pos]
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ID < b.ID
}

func (m mergeHeap) Swap(i, j int) { m[i], m[j] = m[j], m[i] }

func (m *mergeHeap) Push(x any) { *m = append(*m, x.(*mergeSource)) }

func (m *mergeHeap) Pop() any {
	old := *m
	n := len(old)
	src := old[n-1]
	old[n-1] = nil
	*m = old[:n-1]
	return src
}

// Merge combines per-shard hit lists into a single ranking of at most k
// hits. Each input list must already be sorted best first; the output is
// ordered by descending score with ties broken toward the smaller
// identifier, so the merged ranking is independent of list arrival order.
func Merge(k int, lists ...[]core.Hit) []core.Hit {
	if k < 1 {
		return nil
	}

	h := make(mergeHeap, 0, len(lists))
	for _, hits := range lists {
		if len(hits) > 0 {
			h = append(h, &mergeSource{hits: hits})
		}
	}
	heap.Init(&h)

	merged := make([]core.Hit, 0, k)
	for len(merged) < k && h.Len() > 0 {
		src := h[0]
		merged = append(merged, src.hits[src.pos])
		src.pos++
		if src.pos == len(src.hits) {
			heap.Pop(&h)
		} else {
			heap.Fix(&h, 0)
		}
	}
	return merged
}
