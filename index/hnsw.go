// Copyright 2026 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package index

import (
	"container/heap"
	"math"
	"math/rand"
	"sync"

	"github.com/bits-and-blooms/bitset"

	"github.com/poiesic/searchit/core"
)

// Defaults for graph construction and search. M in the 8-16 range works
// well for 768-dimension sentence embeddings.
const (
	DefaultM        = 12
	DefaultEF       = 200
	DefaultEFSearch = 100
)

// node is a vertex in the proximity graph. Nodes are addressed by their
// position in the nodes slice; the external identifier lives alongside
// the vector so search results can be reported in caller terms.
type node struct {
	connections [][]uint32
	vector      []float32
	id          uint64
	layer       int
}

// Index is a hierarchical navigable small world graph ordered by inner
// product. Vectors must be unit length so that inner product agrees with
// cosine similarity; the write path validates this before insertion.
//
// Insert takes the write lock, searches take the read lock, so an Index
// supports any number of concurrent readers.
type Index struct {
	mu sync.RWMutex

	dimension  int
	m          int
	mmax0      int
	levelMult  float64
	entryPoint uint32
	maxLevel   int
	ef         int

	nodes []*node

	rng *rand.Rand
}

// Option configures an Index.
type Option func(*Index)

// WithM sets the number of connections made for each new element.
func WithM(m int) Option {
	return func(ix *Index) { ix.m = m }
}

// WithEF sets the size of the dynamic candidate list used during
// construction.
func WithEF(ef int) Option {
	return func(ix *Index) { ix.ef = ef }
}

// WithSeed makes level assignment deterministic, which keeps graph shape
// reproducible in tests.
func WithSeed(seed int64) Option {
	return func(ix *Index) { ix.rng = rand.New(rand.NewSource(seed)) }
}

// NewIndex creates an empty graph for vectors of the given dimension.
func NewIndex(dimension int, opts ...Option) *Index {
	ix := &Index{
		dimension: dimension,
		m:         DefaultM,
		ef:        DefaultEF,
		rng:       rand.New(rand.NewSource(rand.Int63())),
	}
	for _, opt := range opts {
		opt(ix)
	}
	if ix.m < 2 {
		ix.m = 2
	}
	ix.mmax0 = 2 * ix.m
	ix.levelMult = 1 / math.Log(float64(ix.m))

	// Position 0 is a sentinel entry point with no external identity. It
	// anchors the graph before the first real insert and is filtered out
	// of search results.
	ix.nodes = []*node{{
		vector:      make([]float32, dimension),
		connections: make([][]uint32, ix.mmax0+1),
	}}
	return ix
}

// Len returns the number of indexed vectors.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.nodes) - 1
}

// distance negates the inner product so that "most similar" becomes
// "smallest distance", which is the orientation the traversal expects.
func distance(a, b []float32) float32 {
	return -core.Dot(a, b)
}

// Insert adds a vector under the given external identifier. The vector is
// copied, so the caller may reuse the slice.
func (ix *Index) Insert(id uint64, vector []float32) error {
	if len(vector) != ix.dimension {
		return core.ErrDimensionMismatch
	}

	v := make([]float32, len(vector))
	copy(v, vector)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	pos := uint32(len(ix.nodes))
	n := &node{
		id:          id,
		vector:      v,
		layer:       int(math.Floor(-math.Log(ix.rng.Float64()) * ix.levelMult)),
		connections: make([][]uint32, ix.m+1),
	}

	curr, currDist := ix.descend(v, n.layer)

	results := &candidateQueue{}
	for level := min(n.layer, ix.maxLevel); level >= 0; level-- {
		ix.searchLayer(v, &candidateItem{node: curr, distance: currDist}, results, ix.ef, level)
		ix.selectNeighbours(results, ix.m, false)

		n.connections[level] = make([]uint32, results.Len())
		for i := results.Len() - 1; i >= 0; i-- {
			item, _ := heap.Pop(results).(*candidateItem)
			n.connections[level][i] = item.node
		}
	}

	ix.nodes = append(ix.nodes, n)

	for level := min(n.layer, ix.maxLevel); level >= 0; level-- {
		for _, neighbour := range n.connections[level] {
			ix.link(neighbour, pos, level)
		}
	}

	if n.layer > ix.maxLevel {
		ix.entryPoint = pos
		ix.maxLevel = n.layer
	}
	return nil
}

// descend walks from the entry point down to targetLayer, greedily
// following the closest connection at each level above it.
func (ix *Index) descend(v []float32, targetLayer int) (uint32, float32) {
	curr := ix.entryPoint
	currDist := distance(ix.nodes[curr].vector, v)

	for level := ix.nodes[curr].layer; level > targetLayer; level-- {
		changed := true
		for changed {
			changed = false
			for _, next := range ix.nodes[curr].connections[level] {
				d := distance(ix.nodes[next].vector, v)
				if d < currDist {
					curr = next
					currDist = d
					changed = true
				}
			}
		}
	}
	return curr, currDist
}

// Search returns the k nearest vectors to the query by inner product,
// best first. Ties on score break toward the smaller identifier so that
// result order is stable across runs.
func (ix *Index) Search(query []float32, k, efSearch int) ([]core.Hit, error) {
	if len(query) != ix.dimension {
		return nil, core.ErrDimensionMismatch
	}
	if k < 1 {
		return nil, nil
	}
	if efSearch < k {
		efSearch = k
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.nodes) == 1 {
		return nil, nil
	}

	curr := ix.entryPoint
	currDist := distance(ix.nodes[curr].vector, query)
	for level := ix.maxLevel; level > 0; level-- {
		changed := true
		for changed {
			changed = false
			for _, next := range ix.nodes[curr].connections[level] {
				d := distance(ix.nodes[next].vector, query)
				if d < currDist {
					curr = next
					currDist = d
					changed = true
				}
			}
		}
	}

	results := &candidateQueue{}
	ix.searchLayer(query, &candidateItem{node: curr, distance: currDist}, results, efSearch, 0)

	hits := make([]core.Hit, 0, results.Len())
	for results.Len() > 0 {
		item, _ := heap.Pop(results).(*candidateItem)
		if item.node == 0 {
			continue // sentinel
		}
		hits = append(hits, core.Hit{ID: ix.nodes[item.node].id, Score: -item.distance})
	}

	// The max-heap pops worst first; reverse into best-first order.
	for i, j := 0, len(hits)-1; i < j; i, j = i+1, j-1 {
		hits[i], hits[j] = hits[j], hits[i]
	}
	sortHits(hits)

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// searchLayer greedily expands candidates within one layer, keeping the
// best ef results found so far. Results come back as a max-heap so the
// caller can trim from the worst end.
func (ix *Index) searchLayer(q []float32, ep *candidateItem, results *candidateQueue, ef, level int) {
	var visited bitset.BitSet
	visited.Set(uint(ep.node))

	candidates := &candidateQueue{}
	heap.Init(candidates)
	heap.Push(candidates, ep)

	results.max = true
	heap.Init(results)
	heap.Push(results, ep)

	for candidates.Len() > 0 {
		worst := results.top().distance

		curr, _ := heap.Pop(candidates).(*candidateItem)
		if curr.distance > worst {
			break
		}

		n := ix.nodes[curr.node]
		if level >= len(n.connections) {
			continue
		}
		for _, next := range n.connections[level] {
			if visited.Test(uint(next)) {
				continue
			}
			visited.Set(uint(next))

			d := distance(q, ix.nodes[next].vector)
			item := &candidateItem{node: next, distance: d}

			if results.Len() < ef {
				heap.Push(results, item)
				heap.Push(candidates, item)
			} else if results.top().distance > d {
				heap.Pop(results)
				heap.Push(results, item)
				heap.Push(candidates, item)
			}
		}
	}
}

// link records an edge from first to second at the given level, pruning
// back to the connection budget with the diversity heuristic when the
// neighbour list overflows.
func (ix *Index) link(first, second uint32, level int) {
	maxConnections := ix.m
	if level == 0 {
		maxConnections = ix.mmax0
	}

	n := ix.nodes[first]
	n.connections[level] = append(n.connections[level], second)
	if len(n.connections[level]) <= maxConnections {
		return
	}

	candidates := &candidateQueue{}
	heap.Init(candidates)
	for _, pos := range n.connections[level] {
		heap.Push(candidates, &candidateItem{
			node:     pos,
			distance: distance(n.vector, ix.nodes[pos].vector),
		})
	}

	ix.selectNeighbours(candidates, maxConnections, false)

	n.connections[level] = make([]uint32, candidates.Len())
	for i := candidates.Len() - 1; i >= 0; i-- {
		item, _ := heap.Pop(candidates).(*candidateItem)
		n.connections[level][i] = item.node
	}
}

// selectNeighbours keeps up to m candidates, preferring ones that are
// closer to the base point than to any already kept candidate. The
// diversity bias keeps the graph navigable in clustered data.
func (ix *Index) selectNeighbours(candidates *candidateQueue, m int, max bool) {
	if candidates.Len() < m {
		return
	}

	ordered := candidates
	if candidates.max != max {
		ordered = &candidateQueue{max: max}
		heap.Init(ordered)
		for candidates.Len() > 0 {
			item, _ := heap.Pop(candidates).(*candidateItem)
			heap.Push(ordered, item)
		}
	}

	spilled := &candidateQueue{max: max}
	heap.Init(spilled)

	kept := make([]*candidateItem, 0, m)
	for ordered.Len() > 0 && len(kept) < m {
		item, _ := heap.Pop(ordered).(*candidateItem)

		diverse := true
		for _, k := range kept {
			if distance(ix.nodes[k.node].vector, ix.nodes[item.node].vector) < item.distance {
				diverse = false
				break
			}
		}
		if diverse {
			kept = append(kept, item)
		} else {
			heap.Push(spilled, item)
		}
	}

	for len(kept) < m && spilled.Len() > 0 {
		item, _ := heap.Pop(spilled).(*candidateItem)
		kept = append(kept, item)
	}

	for _, item := range kept {
		heap.Push(candidates, item)
	}
}
