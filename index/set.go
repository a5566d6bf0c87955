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

// Package index provides in-memory approximate nearest neighbour search
// over unit-length embedding vectors, plus the global merge that combines
// per-shard rankings into one result list.
package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/poiesic/searchit/core"
)

var (
	// ErrShardOutOfRange is returned when a shard ordinal does not fall
	// within the set's configured shard count.
	ErrShardOutOfRange = errors.New("shard ordinal out of range")

	// ErrUnknownGranularity is returned for a granularity the set does
	// not maintain an index for.
	ErrUnknownGranularity = errors.New("unknown granularity")
)

// Set holds one graph per shard per granularity. Page-level graphs are
// keyed by resource uid, statement-level graphs by statement uid. A query
// against one shard touches exactly one graph, so shards can be searched
// in parallel without contention.
type Set struct {
	shards    int
	page      []*Index
	statement []*Index
}

// NewSet builds empty indexes for the given shard count. Options are
// applied to every graph in the set.
func NewSet(shards, dimension int, opts ...Option) *Set {
	s := &Set{
		shards:    shards,
		page:      make([]*Index, shards),
		statement: make([]*Index, shards),
	}
	for i := 0; i < shards; i++ {
		s.page[i] = NewIndex(dimension, opts...)
		s.statement[i] = NewIndex(dimension, opts...)
	}
	return s
}

// Shards returns the number of shards the set was built for.
func (s *Set) Shards() int { return s.shards }

func (s *Set) index(shard int, granularity core.Granularity) (*Index, error) {
	if shard < 0 || shard >= s.shards {
		return nil, fmt.Errorf("%w: %d of %d", ErrShardOutOfRange, shard, s.shards)
	}
	switch granularity {
	case core.GranularityPage:
		return s.page[shard], nil
	case core.GranularityStatement:
		return s.statement[shard], nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownGranularity, granularity)
	}
}

// Insert adds a vector to the shard's graph for the given granularity.
// The vector must be unit length; callers normalize before calling and
// the set rejects anything that is not.
func (s *Set) Insert(shard int, granularity core.Granularity, id uint64, vector []float32) error {
	ix, err := s.index(shard, granularity)
	if err != nil {
		return err
	}
	if !core.IsNormalized(vector) {
		return core.ErrNotNormalized
	}
	return ix.Insert(id, vector)
}

// Search returns the top k hits from one shard's graph, best first. The
// context is checked before the graph is touched so a cancelled fan-out
// does not burn CPU on a search nobody is waiting for, and again after
// the traversal so a search that outlived its deadline reports the
// expiry instead of returning hits.
func (s *Set) Search(ctx context.Context, shard int, granularity core.Granularity, query []float32, k, efSearch int) ([]core.Hit, error) {
	ix, err := s.index(shard, granularity)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hits, err := ix.Search(query, k, efSearch)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return hits, nil
}

// Size reports how many vectors one shard's graph holds.
func (s *Set) Size(shard int, granularity core.Granularity) (int, error) {
	ix, err := s.index(shard, granularity)
	if err != nil {
		return 0, err
	}
	return ix.Len(), nil
}
