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

package searchit

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/poiesic/searchit/core"
	"github.com/poiesic/searchit/index"
	"github.com/poiesic/searchit/ingest"
	"github.com/poiesic/searchit/query"
	"github.com/poiesic/searchit/reindex"
	"github.com/poiesic/searchit/shard"
	"github.com/poiesic/searchit/storage"
	"github.com/poiesic/searchit/storage/badger"
)

// Cluster owns one retrieval deployment: N shard stores, the identifier
// service, and the vector index set. It is the composition root the
// operational components (orchestrator, ingest pipeline, reindexer) are
// built from.
type Cluster struct {
	stores []storage.RecordStore
	ids    storage.IdentifierService
	set    *index.Set
	router *shard.Router
	logger *slog.Logger
}

// ClusterOption configures a Cluster.
type ClusterOption func(*clusterOptions)

type clusterOptions struct {
	shards   int
	inMemory bool
	indexM   int
	indexEF  int
}

// WithShards sets the shard count. Default is shard.DefaultCount.
// Changing the count of an existing deployment requires a full re-shard.
func WithShards(n int) ClusterOption {
	return func(o *clusterOptions) {
		if n > 0 {
			o.shards = n
		}
	}
}

// WithInMemory keeps all stores in memory. Used in tests and for
// ephemeral deployments.
func WithInMemory() ClusterOption {
	return func(o *clusterOptions) {
		o.inMemory = true
	}
}

// WithIndexParameters sets the graph construction parameters of every
// index in the set.
func WithIndexParameters(m, ef int) ClusterOption {
	return func(o *clusterOptions) {
		o.indexM = m
		o.indexEF = ef
	}
}

// OpenCluster opens or creates a deployment rooted at dir. Each shard
// lives in its own subdirectory (shard-000, shard-001, ...) next to the
// identifier store. The index set starts empty; Reindex fills it from
// the stored embedding records.
func OpenCluster(dir string, opts ...ClusterOption) (*Cluster, error) {
	options := &clusterOptions{
		shards:  shard.DefaultCount,
		indexM:  index.DefaultM,
		indexEF: index.DefaultEF,
	}
	for _, opt := range opts {
		opt(options)
	}

	ids, err := badger.OpenIdentifierStore(filepath.Join(dir, "identifiers"), options.inMemory)
	if err != nil {
		return nil, fmt.Errorf("opening identifier store: %w", err)
	}

	stores := make([]storage.RecordStore, options.shards)
	for i := range stores {
		path := filepath.Join(dir, fmt.Sprintf("shard-%03d", i))
		store, err := badger.OpenStore(path, i, options.inMemory)
		if err != nil {
			for j := 0; j < i; j++ {
				stores[j].Close()
			}
			ids.Close()
			return nil, fmt.Errorf("opening shard %d: %w", i, err)
		}
		stores[i] = store
	}

	set := index.NewSet(options.shards, core.Dim,
		index.WithM(options.indexM), index.WithEF(options.indexEF))

	return &Cluster{
		stores: stores,
		ids:    ids,
		set:    set,
		router: shard.NewRouter(options.shards),
		logger: slog.Default(),
	}, nil
}

// Close closes every shard store and the identifier service.
func (c *Cluster) Close() error {
	var firstErr error
	for i, store := range c.stores {
		if err := store.Close(); err != nil {
			c.logger.Error("error closing shard store", "shard", i, "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if err := c.ids.Close(); err != nil {
		c.logger.Error("error closing identifier store", "err", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Shards returns the deployment's shard count.
func (c *Cluster) Shards() int {
	return c.router.Count()
}

// Stores returns the per-shard record stores, indexed by shard ordinal.
func (c *Cluster) Stores() []storage.RecordStore {
	return c.stores
}

// Identifiers returns the identifier service.
func (c *Cluster) Identifiers() storage.IdentifierService {
	return c.ids
}

// IndexSet returns the vector index set.
func (c *Cluster) IndexSet() *index.Set {
	return c.set
}

// NewOrchestrator builds a query orchestrator over the cluster.
func (c *Cluster) NewOrchestrator(opts ...query.Option) (*query.Orchestrator, error) {
	return query.NewOrchestrator(c.stores, c.ids, c.set, opts...)
}

// NewIngestPipeline builds an ingest pipeline over the cluster.
func (c *Cluster) NewIngestPipeline(opts ...ingest.Option) (*ingest.Pipeline, error) {
	return ingest.NewPipeline(c.stores, c.ids, c.set, opts...)
}

// Reindex rebuilds the vector index set from the stored embedding records,
// writing progress to the given writer.
func (c *Cluster) Reindex(config *reindex.Config, progress io.Writer) (*reindex.Reindexer, error) {
	return reindex.NewReindexer(c.stores, c.set, config, progress)
}
