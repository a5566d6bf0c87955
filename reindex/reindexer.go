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


// Package reindex rebuilds the vector index set from the embedding records
// in the shard stores. A rebuild runs out of band: removals and corrections
// that the append-only query path cannot express are applied by building a
// fresh index set and swapping it in.
package reindex

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/poiesic/searchit/core"
	"github.com/poiesic/searchit/index"
	"github.com/poiesic/searchit/shard"
	"github.com/poiesic/searchit/storage"
)

var (
	// ErrStoresRequired is returned when no shard stores are provided.
	ErrStoresRequired = errors.New("shard stores required")

	// ErrIndexSetRequired is returned when a vector index set is not provided.
	ErrIndexSetRequired = errors.New("vector index set required")

	// ErrShardCountMismatch is returned when the store count and the index
	// set's shard count disagree.
	ErrShardCountMismatch = errors.New("store count does not match index shard count")
)

// Config holds configuration for a reindex run.
type Config struct {
	// CheckpointEvery is the number of records between checkpoint writes
	CheckpointEvery int

	// ReportInterval is how often to report progress (number of vectors)
	ReportInterval int

	// Processor names the checkpoint owner, so independent runs do not
	// clobber each other's progress
	Processor string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		CheckpointEvery: 256,
		ReportInterval:  1000,
		Processor:       "reindex",
	}
}

// Reindexer rebuilds the vector index set from stored embedding records.
// Progress is checkpointed per shard and granularity, so an interrupted run
// resumes where it stopped instead of starting over.
type Reindexer struct {
	stores   []storage.RecordStore
	set      *index.Set
	router   *shard.Router
	config   *Config
	progress io.Writer
}

// NewReindexer creates a new reindexer.
// progress: where to write progress output (typically os.Stderr)
func NewReindexer(stores []storage.RecordStore, set *index.Set, config *Config, progress io.Writer) (*Reindexer, error) {
	if len(stores) == 0 {
		return nil, ErrStoresRequired
	}
	if set == nil {
		return nil, ErrIndexSetRequired
	}
	if set.Shards() != len(stores) {
		return nil, fmt.Errorf("%w: %d stores, %d index shards",
			ErrShardCountMismatch, len(stores), set.Shards())
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reindexer{
		stores:   stores,
		set:      set,
		router:   shard.NewRouter(len(stores)),
		config:   config,
		progress: progress,
	}, nil
}

// Run rebuilds the index set from every shard's embedding records. Corrupt
// records are reported and skipped, never fatal. Context cancellation is
// honored between records.
func (r *Reindexer) Run(ctx context.Context) error {
	fmt.Fprintf(r.progress, "Starting reindex over %d shards\n", len(r.stores))

	tracker := NewProgressTracker(r.progress, r.config.ReportInterval)
	tracker.Start()

	skipped := 0
	for shardID := range r.stores {
		n, err := r.reindexShard(ctx, shardID, storage.TypePageEmbedding, tracker)
		if err != nil {
			return fmt.Errorf("shard %d pages: %w", shardID, err)
		}
		skipped += n

		n, err = r.reindexShard(ctx, shardID, storage.TypeStatementVectors, tracker)
		if err != nil {
			return fmt.Errorf("shard %d statements: %w", shardID, err)
		}
		skipped += n
	}

	tracker.Finish()
	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reindex complete. Indexed %d vectors in %v (%d skipped)\n",
		tracker.Count(), elapsed.Round(time.Second), skipped)
	return nil
}

// checkpointKey names the checkpoint record of one shard scan.
func (r *Reindexer) checkpointKey(typ storage.RecordType) []byte {
	return []byte(fmt.Sprintf("%s:%c", r.config.Processor, typ))
}

// loadCheckpoint returns the resume key of a previous interrupted run, or
// nil for a fresh scan.
func (r *Reindexer) loadCheckpoint(ctx context.Context, shardID int, typ storage.RecordType) ([]byte, error) {
	data, err := r.stores[shardID].Get(ctx, storage.TypeCheckpoint, r.checkpointKey(typ))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	checkpoint, err := storage.UnmarshalCheckpoint(data)
	if err != nil {
		// A corrupt checkpoint costs a full rescan of the shard, nothing more.
		fmt.Fprintf(r.progress, "\nshard %d: discarding corrupt checkpoint: %v\n", shardID, err)
		return nil, nil
	}
	return checkpoint.LastKey, nil
}

func (r *Reindexer) saveCheckpoint(ctx context.Context, shardID int, typ storage.RecordType, lastKey []byte) error {
	checkpoint := &core.Checkpoint{
		Shard:     shardID,
		LastKey:   lastKey,
		UpdatedAt: time.Now().UTC(),
	}
	return r.stores[shardID].Put(ctx, storage.TypeCheckpoint, r.checkpointKey(typ), storage.MarshalCheckpoint(checkpoint))
}

// reindexShard scans one record type of one shard and inserts its vectors.
// Returns the number of records skipped as corrupt.
func (r *Reindexer) reindexShard(ctx context.Context, shardID int, typ storage.RecordType, tracker *ProgressTracker) (int, error) {
	after, err := r.loadCheckpoint(ctx, shardID, typ)
	if err != nil {
		return 0, err
	}

	store := r.stores[shardID]
	skipped := 0
	sinceCheckpoint := 0

	err = store.Scan(ctx, typ, after, func(key, value []byte) (bool, error) {
		if len(key) != 8 {
			fmt.Fprintf(r.progress, "\nshard %d: skipping malformed key %x\n", shardID, key)
			skipped++
			return true, nil
		}
		uid := binary.BigEndian.Uint64(key)

		inserted, bad, err := r.insertRecord(typ, uid, value)
		if err != nil {
			return false, err
		}
		skipped += bad
		tracker.Increment(inserted)

		sinceCheckpoint++
		if sinceCheckpoint >= r.config.CheckpointEvery {
			if err := r.saveCheckpoint(ctx, shardID, typ, key); err != nil {
				return false, err
			}
			sinceCheckpoint = 0
		}
		return true, nil
	})
	if err != nil {
		return skipped, err
	}

	// A completed scan clears its checkpoint so the next run starts fresh.
	if err := store.Delete(ctx, storage.TypeCheckpoint, r.checkpointKey(typ)); err != nil {
		return skipped, err
	}
	return skipped, nil
}

// insertRecord decodes one embedding record and inserts its vectors into
// the index set. Returns how many vectors were inserted and how many were
// skipped as corrupt.
func (r *Reindexer) insertRecord(typ storage.RecordType, uid uint64, value []byte) (inserted, skipped int, err error) {
	switch typ {
	case storage.TypePageEmbedding:
		record, err := storage.UnmarshalEmbeddingRecord(value)
		if err != nil {
			fmt.Fprintf(r.progress, "\nuid %d: skipping corrupt page embedding: %v\n", uid, err)
			return 0, 1, nil
		}
		if err := r.set.Insert(r.router.OfUID(uid), core.GranularityPage, uid, record.Vector); err != nil {
			fmt.Fprintf(r.progress, "\nuid %d: skipping unusable page vector: %v\n", uid, err)
			return 0, 1, nil
		}
		return 1, 0, nil

	case storage.TypeStatementVectors:
		record, err := storage.UnmarshalStatementVectorsRecord(value)
		if err != nil {
			fmt.Fprintf(r.progress, "\nuid %d: skipping corrupt statement vectors: %v\n", uid, err)
			return 0, 1, nil
		}
		for i, vector := range record.Vectors {
			sid := uint64(record.Base) + uint64(i)
			if err := r.set.Insert(r.router.OfUID(sid), core.GranularityStatement, sid, vector); err != nil {
				fmt.Fprintf(r.progress, "\nstatement %d: skipping unusable vector: %v\n", sid, err)
				skipped++
				continue
			}
			inserted++
		}
		return inserted, skipped, nil

	default:
		return 0, 0, fmt.Errorf("%w: %c", storage.ErrUnknownRecordType, typ)
	}
}
