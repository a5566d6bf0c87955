// Package shard maps routing keys to shards.
//
// Shard assignment determines physical data placement: the mapping is a pure
// function of the key and the deployment's shard count, and changing the
// shard count requires a full re-shard of stored data.
package shard

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// DefaultCount is the shard count of the reference deployment.
const DefaultCount = 64

// Router deterministically assigns routing keys to shards. It performs no
// I/O and has no failure modes; identical keys route to identical shards for
// the life of the deployment.
type Router struct {
	n int
}

// NewRouter creates a router over n shards. n must be positive.
func NewRouter(n int) *Router {
	if n < 1 {
		n = 1
	}
	return &Router{n: n}
}

// Count returns the number of shards.
func (r *Router) Count() int {
	return r.n
}

// Of returns the shard of a routing key, in [0, Count).
func (r *Router) Of(key []byte) int {
	return int(xxhash.Sum64(key) % uint64(r.n))
}

// OfString returns the shard of a string routing key without copying it.
func (r *Router) OfString(key string) int {
	return int(xxhash.Sum64String(key) % uint64(r.n))
}

// OfUID returns the shard of a numeric routing key, serialized big-endian
// the same way it is stored.
func (r *Router) OfUID(uid uint64) int {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uid)
	return r.Of(buf[:])
}
