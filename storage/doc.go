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


// Package storage provides the storage abstraction layer for searchit.
//
// It defines the two persistent surfaces of the retrieval core:
//
//   - RecordStore: one per shard, an ordered key-value store multiplexing
//     the record types of one corpus partition under one-byte type prefixes.
//   - IdentifierService: a single logical service owning the url<->uid
//     bijection and statement-uid range allocation.
//
// # Key encoding
//
// Shard store keys are [type prefix byte][routing key]. Routing keys are
// either normalized URLs or 64-bit identifiers serialized big-endian, so
// lexicographic key order equals numeric order. The identifier service
// relies on this for its ordered-predecessor lookup: resolving a statement
// uid to its owning resource seeks backwards to the largest stored base not
// exceeding the statement uid, which is logarithmic in corpus size instead
// of linear.
//
// # Error conventions
//
// Reads of missing keys return ErrNotFound; it is a normal outcome, not a
// failure. Stored bytes that fail to deserialize return ErrDeserialization,
// which readers on the query path log and treat as a missing record.
//
// # Thread safety
//
// All implementations must be thread-safe. Writes are atomic per key with
// no cross-key transactional guarantee; callers needing atomicity across
// record types must tolerate readers observing one write before the other.
package storage
