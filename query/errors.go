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


package query

import "errors"

var (
	// ErrStoresRequired is returned when no shard stores are provided.
	ErrStoresRequired = errors.New("shard stores required")

	// ErrIdentifiersRequired is returned when an identifier service is not provided.
	ErrIdentifiersRequired = errors.New("identifier service required")

	// ErrIndexSetRequired is returned when a vector index set is not provided.
	ErrIndexSetRequired = errors.New("vector index set required")

	// ErrShardCountMismatch is returned when the store count and the index
	// set's shard count disagree.
	ErrShardCountMismatch = errors.New("store count does not match index shard count")

	// ErrInvalidRequest is returned for a request with a bad k, vector
	// dimension, or granularity.
	ErrInvalidRequest = errors.New("invalid query request")

	// ErrAllShardsFailed is returned when every shard query failed or timed
	// out. Anything short of total failure degrades to a partial response
	// instead.
	ErrAllShardsFailed = errors.New("all shard queries failed")
)
