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


package ingest

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

	// ErrUnknownResource is returned when a stage is applied to a URL that
	// was never fetched.
	ErrUnknownResource = errors.New("unknown resource")

	// ErrVectorCountMismatch is returned when the statement vectors supplied
	// for a resource do not match its labelled statement count.
	ErrVectorCountMismatch = errors.New("statement vector count does not match document")
)
