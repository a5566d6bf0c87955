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


// Package query coordinates retrieval across shards.
//
// The Orchestrator type implements the full query path:
//   - Parallel fan-out of one graph search per shard, each with its own deadline
//   - Deterministic k-way merge of the per-shard rankings
//   - Resolution of statement identifiers back to their owning resources
//   - Per-resource deduplication keeping the best hit
//   - Record assembly from the shard stores
//
// Individual shard failures degrade the response to partial rather than
// failing it, so unavailability of one shard costs recall, not availability.
// A shard that has not answered by its deadline is abandoned the same way;
// the query never waits out a slow shard.
package query
