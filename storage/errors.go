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


package storage

import "errors"

var (
	// ErrNotFound indicates that the requested record was not found.
	// Lookups return it as a normal outcome, never as a failure.
	ErrNotFound = errors.New("record not found")

	// ErrShardUnavailable indicates that one shard's store is unreachable
	// or unable to serve reads.
	ErrShardUnavailable = errors.New("shard unavailable")

	// ErrDeserialization indicates stored bytes that do not match the
	// expected record schema.
	ErrDeserialization = errors.New("record deserialization failed")

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrUnknownRecordType indicates a record type prefix this deployment
	// does not define.
	ErrUnknownRecordType = errors.New("unknown record type")
)
