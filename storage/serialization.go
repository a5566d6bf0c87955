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

import (
	"fmt"

	"github.com/poiesic/searchit/core"
)

// Unmarshal failures are wrapped in ErrDeserialization so callers can treat
// corrupt records as missing without inspecting mus-go error values.

// MarshalResourceRecord serializes a ResourceRecord to bytes.
func MarshalResourceRecord(record *core.ResourceRecord) []byte {
	buf := make([]byte, core.ResourceRecordMUS.Size(*record))
	core.ResourceRecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalResourceRecord deserializes a ResourceRecord from bytes.
func UnmarshalResourceRecord(data []byte) (*core.ResourceRecord, error) {
	record, _, err := core.ResourceRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: resource record: %w", ErrDeserialization, err)
	}
	return &record, nil
}

// MarshalLinkRecord serializes a LinkRecord to bytes.
func MarshalLinkRecord(record *core.LinkRecord) []byte {
	buf := make([]byte, core.LinkRecordMUS.Size(*record))
	core.LinkRecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalLinkRecord deserializes a LinkRecord from bytes.
func UnmarshalLinkRecord(data []byte) (*core.LinkRecord, error) {
	record, _, err := core.LinkRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: link record: %w", ErrDeserialization, err)
	}
	return &record, nil
}

// MarshalMetaRecord serializes a MetaRecord to bytes.
func MarshalMetaRecord(record *core.MetaRecord) []byte {
	buf := make([]byte, core.MetaRecordMUS.Size(*record))
	core.MetaRecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalMetaRecord deserializes a MetaRecord from bytes.
func UnmarshalMetaRecord(data []byte) (*core.MetaRecord, error) {
	record, _, err := core.MetaRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: meta record: %w", ErrDeserialization, err)
	}
	return &record, nil
}

// MarshalBodyRecord serializes a BodyRecord to bytes.
func MarshalBodyRecord(record *core.BodyRecord) []byte {
	buf := make([]byte, core.BodyRecordMUS.Size(*record))
	core.BodyRecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalBodyRecord deserializes a BodyRecord from bytes.
func UnmarshalBodyRecord(data []byte) (*core.BodyRecord, error) {
	record, _, err := core.BodyRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: body record: %w", ErrDeserialization, err)
	}
	return &record, nil
}

// MarshalSourceRecord serializes a SourceRecord to bytes.
func MarshalSourceRecord(record *core.SourceRecord) []byte {
	buf := make([]byte, core.SourceRecordMUS.Size(*record))
	core.SourceRecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalSourceRecord deserializes a SourceRecord from bytes.
func UnmarshalSourceRecord(data []byte) (*core.SourceRecord, error) {
	record, _, err := core.SourceRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: source record: %w", ErrDeserialization, err)
	}
	return &record, nil
}

// MarshalDocumentRecord serializes a DocumentRecord to bytes.
func MarshalDocumentRecord(record *core.DocumentRecord) []byte {
	buf := make([]byte, core.DocumentRecordMUS.Size(*record))
	core.DocumentRecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalDocumentRecord deserializes a DocumentRecord from bytes.
func UnmarshalDocumentRecord(data []byte) (*core.DocumentRecord, error) {
	record, _, err := core.DocumentRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: document record: %w", ErrDeserialization, err)
	}
	return &record, nil
}

// MarshalEmbeddingRecord serializes an EmbeddingRecord to bytes.
func MarshalEmbeddingRecord(record *core.EmbeddingRecord) []byte {
	buf := make([]byte, core.EmbeddingRecordMUS.Size(*record))
	core.EmbeddingRecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalEmbeddingRecord deserializes an EmbeddingRecord from bytes.
func UnmarshalEmbeddingRecord(data []byte) (*core.EmbeddingRecord, error) {
	record, _, err := core.EmbeddingRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding record: %w", ErrDeserialization, err)
	}
	return &record, nil
}

// MarshalStatementVectorsRecord serializes a StatementVectorsRecord to bytes.
func MarshalStatementVectorsRecord(record *core.StatementVectorsRecord) []byte {
	buf := make([]byte, core.StatementVectorsRecordMUS.Size(*record))
	core.StatementVectorsRecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalStatementVectorsRecord deserializes a StatementVectorsRecord from bytes.
func UnmarshalStatementVectorsRecord(data []byte) (*core.StatementVectorsRecord, error) {
	record, _, err := core.StatementVectorsRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: statement vectors record: %w", ErrDeserialization, err)
	}
	return &record, nil
}

// MarshalStatementRange serializes a StatementRange to bytes.
func MarshalStatementRange(r *core.StatementRange) []byte {
	buf := make([]byte, core.StatementRangeMUS.Size(*r))
	core.StatementRangeMUS.Marshal(*r, buf)
	return buf
}

// UnmarshalStatementRange deserializes a StatementRange from bytes.
func UnmarshalStatementRange(data []byte) (*core.StatementRange, error) {
	r, _, err := core.StatementRangeMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: statement range: %w", ErrDeserialization, err)
	}
	return &r, nil
}

// MarshalCheckpoint serializes a Checkpoint to bytes.
func MarshalCheckpoint(checkpoint *core.Checkpoint) []byte {
	buf := make([]byte, core.CheckpointMUS.Size(*checkpoint))
	core.CheckpointMUS.Marshal(*checkpoint, buf)
	return buf
}

// UnmarshalCheckpoint deserializes a Checkpoint from bytes.
func UnmarshalCheckpoint(data []byte) (*core.Checkpoint, error) {
	checkpoint, _, err := core.CheckpointMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: checkpoint: %w", ErrDeserialization, err)
	}
	return &checkpoint, nil
}
