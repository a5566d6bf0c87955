package storage

import (
	"context"

	"github.com/poiesic/searchit/core"
)

// RecordType is the one-byte prefix that multiplexes independent record
// types inside one physical shard store. Prefix-scoped range scans enumerate
// all records of one type.
type RecordType byte

const (
	// TypeResource holds core.ResourceRecord, keyed by URL.
	TypeResource RecordType = 'r'
	// TypeLinks holds core.LinkRecord, keyed by URL.
	TypeLinks RecordType = 'l'
	// TypeMeta holds core.MetaRecord, keyed by URL.
	TypeMeta RecordType = 'm'
	// TypeBody holds core.BodyRecord (normalized structure), keyed by URL.
	TypeBody RecordType = 'b'
	// TypeSource holds core.SourceRecord (original bytes), keyed by URL.
	// Values are compressed at rest.
	TypeSource RecordType = 's'
	// TypeDocument holds core.DocumentRecord (headings + statements), keyed by URL.
	TypeDocument RecordType = 'd'
	// TypePageEmbedding holds core.EmbeddingRecord, keyed by big-endian uid.
	TypePageEmbedding RecordType = 'p'
	// TypeStatementVectors holds core.StatementVectorsRecord, keyed by big-endian uid.
	TypeStatementVectors RecordType = 'v'
	// TypeCheckpoint holds core.Checkpoint, keyed by processor name.
	TypeCheckpoint RecordType = 'c'
)

// Valid reports whether t is a defined record type.
func (t RecordType) Valid() bool {
	switch t {
	case TypeResource, TypeLinks, TypeMeta, TypeBody, TypeSource,
		TypeDocument, TypePageEmbedding, TypeStatementVectors, TypeCheckpoint:
		return true
	default:
		return false
	}
}

// RecordStore is one shard's persistent ordered key-value store. Keys are
// a one-byte record type plus a routing key. Reads of a missing key return
// ErrNotFound. Writes are atomic per key; the store makes no cross-key
// transactional guarantee.
//
// Implementations must be thread-safe and support concurrent access.
type RecordStore interface {
	// Get returns the serialized record stored under (typ, key).
	Get(ctx context.Context, typ RecordType, key []byte) ([]byte, error)

	// Put replaces the record stored under (typ, key). Replacement is
	// whole-record: readers never observe a partial value.
	Put(ctx context.Context, typ RecordType, key, value []byte) error

	// Delete removes the record stored under (typ, key), if present.
	Delete(ctx context.Context, typ RecordType, key []byte) error

	// Scan visits records of one type in key order, starting after the
	// given key (or from the first record when after is nil). fn returns
	// false to stop early. Values are valid only for the duration of the
	// callback.
	Scan(ctx context.Context, typ RecordType, after []byte, fn func(key, value []byte) (bool, error)) error

	// Close closes the store and releases resources.
	Close() error
}

// IdentifierService maintains the url<->uid bijection and the statement-uid
// range ownership of every resource. Concurrent reads are unrestricted;
// concurrent Allocate calls for the same URL serialize with first-writer-wins.
type IdentifierService interface {
	// LookupUID returns the uid allocated for a URL, or ErrNotFound.
	LookupUID(ctx context.Context, url string) (core.UID, error)

	// LookupURL returns the URL a uid was allocated for, or ErrNotFound.
	LookupURL(ctx context.Context, uid core.UID) (string, error)

	// Allocate returns the uid for a URL, allocating one on first
	// observation. Idempotent: a known URL always returns its existing
	// uid, even under concurrent callers.
	Allocate(ctx context.Context, url string) (core.UID, error)

	// AllocateStatementBase allocates a contiguous statement-uid range of
	// the given size owned by uid and returns its base. Ranges of
	// different resources never overlap.
	AllocateStatementBase(ctx context.Context, uid core.UID, count int) (core.StatementUID, error)

	// ResolveStatement returns the uid of the resource whose allocated
	// range contains the statement uid, or ErrNotFound.
	ResolveStatement(ctx context.Context, sid core.StatementUID) (core.UID, error)

	// Close closes the service and releases resources.
	Close() error
}
