package badger

import (
	"encoding/binary"

	"github.com/poiesic/searchit/core"
	"github.com/poiesic/searchit/storage"
)

// Identifier store key prefixes. The shard record keys carry no textual
// prefix: they are [storage.RecordType byte][routing key], so prefix-scoped
// scans are single-byte bounded.
const (
	urlKeyPrefix  = "idu:" // idu:<url>        -> uid (mus varint)
	uidKeyPrefix  = "idi:" // idi:<uid BE>     -> url bytes
	baseKeyPrefix = "idb:" // idb:<base BE>    -> StatementRange
	uidSeqName    = "iduidseq"
	baseNextKey   = "idbasenext" // next unallocated statement uid (mus varint)
)

// makeRecordKey builds a shard store key: one type byte plus the routing key.
func makeRecordKey(typ storage.RecordType, key []byte) []byte {
	buf := make([]byte, 1+len(key))
	buf[0] = byte(typ)
	copy(buf[1:], key)
	return buf
}

// makeURLKey generates an identifier store key for url -> uid lookups.
func makeURLKey(url string) []byte {
	buf := make([]byte, len(urlKeyPrefix)+len(url))
	offset := copy(buf, urlKeyPrefix)
	copy(buf[offset:], url)
	return buf
}

// makeUIDKey generates an identifier store key for uid -> url lookups.
// Written in BigEndian order so lexicographic sort equals numeric order.
func makeUIDKey(uid core.UID) []byte {
	buf := make([]byte, len(uidKeyPrefix)+8)
	offset := copy(buf, uidKeyPrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(uid))
	return buf
}

// makeBaseKey generates an identifier store key for one statement-uid range.
// The BigEndian base is load-bearing: ResolveStatement seeks backwards over
// these keys and requires lexicographic order to equal numeric order.
func makeBaseKey(base core.StatementUID) []byte {
	buf := make([]byte, len(baseKeyPrefix)+8)
	offset := copy(buf, baseKeyPrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(base))
	return buf
}

// baseFromKey recovers the range base from a base key.
func baseFromKey(key []byte) core.StatementUID {
	return core.StatementUID(binary.BigEndian.Uint64(key[len(baseKeyPrefix):]))
}

// UIDRoutingKey serializes a uid as a big-endian routing key, the form used
// for embedding records and the shard router.
func UIDRoutingKey(uid core.UID) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(uid))
	return buf[:]
}
