package badger

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/zstd"
	"github.com/poiesic/searchit/storage"
)

// Store implements storage.RecordStore on a BadgerDB backend. One Store owns
// one shard of the corpus.
type Store struct {
	backend *Backend
	shard   int
	logger  *slog.Logger
	enc     *zstd.Encoder
	dec     *zstd.Decoder
}

var _ storage.RecordStore = (*Store)(nil)

// NewStore creates a Store on an existing backend.
func NewStore(backend *Backend, shard int) (*Store, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, err
	}

	return &Store{
		backend: backend,
		shard:   shard,
		logger:  slog.Default().With("component", "store", "shard", shard),
		enc:     enc,
		dec:     dec,
	}, nil
}

// OpenStore opens a shard store at the given path, creating it if needed.
// The returned Store owns its backend; Close releases both.
func OpenStore(filePath string, shard int, inMemory bool) (*Store, error) {
	backend, err := OpenBackend(filePath, inMemory)
	if err != nil {
		return nil, fmt.Errorf("shard %d: %w", shard, err)
	}
	store, err := NewStore(backend, shard)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return store, nil
}

// Shard returns the shard this store owns.
func (s *Store) Shard() int {
	return s.shard
}

// Close closes the store and its backend.
func (s *Store) Close() error {
	s.enc.Close()
	s.dec.Close()
	return s.backend.Close()
}

// Get returns the serialized record stored under (typ, key).
func (s *Store) Get(ctx context.Context, typ storage.RecordType, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !typ.Valid() {
		return nil, storage.ErrUnknownRecordType
	}
	if s.backend.IsClosed() {
		return nil, fmt.Errorf("shard %d: %w", s.shard, storage.ErrStorageClosed)
	}

	var value []byte
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeRecordKey(typ, key))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return fmt.Errorf("shard %d: %w: %w", s.shard, storage.ErrShardUnavailable, err)
		}
		value, err = item.ValueCopy(nil)
		return err
	}, false)
	if err != nil {
		return nil, err
	}

	if typ == storage.TypeSource {
		return s.dec.DecodeAll(value, nil)
	}
	return value, nil
}

// Put replaces the record stored under (typ, key). Each write is a
// whole-record replacement; readers never observe partial values.
func (s *Store) Put(ctx context.Context, typ storage.RecordType, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !typ.Valid() {
		return storage.ErrUnknownRecordType
	}
	if s.backend.IsClosed() {
		return fmt.Errorf("shard %d: %w", s.shard, storage.ErrStorageClosed)
	}

	// Source bodies are the one record type large enough to pay for
	// compression at rest.
	if typ == storage.TypeSource {
		value = s.enc.EncodeAll(value, nil)
	}

	return s.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeRecordKey(typ, key), value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Delete removes the record stored under (typ, key), if present.
func (s *Store) Delete(ctx context.Context, typ storage.RecordType, key []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !typ.Valid() {
		return storage.ErrUnknownRecordType
	}

	return s.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeRecordKey(typ, key)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Scan visits records of one type in key order, starting after the given
// key. The callback receives the routing key without the type prefix.
func (s *Store) Scan(ctx context.Context, typ storage.RecordType, after []byte, fn func(key, value []byte) (bool, error)) error {
	if !typ.Valid() {
		return storage.ErrUnknownRecordType
	}

	prefix := []byte{byte(typ)}
	start := prefix
	if after != nil {
		// Seek past the given key: append a zero byte to land strictly
		// after it.
		start = append(makeRecordKey(typ, after), 0)
	}

	return s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(start); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := iter.Item()
			key := item.Key()
			if len(key) < 1 || !bytes.HasPrefix(key, prefix) {
				break
			}

			var cont bool
			err := item.Value(func(val []byte) error {
				if typ == storage.TypeSource {
					decoded, err := s.dec.DecodeAll(val, nil)
					if err != nil {
						return err
					}
					val = decoded
				}
				var err error
				cont, err = fn(key[1:], val)
				return err
			})
			if err != nil {
				return err
			}
			if !cont {
				return nil
			}
		}
		return nil
	}, false)
}
