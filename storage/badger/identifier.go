package badger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/searchit/core"
	"github.com/poiesic/searchit/storage"
)

// allocateRetries bounds optimistic-transaction retries before giving up.
// Conflicts only happen under concurrent allocation for overlapping keys,
// so a handful of retries is plenty.
const allocateRetries = 16

// IdentifierStore implements storage.IdentifierService on a BadgerDB
// backend. It is a single logical resource, not sharded.
type IdentifierStore struct {
	backend *Backend
	uidSeq  *badger.Sequence
	logger  *slog.Logger
}

var _ storage.IdentifierService = (*IdentifierStore)(nil)

// NewIdentifierStore creates an IdentifierStore on an existing backend.
func NewIdentifierStore(backend *Backend) (*IdentifierStore, error) {
	uidSeq, err := backend.GetSequence(uidSeqName)
	if err != nil {
		return nil, err
	}

	return &IdentifierStore{
		backend: backend,
		uidSeq:  uidSeq,
		logger:  slog.Default().With("component", "identifiers"),
	}, nil
}

// OpenIdentifierStore opens an identifier store at the given path. The
// returned store owns its backend; Close releases both.
func OpenIdentifierStore(filePath string, inMemory bool) (*IdentifierStore, error) {
	backend, err := OpenBackend(filePath, inMemory)
	if err != nil {
		return nil, fmt.Errorf("identifier store: %w", err)
	}
	store, err := NewIdentifierStore(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the uid sequence and the backend.
func (s *IdentifierStore) Close() error {
	if err := s.uidSeq.Release(); err != nil {
		s.logger.Error("error releasing uid sequence", "err", err)
	}
	return s.backend.Close()
}

// LookupUID returns the uid allocated for a URL, or storage.ErrNotFound.
func (s *IdentifierStore) LookupUID(ctx context.Context, url string) (core.UID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var uid core.UID
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		uid, err = readUID(tx, makeURLKey(url))
		return err
	}, false)
	return uid, err
}

// LookupURL returns the URL a uid was allocated for, or storage.ErrNotFound.
func (s *IdentifierStore) LookupURL(ctx context.Context, uid core.UID) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var url string
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeUIDKey(uid))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			url = string(val)
			return nil
		})
	}, false)
	return url, err
}

// Allocate returns the uid for a URL, allocating a fresh one on first
// observation. Idempotent: concurrent callers racing on the same URL all
// observe the first writer's uid. Both directions of the bijection are
// written in one transaction so lookups always agree.
func (s *IdentifierStore) Allocate(ctx context.Context, url string) (core.UID, error) {
	if uid, err := s.LookupUID(ctx, url); err == nil {
		return uid, nil
	} else if err != storage.ErrNotFound {
		return 0, err
	}

	for attempt := 0; attempt < allocateRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		next, err := s.uidSeq.Next()
		if err != nil {
			return 0, err
		}
		// BadgerDB sequences can return 0 on first call, so we skip it
		if next == 0 {
			next, err = s.uidSeq.Next()
			if err != nil {
				return 0, err
			}
		}
		uid := core.UID(next)

		var existing core.UID
		won := false
		err = s.backend.WithTx(func(tx *badger.Txn) error {
			urlKey := makeURLKey(url)
			prior, err := readUID(tx, urlKey)
			if err == nil {
				existing = prior
				return nil // lost the race, return the winner's uid
			}
			if err != storage.ErrNotFound {
				return err
			}

			uidBuf := make([]byte, core.UIDMUS.Size(uid))
			core.UIDMUS.Marshal(uid, uidBuf)
			if err := tx.Set(urlKey, uidBuf); err != nil {
				return err
			}
			if err := tx.Set(makeUIDKey(uid), []byte(url)); err != nil {
				return err
			}
			won = true
			return tx.Commit()
		}, true)
		if err == badger.ErrConflict {
			// Another caller allocated concurrently; re-read and adopt
			// its uid on the next attempt.
			continue
		}
		if err != nil {
			return 0, err
		}
		if won {
			return uid, nil
		}
		return existing, nil
	}

	// Retries exhausted; by now a winner must be readable.
	return s.LookupUID(ctx, url)
}

// AllocateStatementBase allocates the next contiguous statement-uid range of
// the given size, owned by uid. The counter key is the only writer path for
// bases, so ranges never overlap.
func (s *IdentifierStore) AllocateStatementBase(ctx context.Context, uid core.UID, count int) (core.StatementUID, error) {
	if count < 1 {
		return 0, fmt.Errorf("statement range must be non-empty, got %d", count)
	}

	for attempt := 0; attempt < allocateRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		var base core.StatementUID
		err := s.backend.WithTx(func(tx *badger.Txn) error {
			next := uint64(1) // statement uid 0 is never allocated
			item, err := tx.Get([]byte(baseNextKey))
			if err == nil {
				err = item.Value(func(val []byte) error {
					v, _, err := varint.Uint64.Unmarshal(val)
					next = v
					return err
				})
				if err != nil {
					return err
				}
			} else if err != badger.ErrKeyNotFound {
				return err
			}

			base = core.StatementUID(next)

			buf := make([]byte, varint.Uint64.Size(next+uint64(count)))
			varint.Uint64.Marshal(next+uint64(count), buf)
			if err := tx.Set([]byte(baseNextKey), buf); err != nil {
				return err
			}

			entry := core.StatementRange{Owner: uid, Count: count}
			if err := tx.Set(makeBaseKey(base), storage.MarshalStatementRange(&entry)); err != nil {
				return err
			}
			return tx.Commit()
		}, true)
		if err == badger.ErrConflict {
			continue
		}
		if err != nil {
			return 0, err
		}
		return base, nil
	}

	return 0, fmt.Errorf("statement base allocation: retries exhausted")
}

// ResolveStatement returns the uid of the resource whose allocated range
// contains the statement uid. The lookup is an ordered-predecessor seek over
// big-endian base keys: one reverse seek, not a scan.
func (s *IdentifierStore) ResolveStatement(ctx context.Context, sid core.StatementUID) (core.UID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var owner core.UID
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(baseKeyPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		// Largest stored base <= sid.
		iter.Seek(makeBaseKey(sid))
		if !iter.Valid() {
			return storage.ErrNotFound
		}

		item := iter.Item()
		base := baseFromKey(item.Key())

		var entry *core.StatementRange
		err := item.Value(func(val []byte) error {
			var err error
			entry, err = storage.UnmarshalStatementRange(val)
			return err
		})
		if err != nil {
			return err
		}

		if uint64(sid) >= uint64(base)+uint64(entry.Count) {
			return storage.ErrNotFound
		}
		owner = entry.Owner
		return nil
	}, false)
	return owner, err
}

// readUID reads a mus-encoded uid value, mapping missing keys to
// storage.ErrNotFound.
func readUID(tx *badger.Txn, key []byte) (core.UID, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return 0, storage.ErrNotFound
		}
		return 0, err
	}

	var uid core.UID
	err = item.Value(func(val []byte) error {
		var err error
		uid, _, err = core.UIDMUS.Unmarshal(val)
		return err
	})
	return uid, err
}
