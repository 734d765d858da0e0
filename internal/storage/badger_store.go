// internal/storage/badger_store.go
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Standard errors returned by every store implementation. Services match them
// with errors.Is so they never depend on the backing database.
var (
	ErrNotFound = errors.New("entity not found")
	ErrConflict = errors.New("entity already exists")
)

// maxTxnAttempts bounds RetryUpdate. Every conflict means another writer
// committed, so this covers that many concurrent writers on one key.
const maxTxnAttempts = 64

// RetryUpdate runs fn in a read-write transaction and runs it again, after a
// short jittered pause, when badger reports a conflicting concurrent commit.
// fn must not keep state between attempts.
func RetryUpdate(db *badger.DB, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxTxnAttempts; attempt++ {
		err = db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		time.Sleep(time.Duration(rand.IntN(min(attempt+1, 10))+1) * time.Millisecond)
	}
	return err
}

// Entity represents any storable entity with an ID
type Entity interface {
	GetID() string
}

// Index is a secondary key written in the same transaction as its entity.
// Entries under one Name and Value iterate in Sort order. A Unique index
// rejects a second entity with the same Name and Value.
type Index struct {
	Name   string
	Value  string
	Sort   string
	Unique bool
}

// BadgerStore provides generic storage operations
type BadgerStore struct {
	db     *badger.DB
	prefix string
}

func NewBadgerStore(db *badger.DB, prefix string) *BadgerStore {
	return &BadgerStore{
		db:     db,
		prefix: prefix,
	}
}

// DB exposes the underlying handle for callers that need their own transactions.
func (s *BadgerStore) DB() *badger.DB {
	return s.db
}

func (s *BadgerStore) makeKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", s.prefix, id))
}

func (s *BadgerStore) indexPrefix(name, value string) []byte {
	return []byte(fmt.Sprintf("%s#%s:%s:", s.prefix, name, value))
}

func (s *BadgerStore) indexKey(idx Index, id string) []byte {
	return append(s.indexPrefix(idx.Name, idx.Value), []byte(idx.Sort+":"+id)...)
}

func (s *BadgerStore) Create(entity Entity, indexes ...Index) error {
	return RetryUpdate(s.db, func(txn *badger.Txn) error {
		return s.CreateTxn(txn, entity, indexes...)
	})
}

// CreateTxn writes a new entity and its indexes inside txn.
func (s *BadgerStore) CreateTxn(txn *badger.Txn, entity Entity, indexes ...Index) error {
	if entity.GetID() == "" {
		return fmt.Errorf("entity ID cannot be empty")
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("marshaling entity: %w", err)
	}

	key := s.makeKey(entity.GetID())
	_, err = txn.Get(key)
	if err == nil {
		return fmt.Errorf("%s %s: %w", s.prefix, entity.GetID(), ErrConflict)
	} else if err != badger.ErrKeyNotFound {
		return err
	}

	if err := txn.Set(key, data); err != nil {
		return err
	}
	for _, idx := range indexes {
		if idx.Unique && s.taken(txn, idx) {
			return fmt.Errorf("%s %s %s: %w", s.prefix, idx.Name, idx.Value, ErrConflict)
		}
		if err := txn.Set(s.indexKey(idx, entity.GetID()), nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *BadgerStore) taken(txn *badger.Txn, idx Index) bool {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	prefix := s.indexPrefix(idx.Name, idx.Value)
	it.Seek(prefix)
	return it.ValidForPrefix(prefix)
}

func (s *BadgerStore) Get(id string, entity any) error {
	return s.db.View(func(txn *badger.Txn) error {
		return s.GetTxn(txn, id, entity)
	})
}

// GetTxn decodes the entity stored under id as seen by txn.
func (s *BadgerStore) GetTxn(txn *badger.Txn, id string, entity any) error {
	item, err := txn.Get(s.makeKey(id))
	if err == badger.ErrKeyNotFound {
		return fmt.Errorf("%s %s: %w", s.prefix, id, ErrNotFound)
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, entity)
	})
}

// Update replaces an entity. Indexes in drop are removed and those in add
// written within the same transaction.
func (s *BadgerStore) Update(entity Entity, drop []Index, add []Index) error {
	return RetryUpdate(s.db, func(txn *badger.Txn) error {
		return s.UpdateTxn(txn, entity, drop, add)
	})
}

func (s *BadgerStore) UpdateTxn(txn *badger.Txn, entity Entity, drop []Index, add []Index) error {
	if entity.GetID() == "" {
		return fmt.Errorf("entity ID cannot be empty")
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("marshaling entity: %w", err)
	}

	key := s.makeKey(entity.GetID())
	_, err = txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return fmt.Errorf("%s %s: %w", s.prefix, entity.GetID(), ErrNotFound)
	} else if err != nil {
		return err
	}

	for _, idx := range drop {
		if err := txn.Delete(s.indexKey(idx, entity.GetID())); err != nil {
			return err
		}
	}
	for _, idx := range add {
		if err := txn.Set(s.indexKey(idx, entity.GetID()), nil); err != nil {
			return err
		}
	}
	return txn.Set(key, data)
}

// Delete removes an entity and the index entries it was written with.
func (s *BadgerStore) Delete(id string, indexes ...Index) error {
	return RetryUpdate(s.db, func(txn *badger.Txn) error {
		return s.DeleteTxn(txn, id, indexes...)
	})
}

func (s *BadgerStore) DeleteTxn(txn *badger.Txn, id string, indexes ...Index) error {
	key := s.makeKey(id)
	_, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return fmt.Errorf("%s %s: %w", s.prefix, id, ErrNotFound)
	} else if err != nil {
		return err
	}

	for _, idx := range indexes {
		if err := txn.Delete(s.indexKey(idx, id)); err != nil {
			return err
		}
	}
	return txn.Delete(key)
}

// List decodes every entity under the prefix into results, in key order.
func (s *BadgerStore) List(results any) error {
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(s.prefix + ":")
		values := []json.RawMessage{}

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				values = append(values, append([]byte(nil), val...))
				return nil
			})
			if err != nil {
				return err
			}
		}

		data, err := json.Marshal(values)
		if err != nil {
			return err
		}

		return json.Unmarshal(data, results)
	})

	if err != nil {
		return fmt.Errorf("listing entities: %w", err)
	}
	return nil
}

// Lookup returns the IDs indexed under name/value, ordered by sort key.
// reverse yields the highest sort key first.
func (s *BadgerStore) Lookup(name, value string, reverse bool) ([]string, error) {
	prefix := s.indexPrefix(name, value)
	var ids []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = reverse
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := prefix
		if reverse {
			seek = append(append([]byte(nil), prefix...), 0xFF)
		}

		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			rest := strings.TrimPrefix(string(it.Item().Key()), string(prefix))
			if i := strings.LastIndex(rest, ":"); i >= 0 {
				ids = append(ids, rest[i+1:])
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading index %s: %w", name, err)
	}
	return ids, nil
}

// GetMany fetches the entities for ids in order.
func GetMany[T any](s *BadgerStore, ids []string) ([]*T, error) {
	out := make([]*T, 0, len(ids))
	for _, id := range ids {
		var v T
		if err := s.Get(id, &v); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, nil
}

// Sequence hands out monotonically increasing numbers under the store prefix.
func (s *BadgerStore) Sequence(bandwidth uint64) (*badger.Sequence, error) {
	return s.db.GetSequence([]byte(s.prefix+"!seq"), bandwidth)
}
