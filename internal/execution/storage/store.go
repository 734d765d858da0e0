package storage

import (
	"context"
	"fmt"

	"coedit/internal/execution"
	"coedit/internal/storage"

	"github.com/dgraph-io/badger/v4"
)

type Store struct {
	store *storage.BadgerStore
}

func NewStore(db *badger.DB) *Store {
	return &Store{store: storage.NewBadgerStore(db, "execution")}
}

type executionEntity struct {
	*execution.Execution
}

func (e *executionEntity) GetID() string {
	return e.ID
}

func (s *Store) Append(ctx context.Context, e *execution.Execution) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.User == "" || e.Language == "" {
		return fmt.Errorf("execution needs a user and a language")
	}
	return s.store.Create(&executionEntity{Execution: e}, storage.Index{
		Name:  "user",
		Value: e.User,
		Sort:  fmt.Sprintf("%020d", e.ExecutedAt.UnixNano()),
	})
}

func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]*execution.Execution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids, err := s.store.Lookup("user", userID, true)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return storage.GetMany[execution.Execution](s.store, ids)
}
