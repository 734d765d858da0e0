package storage

import (
	"context"
	"fmt"

	"coedit/internal/activity"
	"coedit/internal/storage"

	"github.com/dgraph-io/badger/v4"
)

type Store struct {
	store *storage.BadgerStore
}

func NewStore(db *badger.DB) *Store {
	return &Store{store: storage.NewBadgerStore(db, "activity")}
}

type activityEntity struct {
	*activity.Activity
}

func (a *activityEntity) GetID() string {
	return a.ID
}

func sortKey(a *activity.Activity) string {
	return fmt.Sprintf("%020d", a.Timestamp.UnixNano())
}

func (s *Store) Append(ctx context.Context, a *activity.Activity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.User == "" || a.Action == "" {
		return fmt.Errorf("activity needs a user and an action")
	}

	var indexes []storage.Index
	if a.Project != "" {
		indexes = append(indexes, storage.Index{Name: "project", Value: a.Project, Sort: sortKey(a)})
	}
	return s.store.Create(&activityEntity{Activity: a}, indexes...)
}

func (s *Store) ListByProject(ctx context.Context, projectID string, limit int) ([]*activity.Activity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids, err := s.store.Lookup("project", projectID, true)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return storage.GetMany[activity.Activity](s.store, ids)
}
