package storage

import (
	"context"
	"fmt"

	"coedit/internal/storage"
	"coedit/internal/user"

	"github.com/dgraph-io/badger/v4"
)

type Store struct {
	store *storage.BadgerStore
}

func NewStore(db *badger.DB) *Store {
	return &Store{store: storage.NewBadgerStore(db, "user")}
}

type userEntity struct {
	*user.User
}

func (u *userEntity) GetID() string {
	return u.ID
}

func emailIndex(email string) storage.Index {
	return storage.Index{Name: "email", Value: email, Unique: true}
}

func (s *Store) Create(ctx context.Context, u *user.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if u.Email == "" {
		return fmt.Errorf("email is required")
	}
	u.Email = user.NormalizeEmail(u.Email)
	return s.store.Create(&userEntity{User: u}, emailIndex(u.Email))
}

func (s *Store) Get(ctx context.Context, id string) (*user.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entity := userEntity{User: &user.User{}}
	if err := s.store.Get(id, &entity); err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return entity.User, nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	email = user.NormalizeEmail(email)
	ids, err := s.store.Lookup("email", email, false)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("user %s: %w", email, storage.ErrNotFound)
	}
	return s.Get(ctx, ids[0])
}
