package storage

import (
	"context"
	"testing"
	"time"

	"coedit/internal/storage"
	"coedit/internal/user"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *badger.DB {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUserStore(t *testing.T) {
	ctx := context.Background()
	store := NewStore(setupTestDB(t))

	u := &user.User{
		ID:        uuid.New().String(),
		Name:      "Ada",
		Email:     "  Ada@Example.com ",
		Password:  "hash",
		CreatedAt: time.Now(),
	}

	t.Run("Create", func(t *testing.T) {
		require.NoError(t, store.Create(ctx, u))
		assert.Equal(t, "ada@example.com", u.Email)
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		dup := &user.User{ID: uuid.New().String(), Name: "Other", Email: "ADA@example.com"}
		err := store.Create(ctx, dup)
		assert.ErrorIs(t, err, storage.ErrConflict)
	})

	t.Run("Get", func(t *testing.T) {
		got, err := store.Get(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ada", got.Name)
		assert.Equal(t, "hash", got.Password)

		_, err = store.Get(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("GetByEmail", func(t *testing.T) {
		got, err := store.GetByEmail(ctx, "ADA@EXAMPLE.COM")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)

		_, err = store.GetByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}
