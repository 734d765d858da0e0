package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"coedit/internal/commit"
	"coedit/internal/directory"
	"coedit/internal/storage"
	"coedit/internal/user"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

func setupTestDB(t *testing.T) *mongo.Database {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := NewClient(ctx, uri)
	require.NoError(t, err)

	db := client.Database("coedit_test_" + uuid.New().String()[:8])
	require.NoError(t, EnsureIndexes(ctx, db))
	t.Cleanup(func() {
		db.Drop(context.Background())
		client.Disconnect(context.Background())
	})
	return db
}

func TestCommitStore(t *testing.T) {
	ctx := context.Background()
	store := NewCommitStore(setupTestDB(t))

	a := &commit.Commit{File: "f1", Content: "A", CommittedBy: "u1"}
	b := &commit.Commit{File: "f1", Content: "B", CommittedBy: "u1"}
	require.NoError(t, store.Insert(ctx, a))
	require.NoError(t, store.Insert(ctx, b))
	assert.Error(t, store.Insert(ctx, &commit.Commit{File: "f1", CommittedBy: "u1"}))

	list, err := store.ListByFile(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)
	assert.Equal(t, a.ID, list[1].ID)

	head, err := store.Latest(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, b.ID, head.ID)

	_, err = store.ListByFile(ctx, "none")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.DeleteByID(ctx, b.ID))
	assert.ErrorIs(t, store.DeleteByID(ctx, b.ID), storage.ErrNotFound)

	n, err := store.DeleteByFile(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUserStore(t *testing.T) {
	ctx := context.Background()
	store := NewUserStore(setupTestDB(t))

	require.NoError(t, store.Create(ctx, &user.User{ID: "u1", Name: "Ann", Email: "Ann@Example.com", Password: "h"}))
	err := store.Create(ctx, &user.User{ID: "u2", Name: "Ann", Email: "ann@example.com", Password: "h"})
	assert.ErrorIs(t, err, storage.ErrConflict)

	u, err := store.GetByEmail(ctx, "ANN@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestProjectStoreTopLevel(t *testing.T) {
	ctx := context.Background()
	store := NewProjectStore(setupTestDB(t))
	now := time.Now().UTC()

	require.NoError(t, store.Create(ctx, &directory.Project{ID: "p1", Name: "demo", Owner: "u1", Root: "p1", CreatedAt: now}))
	require.NoError(t, store.Create(ctx, &directory.Project{ID: "d1", Name: "src", Owner: "u1", Root: "p1", ParentFolder: "p1", IsFolder: true, CreatedAt: now}))

	top, err := store.ListChildren(ctx, "")
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "p1", top[0].ID)

	children, err := store.ListChildren(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "d1", children[0].ID)
	require.NoError(t, store.LinkFile(ctx, "d1", "f1"))
	require.NoError(t, store.LinkFile(ctx, "d1", "f1"))
	require.NoError(t, store.LinkFile(ctx, "d1", "f2"))
	require.NoError(t, store.UnlinkFile(ctx, "d1", "f1"))
	stale := children[0]
	stale.Name = "source"
	require.NoError(t, store.Update(ctx, stale))

	got, err := store.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "source", got.Name)
	assert.Equal(t, []string{"f2"}, got.Files)
	assert.ErrorIs(t, store.LinkFile(ctx, "missing", "f1"), storage.ErrNotFound)
}
