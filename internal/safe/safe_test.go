package safe

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
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

func newTestSafe(t *testing.T) *Safe {
	s, err := New(setupTestDB(t), DefaultOptions())
	require.NoError(t, err)
	return s
}

func TestSafe(t *testing.T) {
	t.Run("StoreAndGet", func(t *testing.T) {
		s := newTestSafe(t)

		hash, err := s.Store([]byte("package main"))
		require.NoError(t, err)
		assert.Len(t, hash, 64)

		s.cache.Purge()
		content, err := s.Get(hash)
		require.NoError(t, err)
		assert.Equal(t, "package main", string(content))
	})

	t.Run("Deduplicates", func(t *testing.T) {
		s := newTestSafe(t)

		h1, err := s.Store([]byte("same"))
		require.NoError(t, err)
		h2, err := s.Store([]byte("same"))
		require.NoError(t, err)
		assert.Equal(t, h1, h2)

		meta, err := s.Meta(h1)
		require.NoError(t, err)
		assert.Equal(t, uint32(2), meta.RefCount)
	})

	t.Run("ReleaseKeepsSharedContent", func(t *testing.T) {
		s := newTestSafe(t)

		hash, _ := s.Store([]byte("shared"))
		_, _ = s.Store([]byte("shared"))

		require.NoError(t, s.Release(hash))
		exists, err := s.Exists(hash)
		require.NoError(t, err)
		assert.True(t, exists)

		require.NoError(t, s.Release(hash))
		exists, err = s.Exists(hash)
		require.NoError(t, err)
		assert.False(t, exists)

		_, err = s.Get(hash)
		assert.ErrorIs(t, err, ErrContentNotFound)
	})

	t.Run("CompressesLargeContent", func(t *testing.T) {
		s := newTestSafe(t)
		content := []byte(strings.Repeat("fmt.Println(\"hello\")\n", 500))

		hash, err := s.Store(content)
		require.NoError(t, err)

		meta, err := s.Meta(hash)
		require.NoError(t, err)
		assert.True(t, meta.Compressed)
		assert.Equal(t, int64(len(content)), meta.Size)

		s.cache.Purge()
		got, err := s.Get(hash)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(content, got))
	})

	t.Run("SmallContentStaysRaw", func(t *testing.T) {
		s := newTestSafe(t)

		hash, err := s.Store([]byte("x"))
		require.NoError(t, err)
		meta, err := s.Meta(hash)
		require.NoError(t, err)
		assert.False(t, meta.Compressed)
	})

	t.Run("InvalidHash", func(t *testing.T) {
		s := newTestSafe(t)

		_, err := s.Get("not-a-hash")
		assert.ErrorIs(t, err, ErrInvalidHash)
		assert.ErrorIs(t, s.Release("zz"), ErrInvalidHash)
	})
}

func TestSafeConcurrentStoreAndRelease(t *testing.T) {
	s := newTestSafe(t)
	const writers = 24
	content := []byte("same bytes from every writer")

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Store(content)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	hash := HashContent(content)
	meta, err := s.Meta(hash)
	require.NoError(t, err)
	assert.Equal(t, uint32(writers), meta.RefCount)

	errs = make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Release(hash)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	exists, err := s.Exists(hash)
	require.NoError(t, err)
	assert.False(t, exists)
}
