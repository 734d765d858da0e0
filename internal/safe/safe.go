// internal/safe/safe.go
package safe

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"coedit/internal/storage"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	ErrContentNotFound = errors.New("content not found")
	ErrInvalidHash     = errors.New("invalid content hash")
)

// ContentMeta stores metadata about stored content
type ContentMeta struct {
	Hash       string    `json:"hash"`
	Size       int64     `json:"size"`
	RefCount   uint32    `json:"ref_count"`
	Compressed bool      `json:"compressed"`
	CreatedAt  time.Time `json:"created_at"`
}

// Safe is a content-addressed blob store kept in the same badger database as
// the records referencing it. Identical content is stored once and reference
// counted.
type Safe struct {
	db    *badger.DB
	cache *lru.Cache[string, []byte]
	comp  *compressor
}

// Options configures Safe behavior
type Options struct {
	CacheSize   int
	Compression CompressionOptions
}

func DefaultOptions() Options {
	return Options{
		CacheSize:   512,
		Compression: DefaultCompressionOptions(),
	}
}

func New(db *badger.DB, opts Options) (*Safe, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultOptions().CacheSize
	}

	cache, err := lru.New[string, []byte](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	comp, err := newCompressor(opts.Compression)
	if err != nil {
		return nil, err
	}

	return &Safe{
		db:    db,
		cache: cache,
		comp:  comp,
	}, nil
}

// Store saves content and returns its hash. Storing content that is already
// present only bumps its reference count.
func (s *Safe) Store(content []byte) (string, error) {
	var hash string
	err := storage.RetryUpdate(s.db, func(txn *badger.Txn) error {
		var err error
		hash, err = s.StoreTxn(txn, content)
		return err
	})
	if err != nil {
		return "", err
	}

	s.Remember(hash, content)
	return hash, nil
}

// StoreTxn is Store inside a caller's transaction, so the reference can be
// committed together with the record that holds it. The caller should
// Remember the content once txn commits.
func (s *Safe) StoreTxn(txn *badger.Txn, content []byte) (string, error) {
	if content == nil {
		content = []byte{}
	}
	hash := HashContent(content)

	meta, err := getMeta(txn, hash)
	if err == nil {
		meta.RefCount++
		if err := putMeta(txn, meta); err != nil {
			return "", fmt.Errorf("storing content: %w", err)
		}
		return hash, nil
	}
	if !errors.Is(err, ErrContentNotFound) {
		return "", fmt.Errorf("storing content: %w", err)
	}

	data, compressed := s.comp.compress(content)
	if err := txn.Set(dataKey(hash), data); err != nil {
		return "", fmt.Errorf("storing content: %w", err)
	}
	err = putMeta(txn, ContentMeta{
		Hash:       hash,
		Size:       int64(len(content)),
		RefCount:   1,
		Compressed: compressed,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("storing content: %w", err)
	}
	return hash, nil
}

// Remember puts committed content into the read cache.
func (s *Safe) Remember(hash string, content []byte) {
	s.cache.Add(hash, content)
}

// Forget drops hash from the read cache after its blob was removed.
func (s *Safe) Forget(hash string) {
	s.cache.Remove(hash)
}

// Get retrieves content by hash
func (s *Safe) Get(hash string) ([]byte, error) {
	if !isValidHash(hash) {
		return nil, ErrInvalidHash
	}
	if content, ok := s.cache.Get(hash); ok {
		return content, nil
	}

	var content []byte
	err := s.db.View(func(txn *badger.Txn) error {
		meta, err := getMeta(txn, hash)
		if err != nil {
			return err
		}

		item, err := txn.Get(dataKey(hash))
		if err == badger.ErrKeyNotFound {
			return ErrContentNotFound
		}
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		if meta.Compressed {
			raw, err = s.comp.decompress(raw)
			if err != nil {
				return err
			}
		}
		content = raw
		return nil
	})
	if err != nil {
		return nil, err
	}

	if HashContent(content) != hash {
		return nil, fmt.Errorf("content hash mismatch for %s", hash)
	}

	s.cache.Add(hash, content)
	return content, nil
}

// Release drops one reference to hash and removes the blob once nothing
// references it.
func (s *Safe) Release(hash string) error {
	var removed bool
	err := storage.RetryUpdate(s.db, func(txn *badger.Txn) error {
		var err error
		removed, err = s.ReleaseTxn(txn, hash)
		return err
	})
	if err != nil {
		return err
	}

	if removed {
		s.Forget(hash)
	}
	return nil
}

// ReleaseTxn is Release inside a caller's transaction. It reports whether the
// blob was removed so the caller can Forget it after txn commits.
func (s *Safe) ReleaseTxn(txn *badger.Txn, hash string) (bool, error) {
	if !isValidHash(hash) {
		return false, ErrInvalidHash
	}

	meta, err := getMeta(txn, hash)
	if err != nil {
		return false, fmt.Errorf("releasing content: %w", err)
	}

	if meta.RefCount > 1 {
		meta.RefCount--
		if err := putMeta(txn, meta); err != nil {
			return false, fmt.Errorf("releasing content: %w", err)
		}
		return false, nil
	}

	if err := txn.Delete(dataKey(hash)); err != nil {
		return false, fmt.Errorf("releasing content: %w", err)
	}
	if err := txn.Delete(metaKey(hash)); err != nil {
		return false, fmt.Errorf("releasing content: %w", err)
	}
	return true, nil
}

// Exists checks if content exists
func (s *Safe) Exists(hash string) (bool, error) {
	if !isValidHash(hash) {
		return false, ErrInvalidHash
	}
	if s.cache.Contains(hash) {
		return true, nil
	}

	err := s.db.View(func(txn *badger.Txn) error {
		_, err := getMeta(txn, hash)
		return err
	})
	if errors.Is(err, ErrContentNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Meta returns the stored metadata for hash.
func (s *Safe) Meta(hash string) (ContentMeta, error) {
	if !isValidHash(hash) {
		return ContentMeta{}, ErrInvalidHash
	}

	var meta ContentMeta
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		meta, err = getMeta(txn, hash)
		return err
	})
	return meta, err
}

func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func isValidHash(hash string) bool {
	if len(hash) != 64 {
		return false
	}
	_, err := hex.DecodeString(hash)
	return err == nil
}

func metaKey(hash string) []byte {
	return []byte("blob:meta:" + hash)
}

func dataKey(hash string) []byte {
	return []byte("blob:data:" + hash)
}

func getMeta(txn *badger.Txn, hash string) (ContentMeta, error) {
	var meta ContentMeta

	item, err := txn.Get(metaKey(hash))
	if err == badger.ErrKeyNotFound {
		return meta, ErrContentNotFound
	}
	if err != nil {
		return meta, err
	}

	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &meta)
	})
	return meta, err
}

func putMeta(txn *badger.Txn, meta ContentMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return txn.Set(metaKey(meta.Hash), data)
}
