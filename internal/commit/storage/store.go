package storage

import (
	"context"
	"fmt"
	"time"

	"coedit/internal/commit"
	"coedit/internal/safe"
	"coedit/internal/storage"

	"github.com/dgraph-io/badger/v4"
)

// Store keeps commit records in badger and their content in the safe, so
// identical snapshots share one blob.
type Store struct {
	store *storage.BadgerStore
	safe  *safe.Safe
	seq   *badger.Sequence
}

func NewStore(db *badger.DB, sf *safe.Safe) (*Store, error) {
	store := storage.NewBadgerStore(db, "commit")
	seq, err := store.Sequence(100)
	if err != nil {
		return nil, fmt.Errorf("opening commit sequence: %w", err)
	}
	return &Store{store: store, safe: sf, seq: seq}, nil
}

// Close returns unused sequence numbers to the database.
func (s *Store) Close() error {
	return s.seq.Release()
}

// record is the stored form of a commit. Content lives in the safe.
type record struct {
	ID              string    `json:"id"`
	File            string    `json:"file"`
	PreviousVersion string    `json:"previousVersion,omitempty"`
	ContentHash     string    `json:"contentHash"`
	CommittedBy     string    `json:"committedBy"`
	Timestamp       time.Time `json:"timestamp"`
	Seq             uint64    `json:"seq"`
}

func (r *record) GetID() string {
	return r.ID
}

// fileIndex orders a file's commits by time, then by insertion.
func fileIndex(r *record) storage.Index {
	return storage.Index{
		Name:  "file",
		Value: r.File,
		Sort:  fmt.Sprintf("%020d-%020d", r.Timestamp.UnixNano(), r.Seq),
	}
}

func (s *Store) Insert(ctx context.Context, c *commit.Commit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}

	seq, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("next commit sequence: %w", err)
	}

	content := []byte(c.Content)
	commit.Prepare(c)
	r := &record{
		ID:              c.ID,
		File:            c.File,
		PreviousVersion: c.PreviousVersion,
		ContentHash:     safe.HashContent(content),
		CommittedBy:     c.CommittedBy,
		Timestamp:       c.Timestamp,
		Seq:             seq,
	}

	// The record and its content reference commit together or not at all.
	err = storage.RetryUpdate(s.store.DB(), func(txn *badger.Txn) error {
		if _, err := s.safe.StoreTxn(txn, content); err != nil {
			return err
		}
		return s.store.CreateTxn(txn, r, fileIndex(r))
	})
	if err != nil {
		return fmt.Errorf("inserting commit: %w", err)
	}
	s.safe.Remember(r.ContentHash, content)
	return nil
}

func (s *Store) hydrate(r *record) (*commit.Commit, error) {
	content, err := s.safe.Get(r.ContentHash)
	if err != nil {
		return nil, fmt.Errorf("loading content of commit %s: %w", r.ID, err)
	}
	return &commit.Commit{
		ID:              r.ID,
		File:            r.File,
		PreviousVersion: r.PreviousVersion,
		Content:         string(content),
		CommittedBy:     r.CommittedBy,
		Timestamp:       r.Timestamp,
	}, nil
}

func (s *Store) hydrateAll(records []*record) ([]*commit.Commit, error) {
	out := make([]*commit.Commit, 0, len(records))
	for _, r := range records {
		c, err := s.hydrate(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) getRecord(id string) (*record, error) {
	var r record
	if err := s.store.Get(id, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) ListAll(ctx context.Context) ([]*commit.Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []*record
	if err := s.store.List(&records); err != nil {
		return nil, fmt.Errorf("listing commits: %w", err)
	}
	return s.hydrateAll(records)
}

func (s *Store) ListByFile(ctx context.Context, fileID string) ([]*commit.Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids, err := s.store.Lookup("file", fileID, true)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("commits for file %s: %w", fileID, storage.ErrNotFound)
	}

	records, err := storage.GetMany[record](s.store, ids)
	if err != nil {
		return nil, err
	}
	return s.hydrateAll(records)
}

func (s *Store) Get(ctx context.Context, id string) (*commit.Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r, err := s.getRecord(id)
	if err != nil {
		return nil, fmt.Errorf("getting commit: %w", err)
	}
	return s.hydrate(r)
}

func (s *Store) Latest(ctx context.Context, fileID string) (*commit.Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids, err := s.store.Lookup("file", fileID, true)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("commits for file %s: %w", fileID, storage.ErrNotFound)
	}
	return s.Get(ctx, ids[0])
}

func (s *Store) DeleteByID(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var (
		hash    string
		removed bool
	)
	err := storage.RetryUpdate(s.store.DB(), func(txn *badger.Txn) error {
		var r record
		if err := s.store.GetTxn(txn, id, &r); err != nil {
			return err
		}
		if err := s.store.DeleteTxn(txn, id, fileIndex(&r)); err != nil {
			return err
		}
		hash = r.ContentHash
		var err error
		removed, err = s.safe.ReleaseTxn(txn, r.ContentHash)
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting commit: %w", err)
	}
	if removed {
		s.safe.Forget(hash)
	}
	return nil
}

func (s *Store) DeleteByFile(ctx context.Context, fileID string) (int, error) {
	ids, err := s.store.Lookup("file", fileID, false)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, id := range ids {
		if err := s.DeleteByID(ctx, id); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
