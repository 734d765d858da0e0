package mongo

import (
	"context"
	"fmt"
	"time"

	"coedit/internal/commit"
	"coedit/internal/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// commitDoc adds a nanosecond tiebreaker, since BSON dates stop at
// milliseconds.
type commitDoc struct {
	commit.Commit `bson:",inline"`
	Nanos         int64 `bson:"nanos"`
}

type CommitStore struct {
	coll *mongo.Collection
}

func NewCommitStore(db *mongo.Database) *CommitStore {
	return &CommitStore{coll: db.Collection(commitCollection)}
}

var newestFirst = bson.D{{Key: "timestamp", Value: -1}, {Key: "nanos", Value: -1}}

func (s *CommitStore) Insert(ctx context.Context, c *commit.Commit) error {
	if err := c.Validate(); err != nil {
		return err
	}
	commit.Prepare(c)

	doc := commitDoc{Commit: *c, Nanos: c.Timestamp.UnixNano()}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("inserting commit: %w", translate(err))
	}
	return nil
}

func (s *CommitStore) ListAll(ctx context.Context) ([]*commit.Commit, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "nanos", Value: 1}})
	docs, err := findAll[commitDoc](ctx, s.coll, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing commits: %w", err)
	}
	return unwrap(docs), nil
}

func (s *CommitStore) ListByFile(ctx context.Context, fileID string) ([]*commit.Commit, error) {
	docs, err := findAll[commitDoc](ctx, s.coll, bson.M{"file": fileID}, options.Find().SetSort(newestFirst))
	if err != nil {
		return nil, fmt.Errorf("listing commits: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("commits for %s: %w", fileID, storage.ErrNotFound)
	}
	return unwrap(docs), nil
}

func (s *CommitStore) Get(ctx context.Context, id string) (*commit.Commit, error) {
	var doc commitDoc
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, fmt.Errorf("getting commit %s: %w", id, translate(err))
	}
	return &doc.Commit, nil
}

func (s *CommitStore) Latest(ctx context.Context, fileID string) (*commit.Commit, error) {
	var doc commitDoc
	err := s.coll.FindOne(ctx, bson.M{"file": fileID}, options.FindOne().SetSort(newestFirst)).Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("latest commit for %s: %w", fileID, translate(err))
	}
	return &doc.Commit, nil
}

func (s *CommitStore) DeleteByID(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("deleting commit %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("commit %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *CommitStore) DeleteByFile(ctx context.Context, fileID string) (int, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{"file": fileID})
	if err != nil {
		return 0, fmt.Errorf("deleting commits of %s: %w", fileID, err)
	}
	return int(res.DeletedCount), nil
}

func unwrap(docs []*commitDoc) []*commit.Commit {
	out := make([]*commit.Commit, len(docs))
	for i, d := range docs {
		c := d.Commit
		c.Timestamp = time.Unix(0, d.Nanos).UTC()
		out[i] = &c
	}
	return out
}
