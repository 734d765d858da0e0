// Package mongo implements every store on MongoDB, for deployments that run
// with the mongo database driver instead of the embedded badger files.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"coedit/internal/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const (
	commitCollection    = "commits"
	projectCollection   = "projects"
	fileCollection      = "files"
	userCollection      = "users"
	activityCollection  = "activitylogs"
	executionCollection = "executions"
)

// NewClient connects to uri and pings the primary before returning.
func NewClient(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the indexes the stores rely on. It is idempotent.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		commitCollection: {
			{Keys: bson.D{{Key: "file", Value: 1}, {Key: "timestamp", Value: -1}, {Key: "nanos", Value: -1}}},
		},
		projectCollection: {
			{Keys: bson.D{{Key: "parentFolder", Value: 1}, {Key: "createdAt", Value: 1}}},
		},
		fileCollection: {
			{Keys: bson.D{{Key: "folder", Value: 1}, {Key: "createdAt", Value: 1}}},
		},
		userCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		activityCollection: {
			{Keys: bson.D{{Key: "project", Value: 1}, {Key: "timestamp", Value: -1}}},
		},
		executionCollection: {
			{Keys: bson.D{{Key: "user", Value: 1}, {Key: "executedAt", Value: -1}}},
		},
	}

	for name, models := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("creating indexes on %s: %w", name, err)
		}
	}
	return nil
}

// translate maps driver errors onto the storage sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return storage.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return storage.ErrConflict
	}
	return err
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter any, opts ...options.Lister[options.FindOptions]) ([]*T, error) {
	cursor, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := []*T{}
	for cursor.Next(ctx) {
		var v T
		if err := cursor.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, cursor.Err()
}
