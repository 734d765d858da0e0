package mongo

import (
	"context"
	"fmt"

	"coedit/internal/activity"
	"coedit/internal/execution"
	"coedit/internal/user"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// UserStore relies on the unique email index from EnsureIndexes.
type UserStore struct {
	coll *mongo.Collection
}

func NewUserStore(db *mongo.Database) *UserStore {
	return &UserStore{coll: db.Collection(userCollection)}
}

func (s *UserStore) Create(ctx context.Context, u *user.User) error {
	u.Email = user.NormalizeEmail(u.Email)
	if u.Email == "" || u.Password == "" {
		return fmt.Errorf("user needs an email and a password")
	}
	if _, err := s.coll.InsertOne(ctx, u); err != nil {
		return fmt.Errorf("inserting user: %w", translate(err))
	}
	return nil
}

func (s *UserStore) Get(ctx context.Context, id string) (*user.User, error) {
	var u user.User
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, fmt.Errorf("getting user %s: %w", id, translate(err))
	}
	return &u, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	var u user.User
	err := s.coll.FindOne(ctx, bson.M{"email": user.NormalizeEmail(email)}).Decode(&u)
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", translate(err))
	}
	return &u, nil
}

type ActivityStore struct {
	coll *mongo.Collection
}

func NewActivityStore(db *mongo.Database) *ActivityStore {
	return &ActivityStore{coll: db.Collection(activityCollection)}
}

func (s *ActivityStore) Append(ctx context.Context, a *activity.Activity) error {
	if a.User == "" || a.Action == "" {
		return fmt.Errorf("activity needs a user and an action")
	}
	if _, err := s.coll.InsertOne(ctx, a); err != nil {
		return fmt.Errorf("inserting activity: %w", translate(err))
	}
	return nil
}

func (s *ActivityStore) ListByProject(ctx context.Context, projectID string, limit int) ([]*activity.Activity, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	list, err := findAll[activity.Activity](ctx, s.coll, bson.M{"project": projectID}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing activity: %w", err)
	}
	return list, nil
}

type ExecutionStore struct {
	coll *mongo.Collection
}

func NewExecutionStore(db *mongo.Database) *ExecutionStore {
	return &ExecutionStore{coll: db.Collection(executionCollection)}
}

func (s *ExecutionStore) Append(ctx context.Context, e *execution.Execution) error {
	if e.User == "" || e.Language == "" {
		return fmt.Errorf("execution needs a user and a language")
	}
	if _, err := s.coll.InsertOne(ctx, e); err != nil {
		return fmt.Errorf("inserting execution: %w", translate(err))
	}
	return nil
}

func (s *ExecutionStore) ListByUser(ctx context.Context, userID string, limit int) ([]*execution.Execution, error) {
	opts := options.Find().SetSort(bson.D{{Key: "executedAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	list, err := findAll[execution.Execution](ctx, s.coll, bson.M{"user": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing executions: %w", err)
	}
	return list, nil
}
