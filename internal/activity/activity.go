// Package activity keeps an append-only audit trail of what users did to
// projects and files.
package activity

import (
	"context"
	"time"

	"coedit/internal/logging"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Action string

const (
	Created   Action = "created"
	Edited    Action = "edited"
	Deleted   Action = "deleted"
	Shared    Action = "shared"
	Committed Action = "committed"
	Executed  Action = "executed"
)

type Activity struct {
	ID        string    `json:"id" bson:"_id"`
	User      string    `json:"user" bson:"user"`
	Project   string    `json:"project,omitempty" bson:"project,omitempty"`
	File      string    `json:"file,omitempty" bson:"file,omitempty"`
	Action    Action    `json:"action" bson:"action"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Box stores activities. ListByProject returns newest first.
type Box interface {
	Append(ctx context.Context, a *Activity) error
	ListByProject(ctx context.Context, projectID string, limit int) ([]*Activity, error)
}

// Recorder writes activities on behalf of services. A failed write is logged
// and never fails the operation being audited.
type Recorder struct {
	box    Box
	logger *logging.Logger
}

func NewRecorder(box Box, logger *logging.Logger) *Recorder {
	return &Recorder{box: box, logger: logger}
}

func (r *Recorder) Record(ctx context.Context, userID, projectID, fileID string, action Action) {
	a := &Activity{
		ID:        uuid.New().String(),
		User:      userID,
		Project:   projectID,
		File:      fileID,
		Action:    action,
		Timestamp: time.Now().UTC(),
	}
	if err := r.box.Append(ctx, a); err != nil {
		r.logger.WithRequestID(ctx).Warn("recording activity",
			zap.String("action", string(action)),
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

func (r *Recorder) ListByProject(ctx context.Context, projectID string, limit int) ([]*Activity, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.box.ListByProject(ctx, projectID, limit)
}
