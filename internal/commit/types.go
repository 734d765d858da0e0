package commit

import (
	"context"
	"time"

	apperrors "coedit/internal/errors"
	"coedit/internal/user"

	"github.com/google/uuid"
)

// Commit is an immutable snapshot of a file's content. Commits are created
// and deleted, never updated.
type Commit struct {
	ID              string    `json:"id" bson:"_id"`
	File            string    `json:"file" bson:"file"`
	PreviousVersion string    `json:"previousVersion,omitempty" bson:"previousVersion,omitempty"`
	Content         string    `json:"content" bson:"content"`
	CommittedBy     string    `json:"committedBy" bson:"committedBy"`
	Timestamp       time.Time `json:"timestamp" bson:"timestamp"`
}

func (c *Commit) Validate() error {
	details := map[string]string{}
	if c.File == "" {
		details["file"] = "required"
	}
	if c.Content == "" {
		details["content"] = "required"
	}
	if c.CommittedBy == "" {
		details["committedBy"] = "required"
	}
	if len(details) > 0 {
		return apperrors.ValidationError("Commit is missing required fields", details)
	}
	return nil
}

// Prepare assigns the identity and timestamp a Box sets on insert.
func Prepare(c *Commit) {
	c.ID = uuid.New().String()
	c.Timestamp = time.Now().UTC()
}

// Box stores commits. Lookups of absent commits return storage.ErrNotFound,
// and so does ListByFile for a file without history. ListByFile and Latest
// order by creation time, newest first.
type Box interface {
	Insert(ctx context.Context, c *Commit) error
	ListAll(ctx context.Context) ([]*Commit, error)
	ListByFile(ctx context.Context, fileID string) ([]*Commit, error)
	Get(ctx context.Context, id string) (*Commit, error)
	Latest(ctx context.Context, fileID string) (*Commit, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteByFile(ctx context.Context, fileID string) (int, error)
}

// HistoryView is an entry of the commit history listing.
type HistoryView struct {
	ID              string       `json:"id"`
	File            string       `json:"file"`
	PreviousVersion string       `json:"previousVersion,omitempty"`
	Content         string       `json:"content"`
	Date            time.Time    `json:"date"`
	CommittedBy     user.Summary `json:"committedBy"`
}

// FileView is an entry of a single file's history.
type FileView struct {
	ID              string       `json:"id"`
	PreviousVersion string       `json:"previousVersion,omitempty"`
	Content         string       `json:"content"`
	CreatedAt       time.Time    `json:"createdAt"`
	CommittedBy     user.Summary `json:"committedBy"`
}

type SaveRequest struct {
	FileID  string `json:"fileId"`
	Content string `json:"content"`
}
