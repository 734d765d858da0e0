// Package execution proxies code runs to a Judge0 service and keeps a record
// of each finished run.
package execution

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"coedit/internal/activity"
	"coedit/internal/auth"
	apperrors "coedit/internal/errors"
	"coedit/internal/logging"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var forbiddenPatterns = []string{"os.", "subprocess.", "sys.", "eval(", "exec("}

// Execution is the stored record of a finished run.
type Execution struct {
	ID         string    `json:"id" bson:"_id"`
	User       string    `json:"user" bson:"user"`
	File       string    `json:"file,omitempty" bson:"file,omitempty"`
	Language   string    `json:"language" bson:"language"`
	Input      string    `json:"input" bson:"input"`
	Output     string    `json:"output,omitempty" bson:"output,omitempty"`
	Error      string    `json:"error,omitempty" bson:"error,omitempty"`
	Status     string    `json:"status" bson:"status"`
	ExecutedAt time.Time `json:"executedAt" bson:"executedAt"`
}

// Box stores executions. ListByUser returns newest first.
type Box interface {
	Append(ctx context.Context, e *Execution) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*Execution, error)
}

type Runner interface {
	Run(ctx context.Context, s Submission) (*Outcome, error)
}

type FileAccess interface {
	AuthorizeFile(ctx context.Context, p auth.Principal, fileID string, edit bool) (string, error)
}

type ActivityRecorder interface {
	Record(ctx context.Context, userID, projectID, fileID string, action activity.Action)
}

type Request struct {
	Code       string `json:"code"`
	LanguageID int    `json:"language_id"`
	Stdin      string `json:"stdin"`
	FileID     string `json:"fileId,omitempty"`
}

// Result renders as {stdout} for an accepted run and {error, status}
// otherwise.
type Result struct {
	Accepted bool
	Stdout   string
	Error    string
	Status   string
}

func (r Result) MarshalJSON() ([]byte, error) {
	if r.Accepted {
		return json.Marshal(struct {
			Stdout string `json:"stdout"`
		}{r.Stdout})
	}
	return json.Marshal(struct {
		Error  string `json:"error"`
		Status string `json:"status"`
	}{r.Error, r.Status})
}

type Service struct {
	runner   Runner
	box      Box
	files    FileAccess
	activity ActivityRecorder
	logger   *logging.Logger
}

func NewService(runner Runner, box Box, files FileAccess, rec ActivityRecorder, logger *logging.Logger) *Service {
	return &Service{runner: runner, box: box, files: files, activity: rec, logger: logger}
}

func (r Request) validate() error {
	if strings.TrimSpace(r.Code) == "" {
		return apperrors.ValidationError("Invalid code provided", nil)
	}
	if r.LanguageID <= 0 {
		return apperrors.ValidationError("Language ID is required", nil)
	}
	for _, pattern := range forbiddenPatterns {
		if strings.Contains(r.Code, pattern) {
			return apperrors.ValidationError("Security Violation: Unsafe code detected!",
				map[string]string{"pattern": pattern})
		}
	}
	return nil
}

// Run validates and executes req. A run that finishes with any status is a
// successful call; only transport problems and timeouts are errors.
func (s *Service) Run(ctx context.Context, p auth.Principal, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if p.IsZero() {
		return nil, apperrors.Unauthorized("Authentication required")
	}

	var projectID string
	if req.FileID != "" {
		id, err := s.files.AuthorizeFile(ctx, p, req.FileID, false)
		if err != nil {
			return nil, err
		}
		projectID = id
	}

	log := s.logger.WithRequestID(ctx)
	out, err := s.runner.Run(ctx, Submission{Code: req.Code, LanguageID: req.LanguageID, Stdin: req.Stdin})
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		log.Debug("execution abandoned by client", zap.Int("language_id", req.LanguageID))
		return nil, apperrors.Canceled()
	case errors.Is(err, ErrPending), errors.Is(err, context.DeadlineExceeded):
		log.Warn("execution timed out", zap.Int("language_id", req.LanguageID), zap.Error(err))
		return nil, apperrors.UpstreamTimeout("Execution did not finish in time")
	default:
		log.Error("execution failed", zap.Int("language_id", req.LanguageID), zap.Error(err))
		return nil, apperrors.Upstream("Error compiling code")
	}

	res := &Result{Accepted: out.Accepted(), Stdout: out.Stdout, Status: out.StatusDescription}
	if !res.Accepted {
		res.Error = firstNonEmpty(out.Stderr, out.CompileOutput, out.Message)
	}

	rec := &Execution{
		ID:         uuid.New().String(),
		User:       p.ID,
		File:       req.FileID,
		Language:   LanguageName(req.LanguageID),
		Input:      req.Stdin,
		Output:     out.Stdout,
		Error:      res.Error,
		Status:     out.StatusDescription,
		ExecutedAt: time.Now().UTC(),
	}
	if err := s.box.Append(ctx, rec); err != nil {
		log.Warn("recording execution", zap.String("execution_id", rec.ID), zap.Error(err))
	}
	s.activity.Record(ctx, p.ID, projectID, req.FileID, activity.Executed)

	log.Info("execution finished",
		zap.String("token", out.Token),
		zap.Int("status_id", out.StatusID),
		zap.String("user_id", p.ID))
	return res, nil
}

// History lists the principal's recent runs.
func (s *Service) History(ctx context.Context, p auth.Principal, limit int) ([]*Execution, error) {
	if p.IsZero() {
		return nil, apperrors.Unauthorized("Authentication required")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	list, err := s.box.ListByUser(ctx, p.ID, limit)
	if err != nil {
		s.logger.WithRequestID(ctx).Error("listing executions", zap.Error(err))
		return nil, apperrors.Internal()
	}
	return list, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var languages = map[int]string{
	50: "c",
	54: "cpp",
	60: "go",
	62: "java",
	63: "javascript",
	71: "python",
	73: "rust",
	74: "typescript",
}

// LanguageName maps common Judge0 language ids to a short name.
func LanguageName(id int) string {
	if name, ok := languages[id]; ok {
		return name
	}
	return strconv.Itoa(id)
}
