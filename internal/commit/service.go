package commit

import (
	"context"
	"errors"
	"sort"

	"coedit/internal/activity"
	"coedit/internal/auth"
	"coedit/internal/diff"
	apperrors "coedit/internal/errors"
	"coedit/internal/logging"
	"coedit/internal/storage"
	"coedit/internal/user"

	"go.uber.org/zap"
)

// FileAccess is the part of the directory the commit service depends on.
// AuthorizeFile returns the file's project id, or a typed NotFound/Forbidden
// error.
type FileAccess interface {
	AuthorizeFile(ctx context.Context, p auth.Principal, fileID string, edit bool) (string, error)
	SetLiveContent(ctx context.Context, fileID, content string) error
}

type SummaryResolver interface {
	Summaries(ctx context.Context, ids []string) (map[string]user.Summary, error)
}

type ActivityRecorder interface {
	Record(ctx context.Context, userID, projectID, fileID string, action activity.Action)
}

type Service struct {
	box      Box
	files    FileAccess
	users    SummaryResolver
	activity ActivityRecorder
	differ   *diff.Engine
	logger   *logging.Logger
}

func NewService(box Box, files FileAccess, users SummaryResolver, rec ActivityRecorder, logger *logging.Logger) *Service {
	return &Service{
		box:      box,
		files:    files,
		users:    users,
		activity: rec,
		differ:   diff.NewEngine(3),
		logger:   logger,
	}
}

// DiffView compares two commits of the same file.
type DiffView struct {
	File    string           `json:"file"`
	From    string           `json:"from"`
	To      string           `json:"to"`
	Diff    *diff.DiffResult `json:"diff"`
	Unified string           `json:"unified"`
}

// SaveCommit snapshots content as a new commit of the file and makes it the
// file's live content.
func (s *Service) SaveCommit(ctx context.Context, p auth.Principal, req SaveRequest) (*Commit, error) {
	if req.FileID == "" || req.Content == "" {
		return nil, apperrors.ValidationError("Content and fileId are required", nil)
	}
	if p.IsZero() {
		return nil, apperrors.ValidationError("An authenticated user is required to commit", nil)
	}

	projectID, err := s.files.AuthorizeFile(ctx, p, req.FileID, true)
	if err != nil {
		return nil, s.fail(ctx, "authorizing commit", err)
	}
	return s.commit(ctx, p, projectID, req.FileID, req.Content)
}

func (s *Service) commit(ctx context.Context, p auth.Principal, projectID, fileID, content string) (*Commit, error) {
	log := s.logger.WithRequestID(ctx)

	var prev string
	head, err := s.box.Latest(ctx, fileID)
	switch {
	case err == nil:
		prev = head.ID
	case !errors.Is(err, storage.ErrNotFound):
		return nil, s.fail(ctx, "reading head commit", err)
	}

	c := &Commit{
		File:            fileID,
		PreviousVersion: prev,
		Content:         content,
		CommittedBy:     p.ID,
	}
	if err := s.box.Insert(ctx, c); err != nil {
		return nil, s.fail(ctx, "inserting commit", err)
	}

	// The commit stays even when the live content cannot follow it.
	if err := s.files.SetLiveContent(ctx, fileID, content); err != nil {
		log.Error("updating live content after commit",
			zap.String("file_id", fileID),
			zap.String("commit_id", c.ID),
			zap.Error(err))
	}

	s.activity.Record(ctx, p.ID, projectID, fileID, activity.Committed)
	log.Info("commit saved",
		zap.String("file_id", fileID),
		zap.String("commit_id", c.ID),
		zap.String("user_id", p.ID))
	return c, nil
}

// GetCommitHistory lists commits of every file p can read, newest first.
// A non-empty fileID narrows the listing to that file.
func (s *Service) GetCommitHistory(ctx context.Context, p auth.Principal, fileID string) ([]HistoryView, error) {
	if p.IsZero() {
		return nil, apperrors.Unauthorized("Authentication required")
	}

	var commits []*Commit
	if fileID != "" {
		if _, err := s.files.AuthorizeFile(ctx, p, fileID, false); err != nil {
			return nil, s.fail(ctx, "authorizing history", err)
		}
		list, err := s.box.ListByFile(ctx, fileID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, s.fail(ctx, "listing commits", err)
		}
		commits = list
	} else {
		all, err := s.box.ListAll(ctx)
		if err != nil {
			return nil, s.fail(ctx, "listing commits", err)
		}
		commits, err = s.readable(ctx, p, all)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(commits, func(i, j int) bool {
			return commits[i].Timestamp.After(commits[j].Timestamp)
		})
	}

	authors, err := s.authors(ctx, commits)
	if err != nil {
		return nil, err
	}

	views := make([]HistoryView, 0, len(commits))
	for _, c := range commits {
		views = append(views, HistoryView{
			ID:              c.ID,
			File:            c.File,
			PreviousVersion: c.PreviousVersion,
			Content:         c.Content,
			Date:            c.Timestamp,
			CommittedBy:     authors[c.CommittedBy],
		})
	}
	return views, nil
}

func (s *Service) readable(ctx context.Context, p auth.Principal, commits []*Commit) ([]*Commit, error) {
	allowed := map[string]bool{}
	out := commits[:0:0]
	for _, c := range commits {
		ok, seen := allowed[c.File]
		if !seen {
			_, err := s.files.AuthorizeFile(ctx, p, c.File, false)
			switch {
			case err == nil:
				ok = true
			case apperrors.Is(err, apperrors.ErrorTypeForbidden), apperrors.Is(err, apperrors.ErrorTypeNotFound):
				ok = false
			default:
				return nil, s.fail(ctx, "authorizing history", err)
			}
			allowed[c.File] = ok
		}
		if ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// RevertCommit deletes a single history entry. The file's live content is
// left alone; RestoreCommit is the operation that rolls content back.
func (s *Service) RevertCommit(ctx context.Context, p auth.Principal, commitID string) error {
	if commitID == "" {
		return apperrors.ValidationError("commitId is required", nil)
	}
	if p.IsZero() {
		return apperrors.ValidationError("An authenticated user is required to revert", nil)
	}

	c, err := s.box.Get(ctx, commitID)
	if err != nil {
		return s.fail(ctx, "loading commit", err)
	}
	projectID, err := s.files.AuthorizeFile(ctx, p, c.File, true)
	if err != nil {
		return s.fail(ctx, "authorizing revert", err)
	}

	if err := s.box.DeleteByID(ctx, commitID); err != nil {
		return s.fail(ctx, "deleting commit", err)
	}

	s.activity.Record(ctx, p.ID, projectID, c.File, activity.Deleted)
	s.logger.WithRequestID(ctx).Info("commit deleted",
		zap.String("commit_id", commitID),
		zap.String("user_id", p.ID))
	return nil
}

// GetCommitsForFile returns the file's history newest first. A file without
// commits is reported as NotFound.
func (s *Service) GetCommitsForFile(ctx context.Context, p auth.Principal, fileID string) ([]FileView, error) {
	if fileID == "" {
		return nil, apperrors.ValidationError("fileId is required", nil)
	}
	if _, err := s.files.AuthorizeFile(ctx, p, fileID, false); err != nil {
		return nil, s.fail(ctx, "authorizing history", err)
	}

	commits, err := s.box.ListByFile(ctx, fileID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.NotFound("No commits found for this file")
	}
	if err != nil {
		return nil, s.fail(ctx, "listing commits", err)
	}

	authors, err := s.authors(ctx, commits)
	if err != nil {
		return nil, err
	}

	views := make([]FileView, 0, len(commits))
	for _, c := range commits {
		views = append(views, FileView{
			ID:              c.ID,
			PreviousVersion: c.PreviousVersion,
			Content:         c.Content,
			CreatedAt:       c.Timestamp,
			CommittedBy:     authors[c.CommittedBy],
		})
	}
	return views, nil
}

// RestoreCommit brings back the content of an earlier commit as a new commit
// on top of the file's history. Nothing is deleted.
func (s *Service) RestoreCommit(ctx context.Context, p auth.Principal, fileID, commitID string) (*Commit, error) {
	if fileID == "" || commitID == "" {
		return nil, apperrors.ValidationError("fileId and commitId are required", nil)
	}
	if p.IsZero() {
		return nil, apperrors.ValidationError("An authenticated user is required to restore", nil)
	}

	target, err := s.box.Get(ctx, commitID)
	if err != nil {
		return nil, s.fail(ctx, "loading commit", err)
	}
	if target.File != fileID {
		return nil, apperrors.ValidationError("Commit does not belong to this file", nil)
	}

	projectID, err := s.files.AuthorizeFile(ctx, p, fileID, true)
	if err != nil {
		return nil, s.fail(ctx, "authorizing restore", err)
	}
	return s.commit(ctx, p, projectID, fileID, target.Content)
}

// DiffCommits compares two commits of the same file line by line.
func (s *Service) DiffCommits(ctx context.Context, p auth.Principal, fromID, toID string) (*DiffView, error) {
	if fromID == "" || toID == "" {
		return nil, apperrors.ValidationError("from and to are required", nil)
	}

	from, err := s.box.Get(ctx, fromID)
	if err != nil {
		return nil, s.fail(ctx, "loading commit", err)
	}
	to, err := s.box.Get(ctx, toID)
	if err != nil {
		return nil, s.fail(ctx, "loading commit", err)
	}
	if from.File != to.File {
		return nil, apperrors.ValidationError("Commits belong to different files", nil)
	}
	if _, err := s.files.AuthorizeFile(ctx, p, from.File, false); err != nil {
		return nil, s.fail(ctx, "authorizing diff", err)
	}

	res, err := s.differ.Diff([]byte(from.Content), []byte(to.Content))
	if errors.Is(err, diff.ErrTooLarge) {
		return nil, apperrors.ValidationError("Commits are too large to compare", nil)
	}
	if err != nil {
		return nil, s.fail(ctx, "diffing commits", err)
	}

	return &DiffView{
		File:    from.File,
		From:    from.ID,
		To:      to.ID,
		Diff:    res,
		Unified: res.Format(),
	}, nil
}

func (s *Service) authors(ctx context.Context, commits []*Commit) (map[string]user.Summary, error) {
	ids := make([]string, 0, len(commits))
	for _, c := range commits {
		ids = append(ids, c.CommittedBy)
	}
	authors, err := s.users.Summaries(ctx, ids)
	if err != nil {
		return nil, s.fail(ctx, "resolving committers", err)
	}
	return authors, nil
}

// fail passes typed errors through, maps a missing commit to NotFound and
// hides everything else behind a generic internal error.
func (s *Service) fail(ctx context.Context, op string, err error) error {
	if _, ok := apperrors.From(err); ok {
		return err
	}
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.NotFound("Commit not found")
	}
	s.logger.WithRequestID(ctx).Error(op, zap.Error(err))
	return apperrors.Internal()
}
