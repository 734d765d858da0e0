package directory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"coedit/internal/activity"
	"coedit/internal/auth"
	apperrors "coedit/internal/errors"
	"coedit/internal/logging"
	"coedit/internal/mail"
	"coedit/internal/storage"
	"coedit/internal/user"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// MaxDepth bounds every walk up the folder tree.
	MaxDepth   = 256
	maxNameLen = 256
)

// CommitPurger removes a file's history when the file is deleted.
type CommitPurger interface {
	DeleteByFile(ctx context.Context, fileID string) (int, error)
}

type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (*user.User, error)
}

type ActivityLog interface {
	Record(ctx context.Context, userID, projectID, fileID string, action activity.Action)
	ListByProject(ctx context.Context, projectID string, limit int) ([]*activity.Activity, error)
}

type TargetKind string

const (
	TargetFile    TargetKind = "file"
	TargetProject TargetKind = "project"
)

// Target names the file or project a collaborator is added to.
type Target struct {
	Kind TargetKind
	ID   string
}

type Service struct {
	projects    ProjectBox
	files       FileBox
	commits     CommitPurger
	users       UserLookup
	mailer      mail.Mailer
	activity    ActivityLog
	frontendURL string
	logger      *logging.Logger
}

type Deps struct {
	Projects    ProjectBox
	Files       FileBox
	Commits     CommitPurger
	Users       UserLookup
	Mailer      mail.Mailer
	Activity    ActivityLog
	FrontendURL string
	Logger      *logging.Logger
}

func NewService(d Deps) *Service {
	return &Service{
		projects:    d.Projects,
		files:       d.Files,
		commits:     d.Commits,
		users:       d.Users,
		mailer:      d.Mailer,
		activity:    d.Activity,
		frontendURL: strings.TrimRight(d.FrontendURL, "/"),
		logger:      d.Logger,
	}
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperrors.ValidationError("Name is required", nil)
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return "", apperrors.ValidationError("Name must be at most 256 characters", nil)
	}
	return name, nil
}

// CreateNode creates a top-level project when parentID is empty. Otherwise it
// creates a folder or a file directly inside the parent.
func (s *Service) CreateNode(ctx context.Context, p auth.Principal, parentID, name string, isFolder bool) (*Node, error) {
	if p.IsZero() {
		return nil, apperrors.Unauthorized("Authentication required")
	}
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	if parentID == "" {
		proj := &Project{
			ID:            uuid.New().String(),
			Name:          name,
			Owner:         p.ID,
			IsFolder:      isFolder,
			Files:         []string{},
			Collaborators: []Collaborator{},
			CreatedAt:     now,
		}
		proj.Root = proj.ID
		if err := s.projects.Create(ctx, proj); err != nil {
			return nil, s.fail(ctx, "creating project", err)
		}
		s.activity.Record(ctx, p.ID, proj.ID, "", activity.Created)
		return &Node{Project: proj}, nil
	}

	parent, err := s.getProject(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if !parent.IsContainer() {
		return nil, apperrors.NotFound("Parent folder not found")
	}
	if err := s.authorizeProject(ctx, p, parent, true); err != nil {
		return nil, err
	}

	if isFolder {
		folder := &Project{
			ID:            uuid.New().String(),
			Name:          name,
			Owner:         p.ID,
			ParentFolder:  parent.ID,
			Root:          parent.Root,
			IsFolder:      true,
			Files:         []string{},
			Collaborators: []Collaborator{},
			CreatedAt:     now,
		}
		if err := s.projects.Create(ctx, folder); err != nil {
			return nil, s.fail(ctx, "creating folder", err)
		}
		s.activity.Record(ctx, p.ID, folder.Root, "", activity.Created)
		return &Node{Project: folder}, nil
	}

	f := &File{
		ID:            uuid.New().String(),
		Name:          name,
		Project:       parent.Root,
		Folder:        parent.ID,
		Collaborators: []Collaborator{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.files.Create(ctx, f); err != nil {
		return nil, s.fail(ctx, "creating file", err)
	}
	if err := s.projects.LinkFile(ctx, parent.ID, f.ID); err != nil {
		s.logger.WithRequestID(ctx).Error("linking file to folder",
			zap.String("file_id", f.ID), zap.String("folder_id", parent.ID), zap.Error(err))
	}
	s.activity.Record(ctx, p.ID, f.Project, f.ID, activity.Created)
	return &Node{File: f}, nil
}

// ListProjects returns the top-level projects p owns or collaborates on.
func (s *Service) ListProjects(ctx context.Context, p auth.Principal) ([]*Project, error) {
	roots, err := s.projects.ListChildren(ctx, "")
	if err != nil {
		return nil, s.fail(ctx, "listing projects", err)
	}

	out := make([]*Project, 0, len(roots))
	for _, r := range roots {
		if r.Owner == p.ID || bestRole(p, r.Collaborators) != "" {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListContents returns the folders and files directly inside currentFolderID,
// or inside the project itself when currentFolderID is empty.
func (s *Service) ListContents(ctx context.Context, p auth.Principal, projectID, currentFolderID string) (*Contents, error) {
	proj, err := s.getProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !proj.TopLevel() {
		return nil, apperrors.NotFound("Project not found")
	}

	folder := proj
	if currentFolderID != "" && currentFolderID != projectID {
		folder, err = s.getProject(ctx, currentFolderID)
		if err != nil {
			return nil, err
		}
		if folder.Root != proj.ID || !folder.IsContainer() {
			return nil, apperrors.NotFound("Folder not found")
		}
	}
	if err := s.authorizeProject(ctx, p, folder, false); err != nil {
		return nil, err
	}

	children, err := s.projects.ListChildren(ctx, folder.ID)
	if err != nil {
		return nil, s.fail(ctx, "listing folders", err)
	}
	files, err := s.files.ListByFolder(ctx, folder.ID)
	if err != nil {
		return nil, s.fail(ctx, "listing files", err)
	}

	c := &Contents{Project: proj, Folders: []*Project{}, Files: files}
	if c.Files == nil {
		c.Files = []*File{}
	}
	if folder != proj {
		c.CurrentFolder = folder
	}
	for _, child := range children {
		if child.IsFolder {
			c.Folders = append(c.Folders, child)
		}
	}
	return c, nil
}

// ResolveBreadcrumb walks parentFolder links from folderID up to its
// top-level project and returns the path root first.
func (s *Service) ResolveBreadcrumb(ctx context.Context, folderID string) ([]Crumb, error) {
	folder, err := s.getProject(ctx, folderID)
	if err != nil {
		return nil, err
	}
	chain, err := s.ancestors(ctx, folder)
	if err != nil {
		return nil, err
	}
	return crumbs(chain), nil
}

// Breadcrumb is ResolveBreadcrumb for a folder of projectID that p can read.
func (s *Service) Breadcrumb(ctx context.Context, p auth.Principal, projectID, folderID string) ([]Crumb, error) {
	if folderID == "" {
		folderID = projectID
	}
	folder, err := s.getProject(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if folder.Root != projectID {
		return nil, apperrors.NotFound("Folder not found")
	}

	chain, err := s.ancestors(ctx, folder)
	if err != nil {
		return nil, err
	}
	if role := s.role(p, chain, nil); role == "" {
		return nil, apperrors.Forbidden("You do not have access to this project")
	}
	return crumbs(chain), nil
}

func crumbs(chain []*Project) []Crumb {
	out := make([]Crumb, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		out = append(out, Crumb{ID: chain[i].ID, Name: chain[i].Name})
	}
	return out
}

// MoveNode re-parents a folder or a file within its project. Moving a folder
// under itself or one of its descendants is a cycle.
func (s *Service) MoveNode(ctx context.Context, p auth.Principal, nodeID, newParentID string) (*Node, error) {
	if nodeID == "" || newParentID == "" {
		return nil, apperrors.ValidationError("nodeId and parentId are required", nil)
	}

	parent, err := s.getProject(ctx, newParentID)
	if err != nil {
		return nil, err
	}
	if !parent.IsContainer() {
		return nil, apperrors.ValidationError("Destination is not a folder", nil)
	}
	parentChain, err := s.ancestors(ctx, parent)
	if err != nil {
		return nil, err
	}
	if !s.role(p, parentChain, nil).CanEdit() {
		return nil, apperrors.Forbidden("You do not have permission to edit this folder")
	}

	proj, err := s.projects.Get(ctx, nodeID)
	switch {
	case err == nil:
		return s.moveFolder(ctx, p, proj, parent, parentChain)
	case !errors.Is(err, storage.ErrNotFound):
		return nil, s.fail(ctx, "loading node", err)
	}

	f, err := s.getFile(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	return s.moveFile(ctx, p, f, parent)
}

func (s *Service) moveFolder(ctx context.Context, p auth.Principal, folder, parent *Project, parentChain []*Project) (*Node, error) {
	if folder.TopLevel() {
		return nil, apperrors.ValidationError("Top-level projects cannot be moved", nil)
	}
	if folder.Root != parent.Root {
		return nil, apperrors.ValidationError("Folders cannot be moved between projects", nil)
	}
	if err := s.authorizeProject(ctx, p, folder, true); err != nil {
		return nil, err
	}
	for _, n := range parentChain {
		if n.ID == folder.ID {
			return nil, apperrors.Cycle("Cannot move a folder into itself or one of its subfolders")
		}
	}

	folder.ParentFolder = parent.ID
	if err := s.projects.Update(ctx, folder); err != nil {
		return nil, s.fail(ctx, "moving folder", err)
	}
	s.activity.Record(ctx, p.ID, folder.Root, "", activity.Edited)
	return &Node{Project: folder}, nil
}

func (s *Service) moveFile(ctx context.Context, p auth.Principal, f *File, parent *Project) (*Node, error) {
	if f.Project != parent.Root {
		return nil, apperrors.ValidationError("Files cannot be moved between projects", nil)
	}
	if err := s.authorizeFile(ctx, p, f, true); err != nil {
		return nil, err
	}
	if f.Folder == parent.ID {
		return &Node{File: f}, nil
	}

	oldFolder := f.Folder
	f.Folder = parent.ID
	f.UpdatedAt = time.Now().UTC()
	if err := s.files.Update(ctx, f); err != nil {
		return nil, s.fail(ctx, "moving file", err)
	}

	s.detach(ctx, oldFolder, f.ID)
	if err := s.projects.LinkFile(ctx, parent.ID, f.ID); err != nil {
		s.logger.WithRequestID(ctx).Error("linking file to folder",
			zap.String("file_id", f.ID), zap.String("folder_id", parent.ID), zap.Error(err))
	}

	s.activity.Record(ctx, p.ID, f.Project, f.ID, activity.Edited)
	return &Node{File: f}, nil
}

// detach drops fileID from the files list of folderID. Failures are logged;
// listings go through the folder index and stay correct.
func (s *Service) detach(ctx context.Context, folderID, fileID string) {
	if err := s.projects.UnlinkFile(ctx, folderID, fileID); err != nil {
		s.logger.WithRequestID(ctx).Warn("unlinking file from folder",
			zap.String("file_id", fileID), zap.String("folder_id", folderID), zap.Error(err))
	}
}

func (s *Service) GetFile(ctx context.Context, p auth.Principal, fileID string) (*File, error) {
	f, err := s.getFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeFile(ctx, p, f, false); err != nil {
		return nil, err
	}
	return f, nil
}

// UpdateFileContent replaces the live buffer without creating a commit.
func (s *Service) UpdateFileContent(ctx context.Context, p auth.Principal, fileID, content string) (*File, error) {
	f, err := s.getFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeFile(ctx, p, f, true); err != nil {
		return nil, err
	}

	f.Content = content
	f.UpdatedAt = time.Now().UTC()
	if err := s.files.Update(ctx, f); err != nil {
		return nil, s.fail(ctx, "updating file content", err)
	}
	s.activity.Record(ctx, p.ID, f.Project, f.ID, activity.Edited)
	return f, nil
}

// SetLiveContent writes content that was already authorized by the caller.
func (s *Service) SetLiveContent(ctx context.Context, fileID, content string) error {
	f, err := s.files.Get(ctx, fileID)
	if err != nil {
		return err
	}
	f.Content = content
	f.UpdatedAt = time.Now().UTC()
	return s.files.Update(ctx, f)
}

// DeleteFile removes a file together with its commit history.
func (s *Service) DeleteFile(ctx context.Context, p auth.Principal, fileID string) error {
	f, err := s.getFile(ctx, fileID)
	if err != nil {
		return err
	}
	if err := s.authorizeFile(ctx, p, f, true); err != nil {
		return err
	}

	n, err := s.commits.DeleteByFile(ctx, fileID)
	if err != nil {
		return s.fail(ctx, "deleting file commits", err)
	}
	if err := s.files.Delete(ctx, fileID); err != nil {
		return s.fail(ctx, "deleting file", err)
	}
	s.detach(ctx, f.Folder, f.ID)

	s.activity.Record(ctx, p.ID, f.Project, f.ID, activity.Deleted)
	s.logger.WithRequestID(ctx).Info("file deleted",
		zap.String("file_id", fileID), zap.Int("commits_removed", n))
	return nil
}

// AddCollaborator grants the user registered under email a role on target
// and mails them an invitation. Only the owner may share.
func (s *Service) AddCollaborator(ctx context.Context, p auth.Principal, target Target, email string, role Role) ([]Collaborator, error) {
	if role != RoleEditor && role != RoleViewer {
		return nil, apperrors.ValidationError("Role must be editor or viewer", nil)
	}
	if strings.TrimSpace(email) == "" {
		return nil, apperrors.ValidationError("Email is required", nil)
	}

	var (
		name, projectID, fileID, link string
		collaborators                 *[]Collaborator
		save                          func() error
	)
	switch target.Kind {
	case TargetFile:
		f, err := s.getFile(ctx, target.ID)
		if err != nil {
			return nil, err
		}
		r, err := s.fileRole(ctx, p, f)
		if err != nil {
			return nil, err
		}
		if r != RoleOwner {
			return nil, apperrors.Forbidden("Only the owner can add collaborators")
		}
		name, projectID, fileID = f.Name, f.Project, f.ID
		link = s.frontendURL + "/editor/" + f.ID
		collaborators = &f.Collaborators
		save = func() error { return s.files.Update(ctx, f) }
	case TargetProject:
		proj, err := s.getProject(ctx, target.ID)
		if err != nil {
			return nil, err
		}
		chain, err := s.ancestors(ctx, proj)
		if err != nil {
			return nil, err
		}
		if s.role(p, chain, nil) != RoleOwner {
			return nil, apperrors.Forbidden("Only the owner can add collaborators")
		}
		name, projectID = proj.Name, proj.Root
		link = s.frontendURL + "/projects/" + proj.ID
		collaborators = &proj.Collaborators
		save = func() error { return s.projects.Update(ctx, proj) }
	default:
		return nil, apperrors.ValidationError("Unknown share target", nil)
	}

	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.NotFound("User not found")
	}
	if err != nil {
		return nil, s.fail(ctx, "looking up collaborator", err)
	}
	if u.ID == p.ID {
		return nil, apperrors.ValidationError("You cannot add yourself as a collaborator", nil)
	}

	*collaborators = upsert(*collaborators, Collaborator{User: u.ID, Role: role})
	if err := save(); err != nil {
		return nil, s.fail(ctx, "saving collaborators", err)
	}

	err = s.mailer.SendInvite(ctx, mail.Invite{
		To:           u.Email,
		InviterName:  p.Name,
		ResourceKind: string(target.Kind),
		ResourceName: name,
		Role:         string(role),
		Link:         link,
	})
	if err != nil {
		s.logger.WithRequestID(ctx).Warn("sending invite", zap.String("to", u.Email), zap.Error(err))
	}

	s.activity.Record(ctx, p.ID, projectID, fileID, activity.Shared)
	return *collaborators, nil
}

func upsert(list []Collaborator, c Collaborator) []Collaborator {
	for i := range list {
		if list[i].User == c.User {
			list[i].Role = c.Role
			return list
		}
	}
	return append(list, c)
}

// ProjectActivity lists recent activity in the project containing projectID.
func (s *Service) ProjectActivity(ctx context.Context, p auth.Principal, projectID string) ([]*activity.Activity, error) {
	proj, err := s.getProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeProject(ctx, p, proj, false); err != nil {
		return nil, err
	}

	list, err := s.activity.ListByProject(ctx, proj.Root, 100)
	if err != nil {
		return nil, s.fail(ctx, "listing activity", err)
	}
	return list, nil
}

// AuthorizeFile checks p's access to a file and returns the id of its
// top-level project.
func (s *Service) AuthorizeFile(ctx context.Context, p auth.Principal, fileID string, edit bool) (string, error) {
	f, err := s.getFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	if err := s.authorizeFile(ctx, p, f, edit); err != nil {
		return "", err
	}
	return f.Project, nil
}

func (s *Service) authorizeFile(ctx context.Context, p auth.Principal, f *File, edit bool) error {
	r, err := s.fileRole(ctx, p, f)
	if err != nil {
		return err
	}
	return check(r, edit, "file")
}

func (s *Service) authorizeProject(ctx context.Context, p auth.Principal, proj *Project, edit bool) error {
	chain, err := s.ancestors(ctx, proj)
	if err != nil {
		return err
	}
	return check(s.role(p, chain, nil), edit, "project")
}

func check(r Role, edit bool, kind string) error {
	if r == "" {
		return apperrors.Forbidden("You do not have access to this " + kind)
	}
	if edit && !r.CanEdit() {
		return apperrors.Forbidden("You do not have permission to edit this " + kind)
	}
	return nil
}

func (s *Service) fileRole(ctx context.Context, p auth.Principal, f *File) (Role, error) {
	folder, err := s.getProject(ctx, f.Folder)
	if err != nil {
		return "", err
	}
	chain, err := s.ancestors(ctx, folder)
	if err != nil {
		return "", err
	}
	return s.role(p, chain, f.Collaborators), nil
}

// role is owner for the owner of the top-level project, otherwise the
// strongest collaborator role held on the file or any folder above it.
func (s *Service) role(p auth.Principal, chain []*Project, fileCollaborators []Collaborator) Role {
	if p.IsZero() || len(chain) == 0 {
		return ""
	}
	if chain[len(chain)-1].Owner == p.ID {
		return RoleOwner
	}

	best := bestRole(p, fileCollaborators)
	for _, n := range chain {
		if r := bestRole(p, n.Collaborators); r.rank() > best.rank() {
			best = r
		}
	}
	return best
}

func bestRole(p auth.Principal, list []Collaborator) Role {
	var best Role
	for _, c := range list {
		if c.User == p.ID && c.Role.rank() > best.rank() {
			best = c.Role
		}
	}
	return best
}

// ancestors returns start followed by each parent up to the top-level
// project. A revisited node or a walk longer than MaxDepth is a cycle.
func (s *Service) ancestors(ctx context.Context, start *Project) ([]*Project, error) {
	chain := []*Project{start}
	seen := map[string]bool{start.ID: true}

	for cur := start; !cur.TopLevel(); {
		if len(chain) >= MaxDepth {
			return nil, apperrors.Cycle("Folder hierarchy is too deep")
		}
		if seen[cur.ParentFolder] {
			return nil, apperrors.Cycle("Folder hierarchy contains a cycle")
		}
		parent, err := s.getProject(ctx, cur.ParentFolder)
		if err != nil {
			return nil, err
		}
		seen[parent.ID] = true
		chain = append(chain, parent)
		cur = parent
	}
	return chain, nil
}

func (s *Service) getProject(ctx context.Context, id string) (*Project, error) {
	if id == "" {
		return nil, apperrors.ValidationError("Project id is required", nil)
	}
	proj, err := s.projects.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.NotFound("Project not found")
	}
	if err != nil {
		return nil, s.fail(ctx, "loading project", err)
	}
	return proj, nil
}

func (s *Service) getFile(ctx context.Context, id string) (*File, error) {
	if id == "" {
		return nil, apperrors.ValidationError("File id is required", nil)
	}
	f, err := s.files.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.NotFound("File not found")
	}
	if err != nil {
		return nil, s.fail(ctx, "loading file", err)
	}
	return f, nil
}

func (s *Service) fail(ctx context.Context, op string, err error) error {
	if _, ok := apperrors.From(err); ok {
		return err
	}
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.NotFound("Resource not found")
	}
	s.logger.WithRequestID(ctx).Error(op, zap.Error(err))
	return apperrors.Internal()
}
