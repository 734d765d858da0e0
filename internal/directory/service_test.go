package directory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"coedit/internal/activity"
	"coedit/internal/auth"
	apperrors "coedit/internal/errors"
	"coedit/internal/logging"
	"coedit/internal/mail"
	"coedit/internal/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type purger struct {
	mu    sync.Mutex
	calls []string
}

func (p *purger) DeleteByFile(_ context.Context, fileID string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, fileID)
	return 2, nil
}

type outbox struct {
	mu   sync.Mutex
	sent []mail.Invite
}

func (o *outbox) SendInvite(_ context.Context, inv mail.Invite) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, inv)
	return nil
}

type fixture struct {
	svc      *Service
	projects *MockProjectBox
	files    *MockFileBox
	purger   *purger
	outbox   *outbox
	activity *activity.MockBox
}

var (
	owner    = auth.Principal{ID: "u-owner", Name: "Olive", Email: "olive@example.com"}
	editor   = auth.Principal{ID: "u-editor", Name: "Ed", Email: "ed@example.com"}
	viewer   = auth.Principal{ID: "u-viewer", Name: "Vi", Email: "vi@example.com"}
	stranger = auth.Principal{ID: "u-stranger", Name: "Sam", Email: "sam@example.com"}
)

func newFixture(t *testing.T) *fixture {
	users := user.NewMockBox()
	for _, p := range []auth.Principal{owner, editor, viewer, stranger} {
		require.NoError(t, users.Create(context.Background(), &user.User{ID: p.ID, Name: p.Name, Email: p.Email}))
	}

	f := &fixture{
		projects: NewMockProjectBox(),
		files:    NewMockFileBox(),
		purger:   &purger{},
		outbox:   &outbox{},
		activity: activity.NewMockBox(),
	}
	f.svc = NewService(Deps{
		Projects:    f.projects,
		Files:       f.files,
		Commits:     f.purger,
		Users:       users,
		Mailer:      f.outbox,
		Activity:    activity.NewRecorder(f.activity, logging.Nop()),
		FrontendURL: "http://localhost:5173/",
		Logger:      logging.Nop(),
	})
	return f
}

func isType(t *testing.T, err error, want apperrors.ErrorType) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, want), "want %s, got %v", want, err)
}

// tree builds project > src > lib with main.go in src.
func (f *fixture) tree(t *testing.T) (proj, src, lib *Project, file *File) {
	ctx := context.Background()
	n, err := f.svc.CreateNode(ctx, owner, "", "demo", true)
	require.NoError(t, err)
	proj = n.Project

	n, err = f.svc.CreateNode(ctx, owner, proj.ID, "src", true)
	require.NoError(t, err)
	src = n.Project

	n, err = f.svc.CreateNode(ctx, owner, src.ID, "lib", true)
	require.NoError(t, err)
	lib = n.Project

	n, err = f.svc.CreateNode(ctx, owner, src.ID, "main.go", false)
	require.NoError(t, err)
	file = n.File
	return
}

func TestCreateNode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	proj, src, lib, file := f.tree(t)

	assert.Equal(t, proj.ID, proj.Root)
	assert.Empty(t, proj.ParentFolder)
	assert.Equal(t, proj.ID, src.Root)
	assert.Equal(t, src.ID, lib.ParentFolder)
	assert.Equal(t, proj.ID, file.Project)
	assert.Equal(t, src.ID, file.Folder)
	assert.Empty(t, file.Content)

	stored, err := f.projects.Get(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{file.ID}, stored.Files)

	t.Run("MissingParent", func(t *testing.T) {
		_, err := f.svc.CreateNode(ctx, owner, "nope", "x", false)
		isType(t, err, apperrors.ErrorTypeNotFound)
	})

	t.Run("ParentNotAFolder", func(t *testing.T) {
		require.NoError(t, f.projects.Create(ctx, &Project{
			ID: "leaf", Name: "leaf", Owner: owner.ID, ParentFolder: proj.ID, Root: proj.ID,
		}))
		_, err := f.svc.CreateNode(ctx, owner, "leaf", "x", false)
		isType(t, err, apperrors.ErrorTypeNotFound)
	})

	t.Run("Names", func(t *testing.T) {
		_, err := f.svc.CreateNode(ctx, owner, "", "   ", true)
		isType(t, err, apperrors.ErrorTypeValidation)

		long := make([]byte, 257)
		for i := range long {
			long[i] = 'a'
		}
		_, err = f.svc.CreateNode(ctx, owner, "", string(long), true)
		isType(t, err, apperrors.ErrorTypeValidation)
	})

	t.Run("StrangerCannotCreate", func(t *testing.T) {
		_, err := f.svc.CreateNode(ctx, stranger, src.ID, "evil.go", false)
		isType(t, err, apperrors.ErrorTypeForbidden)
	})

	t.Run("Anonymous", func(t *testing.T) {
		_, err := f.svc.CreateNode(ctx, auth.Principal{}, "", "x", true)
		isType(t, err, apperrors.ErrorTypeUnauthorized)
	})
}

func TestAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	proj, src, _, file := f.tree(t)

	_, err := f.svc.AddCollaborator(ctx, owner, Target{Kind: TargetProject, ID: src.ID}, editor.Email, RoleEditor)
	require.NoError(t, err)
	_, err = f.svc.AddCollaborator(ctx, owner, Target{Kind: TargetFile, ID: file.ID}, viewer.Email, RoleViewer)
	require.NoError(t, err)

	tests := []struct {
		name     string
		who      auth.Principal
		edit     bool
		wantType apperrors.ErrorType
	}{
		{"owner edits", owner, true, ""},
		{"folder editor edits file", editor, true, ""},
		{"file viewer reads", viewer, false, ""},
		{"file viewer cannot edit", viewer, true, apperrors.ErrorTypeForbidden},
		{"stranger cannot read", stranger, false, apperrors.ErrorTypeForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			projectID, err := f.svc.AuthorizeFile(ctx, tt.who, file.ID, tt.edit)
			if tt.wantType != "" {
				isType(t, err, tt.wantType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, proj.ID, projectID)
		})
	}

	t.Run("MissingFile", func(t *testing.T) {
		_, err := f.svc.AuthorizeFile(ctx, owner, "nope", false)
		isType(t, err, apperrors.ErrorTypeNotFound)
	})

	t.Run("EditorCannotReadProjectRoot", func(t *testing.T) {
		_, err := f.svc.ListContents(ctx, editor, proj.ID, "")
		isType(t, err, apperrors.ErrorTypeForbidden)

		c, err := f.svc.ListContents(ctx, editor, proj.ID, src.ID)
		require.NoError(t, err)
		assert.Len(t, c.Files, 1)
	})
}

func TestListProjects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	proj, _, _, _ := f.tree(t)

	n, err := f.svc.CreateNode(ctx, stranger, "", "theirs", true)
	require.NoError(t, err)

	list, err := f.svc.ListProjects(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, proj.ID, list[0].ID)

	_, err = f.svc.AddCollaborator(ctx, stranger, Target{Kind: TargetProject, ID: n.Project.ID}, owner.Email, RoleViewer)
	require.NoError(t, err)

	list, err = f.svc.ListProjects(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestListContents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	proj, src, lib, file := f.tree(t)

	c, err := f.svc.ListContents(ctx, owner, proj.ID, "")
	require.NoError(t, err)
	assert.Nil(t, c.CurrentFolder)
	require.Len(t, c.Folders, 1)
	assert.Equal(t, src.ID, c.Folders[0].ID)
	assert.Empty(t, c.Files)

	c, err = f.svc.ListContents(ctx, owner, proj.ID, src.ID)
	require.NoError(t, err)
	assert.Equal(t, src.ID, c.CurrentFolder.ID)
	require.Len(t, c.Folders, 1)
	assert.Equal(t, lib.ID, c.Folders[0].ID)
	require.Len(t, c.Files, 1)
	assert.Equal(t, file.ID, c.Files[0].ID)

	other, err := f.svc.CreateNode(ctx, owner, "", "other", true)
	require.NoError(t, err)
	_, err = f.svc.ListContents(ctx, owner, other.Project.ID, src.ID)
	isType(t, err, apperrors.ErrorTypeNotFound)

	_, err = f.svc.ListContents(ctx, owner, src.ID, "")
	isType(t, err, apperrors.ErrorTypeNotFound)
}

func TestBreadcrumb(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	proj, src, lib, _ := f.tree(t)

	crumbs, err := f.svc.ResolveBreadcrumb(ctx, lib.ID)
	require.NoError(t, err)
	assert.Equal(t, []Crumb{
		{ID: proj.ID, Name: "demo"},
		{ID: src.ID, Name: "src"},
		{ID: lib.ID, Name: "lib"},
	}, crumbs)

	crumbs, err = f.svc.Breadcrumb(ctx, owner, proj.ID, "")
	require.NoError(t, err)
	assert.Len(t, crumbs, 1)

	_, err = f.svc.Breadcrumb(ctx, stranger, proj.ID, lib.ID)
	isType(t, err, apperrors.ErrorTypeForbidden)

	t.Run("Cycle", func(t *testing.T) {
		now := time.Now()
		require.NoError(t, f.projects.Create(ctx, &Project{ID: "x", Name: "x", Owner: owner.ID, ParentFolder: "y", Root: "r", IsFolder: true, CreatedAt: now}))
		require.NoError(t, f.projects.Create(ctx, &Project{ID: "y", Name: "y", Owner: owner.ID, ParentFolder: "x", Root: "r", IsFolder: true, CreatedAt: now}))

		_, err := f.svc.ResolveBreadcrumb(ctx, "x")
		isType(t, err, apperrors.ErrorTypeCycle)
	})

	t.Run("TooDeep", func(t *testing.T) {
		parent := proj.ID
		var last string
		for i := 0; i < MaxDepth+1; i++ {
			id := fmt.Sprintf("deep-%d", i)
			require.NoError(t, f.projects.Create(ctx, &Project{ID: id, Name: id, Owner: owner.ID, ParentFolder: parent, Root: proj.ID, IsFolder: true}))
			parent, last = id, id
		}
		_, err := f.svc.ResolveBreadcrumb(ctx, last)
		isType(t, err, apperrors.ErrorTypeCycle)
	})
}

func TestMoveNode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	proj, src, lib, file := f.tree(t)

	t.Run("IntoDescendantIsCycle", func(t *testing.T) {
		_, err := f.svc.MoveNode(ctx, owner, src.ID, lib.ID)
		isType(t, err, apperrors.ErrorTypeCycle)

		_, err = f.svc.MoveNode(ctx, owner, src.ID, src.ID)
		isType(t, err, apperrors.ErrorTypeCycle)
	})

	t.Run("TopLevel", func(t *testing.T) {
		_, err := f.svc.MoveNode(ctx, owner, proj.ID, src.ID)
		isType(t, err, apperrors.ErrorTypeValidation)
	})

	t.Run("Folder", func(t *testing.T) {
		n, err := f.svc.MoveNode(ctx, owner, lib.ID, proj.ID)
		require.NoError(t, err)
		assert.Equal(t, proj.ID, n.Project.ParentFolder)

		crumbs, err := f.svc.ResolveBreadcrumb(ctx, lib.ID)
		require.NoError(t, err)
		assert.Len(t, crumbs, 2)
	})

	t.Run("File", func(t *testing.T) {
		n, err := f.svc.MoveNode(ctx, owner, file.ID, lib.ID)
		require.NoError(t, err)
		assert.Equal(t, lib.ID, n.File.Folder)

		oldParent, err := f.projects.Get(ctx, src.ID)
		require.NoError(t, err)
		assert.Empty(t, oldParent.Files)
		newParent, err := f.projects.Get(ctx, lib.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{file.ID}, newParent.Files)
	})

	t.Run("Stranger", func(t *testing.T) {
		_, err := f.svc.MoveNode(ctx, stranger, file.ID, src.ID)
		isType(t, err, apperrors.ErrorTypeForbidden)
	})

	t.Run("Unknown", func(t *testing.T) {
		_, err := f.svc.MoveNode(ctx, owner, "nope", src.ID)
		isType(t, err, apperrors.ErrorTypeNotFound)
	})
}

func TestFileContent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _, _, file := f.tree(t)

	updated, err := f.svc.UpdateFileContent(ctx, owner, file.ID, "package main")
	require.NoError(t, err)
	assert.Equal(t, "package main", updated.Content)

	got, err := f.svc.GetFile(ctx, owner, file.ID)
	require.NoError(t, err)
	assert.Equal(t, "package main", got.Content)

	require.NoError(t, f.svc.SetLiveContent(ctx, file.ID, "x=1"))
	got, err = f.svc.GetFile(ctx, owner, file.ID)
	require.NoError(t, err)
	assert.Equal(t, "x=1", got.Content)

	_, err = f.svc.GetFile(ctx, stranger, file.ID)
	isType(t, err, apperrors.ErrorTypeForbidden)
}

func TestDeleteFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, src, _, file := f.tree(t)

	err := f.svc.DeleteFile(ctx, stranger, file.ID)
	isType(t, err, apperrors.ErrorTypeForbidden)

	require.NoError(t, f.svc.DeleteFile(ctx, owner, file.ID))
	assert.Equal(t, []string{file.ID}, f.purger.calls)

	_, err = f.svc.GetFile(ctx, owner, file.ID)
	isType(t, err, apperrors.ErrorTypeNotFound)

	folder, err := f.projects.Get(ctx, src.ID)
	require.NoError(t, err)
	assert.Empty(t, folder.Files)
	assert.Contains(t, f.activity.Actions(), activity.Deleted)
}

func TestAddCollaborator(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	proj, _, _, file := f.tree(t)

	list, err := f.svc.AddCollaborator(ctx, owner, Target{Kind: TargetFile, ID: file.ID}, "ED@example.com", RoleViewer)
	require.NoError(t, err)
	assert.Equal(t, []Collaborator{{User: editor.ID, Role: RoleViewer}}, list)

	list, err = f.svc.AddCollaborator(ctx, owner, Target{Kind: TargetFile, ID: file.ID}, editor.Email, RoleEditor)
	require.NoError(t, err)
	assert.Equal(t, []Collaborator{{User: editor.ID, Role: RoleEditor}}, list)

	require.Len(t, f.outbox.sent, 2)
	inv := f.outbox.sent[0]
	assert.Equal(t, editor.Email, inv.To)
	assert.Equal(t, "main.go", inv.ResourceName)
	assert.Equal(t, "http://localhost:5173/editor/"+file.ID, inv.Link)
	assert.Equal(t, "Olive", inv.InviterName)

	t.Run("OnlyOwner", func(t *testing.T) {
		_, err := f.svc.AddCollaborator(ctx, editor, Target{Kind: TargetFile, ID: file.ID}, viewer.Email, RoleViewer)
		isType(t, err, apperrors.ErrorTypeForbidden)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		_, err := f.svc.AddCollaborator(ctx, owner, Target{Kind: TargetProject, ID: proj.ID}, "ghost@example.com", RoleViewer)
		isType(t, err, apperrors.ErrorTypeNotFound)
	})

	t.Run("BadRole", func(t *testing.T) {
		_, err := f.svc.AddCollaborator(ctx, owner, Target{Kind: TargetProject, ID: proj.ID}, viewer.Email, RoleOwner)
		isType(t, err, apperrors.ErrorTypeValidation)
	})

	t.Run("Self", func(t *testing.T) {
		_, err := f.svc.AddCollaborator(ctx, owner, Target{Kind: TargetProject, ID: proj.ID}, owner.Email, RoleEditor)
		isType(t, err, apperrors.ErrorTypeValidation)
	})
}

func TestProjectActivity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	proj, _, _, _ := f.tree(t)

	list, err := f.svc.ProjectActivity(ctx, owner, proj.ID)
	require.NoError(t, err)
	assert.Len(t, list, 4)
	for _, a := range list {
		assert.Equal(t, activity.Created, a.Action)
	}

	_, err = f.svc.ProjectActivity(ctx, stranger, proj.ID)
	isType(t, err, apperrors.ErrorTypeForbidden)
}
