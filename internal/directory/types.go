package directory

import (
	"context"
	"time"
)

type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleEditor, RoleViewer:
		return true
	}
	return false
}

func (r Role) CanEdit() bool {
	return r == RoleOwner || r == RoleEditor
}

func (r Role) rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleEditor:
		return 2
	case RoleViewer:
		return 1
	}
	return 0
}

type Collaborator struct {
	User string `json:"user" bson:"user"`
	Role Role   `json:"role" bson:"role"`
}

// Project is a node of the folder tree. A top-level project has no
// ParentFolder and is its own Root.
type Project struct {
	ID            string         `json:"id" bson:"_id"`
	Name          string         `json:"name" bson:"name"`
	Owner         string         `json:"owner" bson:"owner"`
	ParentFolder  string         `json:"parentFolder,omitempty" bson:"parentFolder,omitempty"`
	Root          string         `json:"root" bson:"root"`
	IsFolder      bool           `json:"isFolder" bson:"isFolder"`
	Files         []string       `json:"files" bson:"files"`
	Collaborators []Collaborator `json:"collaborators" bson:"collaborators"`
	CreatedAt     time.Time      `json:"createdAt" bson:"createdAt"`
}

func (p *Project) TopLevel() bool {
	return p.ParentFolder == ""
}

// IsContainer reports whether files and folders may be created inside p.
// Top-level projects always qualify.
func (p *Project) IsContainer() bool {
	return p.IsFolder || p.TopLevel()
}

// File belongs to the top-level Project and sits directly in Folder, which is
// either that project or a folder inside it.
type File struct {
	ID            string         `json:"id" bson:"_id"`
	Name          string         `json:"name" bson:"name"`
	Project       string         `json:"project" bson:"project"`
	Folder        string         `json:"folder" bson:"folder"`
	Content       string         `json:"content" bson:"content"`
	Collaborators []Collaborator `json:"collaborators" bson:"collaborators"`
	CreatedAt     time.Time      `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt" bson:"updatedAt"`
}

type Crumb struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Contents struct {
	Project       *Project   `json:"project"`
	CurrentFolder *Project   `json:"currentFolder"`
	Folders       []*Project `json:"folders"`
	Files         []*File    `json:"files"`
}

// Node is the result of CreateNode: exactly one of Project and File is set.
type Node struct {
	Project *Project `json:"project,omitempty"`
	File    *File    `json:"file,omitempty"`
}

// ProjectBox stores folder tree nodes. ListChildren with an empty parent
// lists top-level projects. Update leaves the files list alone; LinkFile and
// UnlinkFile change it atomically.
type ProjectBox interface {
	Create(ctx context.Context, p *Project) error
	Get(ctx context.Context, id string) (*Project, error)
	Update(ctx context.Context, p *Project) error
	ListChildren(ctx context.Context, parentID string) ([]*Project, error)
	LinkFile(ctx context.Context, folderID, fileID string) error
	UnlinkFile(ctx context.Context, folderID, fileID string) error
}

// FileBox stores files. ListByFolder returns files directly inside folderID.
type FileBox interface {
	Create(ctx context.Context, f *File) error
	Get(ctx context.Context, id string) (*File, error)
	Update(ctx context.Context, f *File) error
	Delete(ctx context.Context, id string) error
	ListByFolder(ctx context.Context, folderID string) ([]*File, error)
}
