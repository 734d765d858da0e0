package storage

import (
	"context"
	"fmt"
	"slices"

	"coedit/internal/directory"
	"coedit/internal/storage"

	"github.com/dgraph-io/badger/v4"
)

// ProjectStore keeps folder tree nodes indexed by parent.
type ProjectStore struct {
	store *storage.BadgerStore
}

func NewProjectStore(db *badger.DB) *ProjectStore {
	return &ProjectStore{store: storage.NewBadgerStore(db, "project")}
}

type projectEntity struct {
	*directory.Project
}

func (p *projectEntity) GetID() string {
	return p.ID
}

func parentIndex(p *directory.Project) storage.Index {
	return storage.Index{
		Name:  "parent",
		Value: p.ParentFolder,
		Sort:  fmt.Sprintf("%020d", p.CreatedAt.UnixNano()),
	}
}

func (s *ProjectStore) Create(ctx context.Context, p *directory.Project) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.Name == "" || p.Owner == "" {
		return fmt.Errorf("project needs a name and an owner")
	}
	return s.store.Create(&projectEntity{Project: p}, parentIndex(p))
}

func (s *ProjectStore) Get(ctx context.Context, id string) (*directory.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entity := projectEntity{Project: &directory.Project{}}
	if err := s.store.Get(id, &entity); err != nil {
		return nil, fmt.Errorf("getting project: %w", err)
	}
	return entity.Project, nil
}

// Update rewrites p and moves its parent index entry when it changed parents.
// The stored files list wins over p.Files.
func (s *ProjectStore) Update(ctx context.Context, p *directory.Project) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return storage.RetryUpdate(s.store.DB(), func(txn *badger.Txn) error {
		old := projectEntity{Project: &directory.Project{}}
		if err := s.store.GetTxn(txn, p.ID, &old); err != nil {
			return err
		}

		next := *p
		next.Files = old.Files
		var drop, add []storage.Index
		if old.ParentFolder != next.ParentFolder {
			drop = []storage.Index{parentIndex(old.Project)}
			add = []storage.Index{parentIndex(&next)}
		}
		return s.store.UpdateTxn(txn, &projectEntity{Project: &next}, drop, add)
	})
}

func (s *ProjectStore) LinkFile(ctx context.Context, folderID, fileID string) error {
	return s.editFiles(ctx, folderID, func(files []string) []string {
		if slices.Contains(files, fileID) {
			return files
		}
		return append(files, fileID)
	})
}

func (s *ProjectStore) UnlinkFile(ctx context.Context, folderID, fileID string) error {
	return s.editFiles(ctx, folderID, func(files []string) []string {
		return slices.DeleteFunc(files, func(id string) bool { return id == fileID })
	})
}

func (s *ProjectStore) editFiles(ctx context.Context, folderID string, edit func([]string) []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return storage.RetryUpdate(s.store.DB(), func(txn *badger.Txn) error {
		entity := projectEntity{Project: &directory.Project{}}
		if err := s.store.GetTxn(txn, folderID, &entity); err != nil {
			return err
		}
		entity.Files = edit(entity.Files)
		if entity.Files == nil {
			entity.Files = []string{}
		}
		return s.store.UpdateTxn(txn, &entity, nil, nil)
	})
}

func (s *ProjectStore) ListChildren(ctx context.Context, parentID string) ([]*directory.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids, err := s.store.Lookup("parent", parentID, false)
	if err != nil {
		return nil, err
	}
	return storage.GetMany[directory.Project](s.store, ids)
}

// FileStore keeps files indexed by the folder they sit in.
type FileStore struct {
	store *storage.BadgerStore
}

func NewFileStore(db *badger.DB) *FileStore {
	return &FileStore{store: storage.NewBadgerStore(db, "file")}
}

type fileEntity struct {
	*directory.File
}

func (f *fileEntity) GetID() string {
	return f.ID
}

func folderIndex(f *directory.File) storage.Index {
	return storage.Index{
		Name:  "folder",
		Value: f.Folder,
		Sort:  fmt.Sprintf("%020d", f.CreatedAt.UnixNano()),
	}
}

func (s *FileStore) Create(ctx context.Context, f *directory.File) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.Name == "" || f.Project == "" || f.Folder == "" {
		return fmt.Errorf("file needs a name, a project and a folder")
	}
	return s.store.Create(&fileEntity{File: f}, folderIndex(f))
}

func (s *FileStore) Get(ctx context.Context, id string) (*directory.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entity := fileEntity{File: &directory.File{}}
	if err := s.store.Get(id, &entity); err != nil {
		return nil, fmt.Errorf("getting file: %w", err)
	}
	return entity.File, nil
}

func (s *FileStore) Update(ctx context.Context, f *directory.File) error {
	old, err := s.Get(ctx, f.ID)
	if err != nil {
		return err
	}

	var drop, add []storage.Index
	if old.Folder != f.Folder {
		drop = []storage.Index{folderIndex(old)}
		add = []storage.Index{folderIndex(f)}
	}
	return s.store.Update(&fileEntity{File: f}, drop, add)
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	old, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.store.Delete(id, folderIndex(old))
}

func (s *FileStore) ListByFolder(ctx context.Context, folderID string) ([]*directory.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids, err := s.store.Lookup("folder", folderID, false)
	if err != nil {
		return nil, err
	}
	return storage.GetMany[directory.File](s.store, ids)
}
