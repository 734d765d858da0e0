package directory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"coedit/internal/storage"
)

// MockProjectBox is an in-memory ProjectBox for tests.
type MockProjectBox struct {
	mu       sync.RWMutex
	projects map[string]*Project
}

func NewMockProjectBox() *MockProjectBox {
	return &MockProjectBox{projects: make(map[string]*Project)}
}

func cloneProject(p *Project) *Project {
	c := *p
	c.Files = append([]string(nil), p.Files...)
	c.Collaborators = append([]Collaborator(nil), p.Collaborators...)
	return &c
}

func (m *MockProjectBox) Create(_ context.Context, p *Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[p.ID]; ok {
		return fmt.Errorf("project %s: %w", p.ID, storage.ErrConflict)
	}
	m.projects[p.ID] = cloneProject(p)
	return nil
}

func (m *MockProjectBox) Get(_ context.Context, id string) (*Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, storage.ErrNotFound)
	}
	return cloneProject(p), nil
}

func (m *MockProjectBox) Update(_ context.Context, p *Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.projects[p.ID]
	if !ok {
		return fmt.Errorf("project %s: %w", p.ID, storage.ErrNotFound)
	}
	next := cloneProject(p)
	next.Files = old.Files
	m.projects[p.ID] = next
	return nil
}

func (m *MockProjectBox) LinkFile(_ context.Context, folderID, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[folderID]
	if !ok {
		return fmt.Errorf("project %s: %w", folderID, storage.ErrNotFound)
	}
	if !slices.Contains(p.Files, fileID) {
		p.Files = append(p.Files, fileID)
	}
	return nil
}

func (m *MockProjectBox) UnlinkFile(_ context.Context, folderID, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[folderID]
	if !ok {
		return fmt.Errorf("project %s: %w", folderID, storage.ErrNotFound)
	}
	p.Files = slices.DeleteFunc(p.Files, func(id string) bool { return id == fileID })
	return nil
}

func (m *MockProjectBox) ListChildren(_ context.Context, parentID string) ([]*Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Project
	for _, p := range m.projects {
		if p.ParentFolder == parentID {
			out = append(out, cloneProject(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// MockFileBox is an in-memory FileBox for tests.
type MockFileBox struct {
	mu    sync.RWMutex
	files map[string]*File
}

func NewMockFileBox() *MockFileBox {
	return &MockFileBox{files: make(map[string]*File)}
}

func cloneFile(f *File) *File {
	c := *f
	c.Collaborators = append([]Collaborator(nil), f.Collaborators...)
	return &c
}

func (m *MockFileBox) Create(_ context.Context, f *File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[f.ID]; ok {
		return fmt.Errorf("file %s: %w", f.ID, storage.ErrConflict)
	}
	m.files[f.ID] = cloneFile(f)
	return nil
}

func (m *MockFileBox) Get(_ context.Context, id string) (*File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[id]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", id, storage.ErrNotFound)
	}
	return cloneFile(f), nil
}

func (m *MockFileBox) Update(_ context.Context, f *File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[f.ID]; !ok {
		return fmt.Errorf("file %s: %w", f.ID, storage.ErrNotFound)
	}
	m.files[f.ID] = cloneFile(f)
	return nil
}

func (m *MockFileBox) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[id]; !ok {
		return fmt.Errorf("file %s: %w", id, storage.ErrNotFound)
	}
	delete(m.files, id)
	return nil
}

func (m *MockFileBox) ListByFolder(_ context.Context, folderID string) ([]*File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*File
	for _, f := range m.files {
		if f.Folder == folderID {
			out = append(out, cloneFile(f))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
