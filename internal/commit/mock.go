package commit

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"coedit/internal/storage"
)

// MockBox is an in-memory Box for tests. Commits created within the same
// clock tick keep insertion order.
type MockBox struct {
	mu      sync.RWMutex
	commits map[string]*Commit
	order   map[string]int
	next    int
}

func NewMockBox() *MockBox {
	return &MockBox{
		commits: make(map[string]*Commit),
		order:   make(map[string]int),
	}
}

func (m *MockBox) Insert(_ context.Context, c *Commit) error {
	if err := c.Validate(); err != nil {
		return err
	}
	Prepare(c)

	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *c
	m.commits[c.ID] = &copied
	m.order[c.ID] = m.next
	m.next++
	return nil
}

func (m *MockBox) ListAll(_ context.Context) ([]*Commit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Commit, 0, len(m.commits))
	for _, c := range m.commits {
		copied := *c
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return m.order[out[i].ID] < m.order[out[j].ID] })
	return out, nil
}

func (m *MockBox) ListByFile(_ context.Context, fileID string) ([]*Commit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Commit
	for _, c := range m.commits {
		if c.File == fileID {
			copied := *c
			out = append(out, &copied)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("commits for %s: %w", fileID, storage.ErrNotFound)
	}
	sort.Slice(out, func(i, j int) bool { return m.order[out[i].ID] > m.order[out[j].ID] })
	return out, nil
}

func (m *MockBox) Get(_ context.Context, id string) (*Commit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.commits[id]
	if !ok {
		return nil, fmt.Errorf("commit %s: %w", id, storage.ErrNotFound)
	}
	copied := *c
	return &copied, nil
}

func (m *MockBox) Latest(ctx context.Context, fileID string) (*Commit, error) {
	list, err := m.ListByFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return list[0], nil
}

func (m *MockBox) DeleteByID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.commits[id]; !ok {
		return fmt.Errorf("commit %s: %w", id, storage.ErrNotFound)
	}
	delete(m.commits, id)
	delete(m.order, id)
	return nil
}

func (m *MockBox) DeleteByFile(_ context.Context, fileID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, c := range m.commits {
		if c.File == fileID {
			delete(m.commits, id)
			delete(m.order, id)
			n++
		}
	}
	return n, nil
}

// Len reports how many commits are stored.
func (m *MockBox) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.commits)
}
