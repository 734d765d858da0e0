package execution

import (
	"context"
	"sync"
)

// MockBox is an in-memory Box for tests.
type MockBox struct {
	mu      sync.Mutex
	entries []*Execution
}

func NewMockBox() *MockBox {
	return &MockBox{}
}

func (m *MockBox) Append(_ context.Context, e *Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *e
	m.entries = append(m.entries, &copied)
	return nil
}

func (m *MockBox) ListByUser(_ context.Context, userID string, limit int) ([]*Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Execution
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].User == userID {
			out = append(out, m.entries[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
