package activity

import (
	"context"
	"sort"
	"sync"
)

// MockBox is an in-memory Box for tests.
type MockBox struct {
	mu      sync.Mutex
	entries []*Activity
}

func NewMockBox() *MockBox {
	return &MockBox{}
}

func (m *MockBox) Append(_ context.Context, a *Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *a
	m.entries = append(m.entries, &copied)
	return nil
}

func (m *MockBox) ListByProject(_ context.Context, projectID string, limit int) ([]*Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Activity
	for _, a := range m.entries {
		if a.Project == projectID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Actions returns every recorded action in insertion order.
func (m *MockBox) Actions() []Action {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Action, len(m.entries))
	for i, a := range m.entries {
		out[i] = a.Action
	}
	return out
}
