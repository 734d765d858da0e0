package user

import (
	"context"
	"fmt"
	"sync"

	"coedit/internal/storage"
)

// MockBox is an in-memory Box for tests.
type MockBox struct {
	mu    sync.RWMutex
	users map[string]*User
}

func NewMockBox() *MockBox {
	return &MockBox{users: make(map[string]*User)}
}

func (m *MockBox) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u.Email = NormalizeEmail(u.Email)
	if _, ok := m.users[u.ID]; ok {
		return fmt.Errorf("user %s: %w", u.ID, storage.ErrConflict)
	}
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return fmt.Errorf("email %s: %w", u.Email, storage.ErrConflict)
		}
	}
	copied := *u
	m.users[u.ID] = &copied
	return nil
}

func (m *MockBox) Get(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
	}
	copied := *u
	return &copied, nil
}

func (m *MockBox) GetByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	email = NormalizeEmail(email)
	for _, u := range m.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, storage.ErrNotFound)
}
