package auth

import (
	"context"
	"sort"
	"sync"
	"time"
)

var _ UserStore = (*MemoryUserStore)(nil)

// MemoryUserStore is a mutex-guarded UserStore for tests and throwaway runs.
// Stored values are copies; callers never share a *User with the store.
type MemoryUserStore struct {
	mu      sync.RWMutex
	byID    map[string]User
	byEmail map[string]string // email -> id
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
	}
}

func (m *MemoryUserStore) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.byEmail[u.Email]; taken {
		return ErrDuplicateEmail
	}
	m.byID[u.ID] = *u
	m.byEmail[u.Email] = u.ID
	return nil
}

func (m *MemoryUserStore) CreateFirst(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.byID) > 0 {
		return ErrSetupComplete
	}
	m.byID[u.ID] = *u
	m.byEmail[u.Email] = u.ID
	return nil
}

func (m *MemoryUserStore) GetByID(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (m *MemoryUserStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	id, ok := m.byEmail[email]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrUserNotFound
	}
	return m.GetByID(ctx, id)
}

func (m *MemoryUserStore) List(context.Context) ([]User, error) {
	m.mu.RLock()
	users := make([]User, 0, len(m.byID))
	for _, u := range m.byID {
		users = append(users, u)
	}
	m.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].Email < users[j].Email
	})
	return users, nil
}

func (m *MemoryUserStore) Update(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[u.ID]
	if !ok {
		return ErrUserNotFound
	}
	cur.FirstName, cur.LastName = u.FirstName, u.LastName
	cur.Role, cur.Active, cur.UpdatedAt = u.Role, u.Active, u.UpdatedAt
	m.byID[u.ID] = cur
	return nil
}

func (m *MemoryUserStore) TouchLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	u.LastLogin, u.UpdatedAt = at, at
	m.byID[id] = u
	return nil
}

func (m *MemoryUserStore) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID), nil
}
