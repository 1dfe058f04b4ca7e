package auth

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/siteselect/internal/model"
	"github.com/sells-group/siteselect/internal/store"
)

// memStore is an in-memory AccountStore.
type memStore struct {
	mu       sync.Mutex
	users    map[int64]*model.User
	sessions map[int64]*model.Session
	resets   map[int64]*model.PasswordResetToken
	nextID   int64
	touched  int
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[int64]*model.User{},
		sessions: map[int64]*model.Session{},
		resets:   map[int64]*model.PasswordResetToken{},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) CreateUser(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.ID = m.id()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memStore) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, eris.Wrap(store.ErrNotFound, "mem: user")
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, eris.Wrap(store.ErrNotFound, "mem: user")
}

func (m *memStore) UsernameExists(_ context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username != nil && *u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) UpdateUser(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return eris.Wrap(store.ErrNotFound, "mem: user")
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memStore) CreateSession(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = m.id()
	s.IsActive = true
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memStore) GetActiveSession(_ context.Context, userID int64, token string, now time.Time) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.UserID == userID && s.SessionToken == token && s.IsActive && s.ExpiresAt.After(now) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, eris.Wrap(store.ErrNotFound, "mem: session")
}

func (m *memStore) TouchSession(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.LastActivity = at
		m.touched++
	}
	return nil
}

func (m *memStore) DeactivateSessions(_ context.Context, userID int64, token string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.sessions {
		if s.UserID == userID && s.IsActive && (token == "" || s.SessionToken == token) {
			s.IsActive = false
			n++
		}
	}
	return n, nil
}

func (m *memStore) CreateResetToken(_ context.Context, t *model.PasswordResetToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.resets {
		if r.UserID == t.UserID {
			r.Used = true
		}
	}
	t.ID = m.id()
	cp := *t
	m.resets[t.ID] = &cp
	return nil
}

func (m *memStore) GetValidResetToken(_ context.Context, token string, now time.Time) (*model.PasswordResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.resets {
		if r.Token == token && !r.Used && r.ExpiresAt.After(now) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, eris.Wrap(store.ErrNotFound, "mem: reset token")
}

func (m *memStore) ConsumeResetToken(_ context.Context, tokenID, userID int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resets[tokenID]
	if !ok || r.Used || r.UserID != userID {
		return eris.Wrap(store.ErrNotFound, "mem: reset token")
	}
	r.Used = true
	m.users[userID].HashedPassword = hash
	return nil
}

func (m *memStore) resetTokens(userID int64) []*model.PasswordResetToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PasswordResetToken
	for _, r := range m.resets {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}

var _ AccountStore = (*memStore)(nil)
var _ AccountStore = (store.Store)(nil)
