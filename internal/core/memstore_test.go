package core

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// memStore is an in-memory Store used by the unit tests. It mirrors the
// postgres implementation's invariants: one live token per user, unique
// emails and filenames, guid-precedence upload lookup.
type memStore struct {
	mu      sync.Mutex
	users   map[uuid.UUID]User
	tokens  map[uuid.UUID]Token // keyed by token guid
	uploads map[uuid.UUID]Upload
}

func newMemStore() *memStore {
	return &memStore{
		users:   make(map[uuid.UUID]User),
		tokens:  make(map[uuid.UUID]Token),
		uploads: make(map[uuid.UUID]Upload),
	}
}

func (m *memStore) FindTokenByGuid(_ context.Context, guid uuid.UUID) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tokens[guid]; ok {
		cp := t
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *memStore) FindTokenByUser(_ context.Context, userGuid uuid.UUID) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.UserGuid == userGuid {
			cp := t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) FindUserByGuid(_ context.Context, guid uuid.UUID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[guid]; ok {
		cp := u
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *memStore) FindUserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email != "" && u.Email == email {
			cp := u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) FindUploadByIdentifier(_ context.Context, identifier string) (*Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, err := uuid.Parse(identifier); err == nil {
		if up, ok := m.uploads[g]; ok {
			cp := up
			return &cp, nil
		}
	}
	for _, up := range m.uploads {
		if up.Filename == identifier {
			cp := up
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) ListUploadsByOwner(_ context.Context, ownerClaim string) ([]Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Upload
	for _, up := range m.uploads {
		if up.OwnerClaim == ownerClaim {
			out = append(out, up)
		}
	}
	return out, nil
}

func (m *memStore) CreateUserWithToken(_ context.Context, user *User, token *Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.Email != "" {
		for _, u := range m.users {
			if u.Email == user.Email {
				return ErrConflict
			}
		}
	}
	m.users[user.Guid] = *user
	m.tokens[token.Guid] = *token
	return nil
}

func (m *memStore) InsertToken(_ context.Context, token *Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !token.Revoked {
		for _, t := range m.tokens {
			if t.UserGuid == token.UserGuid && !t.Revoked {
				return ErrConflict
			}
		}
	}
	m.tokens[token.Guid] = *token
	return nil
}

func (m *memStore) RotateToken(_ context.Context, userGuid uuid.UUID, fresh *Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for g, t := range m.tokens {
		if t.UserGuid == userGuid {
			delete(m.tokens, g)
		}
	}
	m.tokens[fresh.Guid] = *fresh
	return nil
}

func (m *memStore) RevokeToken(_ context.Context, userGuid uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for g, t := range m.tokens {
		if t.UserGuid == userGuid {
			t.Revoked = true
			m.tokens[g] = t
			return nil
		}
	}
	return ErrNotFound
}

func (m *memStore) SetUserDisabled(_ context.Context, userGuid uuid.UUID, disabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userGuid]
	if !ok {
		return ErrNotFound
	}
	u.Disabled = disabled
	m.users[userGuid] = u
	return nil
}

func (m *memStore) DeleteUser(_ context.Context, userGuid uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userGuid]; !ok {
		return ErrNotFound
	}
	delete(m.users, userGuid)
	// tokens cascade with the user row; uploads stay orphaned
	for g, t := range m.tokens {
		if t.UserGuid == userGuid {
			delete(m.tokens, g)
		}
	}
	return nil
}

func (m *memStore) InsertUpload(_ context.Context, upload *Upload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, up := range m.uploads {
		if up.Filename == upload.Filename {
			return ErrConflict
		}
	}
	m.uploads[upload.Guid] = *upload
	return nil
}

func (m *memStore) DeleteUpload(_ context.Context, guid uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.uploads[guid]; !ok {
		return ErrNotFound
	}
	delete(m.uploads, guid)
	return nil
}

// seedUser inserts a user plus live token and returns both.
func (m *memStore) seedUser(email string, tokenType TokenType) (User, Token) {
	user := User{Guid: uuid.New(), Email: email}
	token := NewUserToken(user.Guid)
	token.Type = tokenType
	m.mu.Lock()
	m.users[user.Guid] = user
	m.tokens[token.Guid] = token
	m.mu.Unlock()
	return user, token
}

var _ Store = (*memStore)(nil)
