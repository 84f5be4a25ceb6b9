package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"

	"filedrop/internal/core"
)

// testStore is an in-memory core.Store for handler tests. It enforces the
// same invariants as the postgres implementation: unique emails and
// filenames, one live token per user, guid-precedence upload lookup.
type testStore struct {
	mu      sync.Mutex
	users   map[uuid.UUID]core.User
	tokens  map[uuid.UUID]core.Token
	uploads map[uuid.UUID]core.Upload
}

func newTestStore() *testStore {
	return &testStore{
		users:   make(map[uuid.UUID]core.User),
		tokens:  make(map[uuid.UUID]core.Token),
		uploads: make(map[uuid.UUID]core.Upload),
	}
}

func (ts *testStore) FindTokenByGuid(_ context.Context, guid uuid.UUID) (*core.Token, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if t, ok := ts.tokens[guid]; ok {
		cp := t
		return &cp, nil
	}
	return nil, core.ErrNotFound
}

func (ts *testStore) FindTokenByUser(_ context.Context, userGuid uuid.UUID) (*core.Token, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, t := range ts.tokens {
		if t.UserGuid == userGuid {
			cp := t
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (ts *testStore) FindUserByGuid(_ context.Context, guid uuid.UUID) (*core.User, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if u, ok := ts.users[guid]; ok {
		cp := u
		return &cp, nil
	}
	return nil, core.ErrNotFound
}

func (ts *testStore) FindUserByEmail(_ context.Context, email string) (*core.User, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, u := range ts.users {
		if u.Email != "" && u.Email == email {
			cp := u
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (ts *testStore) FindUploadByIdentifier(_ context.Context, identifier string) (*core.Upload, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if g, err := uuid.Parse(identifier); err == nil {
		if up, ok := ts.uploads[g]; ok {
			cp := up
			return &cp, nil
		}
	}
	for _, up := range ts.uploads {
		if up.Filename == identifier {
			cp := up
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (ts *testStore) ListUploadsByOwner(_ context.Context, ownerClaim string) ([]core.Upload, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	var out []core.Upload
	for _, up := range ts.uploads {
		if up.OwnerClaim == ownerClaim {
			out = append(out, up)
		}
	}
	return out, nil
}

func (ts *testStore) CreateUserWithToken(_ context.Context, user *core.User, token *core.Token) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if user.Email != "" {
		for _, u := range ts.users {
			if u.Email == user.Email {
				return core.ErrConflict
			}
		}
	}
	ts.users[user.Guid] = *user
	ts.tokens[token.Guid] = *token
	return nil
}

func (ts *testStore) InsertToken(_ context.Context, token *core.Token) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if !token.Revoked {
		for _, t := range ts.tokens {
			if t.UserGuid == token.UserGuid && !t.Revoked {
				return core.ErrConflict
			}
		}
	}
	ts.tokens[token.Guid] = *token
	return nil
}

func (ts *testStore) RotateToken(_ context.Context, userGuid uuid.UUID, fresh *core.Token) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for g, t := range ts.tokens {
		if t.UserGuid == userGuid {
			delete(ts.tokens, g)
		}
	}
	ts.tokens[fresh.Guid] = *fresh
	return nil
}

func (ts *testStore) RevokeToken(_ context.Context, userGuid uuid.UUID) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for g, t := range ts.tokens {
		if t.UserGuid == userGuid {
			t.Revoked = true
			ts.tokens[g] = t
			return nil
		}
	}
	return core.ErrNotFound
}

func (ts *testStore) SetUserDisabled(_ context.Context, userGuid uuid.UUID, disabled bool) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	u, ok := ts.users[userGuid]
	if !ok {
		return core.ErrNotFound
	}
	u.Disabled = disabled
	ts.users[userGuid] = u
	return nil
}

func (ts *testStore) DeleteUser(_ context.Context, userGuid uuid.UUID) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if _, ok := ts.users[userGuid]; !ok {
		return core.ErrNotFound
	}
	delete(ts.users, userGuid)
	for g, t := range ts.tokens {
		if t.UserGuid == userGuid {
			delete(ts.tokens, g)
		}
	}
	return nil
}

func (ts *testStore) InsertUpload(_ context.Context, upload *core.Upload) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, up := range ts.uploads {
		if up.Filename == upload.Filename {
			return core.ErrConflict
		}
	}
	ts.uploads[upload.Guid] = *upload
	return nil
}

func (ts *testStore) DeleteUpload(_ context.Context, guid uuid.UUID) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if _, ok := ts.uploads[guid]; !ok {
		return core.ErrNotFound
	}
	delete(ts.uploads, guid)
	return nil
}

var _ core.Store = (*testStore)(nil)

// seedUser inserts a user with a live token of the given type.
func (ts *testStore) seedUser(t *testing.T, email string, tokenType core.TokenType) (core.User, core.Token) {
	t.Helper()
	user := core.User{Guid: uuid.New(), Email: email}
	token := core.NewUserToken(user.Guid)
	token.Type = tokenType
	ts.mu.Lock()
	ts.users[user.Guid] = user
	ts.tokens[token.Guid] = token
	ts.mu.Unlock()
	return user, token
}

// testBlob is an in-memory core.Blob.
type testBlob struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newTestBlob() *testBlob {
	return &testBlob{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (tb *testBlob) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.objects[key] = data
	tb.types[key] = contentType
	return nil
}

func (tb *testBlob) Get(_ context.Context, key string) (io.ReadCloser, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	data, ok := tb.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such object: %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (tb *testBlob) Remove(_ context.Context, key string) error {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	delete(tb.objects, key)
	delete(tb.types, key)
	return nil
}

var _ core.Blob = (*testBlob)(nil)

// newTestServer builds a Server on the in-memory fakes with registration
// enabled and no rate limiting.
func newTestServer(t *testing.T) (*Server, *testStore, *testBlob) {
	t.Helper()
	ts := newTestStore()
	tb := newTestBlob()
	srv := New(Config{
		Addr:              ":0",
		UserRegisterRoute: true,
	}, ts, tb)
	return srv, ts, tb
}
