package core

import (
	"context"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost balances hashing work against upload-time latency.
const bcryptCost = 12

// HashUploadPassword returns the bcrypt hash stored against a protected
// upload.
func HashUploadPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// UploadGate composes the two independent checks that guard an upload:
// the password check for content retrieval and the ownership check for
// mutation. The checks know nothing about HTTP.
type UploadGate struct {
	store Store
}

func NewUploadGate(store Store) *UploadGate {
	return &UploadGate{store: store}
}

// ResolveUpload finds an upload by guid or friendly filename. Guid-form
// input wins over a filename that happens to parse as a guid.
func (g *UploadGate) ResolveUpload(ctx context.Context, identifier string) (*Upload, error) {
	return g.store.FindUploadByIdentifier(ctx, identifier)
}

// CheckContent gates content retrieval. Anyone, authenticated or not, may
// read an unprotected upload. A protected upload requires the matching
// plaintext password; a missing or wrong password is ErrUnauthorized, a
// missing upload stays ErrNotFound.
func (g *UploadGate) CheckContent(ctx context.Context, identifier, password string) (*Upload, error) {
	upload, err := g.store.FindUploadByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if upload.PasswordHash == "" {
		return upload, nil
	}
	if password == "" {
		return nil, ErrUnauthorized
	}
	if bcrypt.CompareHashAndPassword([]byte(upload.PasswordHash), []byte(password)) != nil {
		return nil, ErrUnauthorized
	}
	return upload, nil
}

// CheckOwnership gates delete and detail listing. Only the recorded owner
// clears it; there is no admin override for deleting a specific upload.
func (g *UploadGate) CheckOwnership(upload *Upload, identity *Identity) error {
	if identity == nil {
		return ErrUnauthenticated
	}
	if upload.OwnerClaim != identity.Claim() {
		return ErrUnauthorized
	}
	return nil
}
