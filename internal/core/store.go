package core

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// Store is the credential store the core reads and writes through. Every
// call is atomic on its own; the compound writes (CreateUserWithToken,
// RotateToken) must commit or roll back as a unit so a concurrent reader
// never observes a user with zero or two live tokens mid-rotation.
//
// Lookups return ErrNotFound when the row is absent; writes return
// ErrConflict on uniqueness violations (duplicate email, duplicate live
// token, duplicate filename).
type Store interface {
	FindTokenByGuid(ctx context.Context, guid uuid.UUID) (*Token, error)
	FindTokenByUser(ctx context.Context, userGuid uuid.UUID) (*Token, error)
	FindUserByGuid(ctx context.Context, guid uuid.UUID) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)

	// FindUploadByIdentifier accepts either the upload guid or the friendly
	// filename. Guid-form lookup takes precedence over a filename that
	// happens to look like a guid.
	FindUploadByIdentifier(ctx context.Context, identifier string) (*Upload, error)
	ListUploadsByOwner(ctx context.Context, ownerClaim string) ([]Upload, error)

	// CreateUserWithToken inserts the user row and its initial token in one
	// transaction.
	CreateUserWithToken(ctx context.Context, user *User, token *Token) error

	// InsertToken adds a live token; ErrConflict if the user already has one.
	InsertToken(ctx context.Context, token *Token) error

	// RotateToken deletes the user's current token row (revoked or not) and
	// inserts the fresh one, all in one transaction. A lost race against a
	// concurrent rotation surfaces as ErrConflict, never as a silent merge.
	RotateToken(ctx context.Context, userGuid uuid.UUID, fresh *Token) error

	// RevokeToken flips the revoked flag on the user's token. The row stays.
	RevokeToken(ctx context.Context, userGuid uuid.UUID) error

	SetUserDisabled(ctx context.Context, userGuid uuid.UUID, disabled bool) error

	// DeleteUser removes the user row; the token goes with it. Uploads are
	// left in place with their owner claim intact.
	DeleteUser(ctx context.Context, userGuid uuid.UUID) error

	InsertUpload(ctx context.Context, upload *Upload) error
	DeleteUpload(ctx context.Context, guid uuid.UUID) error
}

// Blob is the byte-addressable content store keyed by upload object key.
type Blob interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}
