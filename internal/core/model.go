package core

import (
	"time"

	"github.com/google/uuid"
)

// TokenType tags a token with its trust level. A closed enumeration rather
// than a boolean so further tiers can be added without re-deriving trust
// from mutable user state. Admin tokens are never created through
// self-service flows.
type TokenType string

const (
	TokenUser  TokenType = "User"
	TokenAdmin TokenType = "Admin"
)

// Tier is the trust level an operation requires. Ordered:
// Unverified < User < Admin.
type Tier int

const (
	// TierUnverified operations need no credential at all; they run their
	// own internal checks (e.g. the registration feature flag).
	TierUnverified Tier = iota
	TierUser
	TierAdmin
)

// User is an account row. Email is optional and unique when present.
type User struct {
	Guid      uuid.UUID
	Email     string
	CreatedAt time.Time
	Disabled  bool
}

// Token is the bearer secret handed to a client. At most one non-revoked
// token exists per user at any instant; rotation replaces the row wholesale
// so a retired guid can never authenticate again.
type Token struct {
	Guid      uuid.UUID
	UserGuid  uuid.UUID
	Type      TokenType
	Revoked   bool
	CreatedAt time.Time
}

// Upload is a stored file record, addressable by guid or by its unique
// friendly filename. An empty PasswordHash means the content is public.
type Upload struct {
	Guid         uuid.UUID
	Filename     string
	OwnerClaim   string
	PasswordHash string
	ContentType  string
	SizeBytes    int64
	CreatedAt    time.Time
}

// ObjectKey is where the upload's bytes live in the blob store. The prefix
// plus guid keeps keys non-guessable and free of path traversal.
func (u *Upload) ObjectKey() string {
	return "uploads/" + u.Guid.String()
}

// Identity is the authenticated result of resolving a bearer credential.
// It is the only request fact downstream components may trust.
type Identity struct {
	UserGuid uuid.UUID
	Type     TokenType
}

// Claim is the ownership string recorded against uploads and compared on
// mutation checks.
func (id Identity) Claim() string {
	return id.UserGuid.String()
}

// NewUserToken builds a fresh live User-type token for the given account.
func NewUserToken(userGuid uuid.UUID) Token {
	return Token{
		Guid:      uuid.New(),
		UserGuid:  userGuid,
		Type:      TokenUser,
		Revoked:   false,
		CreatedAt: time.Now().UTC(),
	}
}
