package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// TokenLifecycle creates, rotates, and revokes bearer tokens. It enforces
// the one-live-token-per-user invariant by leaning on the store's atomic
// compound writes rather than in-process locking.
type TokenLifecycle struct {
	store Store
}

func NewTokenLifecycle(store Store) *TokenLifecycle {
	return &TokenLifecycle{store: store}
}

// IssueInitial creates the user's first token. ErrConflict if a live token
// already exists for the user.
func (tl *TokenLifecycle) IssueInitial(ctx context.Context, userGuid uuid.UUID) (Token, error) {
	token := NewUserToken(userGuid)
	if err := tl.store.InsertToken(ctx, &token); err != nil {
		return Token{}, fmt.Errorf("issue initial token: %w", err)
	}
	return token, nil
}

// Reset destroys the caller's current token record, revoked or not, and
// issues a fresh one with a new guid. The replaced guid never authenticates
// again, even if the old row had not been revoked. Delete and insert commit
// as one unit; a concurrent Reset on the same user loses with ErrConflict.
func (tl *TokenLifecycle) Reset(ctx context.Context, userGuid uuid.UUID) (Token, error) {
	fresh := NewUserToken(userGuid)
	if err := tl.store.RotateToken(ctx, userGuid, &fresh); err != nil {
		return Token{}, fmt.Errorf("rotate token: %w", err)
	}
	return fresh, nil
}

// Revoke flips the current token's revoked flag. The row is kept so the
// guid stays burned and cannot be re-minted.
func (tl *TokenLifecycle) Revoke(ctx context.Context, userGuid uuid.UUID) error {
	if err := tl.store.RevokeToken(ctx, userGuid); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}
