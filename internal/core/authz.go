package core

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Authorizer decides whether a resolved identity clears the tier an
// operation declares.
type Authorizer struct {
	store Store
}

func NewAuthorizer(store Store) *Authorizer {
	return &Authorizer{store: store}
}

// Authorize applies the tier decision rule. identity is nil when the
// request carried no valid credential.
//
// Unverified operations always proceed to their own internal checks.
// User-tier operations accept any resolved identity (the resolver already
// rejected disabled accounts). Admin-tier operations additionally require
// an Admin-type token; a User-type identity gets ErrForbidden, which must
// stay distinct from ErrUnauthenticated when mapped upward.
func (a *Authorizer) Authorize(identity *Identity, required Tier) error {
	if required == TierUnverified {
		return nil
	}
	if identity == nil {
		return ErrUnauthenticated
	}
	if required == TierAdmin && identity.Type != TokenAdmin {
		return ErrForbidden
	}
	return nil
}

// CheckBlockTarget rejects block/unblock attempts against any account whose
// live token is Admin-type, independent of the caller's own tier. Admin
// accounts are only ever reassigned out of band.
func (a *Authorizer) CheckBlockTarget(ctx context.Context, target uuid.UUID) error {
	token, err := a.store.FindTokenByUser(ctx, target)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// No token at all: nothing protects the target.
			return nil
		}
		return err
	}
	if !token.Revoked && token.Type == TokenAdmin {
		return ErrForbidden
	}
	return nil
}
