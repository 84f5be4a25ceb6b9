package core

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Resolver maps a presented bearer credential to an authenticated identity.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve validates the opaque bearer value and returns the identity it
// authenticates. An optional "Bearer " prefix is tolerated.
//
//   - unparseable guid        -> ErrMalformedCredential
//   - token absent or revoked -> ErrUnauthenticated
//   - owner absent or disabled-> ErrUnauthenticated
//
// A disabled user's token fails here even when the token itself was never
// individually revoked.
func (r *Resolver) Resolve(ctx context.Context, bearer string) (*Identity, error) {
	bearer = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(bearer), "Bearer "))
	if bearer == "" {
		return nil, ErrUnauthenticated
	}

	guid, err := uuid.Parse(bearer)
	if err != nil {
		return nil, ErrMalformedCredential
	}

	token, err := r.store.FindTokenByGuid(ctx, guid)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	if token.Revoked {
		return nil, ErrUnauthenticated
	}

	user, err := r.store.FindUserByGuid(ctx, token.UserGuid)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	if user.Disabled {
		return nil, ErrUnauthenticated
	}

	return &Identity{UserGuid: user.Guid, Type: token.Type}, nil
}
