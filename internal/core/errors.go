// Package core implements the access-control heart of filedrop: the token
// lifecycle, the authentication resolver, the tier decision procedure, and
// the upload access gate. Persistence and blob storage are consumed through
// the Store and Blob interfaces so the core stays independent of the HTTP
// and database layers.
package core

import "errors"

// Sentinel error kinds returned by the core. The HTTP layer translates each
// one exactly once; nothing below it should inspect status codes.
//
// ErrUnauthorized (wrong upload password, or a mutation by a non-owner) is
// deliberately distinct from ErrForbidden (valid credential, insufficient
// tier) and from ErrUnauthenticated (no valid credential at all).
var (
	// ErrMalformedCredential means the bearer value did not parse as a guid.
	// Callers treat it the same as ErrUnauthenticated when replying.
	ErrMalformedCredential = errors.New("malformed credential")

	// ErrUnauthenticated means no live token backs the request.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden means the caller is authenticated but lacks the tier
	// required by the operation, or targets a protected identity.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict signals a uniqueness violation: a duplicate live token,
	// a taken email, or a lost race on token rotation.
	ErrConflict = errors.New("conflict")

	// ErrNotFound means the referenced user, token, or upload is absent.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized covers upload password mismatches and non-owner
	// mutations. It maps to 401 regardless of whether the caller holds a
	// valid token.
	ErrUnauthorized = errors.New("unauthorized")
)
