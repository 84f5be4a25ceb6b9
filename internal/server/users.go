package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"filedrop/internal/core"
)

// registerReq is the JSON payload for self-service registration. Email is
// optional; when present it must not already be taken.
type registerReq struct {
	Email string `json:"email"`
}

// tokenResp carries a freshly issued bearer guid back to the client.
type tokenResp struct {
	Token string `json:"token"`
}

// userHandler routes /api/user: POST registers, DELETE removes the
// caller's own account.
func (s *Server) userHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.registerUser(w, r)
	case http.MethodDelete:
		s.deleteAccount(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// userSubHandler routes /api/user/{...}:
//
//	DELETE /api/user/token?reset=bool    rotate or revoke the caller's token
//	PATCH  /api/user/{guid}/block?block=bool  admin block/unblock
func (s *Server) userSubHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/user/"), "/")
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) == 1 && parts[0] == "token":
		if r.Method != http.MethodDelete {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.resetOrRevokeToken(w, r)
	case len(parts) == 2 && parts[1] == "block":
		if r.Method != http.MethodPatch {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.blockUser(w, r, parts[0])
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// registerUser creates a User row plus its initial live token in one
// transaction. Tier: Unverified, gated by the UserRegisterRoute flag.
func (s *Server) registerUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.identityFor(w, r, core.TierUnverified); !ok {
		return
	}

	if !s.cfg.UserRegisterRoute {
		http.Error(w, "registration is disabled", http.StatusForbidden)
		return
	}

	// An empty body is a valid anonymous registration.
	var req registerReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	if req.Email != "" {
		if _, err := s.store.FindUserByEmail(r.Context(), req.Email); err == nil {
			http.Error(w, "a user with that email already exists", http.StatusBadRequest)
			return
		} else if !errors.Is(err, core.ErrNotFound) {
			s.writeError(w, r, err)
			return
		}
	}

	user := core.User{
		Guid:      uuid.New(),
		Email:     req.Email,
		CreatedAt: time.Now().UTC(),
		Disabled:  false,
	}
	token := core.NewUserToken(user.Guid)

	if err := s.store.CreateUserWithToken(r.Context(), &user, &token); err != nil {
		if errors.Is(err, core.ErrConflict) {
			http.Error(w, "a user with that email already exists", http.StatusBadRequest)
			return
		}
		s.writeError(w, r, err)
		return
	}

	log.Printf("rid=%s msg=user_registered user=%s", RequestIDFromContext(r.Context()), user.Guid)
	writeJSON(w, http.StatusOK, tokenResp{Token: token.Guid.String()})
}

// resetOrRevokeToken handles DELETE /api/user/token. With ?reset=true the
// current token row is replaced wholesale and the new guid returned; the
// old guid is burned forever. Without it the token is flagged revoked and
// kept; a revoked token no longer authenticates anything, this route
// included.
func (s *Server) resetOrRevokeToken(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.identityFor(w, r, core.TierUser)
	if !ok {
		return
	}

	if r.URL.Query().Get("reset") == "true" {
		fresh, err := s.tokens.Reset(r.Context(), identity.UserGuid)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		log.Printf("rid=%s msg=token_reset user=%s", RequestIDFromContext(r.Context()), identity.UserGuid)
		writeJSON(w, http.StatusOK, tokenResp{Token: fresh.Guid.String()})
		return
	}

	if err := s.tokens.Revoke(r.Context(), identity.UserGuid); err != nil {
		s.writeError(w, r, err)
		return
	}
	log.Printf("rid=%s msg=token_revoked user=%s", RequestIDFromContext(r.Context()), identity.UserGuid)
	writeText(w, http.StatusOK, "token revoked")
}

// blockUser handles PATCH /api/user/{guid}/block?block=bool. Admin tier.
// Unknown or invalid targets, and targets holding a live Admin token,
// all answer 400.
func (s *Server) blockUser(w http.ResponseWriter, r *http.Request, rawGuid string) {
	if _, ok := s.identityFor(w, r, core.TierAdmin); !ok {
		return
	}

	target, err := uuid.Parse(rawGuid)
	if err != nil {
		http.Error(w, "invalid guid supplied", http.StatusBadRequest)
		return
	}

	block := r.URL.Query().Get("block") == "true"

	if err := s.authz.CheckBlockTarget(r.Context(), target); err != nil {
		if errors.Is(err, core.ErrForbidden) {
			http.Error(w, "cannot modify an admin account", http.StatusBadRequest)
			return
		}
		s.writeError(w, r, err)
		return
	}

	if err := s.store.SetUserDisabled(r.Context(), target, block); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			http.Error(w, "unknown guid supplied", http.StatusBadRequest)
			return
		}
		s.writeError(w, r, err)
		return
	}

	log.Printf("rid=%s msg=user_block user=%s block=%t", RequestIDFromContext(r.Context()), target, block)
	if block {
		writeText(w, http.StatusOK, "user blocked")
	} else {
		writeText(w, http.StatusOK, "user unblocked")
	}
}

// deleteAccount handles DELETE /api/user. The row goes away and the token
// cascades with it; uploads are left orphaned on purpose.
func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.identityFor(w, r, core.TierUser)
	if !ok {
		return
	}

	if err := s.store.DeleteUser(r.Context(), identity.UserGuid); err != nil {
		s.writeError(w, r, err)
		return
	}

	log.Printf("rid=%s msg=account_deleted user=%s", RequestIDFromContext(r.Context()), identity.UserGuid)
	writeText(w, http.StatusOK, "this account has been removed")
}
