package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"filedrop/internal/core"
)

// writeJSON writes v with a 200 unless status says otherwise.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeText writes a plain-text confirmation body.
func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}

// writeError maps a core error kind to its HTTP outcome. Malformed
// credentials collapse into 401 alongside unauthenticated; forbidden (tier)
// and unauthorized (password/ownership) stay distinct.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrMalformedCredential),
		errors.Is(err, core.ErrUnauthenticated):
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	case errors.Is(err, core.ErrUnauthorized):
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	case errors.Is(err, core.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, core.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, core.ErrConflict):
		http.Error(w, "conflict", http.StatusConflict)
	default:
		rid := RequestIDFromContext(r.Context())
		log.Printf("rid=%s msg=internal_error err=%v", rid, err)
		http.Error(w, "server error", http.StatusInternalServerError)
	}
}
