// Package server exposes the filedrop HTTP surface: registration, token
// lifecycle, admin user controls, and upload management. Handlers delegate
// every trust decision to the core package and translate its error kinds
// to HTTP exactly once.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"filedrop/internal/core"
)

// BuildInfo identifies the running binary in logs and health output.
type BuildInfo struct {
	Version string
	Commit  string
}

type Config struct {
	Addr  string // e.g. ":8080"
	Build BuildInfo

	// UserRegisterRoute gates self-service registration. With the flag off
	// the register route answers 403 and writes nothing.
	UserRegisterRoute bool

	// MaxUploadBytes caps a single upload request body. 0 means no limit.
	MaxUploadBytes int64

	// RateLimitPerMinute is the per-IP request budget. 0 disables limiting.
	RateLimitPerMinute int
}

type Server struct {
	httpServer *http.Server
	cfg        Config

	store core.Store
	blob  core.Blob

	resolver *core.Resolver
	authz    *core.Authorizer
	tokens   *core.TokenLifecycle
	gate     *core.UploadGate
}

func New(cfg Config, store core.Store, blobStore core.Blob) *Server {
	s := &Server{
		cfg:      cfg,
		store:    store,
		blob:     blobStore,
		resolver: core.NewResolver(store),
		authz:    core.NewAuthorizer(store),
		tokens:   core.NewTokenLifecycle(store),
		gate:     core.NewUploadGate(store),
	}

	mux := http.NewServeMux()

	// Health endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  "ok",
			"version": cfg.Build.Version,
		})
	})

	mux.HandleFunc("/api/user", s.userHandler)
	mux.HandleFunc("/api/user/", s.userSubHandler)
	mux.HandleFunc("/api/upload", s.uploadHandler)
	mux.HandleFunc("/api/upload/", s.uploadSubHandler)

	// Wrap middleware: requestID -> logging -> ratelimit -> mux
	var handler http.Handler = mux
	if cfg.RateLimitPerMinute > 0 {
		rl := newRateLimiter(cfg.RateLimitPerMinute, time.Minute)
		handler = rl.middleware(handler)
	}
	handler = loggingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routed handler stack for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// identityFor resolves the request's bearer credential and applies the
// operation's tier. For Unverified operations a broken or missing
// credential is ignored and the caller proceeds anonymously. On failure
// the response has already been written and ok is false.
func (s *Server) identityFor(w http.ResponseWriter, r *http.Request, tier core.Tier) (identity *core.Identity, ok bool) {
	if bearer := r.Header.Get("Authorization"); bearer != "" {
		id, err := s.resolver.Resolve(r.Context(), bearer)
		if err != nil {
			if tier != core.TierUnverified {
				s.writeError(w, r, err)
				return nil, false
			}
		} else {
			identity = id
		}
	}

	if err := s.authz.Authorize(identity, tier); err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return identity, true
}
