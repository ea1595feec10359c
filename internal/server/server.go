// Package server exposes the reading service over HTTP. Every response is
// wrapped in the {code, message, data} envelope; business failures carry
// stable numeric codes instead of bare HTTP statuses.
package server

import (
	"net/http"

	"leafreader/internal/app"
	"leafreader/internal/ratelimit"
	"leafreader/internal/util"
	"leafreader/pkg/auth"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	AuthLimiter    *ratelimit.FixedWindowLimiter
	TrustedProxies *util.TrustedProxies
	MaxUploadBytes int64
}

// Server exposes HTTP endpoints for the reading service.
type Server struct {
	app            *app.App
	authLimiter    *ratelimit.FixedWindowLimiter
	trustedProxies *util.TrustedProxies
	mux            *http.ServeMux
	maxUploadBytes int64
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	s := &Server{
		app:            cfg.App,
		authLimiter:    cfg.AuthLimiter,
		trustedProxies: cfg.TrustedProxies,
		mux:            http.NewServeMux(),
		maxUploadBytes: maxUploadBytes,
	}
	s.routes()
	return s
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	// accounts
	s.mux.Handle("POST /api/auth/register", s.withRateLimit(http.HandlerFunc(s.handleRegister)))
	s.mux.Handle("POST /api/auth/login", s.withRateLimit(http.HandlerFunc(s.handleLogin)))
	s.mux.Handle("GET /api/auth/user_info", s.withUser(s.handleUserInfo))
	s.mux.Handle("POST /api/auth/change_password", s.withUser(s.handleChangePassword))

	// admin
	s.mux.HandleFunc("GET /api/admin/check_setup", s.handleCheckSetup)
	s.mux.Handle("POST /api/auth/admin/setup", s.withRateLimit(http.HandlerFunc(s.handleAdminSetup)))
	s.mux.Handle("POST /api/auth/admin/login", s.withRateLimit(http.HandlerFunc(s.handleAdminLogin)))
	s.mux.Handle("POST /api/admin/invite_code", s.withAdmin(s.handleCreateInviteCode))
	s.mux.Handle("GET /api/admin/invite_codes", s.withAdmin(s.handleListInviteCodes))
	s.mux.Handle("GET /api/admin/settings", s.withAdmin(s.handleGetSettings))
	s.mux.Handle("PUT /api/admin/settings", s.withAdmin(s.handleUpdateSettings))
	s.mux.Handle("GET /api/admin/users", s.withAdmin(s.handleListUsers))
	s.mux.Handle("POST /api/admin/users/{id}/reset_password", s.withAdmin(s.handleResetPassword))

	// books
	s.mux.Handle("POST /api/books/upload", s.withUser(s.handleUploadBook))
	s.mux.Handle("GET /api/books", s.withUser(s.handleListBooks))
	s.mux.Handle("GET /api/books/public", s.withUser(s.handleListPublicBooks))
	s.mux.Handle("GET /api/books/random_public", s.withUser(s.handleRandomPublicBooks))
	s.mux.Handle("GET /api/books/{id}", s.withUser(s.handleBookDetail))
	s.mux.Handle("PUT /api/books/{id}", s.withUser(s.handleUpdateBook))
	s.mux.Handle("DELETE /api/books/{id}", s.withUser(s.handleDeleteBook))
	s.mux.Handle("GET /api/books/{id}/content", s.withUser(s.handleContent))
	s.mux.Handle("GET /api/books/{id}/chapters", s.withUser(s.handleListChapters))
	s.mux.Handle("GET /api/books/{id}/jump_to_chapter", s.withUser(s.handleJumpToChapter))
	s.mux.Handle("GET /api/books/{id}/chapters/{chapterID}/content", s.withUser(s.handleChapterContent))

	// reading
	s.mux.Handle("POST /api/reading/heartbeat", s.withUser(s.handleHeartbeat))
	s.mux.Handle("GET /api/reading/progress/{bookID}", s.withUser(s.handleProgress))
	s.mux.Handle("GET /api/reading/settings", s.withUser(s.handleGetReadingSettings))
	s.mux.Handle("PUT /api/reading/settings", s.withUser(s.handleSaveReadingSettings))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, string)

func (s *Server) withUser(next userHandler) http.Handler {
	return s.withRole(auth.RoleUser, next)
}

func (s *Server) withAdmin(next userHandler) http.Handler {
	return s.withRole(auth.RoleAdmin, next)
}

func (s *Server) withRole(role string, next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			if role == auth.RoleAdmin {
				writeAppError(w, app.ErrAdminRequired)
				return
			}
			writeAppError(w, app.ErrInvalidToken)
			return
		}
		subject, err := s.app.Tokens().Verify(token, role)
		if err != nil {
			if role == auth.RoleAdmin {
				writeAppError(w, app.ErrAdminRequired)
				return
			}
			writeAppError(w, app.ErrInvalidToken)
			return
		}
		next(w, r, subject)
	})
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if s.authLimiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := util.ClientIP(r, s.trustedProxies)
		if !s.authLimiter.Allow(key) {
			writeEnvelope(w, http.StatusTooManyRequests, app.CodeInternal, "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
