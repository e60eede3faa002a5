// Package stubserver is an in-memory reference backend implementing
// the cookie-session API contract the client speaks: session check and
// CSRF issue, login/logout, profile, and admin user management.
//
// It exists for integration tests and for the CLI's local demo mode.
// It is not a production server; its session store is a map.
package stubserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// cookieName is the session cookie, matching the backend contract.
const cookieName = "sid"

// Account seeds one user into the stub's store.
type Account struct {
	Username string
	Password string
	Email    string
	Timezone string
	Roles    []string
}

// DefaultSeed returns one demo account per role.
func DefaultSeed() []Account {
	return []Account{
		{Username: "admin", Password: "admin-password", Roles: []string{"admin"}, Timezone: "UTC"},
		{Username: "gm", Password: "gm-password", Roles: []string{"gm"}, Timezone: "UTC"},
		{Username: "alice", Password: "alice-password", Roles: []string{"user"}, Timezone: "America/Chicago"},
	}
}

// Config configures the stub server.
type Config struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Seed lists the accounts to create at startup. Defaults to
	// DefaultSeed() when nil.
	Seed []Account

	// Metrics mounts the Prometheus handler on /metrics.
	Metrics bool
}

// Server is the stub backend.
type Server struct {
	store  *store
	logger *slog.Logger
	router chi.Router
}

// New creates a stub server with its routes mounted.
func New(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	seed := config.Seed
	if seed == nil {
		seed = DefaultSeed()
	}

	s := &Server{
		store:  newStore(),
		logger: logger.With("component", "stubserver"),
	}
	for _, a := range seed {
		if _, err := s.store.addAccount(account{
			Username: a.Username,
			Password: a.Password,
			Email:    a.Email,
			Timezone: a.Timezone,
			Roles:    a.Roles,
		}); err != nil {
			s.logger.Warn("skipping seed account", "username", a.Username, "error", err)
		}
	}

	r := chi.NewRouter()
	r.Get("/api/session", s.handleGetSession)
	r.Get("/api/timezones", s.handleGetTimezones)
	r.With(s.requireCSRF).Post("/api/login", s.handleLogin)
	r.With(s.requireCSRF).Post("/api/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/api/me", s.handleGetMe)
		r.Get("/api/profile", s.handleGetProfile)
		r.With(s.requireCSRF).Put("/api/profile", s.handlePutProfile)
		r.With(s.requireCSRF).Put("/api/users/{id}/password", s.handlePutPassword)

		r.Group(func(r chi.Router) {
			r.Use(s.requireRole("admin"))
			r.Get("/api/users", s.handleGetUsers)
			r.With(s.requireCSRF).Post("/api/users", s.handlePostUser)
			r.Get("/api/users/{id}", s.handleGetUser)
			r.With(s.requireCSRF).Patch("/api/users/{id}", s.handlePatchUser)
			r.With(s.requireCSRF).Post("/api/users/{id}/reset-password", s.handleResetPassword)
			r.With(s.requireCSRF).Patch("/api/users/{id}/role", s.handlePatchRole)
		})
	})

	if config.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	s.router = r
	return s
}

// Handler returns the HTTP handler for the stub server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ---- session plumbing ----

type sessionContextKey struct{}

// currentSession loads the caller's session from the sid cookie.
func (s *Server) currentSession(r *http.Request) (*serverSession, bool) {
	cookie, err := r.Cookie(cookieName)
	if err != nil || cookie.Value == "" {
		return nil, false
	}
	return s.store.session(cookie.Value)
}

func sessionFrom(ctx context.Context) *serverSession {
	sess, _ := ctx.Value(sessionContextKey{}).(*serverSession)
	return sess
}

func setSessionCookie(w http.ResponseWriter, sid string) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// requireAuth admits only callers with an authenticated session.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.currentSession(r)
		if !ok || !sess.authenticated() {
			writeMessage(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		ctx := context.WithValue(r.Context(), sessionContextKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireCSRF validates the X-CSRF-Token header against the caller's
// session. Mutations without a session have no token to present and
// are rejected.
func (s *Server) requireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.currentSession(r)
		if !ok || r.Header.Get("X-CSRF-Token") != sess.CSRF {
			writeMessage(w, http.StatusForbidden, "missing or invalid csrf token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireRole admits only authenticated callers holding the role.
func (s *Server) requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := sessionFrom(r.Context())
			a, ok := s.store.accountByID(sess.UserID)
			if !ok || !slices.Contains(a.Roles, role) {
				writeMessage(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ---- payload helpers ----

type userPayload struct {
	ID          string          `json:"id"`
	Username    string          `json:"username"`
	Roles       []string        `json:"roles"`
	Timezone    string          `json:"timezone,omitempty"`
	Permissions map[string]bool `json:"permissions,omitempty"`
}

func toUserPayload(a *account) userPayload {
	roles := append([]string{"authenticated"}, a.Roles...)
	sort.Strings(roles)
	return userPayload{
		ID:       a.ID,
		Username: a.Username,
		Roles:    roles,
		Timezone: a.Timezone,
		Permissions: map[string]bool{
			"editHandle": true,
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

type fieldError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func writeFieldErrors(w http.ResponseWriter, status int, fields ...fieldError) {
	writeJSON(w, status, map[string]any{"errors": fields})
}
