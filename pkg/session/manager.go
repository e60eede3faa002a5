// Package session owns the client-side authentication state machine.
//
// A Manager moves between four states: anonymous, authenticating,
// authenticated, and invalidating. The two transient states double as
// mutual-exclusion guards: a second overlapping call to the same
// operation is rejected with a precondition error instead of racing the
// first. The manager is the single writer of session state; every other
// component reads it or subscribes to change notifications.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/playbymail/ottoclient/pkg/apierror"
	"github.com/playbymail/ottoclient/pkg/roles"
)

// Status is the authentication state of the client.
type Status int

const (
	// StatusAnonymous is the initial state: no server session.
	StatusAnonymous Status = iota

	// StatusAuthenticating is transient, held for the duration of one
	// login round trip.
	StatusAuthenticating

	// StatusAuthenticated is stable: a server session exists and the
	// user payload is loaded.
	StatusAuthenticated

	// StatusInvalidating is transient, held for the duration of one
	// logout round trip.
	StatusInvalidating
)

// String returns the status name used in logs.
func (s Status) String() string {
	switch s {
	case StatusAnonymous:
		return "anonymous"
	case StatusAuthenticating:
		return "authenticating"
	case StatusAuthenticated:
		return "authenticated"
	case StatusInvalidating:
		return "invalidating"
	default:
		return "unknown"
	}
}

// User is the authenticated account attached to the session.
type User struct {
	ID          string
	Handle      string
	Roles       roles.Set
	Permissions map[string]bool
}

// Can reports whether the user holds the named permission.
func (u *User) Can(permission string) bool {
	return u != nil && u.Permissions[permission]
}

// Credentials are the login form fields.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Change is the payload of an authentication-changed notification.
type Change struct {
	// Previous and Current are the stable states on either side of the
	// transition.
	Previous Status
	Current  Status

	// User is the authenticated user when Current is
	// StatusAuthenticated, nil otherwise.
	User *User
}

// Listener receives authentication-changed notifications.
type Listener func(Change)

// Precondition errors. An invalid transition is a rejected call, not a
// crash, and never reaches the network.
var (
	// ErrAuthenticationInProgress rejects a login attempt while another
	// one is already in flight.
	ErrAuthenticationInProgress = errors.New("authentication already in progress")

	// ErrAlreadyAuthenticated rejects a login attempt on an
	// authenticated session.
	ErrAlreadyAuthenticated = errors.New("already authenticated")

	// ErrInvalidationInProgress rejects overlapping logout calls.
	ErrInvalidationInProgress = errors.New("logout already in progress")

	// ErrNotAuthenticated rejects a logout on an anonymous session.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrRestoreInProgress rejects overlapping restore calls.
	ErrRestoreInProgress = errors.New("session restore already in progress")

	// ErrAuthenticationCanceled is returned by Authenticate when the
	// session was invalidated while the login round trip was in flight;
	// the login result is discarded.
	ErrAuthenticationCanceled = errors.New("authentication canceled by logout")
)

// Gateway is the slice of the request gateway the manager needs.
type Gateway interface {
	Get(ctx context.Context, path string) (json.RawMessage, error)
	Post(ctx context.Context, path string, body any) (json.RawMessage, error)
}

// TokenCache is the slice of the CSRF cache the manager needs: the
// token is session-scoped and is discarded whenever the session ends.
type TokenCache interface {
	Clear()
}

// Manager is the authentication state machine. Safe for concurrent use.
type Manager struct {
	mu        sync.Mutex
	status    Status
	user      *User
	restoring bool
	listeners map[int]Listener
	nextID    int

	gw     Gateway
	tokens TokenCache
	logger *slog.Logger
}

// NewManager creates a session manager in the anonymous state.
func NewManager(gw Gateway, tokens TokenCache, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		status:    StatusAnonymous,
		listeners: make(map[int]Listener),
		gw:        gw,
		tokens:    tokens,
		logger:    logger.With("component", "session_manager"),
	}
}

// Status returns the current authentication state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// CurrentUser returns the authenticated user, or nil when the session
// is not authenticated.
func (m *Manager) CurrentUser() *User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

// Subscribe registers a listener for authentication-changed
// notifications and returns a function that removes it.
func (m *Manager) Subscribe(l Listener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// notify delivers a change to all listeners outside the lock.
func (m *Manager) notify(change Change) {
	m.mu.Lock()
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	for _, l := range listeners {
		l(change)
	}
}

// Restore re-establishes an existing server session at startup. On
// success the manager transitions directly from anonymous to
// authenticated without passing through the authenticating state. On
// failure it stays anonymous and returns the typed error from the
// session check.
func (m *Manager) Restore(ctx context.Context) error {
	m.mu.Lock()
	if m.status != StatusAnonymous {
		status := m.status
		m.mu.Unlock()
		if status == StatusAuthenticated {
			return ErrAlreadyAuthenticated
		}
		return ErrAuthenticationInProgress
	}
	if m.restoring {
		m.mu.Unlock()
		return ErrRestoreInProgress
	}
	m.restoring = true
	m.mu.Unlock()

	user, err := m.fetchSession(ctx)

	m.mu.Lock()
	m.restoring = false
	if err != nil {
		m.mu.Unlock()
		m.logger.Debug("restore failed, staying anonymous", "error", err)
		return err
	}
	if m.status != StatusAnonymous {
		// Something else won the race while the check was in flight;
		// discard this result.
		m.mu.Unlock()
		return ErrAuthenticationInProgress
	}
	m.status = StatusAuthenticated
	m.user = user
	m.mu.Unlock()

	m.logger.Debug("session restored", "user_id", user.ID, "handle", user.Handle)
	m.notify(Change{Previous: StatusAnonymous, Current: StatusAuthenticated, User: user})
	return nil
}

// Authenticate performs a login. Only valid from the anonymous state;
// overlapping calls are rejected. On success the manager fetches the
// session details (the restore-equivalent) and transitions to
// authenticated. On any failure it returns to anonymous and reports an
// authentication-kind error (or the network error, if the wire failed).
func (m *Manager) Authenticate(ctx context.Context, creds Credentials) error {
	m.mu.Lock()
	switch m.status {
	case StatusAuthenticating:
		m.mu.Unlock()
		return ErrAuthenticationInProgress
	case StatusAuthenticated:
		m.mu.Unlock()
		return ErrAlreadyAuthenticated
	case StatusInvalidating:
		m.mu.Unlock()
		return ErrInvalidationInProgress
	}
	m.status = StatusAuthenticating
	m.mu.Unlock()

	user, err := m.login(ctx, creds)

	m.mu.Lock()
	if m.status != StatusAuthenticating {
		// Invalidated while the login was in flight. The state machine
		// already landed on anonymous; discard the login result.
		m.mu.Unlock()
		return ErrAuthenticationCanceled
	}
	if err != nil {
		m.status = StatusAnonymous
		m.user = nil
		m.mu.Unlock()
		m.logger.Debug("authentication failed", "username", creds.Username, "error", err)
		return err
	}
	m.status = StatusAuthenticated
	m.user = user
	m.mu.Unlock()

	// The token issued before login belonged to the anonymous
	// pre-session; the authenticated session gets its own.
	if m.tokens != nil {
		m.tokens.Clear()
	}

	m.logger.Info("authenticated", "user_id", user.ID, "handle", user.Handle)
	m.notify(Change{Previous: StatusAnonymous, Current: StatusAuthenticated, User: user})
	return nil
}

// login performs the login round trip followed by the session-details
// fetch. It does not touch manager state.
func (m *Manager) login(ctx context.Context, creds Credentials) (*User, error) {
	if _, err := m.gw.Post(ctx, "/api/login", creds); err != nil {
		if apierror.IsNetwork(err) {
			return nil, err
		}
		// Any server-side rejection of the login call is a credential
		// problem as far as the client is concerned.
		status := http.StatusUnauthorized
		var ae *apierror.Error
		if errors.As(err, &ae) && ae.Status != 0 {
			status = ae.Status
		}
		return nil, apierror.Authentication(status, "invalid username or password")
	}
	return m.fetchSession(ctx)
}

// Invalidate performs a logout. Valid from authenticated, and from
// authenticating to support cancel-on-logout. The server round trip is
// best-effort cleanup: whatever its outcome, local state lands on
// anonymous and the CSRF token cache is cleared. The client must never
// stay authenticated because the network blinked.
func (m *Manager) Invalidate(ctx context.Context) error {
	m.mu.Lock()
	switch m.status {
	case StatusAnonymous:
		m.mu.Unlock()
		return ErrNotAuthenticated
	case StatusInvalidating:
		m.mu.Unlock()
		return ErrInvalidationInProgress
	}
	previous := m.status
	m.status = StatusInvalidating
	m.mu.Unlock()

	if _, err := m.gw.Post(ctx, "/api/logout", nil); err != nil {
		// Absorbed: logged, never surfaced.
		m.logger.Warn("logout call failed, clearing local session anyway", "error", err)
	}

	m.mu.Lock()
	m.status = StatusAnonymous
	m.user = nil
	m.mu.Unlock()

	if m.tokens != nil {
		m.tokens.Clear()
	}

	m.logger.Info("session invalidated")
	m.notify(Change{Previous: previous, Current: StatusAnonymous})
	return nil
}

// sessionPayload is the wire shape of the session-status response.
type sessionPayload struct {
	CSRF string `json:"csrf"`
	User struct {
		ID          string          `json:"id"`
		Username    string          `json:"username"`
		Roles       []string        `json:"roles"`
		Permissions map[string]bool `json:"permissions"`
	} `json:"user"`
}

// fetchSession runs a session-status check and builds the User from
// the payload.
func (m *Manager) fetchSession(ctx context.Context) (*User, error) {
	raw, err := m.gw.Get(ctx, "/api/session")
	if err != nil {
		return nil, err
	}
	var payload sessionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apierror.Server(0, "session payload is not valid JSON")
	}
	if payload.User.ID == "" {
		// The server issued a token but no user: the cookie does not
		// belong to an authenticated session.
		return nil, apierror.SessionExpired(http.StatusOK, "no authenticated session")
	}
	return &User{
		ID:          payload.User.ID,
		Handle:      payload.User.Username,
		Roles:       roles.NewSet(payload.User.Roles...),
		Permissions: payload.User.Permissions,
	}, nil
}
