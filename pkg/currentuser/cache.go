// Package currentuser keeps a derived, invalidation-driven cache of
// the authenticated user's profile.
//
// The cache never polls. It refreshes when the session manager reports
// a transition into the authenticated state and clears synchronously on
// a transition into anonymous. A failed refresh keeps the previous
// value; a stale profile is better than logging the user out over a
// transient fetch error.
package currentuser

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/playbymail/ottoclient/pkg/apierror"
	"github.com/playbymail/ottoclient/pkg/session"
)

// profilePath is the endpoint serving the authenticated user's profile.
const profilePath = "/api/me"

// Profile is the user profile payload.
type Profile struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	Timezone string   `json:"timezone,omitempty"`
}

// Getter is the slice of the gateway the cache needs.
type Getter interface {
	Get(ctx context.Context, path string) (json.RawMessage, error)
}

// Cache holds the current user's profile. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	profile *Profile

	gw     Getter
	logger *slog.Logger
}

// New creates an empty profile cache.
func New(gw Getter, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		gw:     gw,
		logger: logger.With("component", "current_user"),
	}
}

// Attach subscribes the cache to the session manager's
// authentication-changed notifications and returns the unsubscribe
// function.
func (c *Cache) Attach(m *session.Manager) func() {
	return m.Subscribe(func(change session.Change) {
		switch change.Current {
		case session.StatusAuthenticated:
			if err := c.Load(context.Background()); err != nil {
				// Degraded profile, not a logout. See the load
				// contract.
				c.logger.Warn("profile refresh after login failed", "error", err)
			}
		case session.StatusAnonymous:
			c.clear()
		}
	})
}

// Load fetches the profile and stores it. Each call issues its own
// request; refreshes are not deduplicated. On failure the previous
// cached value stays in place and the error is returned to the caller.
func (c *Cache) Load(ctx context.Context) error {
	raw, err := c.gw.Get(ctx, profilePath)
	if err != nil {
		return err
	}
	var profile Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return apierror.Server(0, "profile payload is not valid JSON")
	}

	c.mu.Lock()
	c.profile = &profile
	c.mu.Unlock()

	c.logger.Debug("profile loaded", "user_id", profile.ID, "username", profile.Username)
	return nil
}

// Current returns the cached profile, or nil when no profile is
// cached.
func (c *Cache) Current() *Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile
}

// clear drops the cached profile without a network call.
func (c *Cache) clear() {
	c.mu.Lock()
	c.profile = nil
	c.mu.Unlock()
	c.logger.Debug("profile cleared")
}
