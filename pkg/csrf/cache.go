// Package csrf caches the session-scoped CSRF token issued by the
// backend and deduplicates concurrent acquisitions.
//
// The token is an opaque string; the cache never inspects it. Scope is
// one server session: the session manager clears the cache whenever the
// client returns to the anonymous state.
package csrf

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Fetcher retrieves a fresh token from the server. The gateway supplies
// one backed by the session-status endpoint.
type Fetcher func(ctx context.Context) (string, error)

// Cache holds at most one token and at most one in-flight acquisition.
//
// All concurrent callers of GetOrFetch while the cache is empty attach
// to the same fetch and observe the same value or the same failure. A
// failed fetch leaves the cache empty so the next call retries.
type Cache struct {
	mu    sync.Mutex
	token string

	group  singleflight.Group
	fetch  Fetcher
	logger *slog.Logger
}

// NewCache creates a token cache around fetch.
func NewCache(fetch Fetcher, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		fetch:  fetch,
		logger: logger.With("component", "csrf_cache"),
	}
}

// GetOrFetch returns the cached token, or fetches one if the cache is
// empty. Concurrent callers share a single network fetch.
func (c *Cache) GetOrFetch(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	v, err, shared := c.group.Do("token", func() (any, error) {
		// Detach from the first caller's context: waiters attached to
		// this flight must not fail because that one caller went away.
		token, err := c.fetch(context.WithoutCancel(ctx))
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.token = token
		c.mu.Unlock()
		return token, nil
	})
	if err != nil {
		c.logger.Debug("token fetch failed", "error", err)
		return "", err
	}
	if shared {
		c.logger.Debug("token fetch shared with concurrent callers")
	}
	return v.(string), nil
}

// Clear discards the cached token. An in-flight fetch is not cancelled;
// it is allowed to complete and populate a fresh entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// Cached returns the current token without fetching, for tests and
// introspection. Empty string means no token is cached.
func (c *Cache) Cached() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}
