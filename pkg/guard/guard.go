// Package guard decides whether a navigation target is permitted under
// the current session.
//
// Decisions are pure functions of session state, recomputed on every
// navigation attempt and never cached: role and session state can
// change between attempts.
package guard

import (
	"github.com/playbymail/ottoclient/pkg/roles"
	"github.com/playbymail/ottoclient/pkg/routes"
	"github.com/playbymail/ottoclient/pkg/session"
)

// Decision is the ephemeral result of one navigation check.
type Decision struct {
	// Allowed reports whether navigation may proceed.
	Allowed bool

	// RedirectTo is the route to send the user to instead when
	// Allowed is false.
	RedirectTo routes.ID
}

// allow is the single allowed decision.
var allow = Decision{Allowed: true}

// Evaluate is the pure predicate: given the session status, the user,
// and the required role, produce a decision.
//
//   - Not authenticated: deny, redirect to the login entry point.
//   - Authenticated without the role (after implication): deny,
//     redirect to the landing area for the roles the user does hold.
//   - Otherwise: allow.
func Evaluate(status session.Status, user *session.User, required roles.Role) Decision {
	if status != session.StatusAuthenticated || user == nil {
		return Decision{Allowed: false, RedirectTo: routes.Login}
	}
	if !user.Roles.Has(required) {
		return Decision{Allowed: false, RedirectTo: routes.LandingFor(user.Roles)}
	}
	return allow
}

// Guard binds the predicate to a session manager so navigation code
// can ask about routes directly.
type Guard struct {
	sessions *session.Manager
}

// New creates a guard reading state from the session manager.
func New(sessions *session.Manager) *Guard {
	return &Guard{sessions: sessions}
}

// Check evaluates the required role against the current session state.
func (g *Guard) Check(required roles.Role) Decision {
	return Evaluate(g.sessions.Status(), g.sessions.CurrentUser(), required)
}

// Route evaluates a navigation attempt to the given route. Public
// routes are always allowed; unknown routes are denied with a redirect
// to the login entry point.
func (g *Guard) Route(id routes.ID) Decision {
	route, ok := routes.Lookup(id)
	if !ok {
		return Decision{Allowed: false, RedirectTo: routes.Login}
	}
	if route.Requires == nil {
		return allow
	}
	return g.Check(*route.Requires)
}
