// Package routes declares the navigable areas of the application and
// the role each one requires.
//
// The table is purely declarative: the guard package consumes it as
// "route X requires role Y". Rendering and URL handling live elsewhere.
package routes

import "github.com/playbymail/ottoclient/pkg/roles"

// ID names a navigation target.
type ID string

// Public routes.
const (
	Login   ID = "login"
	About   ID = "about"
	Docs    ID = "docs"
	Privacy ID = "privacy"
)

// User-area routes.
const (
	UserDashboard ID = "user.dashboard"
	UserReports   ID = "user.reports"
	UserMaps      ID = "user.maps"
	UserSettings  ID = "user.settings"
	UserProfile   ID = "user.profile"
)

// GM-area routes.
const (
	GMDashboard        ID = "gm.dashboard"
	GMTurnReportUpload ID = "gm.turn-report-files.upload"
)

// Admin-area routes.
const (
	AdminDashboard ID = "admin.dashboard"
	AdminUsers     ID = "admin.users.index"
	AdminUserNew   ID = "admin.users.new"
	AdminUserEdit  ID = "admin.users.edit"
	AdminSettings  ID = "admin.settings"
)

// Route is one entry of the declarative route table.
type Route struct {
	ID   ID
	Path string

	// Requires is the role needed to enter the route; nil means the
	// route is public.
	Requires *roles.Role
}

func requires(r roles.Role) *roles.Role { return &r }

// table lists every navigable route. Order matches the original
// navigation structure: public, admin, gm, user.
var table = []Route{
	{ID: Login, Path: "/login"},
	{ID: About, Path: "/about"},
	{ID: Docs, Path: "/docs"},
	{ID: Privacy, Path: "/privacy"},

	{ID: AdminDashboard, Path: "/admin", Requires: requires(roles.RoleAdmin)},
	{ID: AdminUsers, Path: "/admin/users", Requires: requires(roles.RoleAdmin)},
	{ID: AdminUserNew, Path: "/admin/users/new", Requires: requires(roles.RoleAdmin)},
	{ID: AdminUserEdit, Path: "/admin/users/edit", Requires: requires(roles.RoleAdmin)},
	{ID: AdminSettings, Path: "/admin/settings", Requires: requires(roles.RoleAdmin)},

	{ID: GMDashboard, Path: "/gm", Requires: requires(roles.RoleGM)},
	{ID: GMTurnReportUpload, Path: "/gm/turn-report-files/upload", Requires: requires(roles.RoleGM)},

	{ID: UserDashboard, Path: "/user", Requires: requires(roles.RoleUser)},
	{ID: UserReports, Path: "/user/reports", Requires: requires(roles.RoleUser)},
	{ID: UserMaps, Path: "/user/maps", Requires: requires(roles.RoleUser)},
	{ID: UserSettings, Path: "/user/settings", Requires: requires(roles.RoleUser)},
	{ID: UserProfile, Path: "/user/profile", Requires: requires(roles.RoleUser)},
}

// Table returns a copy of the route table.
func Table() []Route {
	out := make([]Route, len(table))
	copy(out, table)
	return out
}

// Lookup returns the route with the given ID.
func Lookup(id ID) (Route, bool) {
	for _, r := range table {
		if r.ID == id {
			return r, true
		}
	}
	return Route{}, false
}

// LandingFor returns the default landing route for a role set: the
// most privileged area the user can enter.
func LandingFor(set roles.Set) ID {
	switch {
	case set.Has(roles.RoleAdmin):
		return AdminDashboard
	case set.Has(roles.RoleGM):
		return GMDashboard
	default:
		return UserDashboard
	}
}
