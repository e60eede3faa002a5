// Package roles defines the closed set of role names understood by the
// client and the implication relation between them.
//
// The server reports roles as strings; everything past the parse
// boundary works with the Role enumeration so that a typo'd role check
// is a compile error, not a silently-false condition.
package roles

import "sort"

// Role is one of the closed set of roles the backend can grant.
type Role int

const (
	// RoleUser is the ordinary player role. Every authenticated
	// account holds it, directly or by implication.
	RoleUser Role = iota

	// RoleGM is the game-master role.
	RoleGM

	// RoleAdmin is the site administrator role.
	RoleAdmin
)

// roleNames maps roles to their wire names.
var roleNames = map[Role]string{
	RoleUser:  "user",
	RoleGM:    "gm",
	RoleAdmin: "admin",
}

// String returns the wire name of the role.
func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

// Parse maps a wire name to a Role. Unknown names (including the
// server's bare "authenticated" marker) return ok=false and are
// dropped by the caller.
func Parse(name string) (Role, bool) {
	switch name {
	case "user":
		return RoleUser, true
	case "gm":
		return RoleGM, true
	case "admin":
		return RoleAdmin, true
	default:
		return 0, false
	}
}

// implies lists, for each role, the roles it grants in addition to
// itself. Admins and game masters can do anything an ordinary user can.
var implies = map[Role][]Role{
	RoleAdmin: {RoleUser},
	RoleGM:    {RoleUser},
}

// Set is an immutable-by-convention set of directly granted roles.
type Set map[Role]struct{}

// NewSet builds a Set from wire names, dropping unknown names.
func NewSet(names ...string) Set {
	s := make(Set, len(names))
	for _, name := range names {
		if role, ok := Parse(name); ok {
			s[role] = struct{}{}
		}
	}
	return s
}

// Has reports whether the set grants role, either directly or through
// the implication table.
func (s Set) Has(role Role) bool {
	if _, ok := s[role]; ok {
		return true
	}
	for held := range s {
		for _, granted := range implies[held] {
			if granted == role {
				return true
			}
		}
	}
	return false
}

// Names returns the wire names of the directly held roles, sorted.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for role := range s {
		names = append(names, role.String())
	}
	sort.Strings(names)
	return names
}
