// Package rbac holds the static role hierarchy and permission tables used to
// gate the administrative tooling. Every function here is pure.
package rbac

import "strings"

// Role is a closed enumeration of profile roles. The zero value is
// RoleUnknown, which is treated as the most restricted role everywhere.
type Role uint8

const (
	RoleUnknown Role = iota
	RoleUser
	RoleAnalyst
	RoleContentModerator
	RoleSuperAdmin
)

var roleNames = map[Role]string{
	RoleUser:             "user",
	RoleAnalyst:          "analyst",
	RoleContentModerator: "content_moderator",
	RoleSuperAdmin:       "super_admin",
}

// Roles lists the known roles in ascending hierarchy order.
func Roles() []Role {
	return []Role{RoleUser, RoleAnalyst, RoleContentModerator, RoleSuperAdmin}
}

// ParseRole maps a stored role name to a Role. Anything unrecognised,
// including the empty string, becomes RoleUnknown.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return RoleUser
	case "analyst":
		return RoleAnalyst
	case "content_moderator":
		return RoleContentModerator
	case "super_admin":
		return RoleSuperAdmin
	default:
		return RoleUnknown
	}
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether r is one of the four assignable roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	*r = ParseRole(string(text))
	return nil
}

// HierarchyLevel returns the rank of a role: user=0, analyst=1,
// content_moderator=2, super_admin=3. Unknown roles rank with user.
func HierarchyLevel(r Role) int {
	switch r {
	case RoleAnalyst:
		return 1
	case RoleContentModerator:
		return 2
	case RoleSuperAdmin:
		return 3
	case RoleUser:
		return 0
	default:
		return 0
	}
}

// AtLeast reports whether r ranks at or above min. An unknown actor only
// satisfies a user-level minimum.
func AtLeast(r Role, min Role) bool {
	return HierarchyLevel(r) >= HierarchyLevel(min)
}

// CanModify reports whether an actor may change another profile's role or
// status. super_admin may modify anyone, itself included. content_moderator
// may modify strictly lower roles only. Nobody else may modify anyone.
func CanModify(actor, target Role) bool {
	switch actor {
	case RoleSuperAdmin:
		return true
	case RoleContentModerator:
		return HierarchyLevel(actor) > HierarchyLevel(target)
	case RoleUser, RoleAnalyst, RoleUnknown:
		return false
	default:
		return false
	}
}
