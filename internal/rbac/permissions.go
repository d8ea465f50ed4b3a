package rbac

import "strings"

// Permission is a single fine-grained capability, independent of hierarchy level.
type Permission uint8

const (
	PermViewUsers Permission = iota
	PermModifyUserRole
	PermModifyUserStatus
	PermViewAnalytics
	PermViewAPIUsage
	PermViewSystemHealth
	PermModerateContent
	PermViewAnalyses
	PermCreateAnalyses
	PermEditAnalyses
	PermDeleteAnalyses

	permissionCount
)

var permissionNames = [permissionCount]string{
	PermViewUsers:        "view_users",
	PermModifyUserRole:   "modify_user_role",
	PermModifyUserStatus: "modify_user_status",
	PermViewAnalytics:    "view_analytics",
	PermViewAPIUsage:     "view_api_usage",
	PermViewSystemHealth: "view_system_health",
	PermModerateContent:  "moderate_content",
	PermViewAnalyses:     "view_analyses",
	PermCreateAnalyses:   "create_analyses",
	PermEditAnalyses:     "edit_analyses",
	PermDeleteAnalyses:   "delete_analyses",
}

func (p Permission) String() string {
	if p < permissionCount {
		return permissionNames[p]
	}
	return "unknown"
}

// ParsePermission resolves a permission by name.
func ParsePermission(s string) (Permission, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range permissionNames {
		if name == s {
			return Permission(i), true
		}
	}
	return 0, false
}

// mask is a bitset over Permission values.
type mask uint32

func (m mask) has(p Permission) bool {
	if p >= permissionCount {
		return false
	}
	return m&(1<<p) != 0
}

func maskOf(perms ...Permission) mask {
	var m mask
	for _, p := range perms {
		m |= 1 << p
	}
	return m
}

var analysesMask = maskOf(PermViewAnalyses, PermCreateAnalyses, PermEditAnalyses, PermDeleteAnalyses)

// rolePermissions is the static role -> permission table. Base users keep
// create/edit/delete on analyses; those apply to their own analyses in the
// backend.
var rolePermissions = map[Role]mask{
	RoleUser: analysesMask,
	RoleAnalyst: analysesMask |
		maskOf(PermViewAnalytics, PermViewAPIUsage),
	RoleContentModerator: analysesMask |
		maskOf(PermViewAnalytics, PermViewAPIUsage, PermViewUsers, PermModifyUserStatus, PermModerateContent),
	RoleSuperAdmin: analysesMask |
		maskOf(PermViewAnalytics, PermViewAPIUsage, PermViewUsers, PermModifyUserRole,
			PermModifyUserStatus, PermViewSystemHealth, PermModerateContent),
}

// HasPermission reports whether role grants p. Unknown roles and unlisted
// permissions are denied.
func HasPermission(role Role, p Permission) bool {
	m, ok := rolePermissions[role]
	if !ok {
		return false
	}
	return m.has(p)
}

// PermissionsFor lists the permissions granted to role in declaration order.
func PermissionsFor(role Role) []Permission {
	m, ok := rolePermissions[role]
	if !ok {
		return nil
	}
	out := make([]Permission, 0, permissionCount)
	for p := Permission(0); p < permissionCount; p++ {
		if m.has(p) {
			out = append(out, p)
		}
	}
	return out
}
