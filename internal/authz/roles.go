// Package authz implements role, permission and plan-feature based
// authorization for the Omnichat admin console. All decisions flow through a
// single Engine so precedence rules live in exactly one place.
package authz

import "fmt"

// Role represents a user role in the system. Roles form a total order by
// level; they are fixed at compile time and never created at runtime.
type Role string

const (
	// RoleRootOwner is the platform owner. It bypasses every check.
	RoleRootOwner Role = "root_owner"
	// RoleSuperAdmin is the platform operations role with all permissions.
	RoleSuperAdmin Role = "super_admin"
	// RoleOwner owns a workspace and manages everything inside it.
	RoleOwner Role = "owner"
	// RoleManager runs day-to-day operations of a workspace.
	RoleManager Role = "manager"
	// RoleAgent handles conversations and bot interactions.
	RoleAgent Role = "agent"
	// RoleViewer has read-only access to workspace data.
	RoleViewer Role = "viewer"
	// RoleClient is an external end user with portal access only.
	RoleClient Role = "client"
)

// AllRoles lists every valid role, highest privilege first.
var AllRoles = []Role{
	RoleRootOwner,
	RoleSuperAdmin,
	RoleOwner,
	RoleManager,
	RoleAgent,
	RoleViewer,
	RoleClient,
}

// roleLevels defines the privilege order (higher = more privileged).
// root_owner (6) > super_admin (5) > owner (4) > manager (3) > agent (2) >
// viewer (1) > client (0).
var roleLevels = map[Role]int{
	RoleRootOwner:  6,
	RoleSuperAdmin: 5,
	RoleOwner:      4,
	RoleManager:    3,
	RoleAgent:      2,
	RoleViewer:     1,
	RoleClient:     0,
}

// UnknownRoleError reports a role value outside the closed role set. Lookups
// never coerce an unknown role to a default; masking a misconfiguration as
// "no access" would hide the bug.
type UnknownRoleError struct {
	Role Role
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("authz: unknown role %q", string(e.Role))
}

// IsValidRole reports whether role is in the closed role set.
func IsValidRole(role Role) bool {
	_, ok := roleLevels[role]
	return ok
}

// ParseRole converts a string into a Role, rejecting anything outside the
// closed set.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !IsValidRole(r) {
		return "", &UnknownRoleError{Role: r}
	}
	return r, nil
}

// LevelOf returns the hierarchy level of a role.
func (c *Catalog) LevelOf(role Role) (int, error) {
	level, ok := c.levels[role]
	if !ok {
		return 0, &UnknownRoleError{Role: role}
	}
	return level, nil
}

// IsAtLeast reports whether role sits at or above min in the hierarchy.
func (c *Catalog) IsAtLeast(role, min Role) (bool, error) {
	a, err := c.LevelOf(role)
	if err != nil {
		return false, err
	}
	b, err := c.LevelOf(min)
	if err != nil {
		return false, err
	}
	return a >= b, nil
}

// Compare orders two roles: -1 if a is lower than b, 0 if equal, 1 if higher.
func (c *Catalog) Compare(a, b Role) (int, error) {
	la, err := c.LevelOf(a)
	if err != nil {
		return 0, err
	}
	lb, err := c.LevelOf(b)
	if err != nil {
		return 0, err
	}
	switch {
	case la < lb:
		return -1, nil
	case la > lb:
		return 1, nil
	default:
		return 0, nil
	}
}
