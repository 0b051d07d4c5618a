package authz

import "fmt"

// Principal is the authenticated actor whose access is being evaluated.
// It is constructed once per session by the auth layer and is read-only for
// the lifetime of a request; the Engine never mutates it.
type Principal struct {
	ID          string   `json:"id"`
	Role        Role     `json:"role"`
	PlanTier    PlanTier `json:"plan_tier"`
	WorkspaceID string   `json:"workspace_id"`

	// Permissions, when non-empty, overrides the role's catalog set for
	// permission checks. The auth layer uses it to carry per-user grants
	// loaded alongside the session.
	Permissions []Grant `json:"permissions,omitempty"`

	// Features, when non-empty, overrides the tier's catalog set. Used as a
	// session-scoped cache of the workspace's entitlements.
	Features []Feature `json:"features,omitempty"`
}

// Requirement describes what a protected resource demands. A zero field
// means no constraint of that kind.
type Requirement struct {
	// RequiredRole demands an exact role match (subject to the super-admin
	// carve-out evaluated by the Engine).
	RequiredRole Role `json:"required_role,omitempty"`
	// MinRole demands a role at or above this role's level.
	MinRole Role `json:"min_role,omitempty"`
	// RequiredPermissions must all be held.
	RequiredPermissions []Permission `json:"required_permissions,omitempty"`
	// RequiredFeatures must all be enabled on the principal's plan.
	RequiredFeatures []Feature `json:"required_features,omitempty"`
}

// InvalidRequirementError reports a Requirement referencing a role,
// permission or feature outside the closed sets. This is a programmer
// error; it is never downgraded to a denial.
type InvalidRequirementError struct {
	Reason string
}

func (e *InvalidRequirementError) Error() string {
	return fmt.Sprintf("authz: invalid requirement: %s", e.Reason)
}

// Denial reasons reported in Result.Reason.
const (
	ReasonGranted             = "access granted"
	ReasonRoleMismatch        = "role does not match the required role"
	ReasonRoleBelowMinimum    = "role is below the required level"
	ReasonMissingPermissions  = "one or more required permissions are missing"
	ReasonMissingFeatures     = "current plan does not include one or more required features"
	ReasonMissingPermsAndFeat = "required permissions are missing and the current plan lacks required features"
)

// Result is the outcome of an authorization evaluation. A denial is always
// fully populated so callers can present a specific, actionable message.
type Result struct {
	CanAccess          bool         `json:"can_access"`
	Reason             string       `json:"reason"`
	MissingPermissions []Permission `json:"missing_permissions,omitempty"`
	MissingFeatures    []Feature    `json:"missing_features,omitempty"`
	InsufficientRole   bool         `json:"insufficient_role,omitempty"`
}

// Engine evaluates requirements against principals over an injected catalog.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	catalog *Catalog
}

// NewEngine returns an Engine over the given catalog.
func NewEngine(catalog *Catalog) *Engine {
	return &Engine{catalog: catalog}
}

// Catalog returns the engine's catalog.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// Evaluate decides whether principal satisfies req.
//
// The precedence order is deliberate and security relevant:
//
//  1. root bypass
//  2. exact required role (with the super-admin carve-out)
//  3. minimum role level
//  4. required permissions (all missing ones collected)
//  5. required features (all missing ones collected)
//
// A denial is returned as a Result, never as an error. Errors are reserved
// for misconfiguration: an invalid requirement or an unknown role/tier on
// the principal.
func (e *Engine) Evaluate(principal Principal, req Requirement) (Result, error) {
	if err := e.validateRequirement(req); err != nil {
		return Result{}, err
	}
	if !IsValidRole(principal.Role) {
		return Result{}, &UnknownRoleError{Role: principal.Role}
	}

	// 1. Root bypass: the topmost role passes every check unconditionally.
	if principal.Role == RoleRootOwner {
		return Result{CanAccess: true, Reason: ReasonGranted}, nil
	}

	// 2. Exact role requirement. A super_admin principal also satisfies the
	// check when the requirement names super_admin in either role field.
	if req.RequiredRole != "" && principal.Role != req.RequiredRole {
		carveOut := principal.Role == RoleSuperAdmin &&
			(req.RequiredRole == RoleSuperAdmin || req.MinRole == RoleSuperAdmin)
		if !carveOut {
			return Result{
				Reason:           ReasonRoleMismatch,
				InsufficientRole: true,
			}, nil
		}
	}

	// 3. Minimum role level.
	if req.MinRole != "" {
		ok, err := e.catalog.IsAtLeast(principal.Role, req.MinRole)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return Result{
				Reason:           ReasonRoleBelowMinimum,
				InsufficientRole: true,
			}, nil
		}
	}

	// 4 + 5. Permissions and features are both evaluated before denying so
	// the result carries every missing item across both categories.
	var missingPerms []Permission
	for _, perm := range req.RequiredPermissions {
		held, err := e.principalHasPermission(principal, perm)
		if err != nil {
			return Result{}, err
		}
		if !held {
			missingPerms = append(missingPerms, perm)
		}
	}

	var missingFeatures []Feature
	for _, feature := range req.RequiredFeatures {
		enabled, err := e.principalHasFeature(principal, feature)
		if err != nil {
			return Result{}, err
		}
		if !enabled {
			missingFeatures = append(missingFeatures, feature)
		}
	}

	if len(missingPerms) > 0 || len(missingFeatures) > 0 {
		reason := ReasonMissingPermissions
		switch {
		case len(missingPerms) > 0 && len(missingFeatures) > 0:
			reason = ReasonMissingPermsAndFeat
		case len(missingFeatures) > 0:
			reason = ReasonMissingFeatures
		}
		return Result{
			Reason:             reason,
			MissingPermissions: missingPerms,
			MissingFeatures:    missingFeatures,
		}, nil
	}

	return Result{CanAccess: true, Reason: ReasonGranted}, nil
}

// principalHasPermission checks the principal's override set when present,
// otherwise the role's catalog set. Both paths apply wildcard and manage
// dominance identically.
func (e *Engine) principalHasPermission(p Principal, perm Permission) (bool, error) {
	if len(p.Permissions) > 0 {
		return grantSetAllows(p.Permissions, perm.Resource, perm.Action), nil
	}
	return e.catalog.HasPermission(p.Role, perm.Resource, perm.Action)
}

// principalHasFeature checks the session feature cache when present,
// otherwise the tier's catalog set.
func (e *Engine) principalHasFeature(p Principal, feature Feature) (bool, error) {
	if len(p.Features) > 0 {
		for _, f := range p.Features {
			if f == feature {
				return true, nil
			}
		}
		return false, nil
	}
	return e.catalog.HasFeature(p.PlanTier, feature)
}

// validateRequirement fails fast on any reference outside the closed sets.
func (e *Engine) validateRequirement(req Requirement) error {
	if req.RequiredRole != "" && !IsValidRole(req.RequiredRole) {
		return &InvalidRequirementError{Reason: fmt.Sprintf("required role %q is not a known role", req.RequiredRole)}
	}
	if req.MinRole != "" && !IsValidRole(req.MinRole) {
		return &InvalidRequirementError{Reason: fmt.Sprintf("minimum role %q is not a known role", req.MinRole)}
	}
	for _, p := range req.RequiredPermissions {
		if p == PermissionAll {
			continue
		}
		if !IsValidResource(p.Resource) {
			return &InvalidRequirementError{Reason: fmt.Sprintf("permission %q references unknown resource", p)}
		}
		if !IsValidAction(p.Action) {
			return &InvalidRequirementError{Reason: fmt.Sprintf("permission %q references unknown action", p)}
		}
	}
	for _, f := range req.RequiredFeatures {
		if !IsValidFeature(f) {
			return &InvalidRequirementError{Reason: fmt.Sprintf("feature %q is not a known feature", f)}
		}
	}
	return nil
}
