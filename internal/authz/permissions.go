package authz

import (
	"fmt"
	"strings"
)

// Resource identifies a protected resource class.
type Resource string

const (
	ResourceUsers         Resource = "users"
	ResourceBots          Resource = "bots"
	ResourceConversations Resource = "conversations"
	ResourceAnalytics     Resource = "analytics"
	ResourceBilling       Resource = "billing"
	ResourceSettings      Resource = "settings"
	ResourceIntegrations  Resource = "integrations"
	ResourceBroadcasts    Resource = "broadcasts"
	ResourcePolls         Resource = "polls"
	ResourceFlows         Resource = "flows"
	ResourceTemplates     Resource = "templates"
	ResourceChannels      Resource = "channels"
	ResourceWebhooks      Resource = "webhooks"
	ResourceAPIKeys       Resource = "api_keys"
	ResourceTeam          Resource = "team"
	ResourceRoles         Resource = "roles"
	ResourceAuditLogs     Resource = "audit_logs"

	// ResourceAll is the wildcard resource used only in the synthetic
	// all-permissions grant held by the two topmost roles.
	ResourceAll Resource = "*"
)

// AllResources lists every concrete resource (the wildcard excluded).
var AllResources = []Resource{
	ResourceUsers,
	ResourceBots,
	ResourceConversations,
	ResourceAnalytics,
	ResourceBilling,
	ResourceSettings,
	ResourceIntegrations,
	ResourceBroadcasts,
	ResourcePolls,
	ResourceFlows,
	ResourceTemplates,
	ResourceChannels,
	ResourceWebhooks,
	ResourceAPIKeys,
	ResourceTeam,
	ResourceRoles,
	ResourceAuditLogs,
}

// Action identifies an operation on a resource.
type Action string

const (
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionManage  Action = "manage"
	ActionInvite  Action = "invite"
	ActionExport  Action = "export"
	ActionImport  Action = "import"
	ActionExecute Action = "execute"
	ActionApprove Action = "approve"
	ActionSuspend Action = "suspend"

	// ActionAll is the wildcard action counterpart of ResourceAll.
	ActionAll Action = "*"
)

// AllActions lists every concrete action (the wildcard excluded).
var AllActions = []Action{
	ActionCreate,
	ActionRead,
	ActionUpdate,
	ActionDelete,
	ActionManage,
	ActionInvite,
	ActionExport,
	ActionImport,
	ActionExecute,
	ActionApprove,
	ActionSuspend,
}

var (
	validResources = func() map[Resource]struct{} {
		m := make(map[Resource]struct{}, len(AllResources))
		for _, r := range AllResources {
			m[r] = struct{}{}
		}
		return m
	}()
	validActions = func() map[Action]struct{} {
		m := make(map[Action]struct{}, len(AllActions))
		for _, a := range AllActions {
			m[a] = struct{}{}
		}
		return m
	}()
)

// IsValidResource reports whether r is a concrete resource.
func IsValidResource(r Resource) bool {
	_, ok := validResources[r]
	return ok
}

// IsValidAction reports whether a is a concrete action.
func IsValidAction(a Action) bool {
	_, ok := validActions[a]
	return ok
}

// Permission is a (resource, action) capability grant.
type Permission struct {
	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
}

// PermissionAll is the synthetic all-resources all-actions grant held by
// root_owner and super_admin instead of enumerating every resource.
var PermissionAll = Permission{Resource: ResourceAll, Action: ActionAll}

// String returns the permission in the "resource:action" wire format.
func (p Permission) String() string {
	return fmt.Sprintf("%s:%s", p.Resource, p.Action)
}

// ParsePermission parses a "resource:action" string into a Permission,
// rejecting unknown resources and actions.
func ParsePermission(s string) (Permission, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return Permission{}, fmt.Errorf("authz: invalid permission format %q", s)
	}
	p := Permission{Resource: Resource(parts[0]), Action: Action(parts[1])}
	if p == PermissionAll {
		return p, nil
	}
	if !IsValidResource(p.Resource) {
		return Permission{}, fmt.Errorf("authz: unknown resource %q", parts[0])
	}
	if !IsValidAction(p.Action) {
		return Permission{}, fmt.Errorf("authz: unknown action %q", parts[1])
	}
	return p, nil
}

// Condition is a record-scoped predicate hook attached to a grant
// (e.g. "own workspace only"). Present in the data model for forward
// compatibility; current decision logic does not evaluate conditions.
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// Grant is a permission as authored in the role tables, optionally carrying
// conditions.
type Grant struct {
	Permission
	Conditions []Condition `json:"conditions,omitempty"`
}

// defaultGrants defines the permission set for each role. Tables are authored
// independently per role; TestRoleDominanceChain verifies that each role
// semantically dominates the roles below it (client excluded, see below).
//
// root_owner and super_admin hold the single wildcard grant rather than
// enumerating every resource.
var defaultGrants = map[Role][]Grant{
	RoleRootOwner: {
		{Permission: PermissionAll},
	},
	RoleSuperAdmin: {
		{Permission: PermissionAll},
	},

	// Owner manages everything inside the workspace. manage dominates all
	// other actions on the same resource.
	RoleOwner: {
		{Permission: Permission{ResourceUsers, ActionManage}},
		{Permission: Permission{ResourceBots, ActionManage}},
		{Permission: Permission{ResourceConversations, ActionManage}},
		{Permission: Permission{ResourceAnalytics, ActionManage}},
		{Permission: Permission{ResourceBilling, ActionManage}},
		{Permission: Permission{ResourceSettings, ActionManage}},
		{Permission: Permission{ResourceIntegrations, ActionManage}},
		{Permission: Permission{ResourceBroadcasts, ActionManage}},
		{Permission: Permission{ResourcePolls, ActionManage}},
		{Permission: Permission{ResourceFlows, ActionManage}},
		{Permission: Permission{ResourceTemplates, ActionManage}},
		{Permission: Permission{ResourceChannels, ActionManage}},
		{Permission: Permission{ResourceWebhooks, ActionManage}},
		{Permission: Permission{ResourceAPIKeys, ActionManage}},
		{Permission: Permission{ResourceTeam, ActionManage}},
		{Permission: Permission{ResourceRoles, ActionManage}},
		{Permission: Permission{ResourceAuditLogs, ActionManage}},
	},

	// Manager runs operations: full control of conversational resources,
	// read-level visibility elsewhere. No billing, no roles, no API keys.
	RoleManager: {
		{Permission: Permission{ResourceConversations, ActionManage}},
		{Permission: Permission{ResourceBots, ActionManage}},
		{Permission: Permission{ResourceBroadcasts, ActionManage}},
		{Permission: Permission{ResourcePolls, ActionManage}},
		{Permission: Permission{ResourceFlows, ActionManage}},
		{Permission: Permission{ResourceTemplates, ActionManage}},
		{Permission: Permission{ResourceChannels, ActionManage}},
		{Permission: Permission{ResourceAnalytics, ActionRead}},
		{Permission: Permission{ResourceAnalytics, ActionExport}},
		{Permission: Permission{ResourceUsers, ActionRead}},
		{Permission: Permission{ResourceTeam, ActionRead}},
		{Permission: Permission{ResourceTeam, ActionInvite}},
		{Permission: Permission{ResourceIntegrations, ActionRead}},
		{Permission: Permission{ResourceWebhooks, ActionRead}},
		{Permission: Permission{ResourceSettings, ActionRead}},
	},

	// Agent works the inbox: read plus conversation handling.
	RoleAgent: {
		{Permission: Permission{ResourceConversations, ActionRead}},
		{Permission: Permission{ResourceConversations, ActionUpdate}},
		{Permission: Permission{ResourceConversations, ActionExecute}},
		{Permission: Permission{ResourceBots, ActionRead}},
		{Permission: Permission{ResourceBots, ActionExecute}},
		{Permission: Permission{ResourceTemplates, ActionRead}},
		{Permission: Permission{ResourceTemplates, ActionCreate}},
		{Permission: Permission{ResourceBroadcasts, ActionRead}},
		{Permission: Permission{ResourcePolls, ActionRead}},
		{Permission: Permission{ResourceFlows, ActionRead}},
		{Permission: Permission{ResourceChannels, ActionRead}},
		{Permission: Permission{ResourceAnalytics, ActionRead}},
		{Permission: Permission{ResourceTeam, ActionRead}},
	},

	// Viewer gets read-only dashboards.
	RoleViewer: {
		{Permission: Permission{ResourceConversations, ActionRead}},
		{Permission: Permission{ResourceBots, ActionRead}},
		{Permission: Permission{ResourceTemplates, ActionRead}},
		{Permission: Permission{ResourceBroadcasts, ActionRead}},
		{Permission: Permission{ResourcePolls, ActionRead}},
		{Permission: Permission{ResourceFlows, ActionRead}},
		{Permission: Permission{ResourceChannels, ActionRead}},
		{Permission: Permission{ResourceAnalytics, ActionRead}},
		{Permission: Permission{ResourceTeam, ActionRead}},
	},

	// Client is an external portal user, not part of the staff dominance
	// chain. Clients open and read their own conversations; the "own
	// workspace" restriction is carried as a condition hook.
	RoleClient: {
		{
			Permission: Permission{ResourceConversations, ActionRead},
			Conditions: []Condition{{Field: "workspace_id", Operator: "eq", Value: "principal.workspace_id"}},
		},
		{
			Permission: Permission{ResourceConversations, ActionCreate},
			Conditions: []Condition{{Field: "workspace_id", Operator: "eq", Value: "principal.workspace_id"}},
		},
		{Permission: Permission{ResourcePolls, ActionRead}},
	},
}

// PermissionsFor returns the effective permission set for a role. The
// wildcard grant expands to every concrete (resource, action) pair; manage
// grants are returned as authored (dominance is applied by HasPermission).
func (c *Catalog) PermissionsFor(role Role) ([]Permission, error) {
	grants, ok := c.grants[role]
	if !ok {
		return nil, &UnknownRoleError{Role: role}
	}

	seen := make(map[Permission]struct{})
	var perms []Permission
	add := func(p Permission) {
		if _, dup := seen[p]; dup {
			return
		}
		seen[p] = struct{}{}
		perms = append(perms, p)
	}

	for _, g := range grants {
		if g.Permission == PermissionAll {
			for _, r := range AllResources {
				for _, a := range AllActions {
					add(Permission{Resource: r, Action: a})
				}
			}
			continue
		}
		add(g.Permission)
	}
	return perms, nil
}

// GrantsFor returns the authored grant list for a role, including condition
// hooks. Callers must treat the result as read-only.
func (c *Catalog) GrantsFor(role Role) ([]Grant, error) {
	grants, ok := c.grants[role]
	if !ok {
		return nil, &UnknownRoleError{Role: role}
	}
	return grants, nil
}

// HasPermission reports whether role may perform action on resource.
// The wildcard grant short-circuits to true before any other lookup; a
// manage grant on the resource dominates every other action on it.
func (c *Catalog) HasPermission(role Role, resource Resource, action Action) (bool, error) {
	grants, ok := c.grants[role]
	if !ok {
		return false, &UnknownRoleError{Role: role}
	}
	return grantSetAllows(grants, resource, action), nil
}

// grantSetAllows applies the wildcard and manage-dominance rules to a grant
// list. Shared by the catalog lookup and the principal override path so the
// two cannot drift.
func grantSetAllows(grants []Grant, resource Resource, action Action) bool {
	// Wildcard check comes first: its presence grants everything regardless
	// of the requested pair.
	for _, g := range grants {
		if g.Permission == PermissionAll {
			return true
		}
	}
	for _, g := range grants {
		if g.Resource != resource {
			continue
		}
		if g.Action == action {
			return true
		}
		if g.Action == ActionManage && action != ActionManage {
			return true
		}
	}
	return false
}
