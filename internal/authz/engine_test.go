package authz

import (
	"errors"
	"testing"
)

func newTestEngine() *Engine {
	return NewEngine(NewCatalog())
}

// Root bypass: root_owner passes every well-formed requirement, including
// ones no other role could satisfy.
func TestRootBypass(t *testing.T) {
	e := newTestEngine()
	principal := Principal{ID: "u1", Role: RoleRootOwner, PlanTier: TierStarter}

	requirements := []Requirement{
		{},
		{RequiredRole: RoleSuperAdmin},
		{MinRole: RoleSuperAdmin},
		{RequiredPermissions: []Permission{{ResourceBilling, ActionManage}}},
		{RequiredFeatures: []Feature{FeatureCustomRoles, FeatureSSOSCIM}},
		{
			RequiredRole:        RoleOwner,
			MinRole:             RoleSuperAdmin,
			RequiredPermissions: []Permission{{ResourceRoles, ActionManage}},
			RequiredFeatures:    []Feature{FeatureWhiteLabel},
		},
	}
	for i, req := range requirements {
		result, err := e.Evaluate(principal, req)
		if err != nil {
			t.Fatalf("requirement %d: Evaluate returned error: %v", i, err)
		}
		if !result.CanAccess {
			t.Errorf("requirement %d: root_owner should bypass, got denial %q", i, result.Reason)
		}
	}
}

func TestExactRoleRequirement(t *testing.T) {
	e := newTestEngine()

	// Matching role passes.
	result, err := e.Evaluate(Principal{Role: RoleSuperAdmin}, Requirement{RequiredRole: RoleSuperAdmin})
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if !result.CanAccess {
		t.Errorf("super_admin should satisfy requiredRole=super_admin: %q", result.Reason)
	}

	// Mismatched role denies with insufficientRole, even when the principal
	// outranks the required role.
	result, err = e.Evaluate(Principal{Role: RoleSuperAdmin}, Requirement{RequiredRole: RoleOwner})
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if result.CanAccess {
		t.Error("exact role check should not be satisfied by a higher role alone")
	}
	if !result.InsufficientRole {
		t.Error("role mismatch should set InsufficientRole")
	}
}

// The super-admin carve-out: super_admin satisfies an exact-role requirement
// whenever the requirement names super_admin in its role or min-role field.
func TestSuperAdminCarveOut(t *testing.T) {
	e := newTestEngine()
	principal := Principal{Role: RoleSuperAdmin}

	// Requirement demands owner exactly but sets min-role super_admin: the
	// carve-out grants access.
	result, err := e.Evaluate(principal, Requirement{RequiredRole: RoleOwner, MinRole: RoleSuperAdmin})
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if !result.CanAccess {
		t.Errorf("carve-out should admit super_admin when min-role is super_admin: %q", result.Reason)
	}

	// Without super_admin named anywhere, the exact check stands.
	result, _ = e.Evaluate(principal, Requirement{RequiredRole: RoleOwner, MinRole: RoleManager})
	if result.CanAccess {
		t.Error("carve-out must not apply when the requirement never names super_admin")
	}

	// The carve-out is specific to super_admin principals.
	result, _ = e.Evaluate(Principal{Role: RoleOwner}, Requirement{RequiredRole: RoleManager, MinRole: RoleSuperAdmin})
	if result.CanAccess {
		t.Error("owner must not benefit from the super admin carve-out")
	}
}

func TestMinRoleRequirement(t *testing.T) {
	e := newTestEngine()
	tests := []struct {
		role Role
		min  Role
		want bool
	}{
		{RoleViewer, RoleManager, false},
		{RoleManager, RoleManager, true},
		{RoleOwner, RoleManager, true},
		{RoleAgent, RoleOwner, false},
		{RoleClient, RoleViewer, false},
	}
	for _, tt := range tests {
		result, err := e.Evaluate(Principal{Role: tt.role}, Requirement{MinRole: tt.min})
		if err != nil {
			t.Fatalf("Evaluate(%v, min=%v) returned error: %v", tt.role, tt.min, err)
		}
		if result.CanAccess != tt.want {
			t.Errorf("Evaluate(%v, min=%v).CanAccess = %v, want %v", tt.role, tt.min, result.CanAccess, tt.want)
		}
		if !tt.want && !result.InsufficientRole {
			t.Errorf("Evaluate(%v, min=%v) denial should set InsufficientRole", tt.role, tt.min)
		}
	}
}

// Completeness of missing lists: all failing permissions are reported, not
// just the first.
func TestMissingPermissionsComplete(t *testing.T) {
	e := newTestEngine()
	// Viewer holds conversations:read but neither billing:read nor users:suspend.
	req := Requirement{RequiredPermissions: []Permission{
		{ResourceConversations, ActionRead},
		{ResourceBilling, ActionRead},
		{ResourceUsers, ActionSuspend},
	}}
	result, err := e.Evaluate(Principal{Role: RoleViewer}, req)
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if result.CanAccess {
		t.Fatal("viewer should be denied")
	}
	if len(result.MissingPermissions) != 2 {
		t.Fatalf("MissingPermissions has %d entries, want 2: %v", len(result.MissingPermissions), result.MissingPermissions)
	}
	if result.InsufficientRole {
		t.Error("permission denial should not set InsufficientRole")
	}
}

// Mixed denial: both missing permission and missing feature lists populated
// in a single result.
func TestMissingPermissionsAndFeaturesBothReported(t *testing.T) {
	e := newTestEngine()
	req := Requirement{
		RequiredPermissions: []Permission{{ResourceBilling, ActionManage}},
		RequiredFeatures:    []Feature{FeatureSSOSCIM},
	}
	result, err := e.Evaluate(Principal{Role: RoleAgent, PlanTier: TierPro}, req)
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if result.CanAccess {
		t.Fatal("agent on pro should be denied")
	}
	if len(result.MissingPermissions) != 1 || len(result.MissingFeatures) != 1 {
		t.Errorf("both lists should be populated, got perms=%v features=%v",
			result.MissingPermissions, result.MissingFeatures)
	}
	if result.Reason != ReasonMissingPermsAndFeat {
		t.Errorf("reason = %q, want %q", result.Reason, ReasonMissingPermsAndFeat)
	}
}

func TestFeatureRequirement(t *testing.T) {
	e := newTestEngine()

	// Starter lacks advanced analytics.
	result, err := e.Evaluate(
		Principal{Role: RoleManager, PlanTier: TierStarter},
		Requirement{RequiredFeatures: []Feature{FeatureAdvancedAnalytics}},
	)
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if result.CanAccess {
		t.Fatal("starter plan should be denied advanced analytics")
	}
	if len(result.MissingFeatures) != 1 || result.MissingFeatures[0] != FeatureAdvancedAnalytics {
		t.Errorf("MissingFeatures = %v, want [advanced_analytics]", result.MissingFeatures)
	}

	// Enterprise passes.
	result, _ = e.Evaluate(
		Principal{Role: RoleManager, PlanTier: TierEnterprise},
		Requirement{RequiredFeatures: []Feature{FeatureAdvancedAnalytics}},
	)
	if !result.CanAccess {
		t.Errorf("enterprise plan should pass: %q", result.Reason)
	}
}

// Manage dominance reaches through the engine: owner's bots:manage satisfies
// a bots:manage requirement and every other bots action.
func TestEngineManageDominance(t *testing.T) {
	e := newTestEngine()
	for _, action := range []Action{ActionManage, ActionCreate, ActionDelete, ActionExecute} {
		result, err := e.Evaluate(
			Principal{Role: RoleOwner},
			Requirement{RequiredPermissions: []Permission{{ResourceBots, action}}},
		)
		if err != nil {
			t.Fatalf("Evaluate returned error: %v", err)
		}
		if !result.CanAccess {
			t.Errorf("owner should hold bots:%s via manage: %q", action, result.Reason)
		}
	}
}

// The principal's override set takes precedence over the role tables.
func TestPrincipalPermissionOverride(t *testing.T) {
	e := newTestEngine()
	principal := Principal{
		Role: RoleViewer,
		Permissions: []Grant{
			{Permission: Permission{ResourceBroadcasts, ActionManage}},
		},
	}

	// The override grants broadcasts via manage dominance...
	result, err := e.Evaluate(principal, Requirement{
		RequiredPermissions: []Permission{{ResourceBroadcasts, ActionCreate}},
	})
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if !result.CanAccess {
		t.Errorf("override set should grant broadcasts:create: %q", result.Reason)
	}

	// ...and replaces the role set entirely: the viewer's table read grants
	// no longer apply.
	result, _ = e.Evaluate(principal, Requirement{
		RequiredPermissions: []Permission{{ResourceConversations, ActionRead}},
	})
	if result.CanAccess {
		t.Error("override set should replace the role table, not extend it")
	}
}

// The session feature cache takes precedence over the tier tables.
func TestPrincipalFeatureCache(t *testing.T) {
	e := newTestEngine()
	principal := Principal{
		Role:     RoleManager,
		PlanTier: TierStarter,
		Features: []Feature{FeatureAdvancedAnalytics},
	}
	result, err := e.Evaluate(principal, Requirement{
		RequiredFeatures: []Feature{FeatureAdvancedAnalytics},
	})
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if !result.CanAccess {
		t.Errorf("cached features should satisfy the requirement: %q", result.Reason)
	}
}

// Denials never surface as errors; only malformed inputs do.
func TestDenialIsNotAnError(t *testing.T) {
	e := newTestEngine()
	_, err := e.Evaluate(
		Principal{Role: RoleClient, PlanTier: TierStarter},
		Requirement{
			RequiredRole:        RoleOwner,
			MinRole:             RoleOwner,
			RequiredPermissions: []Permission{{ResourceBilling, ActionManage}},
			RequiredFeatures:    []Feature{FeatureCustomGPT},
		},
	)
	if err != nil {
		t.Errorf("well-formed but unsatisfied requirement must not error: %v", err)
	}
}

func TestMalformedRequirementFailsFast(t *testing.T) {
	e := newTestEngine()
	principal := Principal{Role: RoleOwner, PlanTier: TierPro}

	var invalidErr *InvalidRequirementError
	cases := []Requirement{
		{RequiredRole: Role("emperor")},
		{MinRole: Role("emperor")},
		{RequiredPermissions: []Permission{{Resource("ghosts"), ActionRead}}},
		{RequiredPermissions: []Permission{{ResourceUsers, Action("teleport")}}},
		{RequiredFeatures: []Feature{Feature("time_travel")}},
	}
	for i, req := range cases {
		_, err := e.Evaluate(principal, req)
		if !errors.As(err, &invalidErr) {
			t.Errorf("case %d: expected *InvalidRequirementError, got %v", i, err)
		}
	}
}

// A malformed requirement fails even for root_owner: validation precedes the
// bypass because it flags a programmer error, not an access question.
func TestMalformedRequirementFailsForRoot(t *testing.T) {
	e := newTestEngine()
	_, err := e.Evaluate(Principal{Role: RoleRootOwner}, Requirement{MinRole: Role("emperor")})
	var invalidErr *InvalidRequirementError
	if !errors.As(err, &invalidErr) {
		t.Errorf("expected *InvalidRequirementError for root principal, got %v", err)
	}
}

func TestUnknownPrincipalRoleErrors(t *testing.T) {
	e := newTestEngine()
	_, err := e.Evaluate(Principal{Role: Role("ghost")}, Requirement{MinRole: RoleViewer})
	var unknownErr *UnknownRoleError
	if !errors.As(err, &unknownErr) {
		t.Errorf("expected *UnknownRoleError, got %v", err)
	}
}

// An unknown tier surfaces only when a feature check actually consults it.
func TestUnknownTierSurfacesOnFeatureCheck(t *testing.T) {
	e := newTestEngine()
	principal := Principal{Role: RoleManager, PlanTier: PlanTier("platinum")}

	// No feature requirement: tier never consulted.
	result, err := e.Evaluate(principal, Requirement{MinRole: RoleAgent})
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if !result.CanAccess {
		t.Errorf("manager should pass a min-role agent check: %q", result.Reason)
	}

	// Feature requirement: the bad tier is a configuration error.
	_, err = e.Evaluate(principal, Requirement{RequiredFeatures: []Feature{FeatureDataExport}})
	var unknownErr *UnknownTierError
	if !errors.As(err, &unknownErr) {
		t.Errorf("expected *UnknownTierError, got %v", err)
	}
}

// An engine over injected alternate tables uses them, not the defaults.
func TestEngineWithAlternateTables(t *testing.T) {
	catalog := NewCatalogWith(CatalogTables{
		Grants: map[Role][]Grant{
			RoleRootOwner:  {{Permission: PermissionAll}},
			RoleSuperAdmin: {{Permission: PermissionAll}},
			RoleOwner:      {{Permission: Permission{ResourcePolls, ActionManage}}},
			RoleManager:    {},
			RoleAgent:      {},
			RoleViewer:     {},
			RoleClient:     {},
		},
	})
	e := NewEngine(catalog)

	result, err := e.Evaluate(Principal{Role: RoleOwner}, Requirement{
		RequiredPermissions: []Permission{{ResourceUsers, ActionRead}},
	})
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if result.CanAccess {
		t.Error("alternate tables should deny owner users:read")
	}
}
