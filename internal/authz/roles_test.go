package authz

import (
	"errors"
	"testing"
)

// Every role in AllRoles must have a level, a grant set, and parse back.
func TestRoleTableCompleteness(t *testing.T) {
	c := NewCatalog()
	for _, role := range AllRoles {
		if _, err := c.LevelOf(role); err != nil {
			t.Errorf("LevelOf(%v) returned error: %v", role, err)
		}
		if _, err := c.GrantsFor(role); err != nil {
			t.Errorf("GrantsFor(%v) returned error: %v", role, err)
		}
		if _, err := ParseRole(string(role)); err != nil {
			t.Errorf("ParseRole(%q) returned error: %v", role, err)
		}
	}
}

// Levels must be strictly monotonic with the documented privilege order.
func TestRoleLevelOrdering(t *testing.T) {
	c := NewCatalog()
	// AllRoles is ordered highest privilege first.
	for i := 0; i < len(AllRoles)-1; i++ {
		higher, lower := AllRoles[i], AllRoles[i+1]
		lh, _ := c.LevelOf(higher)
		ll, _ := c.LevelOf(lower)
		if lh <= ll {
			t.Errorf("level(%v)=%d should be greater than level(%v)=%d", higher, lh, lower, ll)
		}
	}
}

// Monotonic role sufficiency: if levelOf(a) >= levelOf(b), IsAtLeast(a, b).
func TestIsAtLeastMonotonic(t *testing.T) {
	c := NewCatalog()
	for _, a := range AllRoles {
		for _, b := range AllRoles {
			la, _ := c.LevelOf(a)
			lb, _ := c.LevelOf(b)
			got, err := c.IsAtLeast(a, b)
			if err != nil {
				t.Fatalf("IsAtLeast(%v, %v) returned error: %v", a, b, err)
			}
			if want := la >= lb; got != want {
				t.Errorf("IsAtLeast(%v, %v) = %v, want %v", a, b, got, want)
			}
		}
	}
}

func TestCompare(t *testing.T) {
	c := NewCatalog()
	tests := []struct {
		a, b Role
		want int
	}{
		{RoleRootOwner, RoleSuperAdmin, 1},
		{RoleSuperAdmin, RoleRootOwner, -1},
		{RoleManager, RoleManager, 0},
		{RoleViewer, RoleClient, 1},
		{RoleClient, RoleOwner, -1},
	}
	for _, tt := range tests {
		got, err := c.Compare(tt.a, tt.b)
		if err != nil {
			t.Fatalf("Compare(%v, %v) returned error: %v", tt.a, tt.b, err)
		}
		if got != tt.want {
			t.Errorf("Compare(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

// Unknown roles must fail loudly, never fall back to a default level.
func TestLevelOfUnknownRole(t *testing.T) {
	c := NewCatalog()
	_, err := c.LevelOf(Role("NOT_A_ROLE"))
	if err == nil {
		t.Fatal("LevelOf with unknown role should return an error")
	}
	var unknownErr *UnknownRoleError
	if !errors.As(err, &unknownErr) {
		t.Fatalf("expected *UnknownRoleError, got %T: %v", err, err)
	}
	if unknownErr.Role != "NOT_A_ROLE" {
		t.Errorf("error carries role %q, want %q", unknownErr.Role, "NOT_A_ROLE")
	}
}

func TestIsAtLeastUnknownRole(t *testing.T) {
	c := NewCatalog()
	if _, err := c.IsAtLeast(Role("ghost"), RoleViewer); err == nil {
		t.Error("IsAtLeast with unknown subject role should error")
	}
	if _, err := c.IsAtLeast(RoleViewer, Role("ghost")); err == nil {
		t.Error("IsAtLeast with unknown minimum role should error")
	}
}

func TestParseRoleRejectsUnknown(t *testing.T) {
	for _, s := range []string{"", "admin2", "ROOT_OWNER ", "Owner"} {
		if _, err := ParseRole(s); err == nil {
			t.Errorf("ParseRole(%q) should fail", s)
		}
	}
}
