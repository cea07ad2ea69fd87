package domain

import (
	"testing"
	"time"
)

func entry(roleID string, priority int, primary, valid bool) ResolvedUserRole {
	return ResolvedUserRole{
		UserRole: UserRole{UserID: "user-1", RoleID: roleID, IsActive: valid, IsPrimary: primary},
		Role:     Role{ID: roleID, Name: roleID, Priority: priority, IsActive: true},
	}
}

func TestPrimaryRole(t *testing.T) {
	entries := []ResolvedUserRole{
		entry("role-hr", 80, false, true),
		entry("role-user", 40, true, true),
	}

	primary, ok := PrimaryRole(entries)
	if !ok {
		t.Fatal("no primary found")
	}
	if primary.RoleID != "role-user" {
		t.Errorf("primary role %q, want role-user", primary.RoleID)
	}

	if _, ok := PrimaryRole([]ResolvedUserRole{entry("role-hr", 80, false, true)}); ok {
		t.Error("primary reported for a user without one")
	}

	expiredPrimary := entry("role-user", 40, true, false)
	if _, ok := PrimaryRole([]ResolvedUserRole{expiredPrimary}); ok {
		t.Error("revoked primary still resolved")
	}
}

func TestHighestPrivilegeRole(t *testing.T) {
	entries := []ResolvedUserRole{
		entry("role-user", 40, true, true),
		entry("role-hr", 80, false, true),
		entry("role-dm", 60, false, true),
	}

	highest, ok := HighestPrivilegeRole(entries)
	if !ok {
		t.Fatal("no valid role found")
	}
	if highest.RoleID != "role-hr" {
		t.Errorf("highest role %q, want role-hr", highest.RoleID)
	}

	if _, ok := HighestPrivilegeRole(nil); ok {
		t.Error("highest role reported for empty input")
	}
}

func TestHighestPrivilegeRoleBreaksTiesByRoleID(t *testing.T) {
	entries := []ResolvedUserRole{
		entry("role-b", 60, false, true),
		entry("role-a", 60, false, true),
	}
	highest, ok := HighestPrivilegeRole(entries)
	if !ok {
		t.Fatal("no valid role found")
	}
	if highest.RoleID != "role-a" {
		t.Errorf("tie broke to %q, want role-a", highest.RoleID)
	}
}

func TestHighestPrivilegeRoleSkipsInvalidEntries(t *testing.T) {
	past := time.Now().UTC().Add(-time.Hour)
	expired := entry("role-hr", 80, false, true)
	expired.ExpiresAt = &past
	retiredRole := entry("role-dm", 60, false, true)
	retiredRole.Role.IsActive = false

	entries := []ResolvedUserRole{expired, retiredRole, entry("role-user", 40, false, true)}
	highest, ok := HighestPrivilegeRole(entries)
	if !ok {
		t.Fatal("no valid role found")
	}
	if highest.RoleID != "role-user" {
		t.Errorf("highest role %q, want role-user", highest.RoleID)
	}

	if valid := ValidEntries(entries); len(valid) != 1 || valid[0].RoleID != "role-user" {
		t.Errorf("ValidEntries = %+v, want only role-user", valid)
	}
}

func TestRoleHasPermissionIsCaseInsensitive(t *testing.T) {
	grants := []ResolvedRolePermission{
		{
			RolePermission: RolePermission{IsGranted: true},
			Permission:     Permission{Name: "Employee.View", IsActive: true},
		},
		{
			RolePermission: RolePermission{IsGranted: false},
			Permission:     Permission{Name: "Employee.Delete", IsActive: true},
		},
	}

	if !RoleHasPermission(grants, "employee.view") {
		t.Error("case-insensitive match failed")
	}
	if RoleHasPermission(grants, "Employee.Delete") {
		t.Error("revoked grant matched")
	}
	if RoleHasPermission(grants, "Employee.Export") {
		t.Error("absent grant matched")
	}
}

func TestIsSystemAdmin(t *testing.T) {
	adminEntry := ResolvedUserRole{
		UserRole: UserRole{UserID: "user-1", RoleID: "role-admin", IsActive: true},
		Role:     Role{ID: "role-admin", Name: SystemRoleAdmin.RoleName(), Priority: 100, IsActive: true},
	}

	if !IsSystemAdmin(User{ID: "user-1"}, []ResolvedUserRole{adminEntry}) {
		t.Error("SystemAdmin holder not recognized")
	}
	if !IsSystemAdmin(User{ID: "user-2", IsAdmin: true}, nil) {
		t.Error("legacy flag holder not recognized")
	}
	if IsSystemAdmin(User{ID: "user-3"}, []ResolvedUserRole{entry("role-user", 40, true, true)}) {
		t.Error("ordinary user recognized as admin")
	}

	revoked := adminEntry
	revoked.IsActive = false
	if IsSystemAdmin(User{ID: "user-4"}, []ResolvedUserRole{revoked}) {
		t.Error("revoked admin assignment still recognized")
	}
}
