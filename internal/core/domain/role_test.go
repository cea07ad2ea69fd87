package domain

import "testing"

func TestRoleUpdateGuardsSystemRename(t *testing.T) {
	role := Role{Name: "SystemAdmin", Priority: 100, IsSystemRole: true, IsActive: true}

	err := role.Update("Root", "", 100, true, "admin")
	if !IsInvariantViolation(err) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	if role.Name != "SystemAdmin" || role.UpdatedAt != nil {
		t.Errorf("failed update mutated the role: %+v", role)
	}

	if err := role.Update("SystemAdmin", "", 100, false, "admin"); !IsInvariantViolation(err) {
		t.Fatalf("deactivation via update: expected invariant violation, got %v", err)
	}

	if err := role.Update("SystemAdmin", "top role", 90, true, "admin"); err != nil {
		t.Fatalf("same-name update rejected: %v", err)
	}
	if role.Priority != 90 || role.Description != "top role" || role.UpdatedBy != "admin" {
		t.Errorf("update did not apply: %+v", role)
	}
}

func TestRoleDeactivateGuardsSystem(t *testing.T) {
	system := Role{Name: "User", IsSystemRole: true, IsActive: true}
	if err := system.Deactivate("admin"); !IsInvariantViolation(err) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	if !system.IsActive {
		t.Error("system role was deactivated")
	}

	ordinary := Role{Name: "Auditor", IsActive: true}
	if err := ordinary.Deactivate("admin"); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if ordinary.IsActive {
		t.Error("role still active")
	}
	ordinary.Activate("admin")
	if !ordinary.IsActive {
		t.Error("role not reactivated")
	}
}

func TestRoleCanBeDeleted(t *testing.T) {
	ordinary := Role{Name: "Auditor"}
	if !ordinary.CanBeDeleted(0) {
		t.Error("unassigned role not deletable")
	}
	if ordinary.CanBeDeleted(3) {
		t.Error("held role deletable")
	}
	system := Role{Name: "User", IsSystemRole: true}
	if system.CanBeDeleted(0) {
		t.Error("system role deletable")
	}
}

func TestSystemRoleCatalog(t *testing.T) {
	for _, kind := range []SystemRole{SystemRoleAdmin, SystemRoleHRManager, SystemRoleDepartmentManager, SystemRoleUser} {
		info, ok := kind.Info()
		if !ok {
			t.Fatalf("kind %d missing from catalog", kind)
		}
		if info.Name == "" || info.Priority <= 0 {
			t.Errorf("kind %d has incomplete info: %+v", kind, info)
		}
	}
	if _, ok := SystemRole(99).Info(); ok {
		t.Error("unknown kind resolved to a catalog entry")
	}
	if name := SystemRoleAdmin.RoleName(); name != "SystemAdmin" {
		t.Errorf("admin role name %q", name)
	}
}
