package domain

import "testing"

func TestPermissionNameRoundTrip(t *testing.T) {
	for _, action := range Actions {
		for _, resource := range []string{"", "Salary"} {
			name, err := GeneratePermissionName("Employee", action, resource)
			if err != nil {
				t.Fatalf("GeneratePermissionName(%s, %s): %v", action, resource, err)
			}

			module, parsedAction, parsedResource, err := ParsePermissionName(name)
			if err != nil {
				t.Fatalf("ParsePermissionName(%q): %v", name, err)
			}
			if module != "Employee" || parsedAction != action || parsedResource != resource {
				t.Errorf("round trip of %q gave (%s, %s, %s)", name, module, parsedAction, parsedResource)
			}
		}
	}
}

func TestParsePermissionNameRejectsMalformed(t *testing.T) {
	for _, name := range []string{
		"",
		"Employee",
		".View",
		"Employee.",
		"Employee.Fly",
		"Employee.View.",
		"Employee.View.Salary.History",
	} {
		if _, _, _, err := ParsePermissionName(name); !IsValidationError(err) {
			t.Errorf("ParsePermissionName(%q): expected validation error, got %v", name, err)
		}
	}
}

func TestGeneratePermissionNameRejectsDottedSegments(t *testing.T) {
	if _, err := GeneratePermissionName("Emp.loyee", ActionView, ""); !IsValidationError(err) {
		t.Errorf("dotted module: expected validation error, got %v", err)
	}
	if _, err := GeneratePermissionName("Employee", ActionView, "Sal.ary"); !IsValidationError(err) {
		t.Errorf("dotted resource: expected validation error, got %v", err)
	}
	if _, err := GeneratePermissionName("  ", ActionView, ""); !IsValidationError(err) {
		t.Errorf("blank module: expected validation error, got %v", err)
	}
	if _, err := GeneratePermissionName("Employee", PermissionAction("Fly"), ""); !IsValidationError(err) {
		t.Errorf("unknown action: expected validation error, got %v", err)
	}
}

func TestSystemPermissionNamesAreWellFormed(t *testing.T) {
	for _, name := range SystemPermissionNames {
		if _, _, _, err := ParsePermissionName(name); err != nil {
			t.Errorf("catalog name %q does not parse: %v", name, err)
		}
	}
}

func TestPermissionUpdateGuardsSystemRename(t *testing.T) {
	permission := Permission{
		Name:               "System.Configure",
		Module:             "System",
		Action:             ActionConfigure,
		IsSystemPermission: true,
		IsActive:           true,
	}

	err := permission.Update("System.Manage", "", "System", ActionManage, "", true, "admin")
	if !IsInvariantViolation(err) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	if permission.Name != "System.Configure" || permission.Action != ActionConfigure {
		t.Errorf("failed update mutated the permission: %+v", permission)
	}

	if err := permission.Update("System.Configure", "", "System", ActionConfigure, "", false, "admin"); !IsInvariantViolation(err) {
		t.Fatalf("deactivation via update: expected invariant violation, got %v", err)
	}

	if err := permission.Update("System.Configure", "updated text", "System", ActionConfigure, "", true, "admin"); err != nil {
		t.Fatalf("same-name update rejected: %v", err)
	}
	if permission.Description != "updated text" || permission.UpdatedAt == nil {
		t.Errorf("update did not apply: %+v", permission)
	}
}

func TestPermissionDeactivateGuardsSystem(t *testing.T) {
	permission := Permission{Name: "Role.Manage", IsSystemPermission: true, IsActive: true}
	if err := permission.Deactivate("admin"); !IsInvariantViolation(err) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	if !permission.IsActive {
		t.Error("system permission was deactivated")
	}

	ordinary := Permission{Name: "Report.Export", IsActive: true}
	if err := ordinary.Deactivate("admin"); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if ordinary.IsActive {
		t.Error("permission still active")
	}
}

func TestPermissionCanBeDeleted(t *testing.T) {
	ordinary := Permission{Name: "Report.Export"}
	if !ordinary.CanBeDeleted(0) {
		t.Error("unreferenced permission not deletable")
	}
	if ordinary.CanBeDeleted(2) {
		t.Error("referenced permission deletable")
	}
	system := Permission{Name: "Role.Manage", IsSystemPermission: true}
	if system.CanBeDeleted(0) {
		t.Error("system permission deletable")
	}
}
