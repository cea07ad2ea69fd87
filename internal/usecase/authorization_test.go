package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/remon646/staffdesk-authz/internal/core/domain"
)

func seedAuthzFixture(t *testing.T) (*roleRepoMock, *permissionRepoMock) {
	t.Helper()

	roles := newRoleRepoMock()
	roles.addRole(domain.Role{ID: "role-hr", Name: "HRManager", Priority: 80, IsSystemRole: true, IsActive: true})
	roles.addRole(domain.Role{ID: "role-user", Name: "User", Priority: 40, IsSystemRole: true, IsActive: true})
	roles.addRole(domain.Role{ID: "role-admin", Name: "SystemAdmin", Priority: 100, IsSystemRole: true, IsActive: true})

	permissions := newPermissionRepoMock(roles)
	permissions.addPermission(domain.Permission{ID: "perm-view", Name: "Employee.View", IsActive: true})
	permissions.addGrant(domain.RolePermission{ID: "rp-1", RoleID: "role-hr", PermissionID: "perm-view", IsGranted: true})

	return roles, permissions
}

func TestAuthorizationServiceHasPermissionObservesOutcome(t *testing.T) {
	roles, permissions := seedAuthzFixture(t)
	observer := &observerMock{}
	service := NewAuthorizationService(permissions, roles, observer, nil)
	ctx := context.Background()

	roles.assignments = append(roles.assignments, domain.UserRole{
		ID: "ur-1", UserID: "user-1", RoleID: "role-hr", IsActive: true,
	})

	allowed, err := service.HasPermission(ctx, "user-1", "Employee.View")
	if err != nil {
		t.Fatalf("HasPermission: %v", err)
	}
	if !allowed {
		t.Error("expected permission to be held")
	}

	allowed, err = service.HasPermission(ctx, "user-1", "Employee.Delete")
	if err != nil {
		t.Fatalf("HasPermission: %v", err)
	}
	if allowed {
		t.Error("unexpected permission")
	}

	if observer.allowed != 1 || observer.denied != 1 {
		t.Errorf("observer saw allowed=%d denied=%d, want 1/1", observer.allowed, observer.denied)
	}
}

func TestAuthorizationServiceGetPrimaryRole(t *testing.T) {
	roles, permissions := seedAuthzFixture(t)
	service := NewAuthorizationService(permissions, roles, nil, nil)
	ctx := context.Background()

	roles.assignments = append(roles.assignments,
		domain.UserRole{ID: "ur-1", UserID: "user-1", RoleID: "role-hr", IsActive: true},
		domain.UserRole{ID: "ur-2", UserID: "user-1", RoleID: "role-user", IsActive: true, IsPrimary: true},
	)

	primary, err := service.GetPrimaryRole(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetPrimaryRole: %v", err)
	}
	if primary.Role.Name != "User" {
		t.Errorf("primary role %q, want User", primary.Role.Name)
	}

	if _, err := service.GetPrimaryRole(ctx, "user-2"); !domain.IsNotFoundError(err) {
		t.Errorf("expected not found for user without primary, got %v", err)
	}
}

func TestAuthorizationServiceGetHighestPrivilegeRole(t *testing.T) {
	roles, permissions := seedAuthzFixture(t)
	service := NewAuthorizationService(permissions, roles, nil, nil)
	ctx := context.Background()

	roles.assignments = append(roles.assignments,
		domain.UserRole{ID: "ur-1", UserID: "user-1", RoleID: "role-user", IsActive: true, IsPrimary: true},
		domain.UserRole{ID: "ur-2", UserID: "user-1", RoleID: "role-hr", IsActive: true},
	)

	highest, err := service.GetHighestPrivilegeRole(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetHighestPrivilegeRole: %v", err)
	}
	if highest.Role.Name != "HRManager" {
		t.Errorf("highest role %q, want HRManager", highest.Role.Name)
	}
}

func TestAuthorizationServiceHighestPrivilegeIgnoresExpired(t *testing.T) {
	roles, permissions := seedAuthzFixture(t)
	service := NewAuthorizationService(permissions, roles, nil, nil)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	roles.assignments = append(roles.assignments,
		domain.UserRole{ID: "ur-1", UserID: "user-1", RoleID: "role-hr", IsActive: true, ExpiresAt: &past},
		domain.UserRole{ID: "ur-2", UserID: "user-1", RoleID: "role-user", IsActive: true},
	)

	highest, err := service.GetHighestPrivilegeRole(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetHighestPrivilegeRole: %v", err)
	}
	if highest.Role.Name != "User" {
		t.Errorf("highest role %q, want User", highest.Role.Name)
	}
}

func TestAuthorizationServiceIsSystemAdmin(t *testing.T) {
	roles, permissions := seedAuthzFixture(t)
	service := NewAuthorizationService(permissions, roles, nil, nil)
	ctx := context.Background()

	legacy := domain.User{ID: "user-legacy", IsAdmin: true}
	admin, err := service.IsSystemAdmin(ctx, legacy)
	if err != nil {
		t.Fatalf("IsSystemAdmin: %v", err)
	}
	if !admin {
		t.Error("legacy flag holder not recognized as admin")
	}

	roles.assignments = append(roles.assignments, domain.UserRole{
		ID: "ur-1", UserID: "user-role", RoleID: "role-admin", IsActive: true,
	})
	admin, err = service.IsSystemAdmin(ctx, domain.User{ID: "user-role"})
	if err != nil {
		t.Fatalf("IsSystemAdmin: %v", err)
	}
	if !admin {
		t.Error("SystemAdmin role holder not recognized as admin")
	}

	admin, err = service.IsSystemAdmin(ctx, domain.User{ID: "user-plain"})
	if err != nil {
		t.Fatalf("IsSystemAdmin: %v", err)
	}
	if admin {
		t.Error("plain user recognized as admin")
	}
}
