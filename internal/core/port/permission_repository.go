package port

import (
	"context"

	"github.com/remon646/staffdesk-authz/internal/core/domain"
)

// PermissionRepository handles permission CRUD, role-permission grants,
// and the aggregate "does user U hold permission P" checks.
type PermissionRepository interface {
	Create(ctx context.Context, permission domain.Permission) error
	GetByID(ctx context.Context, id string) (*domain.Permission, error)
	// GetByName matches the name case-insensitively.
	GetByName(ctx context.Context, name string) (*domain.Permission, error)
	// GetAll returns permissions ordered by name.
	GetAll(ctx context.Context, includeInactive bool) ([]domain.Permission, error)
	// Exists reports whether a permission with the name exists,
	// ignoring the row with excludeID.
	Exists(ctx context.Context, name, excludeID string) (bool, error)
	Update(ctx context.Context, permission domain.Permission) error
	// Delete removes the permission. System permissions and
	// permissions still granted to roles are rejected.
	Delete(ctx context.Context, id string) error

	// GetRolePermissions returns the role's grants joined against
	// their permissions, ordered by permission name.
	GetRolePermissions(ctx context.Context, roleID string, includeInactive bool) ([]domain.ResolvedRolePermission, error)
	// AssignPermissionToRole is an idempotent upsert: an existing
	// (role, permission) row is re-granted instead of duplicated.
	AssignPermissionToRole(ctx context.Context, grant domain.RolePermission) (domain.RolePermission, error)
	// RemovePermissionFromRole revokes the matching grant and reports
	// whether a granted row existed.
	RemovePermissionFromRole(ctx context.Context, roleID, permissionID string) (bool, error)
	// UpdateRolePermissions reconciles the role's grants against the
	// target set: currently-granted permissions outside the set are
	// revoked, missing ones are granted, untouched grants keep their
	// original GrantedAt and Comment. The batch is validated up front
	// and rejected whole on any failure.
	UpdateRolePermissions(ctx context.Context, roleID string, permissionIDs []string, updatedBy string) error

	// UserHasPermission reports whether the permission name appears in
	// the user's effective permission set.
	UserHasPermission(ctx context.Context, userID, permissionName string) (bool, error)
	// UserHasPermissionFor generates the canonical name for the triple
	// and checks it.
	UserHasPermissionFor(ctx context.Context, userID, module string, action domain.PermissionAction, resource string) (bool, error)
	// GetUserPermissions materializes the user's effective permission
	// set; includeInactive widens it to expired and revoked reachable
	// entries for audit and display.
	GetUserPermissions(ctx context.Context, userID string, includeInactive bool) ([]domain.Permission, error)

	// RevokeExpiredRolePermissions physically retires expired grants
	// and returns how many rows changed.
	RevokeExpiredRolePermissions(ctx context.Context) (int, error)
}
