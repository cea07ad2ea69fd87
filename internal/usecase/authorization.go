package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/remon646/staffdesk-authz/internal/core/domain"
	"github.com/remon646/staffdesk-authz/internal/core/port"
)

// CheckObserver counts permission check outcomes for metrics.
type CheckObserver interface {
	ObserveCheck(allowed bool)
}

// AuthorizationService answers the aggregate questions: does a user
// hold a permission, what is their effective permission set, which of
// their roles is primary or most privileged.
type AuthorizationService struct {
	permissions port.PermissionRepository
	roles       port.RoleRepository
	observer    CheckObserver
	logger      *zap.Logger
}

// NewAuthorizationService constructs an AuthorizationService.
func NewAuthorizationService(permissions port.PermissionRepository, roles port.RoleRepository, observer CheckObserver, logger *zap.Logger) *AuthorizationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthorizationService{permissions: permissions, roles: roles, observer: observer, logger: logger}
}

// HasPermission reports whether the permission name appears in the
// user's effective permission set. The answer reflects validity at
// call time: expired or revoked rows answer false without waiting for
// any sweep.
func (s *AuthorizationService) HasPermission(ctx context.Context, userID, permissionName string) (bool, error) {
	allowed, err := s.permissions.UserHasPermission(ctx, userID, permissionName)
	if err != nil {
		return false, err
	}

	if s.observer != nil {
		s.observer.ObserveCheck(allowed)
	}
	if !allowed {
		s.logger.Debug("Permission check denied",
			zap.String("user_id", userID),
			zap.String("permission", permissionName),
		)
	}
	return allowed, nil
}

// HasPermissionFor generates the canonical permission name for the
// triple and checks it.
func (s *AuthorizationService) HasPermissionFor(ctx context.Context, userID, module string, action domain.PermissionAction, resource string) (bool, error) {
	allowed, err := s.permissions.UserHasPermissionFor(ctx, userID, module, action, resource)
	if err != nil {
		return false, err
	}
	if s.observer != nil {
		s.observer.ObserveCheck(allowed)
	}
	return allowed, nil
}

// GetEffectivePermissions materializes the user's permission set.
func (s *AuthorizationService) GetEffectivePermissions(ctx context.Context, userID string, includeInactive bool) ([]domain.Permission, error) {
	return s.permissions.GetUserPermissions(ctx, userID, includeInactive)
}

// GetPrimaryRole returns the user's currently-valid primary assignment.
func (s *AuthorizationService) GetPrimaryRole(ctx context.Context, userID string) (*domain.ResolvedUserRole, error) {
	entries, err := s.roles.GetUserRoles(ctx, userID, false)
	if err != nil {
		return nil, err
	}

	entry, ok := domain.PrimaryRole(entries)
	if !ok {
		return nil, domain.NewNotFoundError("user %q has no primary role", userID)
	}
	return &entry, nil
}

// GetHighestPrivilegeRole returns the user's currently-valid assignment
// with the highest role priority.
func (s *AuthorizationService) GetHighestPrivilegeRole(ctx context.Context, userID string) (*domain.ResolvedUserRole, error) {
	entries, err := s.roles.GetUserRoles(ctx, userID, false)
	if err != nil {
		return nil, err
	}

	entry, ok := domain.HighestPrivilegeRole(entries)
	if !ok {
		return nil, domain.NewNotFoundError("user %q holds no valid roles", userID)
	}
	return &entry, nil
}

// IsSystemAdmin reports whether the user is a system administrator,
// from the SystemAdmin role or the legacy flag.
func (s *AuthorizationService) IsSystemAdmin(ctx context.Context, user domain.User) (bool, error) {
	entries, err := s.roles.GetUserRoles(ctx, user.ID, false)
	if err != nil {
		return false, err
	}
	return domain.IsSystemAdmin(user, entries), nil
}
