package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/remon646/staffdesk-authz/internal/core/domain"
	"github.com/remon646/staffdesk-authz/internal/core/port"
)

// CreatePermissionInput captures the payload for creating a permission.
// Name and the (Module, Action, Resource) triple are alternatives: a
// blank Name is generated from the triple, a blank triple is parsed
// from the Name.
type CreatePermissionInput struct {
	Name        string
	Description string
	Module      string
	Action      domain.PermissionAction
	Resource    string
	CreatedBy   string
}

// UpdatePermissionInput captures the payload for updating a permission.
type UpdatePermissionInput struct {
	Name        string
	Description string
	IsActive    bool
	UpdatedBy   string
}

// GrantPermissionInput captures the payload for granting a permission
// to a role.
type GrantPermissionInput struct {
	RoleID       string
	PermissionID string
	ExpiresAt    *time.Time
	Comment      string
	GrantedBy    string
}

// PermissionService manages permissions and role-permission grants.
type PermissionService struct {
	permissions port.PermissionRepository
	roles       port.RoleRepository
	events      port.EventPublisher
	logger      *zap.Logger
}

// NewPermissionService constructs a PermissionService.
func NewPermissionService(permissions port.PermissionRepository, roles port.RoleRepository, events port.EventPublisher, logger *zap.Logger) *PermissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PermissionService{permissions: permissions, roles: roles, events: events, logger: logger}
}

// CreatePermission provisions a new permission. Name and triple are
// reconciled both ways so the round-trip law holds for every stored
// permission.
func (s *PermissionService) CreatePermission(ctx context.Context, input CreatePermissionInput) (*domain.Permission, error) {
	name := strings.TrimSpace(input.Name)
	module := strings.TrimSpace(input.Module)
	action := input.Action
	resource := strings.TrimSpace(input.Resource)

	var err error
	if name == "" {
		name, err = domain.GeneratePermissionName(module, action, resource)
		if err != nil {
			return nil, err
		}
	} else {
		module, action, resource, err = domain.ParsePermissionName(name)
		if err != nil {
			return nil, err
		}
	}

	taken, err := s.permissions.Exists(ctx, name, "")
	if err != nil {
		return nil, fmt.Errorf("check permission name: %w", err)
	}
	if taken {
		return nil, domain.NewValidationError("permission name %q is already taken", name)
	}

	permission := domain.Permission{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Module:      module,
		Action:      action,
		Resource:    resource,
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
		UpdatedBy:   input.CreatedBy,
	}
	if err := s.permissions.Create(ctx, permission); err != nil {
		return nil, err
	}

	s.logger.Info("Permission created",
		zap.String("permission_id", permission.ID),
		zap.String("permission_name", permission.Name),
		zap.String("created_by", input.CreatedBy),
	)
	return &permission, nil
}

// GetPermission returns the permission by ID.
func (s *PermissionService) GetPermission(ctx context.Context, id string) (*domain.Permission, error) {
	return s.permissions.GetByID(ctx, id)
}

// GetPermissionByName returns the permission by name,
// case-insensitively.
func (s *PermissionService) GetPermissionByName(ctx context.Context, name string) (*domain.Permission, error) {
	return s.permissions.GetByName(ctx, name)
}

// ListPermissions returns permissions ordered by name.
func (s *PermissionService) ListPermissions(ctx context.Context, includeInactive bool) ([]domain.Permission, error) {
	return s.permissions.GetAll(ctx, includeInactive)
}

// UpdatePermission applies the mutable fields onto the stored
// permission. The name is re-parsed so module, action, and resource
// stay consistent with it.
func (s *PermissionService) UpdatePermission(ctx context.Context, id string, input UpdatePermissionInput) (*domain.Permission, error) {
	permission, err := s.permissions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	module, action, resource, err := domain.ParsePermissionName(name)
	if err != nil {
		return nil, err
	}

	taken, err := s.permissions.Exists(ctx, name, id)
	if err != nil {
		return nil, fmt.Errorf("check permission name: %w", err)
	}
	if taken {
		return nil, domain.NewValidationError("permission name %q is already taken", name)
	}

	if err := permission.Update(name, strings.TrimSpace(input.Description), module, action, resource, input.IsActive, input.UpdatedBy); err != nil {
		return nil, err
	}
	if err := s.permissions.Update(ctx, *permission); err != nil {
		return nil, err
	}
	return permission, nil
}

// DeletePermission removes the permission unless it is protected or
// still granted.
func (s *PermissionService) DeletePermission(ctx context.Context, id string) error {
	if err := s.permissions.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Permission deleted", zap.String("permission_id", id))
	return nil
}

// GetRolePermissions returns the role's grants resolved against their
// permissions.
func (s *PermissionService) GetRolePermissions(ctx context.Context, roleID string, includeInactive bool) ([]domain.ResolvedRolePermission, error) {
	return s.permissions.GetRolePermissions(ctx, roleID, includeInactive)
}

// GrantPermission attaches a permission to a role. Granting an already
// granted pair refreshes the row instead of duplicating it.
func (s *PermissionService) GrantPermission(ctx context.Context, input GrantPermissionInput) (*domain.RolePermission, error) {
	if strings.TrimSpace(input.RoleID) == "" {
		return nil, domain.NewValidationError("role id is required")
	}
	if strings.TrimSpace(input.PermissionID) == "" {
		return nil, domain.NewValidationError("permission id is required")
	}
	if input.ExpiresAt != nil && !input.ExpiresAt.After(time.Now().UTC()) {
		return nil, domain.NewValidationError("expiry %s is not in the future", input.ExpiresAt.Format(time.RFC3339))
	}

	grant, err := s.permissions.AssignPermissionToRole(ctx, domain.RolePermission{
		RoleID:       input.RoleID,
		PermissionID: input.PermissionID,
		ExpiresAt:    input.ExpiresAt,
		Comment:      strings.TrimSpace(input.Comment),
		GrantedBy:    input.GrantedBy,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Permission granted",
		zap.String("role_id", grant.RoleID),
		zap.String("permission_id", grant.PermissionID),
		zap.String("granted_by", input.GrantedBy),
	)
	return &grant, nil
}

// RevokePermission explicitly withdraws a grant, keeping the row as
// revocation record. False means the role did not hold the permission.
func (s *PermissionService) RevokePermission(ctx context.Context, roleID, permissionID string) (bool, error) {
	removed, err := s.permissions.RemovePermissionFromRole(ctx, roleID, permissionID)
	if err != nil || !removed {
		return removed, err
	}

	s.logger.Info("Permission revoked",
		zap.String("role_id", roleID),
		zap.String("permission_id", permissionID),
	)
	return true, nil
}

// SetRolePermissions reconciles the role's grants against the target
// permission set and publishes the audit event with the effective diff.
func (s *PermissionService) SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string, updatedBy string) error {
	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		return err
	}

	before, err := s.permissions.GetRolePermissions(ctx, roleID, true)
	if err != nil {
		return fmt.Errorf("load current grants: %w", err)
	}

	target := make(map[string]struct{}, len(permissionIDs))
	for _, permissionID := range permissionIDs {
		target[permissionID] = struct{}{}
	}

	grantedIDs := make([]string, 0)
	revokedIDs := make([]string, 0)
	current := make(map[string]bool, len(before))
	for _, grant := range before {
		current[grant.PermissionID] = grant.IsGranted
		if _, wanted := target[grant.PermissionID]; grant.IsGranted && !wanted {
			revokedIDs = append(revokedIDs, grant.PermissionID)
		}
	}
	for permissionID := range target {
		if !current[permissionID] {
			grantedIDs = append(grantedIDs, permissionID)
		}
	}

	if err := s.permissions.UpdateRolePermissions(ctx, roleID, permissionIDs, updatedBy); err != nil {
		return err
	}

	s.logger.Info("Role permissions reconciled",
		zap.String("role_id", roleID),
		zap.String("role_name", role.Name),
		zap.Int("granted", len(grantedIDs)),
		zap.Int("revoked", len(revokedIDs)),
		zap.String("updated_by", updatedBy),
	)

	if s.events != nil {
		event := domain.RolePermissionsReconciledEvent{
			EventID:      uuid.NewString(),
			RoleID:       roleID,
			RoleName:     role.Name,
			GrantedIDs:   grantedIDs,
			RevokedIDs:   revokedIDs,
			UpdatedBy:    updatedBy,
			ReconciledAt: time.Now().UTC(),
		}
		if err := s.events.PublishRolePermissionsReconciled(ctx, event); err != nil {
			s.logger.Warn("Publish permissions reconciled event failed",
				zap.String("role_id", roleID),
				zap.Error(err),
			)
		}
	}
	return nil
}
