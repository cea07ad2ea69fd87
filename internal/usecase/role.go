// Package usecase holds the application services that sit between the
// repositories and the callers: input validation, uniqueness checks,
// audit event publication, and privilege resolution.
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

// CreateRoleInput captures the payload for creating a role.
type CreateRoleInput struct {
	Name        string
	Description string
	Priority    int
	CreatedBy   string
}

// UpdateRoleInput captures the payload for updating a role.
type UpdateRoleInput struct {
	Name        string
	Description string
	Priority    int
	IsActive    bool
	UpdatedBy   string
}

// AssignRoleInput captures the payload for assigning a role to a user.
type AssignRoleInput struct {
	UserID     string
	RoleID     string
	IsPrimary  bool
	ExpiresAt  *time.Time
	Comment    string
	AssignedBy string
}

// RoleService manages roles and user-role assignments.
type RoleService struct {
	roles  port.RoleRepository
	events port.EventPublisher
	logger *zap.Logger
}

// NewRoleService constructs a RoleService.
func NewRoleService(roles port.RoleRepository, events port.EventPublisher, logger *zap.Logger) *RoleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoleService{roles: roles, events: events, logger: logger}
}

// CreateRole provisions a new role with a unique name.
func (s *RoleService) CreateRole(ctx context.Context, input CreateRoleInput) (*domain.Role, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domain.NewValidationError("role name is required")
	}
	if input.Priority < 0 {
		return nil, domain.NewValidationError("role priority must not be negative")
	}

	taken, err := s.roles.Exists(ctx, name, "")
	if err != nil {
		return nil, fmt.Errorf("check role name: %w", err)
	}
	if taken {
		return nil, domain.NewValidationError("role name %q is already taken", name)
	}

	role := domain.Role{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Priority:    input.Priority,
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
		UpdatedBy:   input.CreatedBy,
	}
	if err := s.roles.Create(ctx, role); err != nil {
		return nil, err
	}

	s.logger.Info("Role created",
		zap.String("role_id", role.ID),
		zap.String("role_name", role.Name),
		zap.Int("priority", role.Priority),
		zap.String("created_by", input.CreatedBy),
	)
	return &role, nil
}

// GetRole returns the role by ID.
func (s *RoleService) GetRole(ctx context.Context, id string) (*domain.Role, error) {
	return s.roles.GetByID(ctx, id)
}

// GetRoleByName returns the role by name, case-insensitively.
func (s *RoleService) GetRoleByName(ctx context.Context, name string) (*domain.Role, error) {
	return s.roles.GetByName(ctx, name)
}

// GetSystemRole returns the role seeded for the catalog kind.
func (s *RoleService) GetSystemRole(ctx context.Context, kind domain.SystemRole) (*domain.Role, error) {
	return s.roles.GetSystemRole(ctx, kind)
}

// ListRoles returns roles ordered by priority, then name.
func (s *RoleService) ListRoles(ctx context.Context, includeInactive bool) ([]domain.Role, error) {
	return s.roles.GetAll(ctx, includeInactive)
}

// UpdateRole applies the mutable fields onto the stored role.
func (s *RoleService) UpdateRole(ctx context.Context, id string, input UpdateRoleInput) (*domain.Role, error) {
	role, err := s.roles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domain.NewValidationError("role name is required")
	}
	if input.Priority < 0 {
		return nil, domain.NewValidationError("role priority must not be negative")
	}

	taken, err := s.roles.Exists(ctx, name, id)
	if err != nil {
		return nil, fmt.Errorf("check role name: %w", err)
	}
	if taken {
		return nil, domain.NewValidationError("role name %q is already taken", name)
	}

	if err := role.Update(name, strings.TrimSpace(input.Description), input.Priority, input.IsActive, input.UpdatedBy); err != nil {
		return nil, err
	}
	if err := s.roles.Update(ctx, *role); err != nil {
		return nil, err
	}
	return role, nil
}

// DeleteRole removes the role unless it is protected or still held.
func (s *RoleService) DeleteRole(ctx context.Context, id string) error {
	if err := s.roles.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Role deleted", zap.String("role_id", id))
	return nil
}

// GetUserRoles returns the user's assignments resolved against their
// roles.
func (s *RoleService) GetUserRoles(ctx context.Context, userID string, includeInactive bool) ([]domain.ResolvedUserRole, error) {
	return s.roles.GetUserRoles(ctx, userID, includeInactive)
}

// AssignRole grants a role to a user and publishes the audit event.
// Re-assigning a role the user already holds refreshes the row instead
// of duplicating it.
func (s *RoleService) AssignRole(ctx context.Context, input AssignRoleInput) (*domain.UserRole, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return nil, domain.NewValidationError("user id is required")
	}
	if strings.TrimSpace(input.RoleID) == "" {
		return nil, domain.NewValidationError("role id is required")
	}
	if input.ExpiresAt != nil && !input.ExpiresAt.After(time.Now().UTC()) {
		return nil, domain.NewValidationError("expiry %s is not in the future", input.ExpiresAt.Format(time.RFC3339))
	}

	assignment, err := s.roles.AssignRoleToUser(ctx, domain.UserRole{
		UserID:     input.UserID,
		RoleID:     input.RoleID,
		IsPrimary:  input.IsPrimary,
		ExpiresAt:  input.ExpiresAt,
		Comment:    strings.TrimSpace(input.Comment),
		AssignedBy: input.AssignedBy,
	})
	if err != nil {
		return nil, err
	}

	role, err := s.roles.GetByID(ctx, assignment.RoleID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Role assigned",
		zap.String("user_id", assignment.UserID),
		zap.String("role_id", assignment.RoleID),
		zap.String("role_name", role.Name),
		zap.Bool("is_primary", assignment.IsPrimary),
		zap.String("assigned_by", input.AssignedBy),
	)

	if s.events != nil {
		event := domain.RoleAssignedEvent{
			EventID:    uuid.NewString(),
			UserID:     assignment.UserID,
			RoleID:     assignment.RoleID,
			RoleName:   role.Name,
			IsPrimary:  assignment.IsPrimary,
			AssignedBy: assignment.AssignedBy,
			AssignedAt: assignment.AssignedAt,
			ExpiresAt:  assignment.ExpiresAt,
		}
		if err := s.events.PublishRoleAssigned(ctx, event); err != nil {
			s.logger.Warn("Publish role assigned event failed",
				zap.String("user_id", assignment.UserID),
				zap.String("role_id", assignment.RoleID),
				zap.Error(err),
			)
		}
	}
	return &assignment, nil
}

// RemoveRole revokes a user's role assignment, keeping the row as audit
// trail, and publishes the audit event. False means the user did not
// hold the role.
func (s *RoleService) RemoveRole(ctx context.Context, userID, roleID, revokedBy, reason string) (bool, error) {
	removed, err := s.roles.RemoveRoleFromUser(ctx, userID, roleID)
	if err != nil || !removed {
		return removed, err
	}

	roleName := ""
	if role, err := s.roles.GetByID(ctx, roleID); err == nil {
		roleName = role.Name
	}

	s.logger.Info("Role revoked",
		zap.String("user_id", userID),
		zap.String("role_id", roleID),
		zap.String("role_name", roleName),
		zap.String("revoked_by", revokedBy),
	)

	if s.events != nil {
		event := domain.RoleRevokedEvent{
			EventID:   uuid.NewString(),
			UserID:    userID,
			RoleID:    roleID,
			RoleName:  roleName,
			RevokedBy: revokedBy,
			RevokedAt: time.Now().UTC(),
			Reason:    reason,
		}
		if err := s.events.PublishRoleRevoked(ctx, event); err != nil {
			s.logger.Warn("Publish role revoked event failed",
				zap.String("user_id", userID),
				zap.String("role_id", roleID),
				zap.Error(err),
			)
		}
	}
	return true, nil
}

// ExtendAssignment moves a user-role expiry forward.
func (s *RoleService) ExtendAssignment(ctx context.Context, userID, roleID string, newExpiresAt time.Time, updatedBy string) (*domain.UserRole, error) {
	entries, err := s.roles.GetUserRoles(ctx, userID, true)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if entry.RoleID != roleID {
			continue
		}
		assignment := entry.UserRole
		if err := assignment.ExtendExpiry(newExpiresAt, updatedBy); err != nil {
			return nil, err
		}
		updated, err := s.roles.AssignRoleToUser(ctx, assignment)
		if err != nil {
			return nil, err
		}
		return &updated, nil
	}
	return nil, domain.NewNotFoundError("user %q does not hold role %q", userID, roleID)
}

// GetExpiringAssignments returns valid assignments whose expiry falls
// within the warning window. Non-positive warningDays falls back to the
// default window.
func (s *RoleService) GetExpiringAssignments(ctx context.Context, warningDays int) ([]domain.ResolvedUserRole, error) {
	if warningDays <= 0 {
		warningDays = domain.DefaultExpiryWarningDays
	}
	return s.roles.GetExpiringUserRoles(ctx, time.Duration(warningDays)*24*time.Hour)
}
