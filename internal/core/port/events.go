package port

import (
	"context"

	"github.com/remon646/staffdesk-authz/internal/core/domain"
)

// EventPublisher publishes authorization audit events to the message
// bus.
type EventPublisher interface {
	PublishRoleAssigned(ctx context.Context, event domain.RoleAssignedEvent) error
	PublishRoleRevoked(ctx context.Context, event domain.RoleRevokedEvent) error
	PublishRolePermissionsReconciled(ctx context.Context, event domain.RolePermissionsReconciledEvent) error
}
