package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/remon646/staffdesk-authz/internal/core/domain"
	"github.com/remon646/staffdesk-authz/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful
// for development environments without a broker.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishRoleAssigned logs authz.role.assigned events.
func (p *StubPublisher) PublishRoleAssigned(_ context.Context, event domain.RoleAssignedEvent) error {
	payload := map[string]any{
		"user_id":     event.UserID,
		"role_id":     event.RoleID,
		"role_name":   event.RoleName,
		"is_primary":  event.IsPrimary,
		"assigned_by": event.AssignedBy,
		"assigned_at": event.AssignedAt,
		"expires_at":  event.ExpiresAt,
		"metadata":    event.Metadata,
	}
	p.logEvent("authz.role.assigned", event.UserID, event.AssignedAt, payload)
	return nil
}

// PublishRoleRevoked logs authz.role.revoked events.
func (p *StubPublisher) PublishRoleRevoked(_ context.Context, event domain.RoleRevokedEvent) error {
	payload := map[string]any{
		"user_id":    event.UserID,
		"role_id":    event.RoleID,
		"role_name":  event.RoleName,
		"revoked_by": event.RevokedBy,
		"revoked_at": event.RevokedAt,
		"reason":     event.Reason,
		"metadata":   event.Metadata,
	}
	p.logEvent("authz.role.revoked", event.UserID, event.RevokedAt, payload)
	return nil
}

// PublishRolePermissionsReconciled logs
// authz.role.permissions_reconciled events.
func (p *StubPublisher) PublishRolePermissionsReconciled(_ context.Context, event domain.RolePermissionsReconciledEvent) error {
	payload := map[string]any{
		"role_id":       event.RoleID,
		"role_name":     event.RoleName,
		"granted_ids":   event.GrantedIDs,
		"revoked_ids":   event.RevokedIDs,
		"updated_by":    event.UpdatedBy,
		"reconciled_at": event.ReconciledAt,
		"metadata":      event.Metadata,
	}
	p.logEvent("authz.role.permissions_reconciled", "", event.ReconciledAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
