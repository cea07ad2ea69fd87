package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/remon646/staffdesk-authz/internal/core/domain"
	"github.com/remon646/staffdesk-authz/internal/core/port"
	"github.com/remon646/staffdesk-authz/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed audit event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishRoleAssigned publishes authz.role.assigned events.
func (p *EventPublisher) PublishRoleAssigned(ctx context.Context, event domain.RoleAssignedEvent) error {
	payload := struct {
		UserID     string         `json:"user_id"`
		RoleID     string         `json:"role_id"`
		RoleName   string         `json:"role_name"`
		IsPrimary  bool           `json:"is_primary"`
		AssignedBy string         `json:"assigned_by"`
		AssignedAt time.Time      `json:"assigned_at"`
		ExpiresAt  *time.Time     `json:"expires_at,omitempty"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}{
		UserID:     event.UserID,
		RoleID:     event.RoleID,
		RoleName:   event.RoleName,
		IsPrimary:  event.IsPrimary,
		AssignedBy: event.AssignedBy,
		AssignedAt: event.AssignedAt.UTC(),
		ExpiresAt:  event.ExpiresAt,
		Metadata:   event.Metadata,
	}

	return p.publish(ctx, event.EventID, "authz.role.assigned", event.UserID, event.AssignedAt, payload)
}

// PublishRoleRevoked publishes authz.role.revoked events.
func (p *EventPublisher) PublishRoleRevoked(ctx context.Context, event domain.RoleRevokedEvent) error {
	payload := struct {
		UserID    string         `json:"user_id"`
		RoleID    string         `json:"role_id"`
		RoleName  string         `json:"role_name"`
		RevokedBy string         `json:"revoked_by"`
		RevokedAt time.Time      `json:"revoked_at"`
		Reason    string         `json:"reason,omitempty"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		UserID:    event.UserID,
		RoleID:    event.RoleID,
		RoleName:  event.RoleName,
		RevokedBy: event.RevokedBy,
		RevokedAt: event.RevokedAt.UTC(),
		Reason:    event.Reason,
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, "authz.role.revoked", event.UserID, event.RevokedAt, payload)
}

// PublishRolePermissionsReconciled publishes
// authz.role.permissions_reconciled events.
func (p *EventPublisher) PublishRolePermissionsReconciled(ctx context.Context, event domain.RolePermissionsReconciledEvent) error {
	payload := struct {
		RoleID       string         `json:"role_id"`
		RoleName     string         `json:"role_name"`
		GrantedIDs   []string       `json:"granted_ids"`
		RevokedIDs   []string       `json:"revoked_ids"`
		UpdatedBy    string         `json:"updated_by"`
		ReconciledAt time.Time      `json:"reconciled_at"`
		Metadata     map[string]any `json:"metadata,omitempty"`
	}{
		RoleID:       event.RoleID,
		RoleName:     event.RoleName,
		GrantedIDs:   event.GrantedIDs,
		RevokedIDs:   event.RevokedIDs,
		UpdatedBy:    event.UpdatedBy,
		ReconciledAt: event.ReconciledAt.UTC(),
		Metadata:     event.Metadata,
	}

	return p.publish(ctx, event.EventID, "authz.role.permissions_reconciled", "", event.ReconciledAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
