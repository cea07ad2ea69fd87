package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/remon646/staffdesk-authz/internal/core/domain"
	"github.com/remon646/staffdesk-authz/internal/core/port"
)

// ExpirySweeper periodically retires expired assignments and grants
// and logs warnings for assignments about to expire. Every read path
// evaluates validity lazily, so the sweep is housekeeping: skipping a
// run never grants stale access.
type ExpirySweeper struct {
	roles       port.RoleRepository
	permissions port.PermissionRepository
	interval    time.Duration
	warningDays int
	logger      *zap.Logger
}

// NewExpirySweeper constructs a sweeper. Non-positive warningDays falls
// back to the default window.
func NewExpirySweeper(roles port.RoleRepository, permissions port.PermissionRepository, interval time.Duration, warningDays int, logger *zap.Logger) *ExpirySweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if warningDays <= 0 {
		warningDays = domain.DefaultExpiryWarningDays
	}
	return &ExpirySweeper{
		roles:       roles,
		permissions: permissions,
		interval:    interval,
		warningDays: warningDays,
		logger:      logger,
	}
}

// RunOnce performs a single sweep pass.
func (s *ExpirySweeper) RunOnce(ctx context.Context) error {
	retired, err := s.roles.DeactivateExpiredUserRoles(ctx)
	if err != nil {
		return err
	}
	revoked, err := s.permissions.RevokeExpiredRolePermissions(ctx)
	if err != nil {
		return err
	}
	if retired > 0 || revoked > 0 {
		s.logger.Info("Expiry sweep completed",
			zap.Int("assignments_retired", retired),
			zap.Int("grants_revoked", revoked),
		)
	}

	expiring, err := s.roles.GetExpiringUserRoles(ctx, time.Duration(s.warningDays)*24*time.Hour)
	if err != nil {
		return err
	}
	for _, entry := range expiring {
		if !entry.NeedsExpiryWarning(s.warningDays) {
			continue
		}
		remaining := 0
		if days := entry.RemainingDays(); days != nil {
			remaining = *days
		}
		s.logger.Warn("Role assignment expiring soon",
			zap.String("user_id", entry.UserID),
			zap.String("role_name", entry.Role.Name),
			zap.Int("remaining_days", remaining),
			zap.Timep("expires_at", entry.ExpiresAt),
		)
	}
	return nil
}

// Run sweeps on the configured interval until the context is done.
func (s *ExpirySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("Expiry sweep failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}
