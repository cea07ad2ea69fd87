package port

import (
	"context"
	"time"

	"github.com/remon646/staffdesk-authz/internal/core/domain"
)

// RoleRepository handles role CRUD and user-role assignments.
//
// Implementations serialize every mutation that touches a single
// user's assignment set (and a single role's record) behind a per-key
// critical section; reads run lock-free and may be momentarily stale.
type RoleRepository interface {
	Create(ctx context.Context, role domain.Role) error
	GetByID(ctx context.Context, id string) (*domain.Role, error)
	// GetByName matches the name case-insensitively.
	GetByName(ctx context.Context, name string) (*domain.Role, error)
	// GetSystemRole resolves the catalog kind to its well-known name
	// and looks the role up by that name.
	GetSystemRole(ctx context.Context, kind domain.SystemRole) (*domain.Role, error)
	// GetAll returns roles ordered by priority ascending, then name.
	GetAll(ctx context.Context, includeInactive bool) ([]domain.Role, error)
	// Exists reports whether a role with the name exists, ignoring the
	// row with excludeID. Used for update-time uniqueness checks.
	Exists(ctx context.Context, name, excludeID string) (bool, error)
	Update(ctx context.Context, role domain.Role) error
	// Delete removes the role. System roles and roles with active
	// assignments are rejected; the role's permission grants are
	// retired on success.
	Delete(ctx context.Context, id string) error

	// GetUserRoles returns the user's assignments joined against their
	// roles, ordered by role priority ascending.
	GetUserRoles(ctx context.Context, userID string, includeInactive bool) ([]domain.ResolvedUserRole, error)
	// AssignRoleToUser is an idempotent upsert: an existing
	// (user, role) row is reactivated instead of duplicated. When the
	// assignment is primary, every other valid primary row of the user
	// is demoted within the same critical section.
	AssignRoleToUser(ctx context.Context, assignment domain.UserRole) (domain.UserRole, error)
	// RemoveRoleFromUser deactivates the matching assignment and
	// reports whether one existed.
	RemoveRoleFromUser(ctx context.Context, userID, roleID string) (bool, error)

	// GetExpiringUserRoles returns currently-valid assignments whose
	// expiry falls within the window, for expiry-warning delivery.
	GetExpiringUserRoles(ctx context.Context, within time.Duration) ([]domain.ResolvedUserRole, error)
	// DeactivateExpiredUserRoles physically retires expired
	// assignments and returns how many rows changed. Correctness never
	// depends on this sweep; validity is evaluated lazily at read time.
	DeactivateExpiredUserRoles(ctx context.Context) (int, error)
}
