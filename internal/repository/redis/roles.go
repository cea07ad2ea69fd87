package redis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/remon646/staffdesk-authz/internal/core/domain"
	"github.com/remon646/staffdesk-authz/internal/core/port"
	"github.com/remon646/staffdesk-authz/internal/infra/lock"
)

// RoleRepository implements port.RoleRepository over the key-value
// store. The name index key doubles as a uniqueness reservation: SETNX
// on it is the only cross-process atomicity the backend offers, so
// duplicate detection rides on it while multi-key updates go through
// the keyed mutex.
type RoleRepository struct {
	store *store
	locks *lock.KeyedMutex
}

func userLockKey(userID string) string { return "user:" + userID }
func roleLockKey(roleID string) string { return "role:" + roleID }

// Create stores a new role. The name is reserved first; a second create
// with the same name, in any case folding, fails validation.
func (r *RoleRepository) Create(ctx context.Context, role domain.Role) error {
	reserved, err := r.store.client.SetNX(ctx, r.store.roleNameKey(role.Name), role.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("reserve role name: %w", err)
	}
	if !reserved {
		return domain.NewValidationError("role name %q is already taken", role.Name)
	}

	if err := r.store.setJSON(ctx, r.store.roleKey(role.ID), roleToRecord(role)); err != nil {
		return err
	}
	if err := r.store.client.SAdd(ctx, r.store.roleSetKey(), role.ID).Err(); err != nil {
		return fmt.Errorf("index role: %w", err)
	}
	return nil
}

func (r *RoleRepository) GetByID(ctx context.Context, id string) (*domain.Role, error) {
	role, found, err := r.store.loadRole(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.NewNotFoundError("role %q not found", id)
	}
	return &role, nil
}

// GetByName matches the name case-insensitively via the name index.
func (r *RoleRepository) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	id, err := r.store.client.Get(ctx, r.store.roleNameKey(name)).Result()
	if err != nil {
		if isNil(err) {
			return nil, domain.NewNotFoundError("role %q not found", name)
		}
		return nil, fmt.Errorf("resolve role name: %w", err)
	}

	role, found, err := r.store.loadRole(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.NewNotFoundError("role %q not found", name)
	}
	return &role, nil
}

// GetSystemRole resolves the catalog kind to its well-known name.
func (r *RoleRepository) GetSystemRole(ctx context.Context, kind domain.SystemRole) (*domain.Role, error) {
	info, ok := kind.Info()
	if !ok {
		return nil, domain.NewValidationError("unknown system role kind %d", int(kind))
	}
	return r.GetByName(ctx, info.Name)
}

// GetAll returns roles ordered by priority ascending, then name.
func (r *RoleRepository) GetAll(ctx context.Context, includeInactive bool) ([]domain.Role, error) {
	ids, err := r.store.members(ctx, r.store.roleSetKey())
	if err != nil {
		return nil, err
	}

	roles := make([]domain.Role, 0, len(ids))
	for _, id := range ids {
		role, found, err := r.store.loadRole(ctx, id)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		if !includeInactive && !role.IsActive {
			continue
		}
		roles = append(roles, role)
	}

	sort.Slice(roles, func(i, j int) bool {
		if roles[i].Priority != roles[j].Priority {
			return roles[i].Priority < roles[j].Priority
		}
		return roles[i].Name < roles[j].Name
	})
	return roles, nil
}

// Exists reports whether a role with the name exists, ignoring the row
// with excludeID.
func (r *RoleRepository) Exists(ctx context.Context, name, excludeID string) (bool, error) {
	id, err := r.store.client.Get(ctx, r.store.roleNameKey(name)).Result()
	if err != nil {
		if isNil(err) {
			return false, nil
		}
		return false, fmt.Errorf("resolve role name: %w", err)
	}
	return id != excludeID, nil
}

// Update persists the role, moving the name reservation when the name
// changed.
func (r *RoleRepository) Update(ctx context.Context, role domain.Role) error {
	unlock := r.locks.Lock(roleLockKey(role.ID))
	defer unlock()

	existing, found, err := r.store.loadRole(ctx, role.ID)
	if err != nil {
		return err
	}
	if !found {
		return domain.NewNotFoundError("role %q not found", role.ID)
	}

	if !strings.EqualFold(existing.Name, role.Name) {
		reserved, err := r.store.client.SetNX(ctx, r.store.roleNameKey(role.Name), role.ID, 0).Result()
		if err != nil {
			return fmt.Errorf("reserve role name: %w", err)
		}
		if !reserved {
			return domain.NewValidationError("role name %q is already taken", role.Name)
		}
		if err := r.store.client.Del(ctx, r.store.roleNameKey(existing.Name)).Err(); err != nil {
			return fmt.Errorf("release role name: %w", err)
		}
	}

	return r.store.setJSON(ctx, r.store.roleKey(role.ID), roleToRecord(role))
}

// Delete removes the role together with its grant rows and its retired
// assignment rows. System roles and roles still held by users are
// rejected.
func (r *RoleRepository) Delete(ctx context.Context, id string) error {
	unlock := r.locks.Lock(roleLockKey(id))
	defer unlock()

	role, found, err := r.store.loadRole(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return domain.NewNotFoundError("role %q not found", id)
	}
	if role.IsSystemRole {
		return domain.NewInvariantViolation("system role %q cannot be deleted", role.Name)
	}

	assignments, err := r.store.loadRoleAssignments(ctx, id)
	if err != nil {
		return err
	}
	holders := 0
	for _, assignment := range assignments {
		if assignment.IsCurrentlyValid() {
			holders++
		}
	}
	if !role.CanBeDeleted(holders) {
		return domain.NewConflictError("role %q is still assigned to %d users", role.Name, holders)
	}

	grants, err := r.store.loadRoleGrants(ctx, id)
	if err != nil {
		return err
	}
	for _, grant := range grants {
		if err := r.store.client.Del(ctx, r.store.grantKey(grant.ID)).Err(); err != nil {
			return fmt.Errorf("delete grant: %w", err)
		}
		if err := r.store.client.SRem(ctx, r.store.grantsByPermKey(grant.PermissionID), grant.ID).Err(); err != nil {
			return fmt.Errorf("unindex grant: %w", err)
		}
		if err := r.store.client.SRem(ctx, r.store.grantSetKey(), grant.ID).Err(); err != nil {
			return fmt.Errorf("unindex grant: %w", err)
		}
	}

	for _, assignment := range assignments {
		if err := r.store.client.Del(ctx, r.store.assignKey(assignment.ID)).Err(); err != nil {
			return fmt.Errorf("delete assignment: %w", err)
		}
		if err := r.store.client.SRem(ctx, r.store.assignsByUserKey(assignment.UserID), assignment.ID).Err(); err != nil {
			return fmt.Errorf("unindex assignment: %w", err)
		}
		if err := r.store.client.SRem(ctx, r.store.assignSetKey(), assignment.ID).Err(); err != nil {
			return fmt.Errorf("unindex assignment: %w", err)
		}
	}

	keys := []string{
		r.store.grantsByRoleKey(id),
		r.store.assignsByRoleKey(id),
		r.store.roleKey(id),
		r.store.roleNameKey(role.Name),
	}
	if err := r.store.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	if err := r.store.client.SRem(ctx, r.store.roleSetKey(), id).Err(); err != nil {
		return fmt.Errorf("unindex role: %w", err)
	}
	return nil
}

// GetUserRoles returns the user's assignments joined against their
// roles, ordered by role priority ascending, then role name.
func (r *RoleRepository) GetUserRoles(ctx context.Context, userID string, includeInactive bool) ([]domain.ResolvedUserRole, error) {
	assignments, err := r.store.loadUserAssignments(ctx, userID)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.ResolvedUserRole, 0, len(assignments))
	for _, assignment := range assignments {
		role, found, err := r.store.loadRole(ctx, assignment.RoleID)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}

		entry := domain.ResolvedUserRole{UserRole: assignment, Role: role}
		if !includeInactive && !entry.IsCurrentlyValid() {
			continue
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Role.Priority != entries[j].Role.Priority {
			return entries[i].Role.Priority < entries[j].Role.Priority
		}
		return entries[i].Role.Name < entries[j].Role.Name
	})
	return entries, nil
}

// AssignRoleToUser upserts the (user, role) assignment under the user's
// critical section. An existing row is reactivated in place; when the
// row was already in force its AssignedAt is preserved so repeated
// assigns are idempotent. A primary assignment demotes every other
// primary row of the user before it is written.
func (r *RoleRepository) AssignRoleToUser(ctx context.Context, assignment domain.UserRole) (domain.UserRole, error) {
	unlock := r.locks.Lock(userLockKey(assignment.UserID))
	defer unlock()

	role, found, err := r.store.loadRole(ctx, assignment.RoleID)
	if err != nil {
		return domain.UserRole{}, err
	}
	if !found {
		return domain.UserRole{}, domain.NewNotFoundError("role %q not found", assignment.RoleID)
	}
	if !role.IsActive {
		return domain.UserRole{}, domain.NewValidationError("role %q is inactive", role.Name)
	}

	existing, err := r.store.loadUserAssignments(ctx, assignment.UserID)
	if err != nil {
		return domain.UserRole{}, err
	}

	row := domain.UserRole{
		ID:     assignment.ID,
		UserID: assignment.UserID,
		RoleID: assignment.RoleID,
	}
	for _, candidate := range existing {
		if candidate.RoleID == assignment.RoleID {
			row = candidate
			break
		}
	}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}

	wasActive := row.IsActive
	previousAssignedAt := row.AssignedAt
	row.Grant(assignment.AssignedBy, assignment.ExpiresAt, assignment.Comment)
	if wasActive {
		row.AssignedAt = previousAssignedAt
	}
	row.IsPrimary = assignment.IsPrimary

	if row.IsPrimary {
		for _, other := range existing {
			if other.ID == row.ID || !other.IsPrimary {
				continue
			}
			other.UnsetAsPrimary(assignment.AssignedBy)
			if err := r.store.saveAssignment(ctx, other); err != nil {
				return domain.UserRole{}, err
			}
		}
	}

	if err := r.store.saveAssignment(ctx, row); err != nil {
		return domain.UserRole{}, err
	}
	for _, key := range []string{
		r.store.assignsByUserKey(row.UserID),
		r.store.assignsByRoleKey(row.RoleID),
		r.store.assignSetKey(),
	} {
		if err := r.store.client.SAdd(ctx, key, row.ID).Err(); err != nil {
			return domain.UserRole{}, fmt.Errorf("index assignment: %w", err)
		}
	}
	return row, nil
}

// RemoveRoleFromUser deactivates the matching assignment. The row is
// kept as audit trail; false means no active assignment existed.
func (r *RoleRepository) RemoveRoleFromUser(ctx context.Context, userID, roleID string) (bool, error) {
	unlock := r.locks.Lock(userLockKey(userID))
	defer unlock()

	assignments, err := r.store.loadUserAssignments(ctx, userID)
	if err != nil {
		return false, err
	}

	for _, assignment := range assignments {
		if assignment.RoleID != roleID || !assignment.IsActive {
			continue
		}
		assignment.Revoke("", "")
		if err := r.store.saveAssignment(ctx, assignment); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// GetExpiringUserRoles returns currently-valid assignments whose expiry
// falls within the window, soonest first.
func (r *RoleRepository) GetExpiringUserRoles(ctx context.Context, within time.Duration) ([]domain.ResolvedUserRole, error) {
	ids, err := r.store.members(ctx, r.store.assignSetKey())
	if err != nil {
		return nil, err
	}

	deadline := time.Now().UTC().Add(within)
	entries := make([]domain.ResolvedUserRole, 0)
	for _, id := range ids {
		assignment, found, err := r.store.loadAssignment(ctx, id)
		if err != nil {
			return nil, err
		}
		if !found || !assignment.IsCurrentlyValid() || assignment.ExpiresAt == nil {
			continue
		}
		if assignment.ExpiresAt.After(deadline) {
			continue
		}

		role, found, err := r.store.loadRole(ctx, assignment.RoleID)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}

		entry := domain.ResolvedUserRole{UserRole: assignment, Role: role}
		if entry.IsCurrentlyValid() {
			entries = append(entries, entry)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ExpiresAt.Before(*entries[j].ExpiresAt)
	})
	return entries, nil
}

// DeactivateExpiredUserRoles retires assignments whose expiry has
// passed. Validity is evaluated lazily everywhere, so this sweep only
// keeps the stored rows tidy.
func (r *RoleRepository) DeactivateExpiredUserRoles(ctx context.Context) (int, error) {
	ids, err := r.store.members(ctx, r.store.assignSetKey())
	if err != nil {
		return 0, err
	}

	retired := 0
	for _, id := range ids {
		assignment, found, err := r.store.loadAssignment(ctx, id)
		if err != nil {
			return retired, err
		}
		if !found || !assignment.IsActive || !assignment.IsExpired() {
			continue
		}

		unlock := r.locks.Lock(userLockKey(assignment.UserID))
		assignment, found, err = r.store.loadAssignment(ctx, id)
		if err != nil {
			unlock()
			return retired, err
		}
		if found && assignment.IsActive && assignment.IsExpired() {
			assignment.Revoke("", "")
			if err := r.store.saveAssignment(ctx, assignment); err != nil {
				unlock()
				return retired, err
			}
			retired++
		}
		unlock()
	}
	return retired, nil
}

var _ port.RoleRepository = (*RoleRepository)(nil)
