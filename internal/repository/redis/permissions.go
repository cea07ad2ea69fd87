package redis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/remon646/staffdesk-authz/internal/core/domain"
	"github.com/remon646/staffdesk-authz/internal/core/port"
	"github.com/remon646/staffdesk-authz/internal/infra/lock"
)

// PermissionRepository implements port.PermissionRepository over the
// key-value store. Grant mutations for one role share the role's
// critical section with RoleRepository, so a delete and a
// reconciliation of the same role never interleave.
type PermissionRepository struct {
	store *store
	locks *lock.KeyedMutex
}

func permLockKey(permissionID string) string { return "perm:" + permissionID }

// Create stores a new permission behind a name reservation.
func (r *PermissionRepository) Create(ctx context.Context, permission domain.Permission) error {
	reserved, err := r.store.client.SetNX(ctx, r.store.permNameKey(permission.Name), permission.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("reserve permission name: %w", err)
	}
	if !reserved {
		return domain.NewValidationError("permission name %q is already taken", permission.Name)
	}

	if err := r.store.setJSON(ctx, r.store.permKey(permission.ID), permissionToRecord(permission)); err != nil {
		return err
	}
	if err := r.store.client.SAdd(ctx, r.store.permSetKey(), permission.ID).Err(); err != nil {
		return fmt.Errorf("index permission: %w", err)
	}
	return nil
}

func (r *PermissionRepository) GetByID(ctx context.Context, id string) (*domain.Permission, error) {
	permission, found, err := r.store.loadPermission(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.NewNotFoundError("permission %q not found", id)
	}
	return &permission, nil
}

// GetByName matches the name case-insensitively via the name index.
func (r *PermissionRepository) GetByName(ctx context.Context, name string) (*domain.Permission, error) {
	id, err := r.store.client.Get(ctx, r.store.permNameKey(name)).Result()
	if err != nil {
		if isNil(err) {
			return nil, domain.NewNotFoundError("permission %q not found", name)
		}
		return nil, fmt.Errorf("resolve permission name: %w", err)
	}

	permission, found, err := r.store.loadPermission(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.NewNotFoundError("permission %q not found", name)
	}
	return &permission, nil
}

// GetAll returns permissions ordered by name.
func (r *PermissionRepository) GetAll(ctx context.Context, includeInactive bool) ([]domain.Permission, error) {
	ids, err := r.store.members(ctx, r.store.permSetKey())
	if err != nil {
		return nil, err
	}

	permissions := make([]domain.Permission, 0, len(ids))
	for _, id := range ids {
		permission, found, err := r.store.loadPermission(ctx, id)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		if !includeInactive && !permission.IsActive {
			continue
		}
		permissions = append(permissions, permission)
	}

	sort.Slice(permissions, func(i, j int) bool {
		return permissions[i].Name < permissions[j].Name
	})
	return permissions, nil
}

// Exists reports whether a permission with the name exists, ignoring
// the row with excludeID.
func (r *PermissionRepository) Exists(ctx context.Context, name, excludeID string) (bool, error) {
	id, err := r.store.client.Get(ctx, r.store.permNameKey(name)).Result()
	if err != nil {
		if isNil(err) {
			return false, nil
		}
		return false, fmt.Errorf("resolve permission name: %w", err)
	}
	return id != excludeID, nil
}

// Update persists the permission, moving the name reservation when the
// name changed.
func (r *PermissionRepository) Update(ctx context.Context, permission domain.Permission) error {
	unlock := r.locks.Lock(permLockKey(permission.ID))
	defer unlock()

	existing, found, err := r.store.loadPermission(ctx, permission.ID)
	if err != nil {
		return err
	}
	if !found {
		return domain.NewNotFoundError("permission %q not found", permission.ID)
	}

	if !strings.EqualFold(existing.Name, permission.Name) {
		reserved, err := r.store.client.SetNX(ctx, r.store.permNameKey(permission.Name), permission.ID, 0).Result()
		if err != nil {
			return fmt.Errorf("reserve permission name: %w", err)
		}
		if !reserved {
			return domain.NewValidationError("permission name %q is already taken", permission.Name)
		}
		if err := r.store.client.Del(ctx, r.store.permNameKey(existing.Name)).Err(); err != nil {
			return fmt.Errorf("release permission name: %w", err)
		}
	}

	return r.store.setJSON(ctx, r.store.permKey(permission.ID), permissionToRecord(permission))
}

// Delete removes the permission. System permissions and permissions
// still granted to roles are rejected; revoked grant rows referencing
// it are audit leftovers and go with it.
func (r *PermissionRepository) Delete(ctx context.Context, id string) error {
	unlock := r.locks.Lock(permLockKey(id))
	defer unlock()

	permission, found, err := r.store.loadPermission(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return domain.NewNotFoundError("permission %q not found", id)
	}
	if permission.IsSystemPermission {
		return domain.NewInvariantViolation("system permission %q cannot be deleted", permission.Name)
	}

	ids, err := r.store.members(ctx, r.store.grantsByPermKey(id))
	if err != nil {
		return err
	}

	grants := make([]domain.RolePermission, 0, len(ids))
	granted := 0
	for _, grantID := range ids {
		grant, found, err := r.store.loadGrant(ctx, grantID)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		if grant.IsGranted {
			granted++
		}
		grants = append(grants, grant)
	}
	if granted > 0 {
		return domain.NewConflictError("permission %q is still granted to %d roles", permission.Name, granted)
	}

	for _, grant := range grants {
		if err := r.store.client.Del(ctx, r.store.grantKey(grant.ID)).Err(); err != nil {
			return fmt.Errorf("delete grant: %w", err)
		}
		if err := r.store.client.SRem(ctx, r.store.grantsByRoleKey(grant.RoleID), grant.ID).Err(); err != nil {
			return fmt.Errorf("unindex grant: %w", err)
		}
		if err := r.store.client.SRem(ctx, r.store.grantSetKey(), grant.ID).Err(); err != nil {
			return fmt.Errorf("unindex grant: %w", err)
		}
	}

	keys := []string{
		r.store.grantsByPermKey(id),
		r.store.permKey(id),
		r.store.permNameKey(permission.Name),
	}
	if err := r.store.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}
	if err := r.store.client.SRem(ctx, r.store.permSetKey(), id).Err(); err != nil {
		return fmt.Errorf("unindex permission: %w", err)
	}
	return nil
}

// GetRolePermissions returns the role's grants joined against their
// permissions, ordered by permission name.
func (r *PermissionRepository) GetRolePermissions(ctx context.Context, roleID string, includeInactive bool) ([]domain.ResolvedRolePermission, error) {
	grants, err := r.resolveRoleGrants(ctx, roleID)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.ResolvedRolePermission, 0, len(grants))
	for _, grant := range grants {
		if !includeInactive && !grant.IsCurrentlyValid() {
			continue
		}
		entries = append(entries, grant)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Permission.Name < entries[j].Permission.Name
	})
	return entries, nil
}

// AssignPermissionToRole upserts the (role, permission) grant under the
// role's critical section. An existing row, granted or revoked, is
// re-granted in place instead of duplicated.
func (r *PermissionRepository) AssignPermissionToRole(ctx context.Context, grant domain.RolePermission) (domain.RolePermission, error) {
	unlock := r.locks.Lock(roleLockKey(grant.RoleID))
	defer unlock()

	if _, found, err := r.store.loadRole(ctx, grant.RoleID); err != nil {
		return domain.RolePermission{}, err
	} else if !found {
		return domain.RolePermission{}, domain.NewNotFoundError("role %q not found", grant.RoleID)
	}
	if _, found, err := r.store.loadPermission(ctx, grant.PermissionID); err != nil {
		return domain.RolePermission{}, err
	} else if !found {
		return domain.RolePermission{}, domain.NewNotFoundError("permission %q not found", grant.PermissionID)
	}

	existing, err := r.store.loadRoleGrants(ctx, grant.RoleID)
	if err != nil {
		return domain.RolePermission{}, err
	}

	row := domain.RolePermission{
		ID:           grant.ID,
		RoleID:       grant.RoleID,
		PermissionID: grant.PermissionID,
	}
	for _, candidate := range existing {
		if candidate.PermissionID == grant.PermissionID {
			row = candidate
			break
		}
	}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}

	row.Grant(grant.GrantedBy, grant.ExpiresAt, grant.Comment)

	if err := r.saveIndexedGrant(ctx, row); err != nil {
		return domain.RolePermission{}, err
	}
	return row, nil
}

// RemovePermissionFromRole revokes the matching grant. The row is kept
// as an explicit revocation; false means no granted row existed.
func (r *PermissionRepository) RemovePermissionFromRole(ctx context.Context, roleID, permissionID string) (bool, error) {
	unlock := r.locks.Lock(roleLockKey(roleID))
	defer unlock()

	grants, err := r.store.loadRoleGrants(ctx, roleID)
	if err != nil {
		return false, err
	}

	for _, grant := range grants {
		if grant.PermissionID != permissionID || !grant.IsGranted {
			continue
		}
		grant.Revoke("", "")
		if err := r.store.saveGrant(ctx, grant); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// UpdateRolePermissions reconciles the role's grants against the target
// permission set. The batch is validated before anything is written:
// an unknown permission ID rejects the whole call. Grants already in
// the target set keep their GrantedAt and Comment.
func (r *PermissionRepository) UpdateRolePermissions(ctx context.Context, roleID string, permissionIDs []string, updatedBy string) error {
	unlock := r.locks.Lock(roleLockKey(roleID))
	defer unlock()

	if _, found, err := r.store.loadRole(ctx, roleID); err != nil {
		return err
	} else if !found {
		return domain.NewNotFoundError("role %q not found", roleID)
	}

	target := make(map[string]struct{}, len(permissionIDs))
	for _, permissionID := range permissionIDs {
		if _, found, err := r.store.loadPermission(ctx, permissionID); err != nil {
			return err
		} else if !found {
			return domain.NewNotFoundError("permission %q not found", permissionID)
		}
		target[permissionID] = struct{}{}
	}

	grants, err := r.store.loadRoleGrants(ctx, roleID)
	if err != nil {
		return err
	}

	covered := make(map[string]struct{}, len(grants))
	for _, grant := range grants {
		_, wanted := target[grant.PermissionID]
		switch {
		case grant.IsGranted && !wanted:
			grant.Revoke(updatedBy, "")
			if err := r.store.saveGrant(ctx, grant); err != nil {
				return err
			}
		case !grant.IsGranted && wanted:
			grant.Grant(updatedBy, nil, "")
			if err := r.store.saveGrant(ctx, grant); err != nil {
				return err
			}
		}
		covered[grant.PermissionID] = struct{}{}
	}

	for permissionID := range target {
		if _, ok := covered[permissionID]; ok {
			continue
		}
		row := domain.RolePermission{
			ID:           uuid.NewString(),
			RoleID:       roleID,
			PermissionID: permissionID,
		}
		row.Grant(updatedBy, nil, "")
		if err := r.saveIndexedGrant(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// UserHasPermission reports whether the permission name appears in the
// user's effective permission set. The walk is lock-free; it sees each
// row atomically and tolerates concurrent mutation.
func (r *PermissionRepository) UserHasPermission(ctx context.Context, userID, permissionName string) (bool, error) {
	assignments, err := r.store.loadUserAssignments(ctx, userID)
	if err != nil {
		return false, err
	}

	for _, assignment := range assignments {
		if !assignment.IsCurrentlyValid() {
			continue
		}
		role, found, err := r.store.loadRole(ctx, assignment.RoleID)
		if err != nil {
			return false, err
		}
		if !found || !role.IsActive {
			continue
		}

		grants, err := r.resolveRoleGrants(ctx, assignment.RoleID)
		if err != nil {
			return false, err
		}
		if domain.RoleHasPermission(grants, permissionName) {
			return true, nil
		}
	}
	return false, nil
}

// UserHasPermissionFor generates the canonical name for the triple and
// checks it.
func (r *PermissionRepository) UserHasPermissionFor(ctx context.Context, userID, module string, action domain.PermissionAction, resource string) (bool, error) {
	name, err := domain.GeneratePermissionName(module, action, resource)
	if err != nil {
		return false, err
	}
	return r.UserHasPermission(ctx, userID, name)
}

// GetUserPermissions materializes the user's effective permission set,
// deduplicated and ordered by name. includeInactive widens the walk to
// expired assignments, revoked grants, and inactive rows, for audit
// and display.
func (r *PermissionRepository) GetUserPermissions(ctx context.Context, userID string, includeInactive bool) ([]domain.Permission, error) {
	assignments, err := r.store.loadUserAssignments(ctx, userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	permissions := make([]domain.Permission, 0)
	for _, assignment := range assignments {
		if !includeInactive && !assignment.IsCurrentlyValid() {
			continue
		}
		role, found, err := r.store.loadRole(ctx, assignment.RoleID)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		if !includeInactive && !role.IsActive {
			continue
		}

		grants, err := r.resolveRoleGrants(ctx, assignment.RoleID)
		if err != nil {
			return nil, err
		}
		for _, grant := range grants {
			if !includeInactive && !grant.IsCurrentlyValid() {
				continue
			}
			if _, ok := seen[grant.Permission.ID]; ok {
				continue
			}
			seen[grant.Permission.ID] = struct{}{}
			permissions = append(permissions, grant.Permission)
		}
	}

	sort.Slice(permissions, func(i, j int) bool {
		return permissions[i].Name < permissions[j].Name
	})
	return permissions, nil
}

// RevokeExpiredRolePermissions retires grants whose expiry has passed.
func (r *PermissionRepository) RevokeExpiredRolePermissions(ctx context.Context) (int, error) {
	ids, err := r.store.members(ctx, r.store.grantSetKey())
	if err != nil {
		return 0, err
	}

	revoked := 0
	for _, id := range ids {
		grant, found, err := r.store.loadGrant(ctx, id)
		if err != nil {
			return revoked, err
		}
		if !found || !grant.IsGranted || !grant.IsExpired() {
			continue
		}

		unlock := r.locks.Lock(roleLockKey(grant.RoleID))
		grant, found, err = r.store.loadGrant(ctx, id)
		if err != nil {
			unlock()
			return revoked, err
		}
		if found && grant.IsGranted && grant.IsExpired() {
			grant.Revoke("", "")
			if err := r.store.saveGrant(ctx, grant); err != nil {
				unlock()
				return revoked, err
			}
			revoked++
		}
		unlock()
	}
	return revoked, nil
}

// resolveRoleGrants joins the role's grant rows against their
// permissions. Rows whose permission vanished are skipped.
func (r *PermissionRepository) resolveRoleGrants(ctx context.Context, roleID string) ([]domain.ResolvedRolePermission, error) {
	grants, err := r.store.loadRoleGrants(ctx, roleID)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.ResolvedRolePermission, 0, len(grants))
	for _, grant := range grants {
		permission, found, err := r.store.loadPermission(ctx, grant.PermissionID)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		entries = append(entries, domain.ResolvedRolePermission{RolePermission: grant, Permission: permission})
	}
	return entries, nil
}

func (r *PermissionRepository) saveIndexedGrant(ctx context.Context, grant domain.RolePermission) error {
	if err := r.store.saveGrant(ctx, grant); err != nil {
		return err
	}
	for _, key := range []string{
		r.store.grantsByRoleKey(grant.RoleID),
		r.store.grantsByPermKey(grant.PermissionID),
		r.store.grantSetKey(),
	} {
		if err := r.store.client.SAdd(ctx, key, grant.ID).Err(); err != nil {
			return fmt.Errorf("index grant: %w", err)
		}
	}
	return nil
}

var _ port.PermissionRepository = (*PermissionRepository)(nil)
