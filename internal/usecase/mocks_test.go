package usecase

import (
	"context"
	"sort"
	"strings"
	"time"

	uuid "github.com/google/uuid"

	"github.com/remon646/staffdesk-authz/internal/core/domain"
)

// In-memory repository mocks shared by the service tests.

type roleRepoMock struct {
	roles       map[string]domain.Role
	assignments []domain.UserRole

	createErr error
	updateErr error
	deleteErr error
	assignErr error
}

func newRoleRepoMock() *roleRepoMock {
	return &roleRepoMock{roles: make(map[string]domain.Role)}
}

func (m *roleRepoMock) addRole(role domain.Role) {
	m.roles[role.ID] = role
}

func (m *roleRepoMock) Create(_ context.Context, role domain.Role) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.roles {
		if strings.EqualFold(existing.Name, role.Name) {
			return domain.NewValidationError("role name %q is already taken", role.Name)
		}
	}
	m.roles[role.ID] = role
	return nil
}

func (m *roleRepoMock) GetByID(_ context.Context, id string) (*domain.Role, error) {
	if role, ok := m.roles[id]; ok {
		return &role, nil
	}
	return nil, domain.NewNotFoundError("role %q not found", id)
}

func (m *roleRepoMock) GetByName(_ context.Context, name string) (*domain.Role, error) {
	for _, role := range m.roles {
		if strings.EqualFold(role.Name, name) {
			found := role
			return &found, nil
		}
	}
	return nil, domain.NewNotFoundError("role %q not found", name)
}

func (m *roleRepoMock) GetSystemRole(ctx context.Context, kind domain.SystemRole) (*domain.Role, error) {
	return m.GetByName(ctx, kind.RoleName())
}

func (m *roleRepoMock) GetAll(_ context.Context, includeInactive bool) ([]domain.Role, error) {
	roles := make([]domain.Role, 0, len(m.roles))
	for _, role := range m.roles {
		if includeInactive || role.IsActive {
			roles = append(roles, role)
		}
	}
	sort.Slice(roles, func(i, j int) bool {
		if roles[i].Priority != roles[j].Priority {
			return roles[i].Priority < roles[j].Priority
		}
		return roles[i].Name < roles[j].Name
	})
	return roles, nil
}

func (m *roleRepoMock) Exists(_ context.Context, name, excludeID string) (bool, error) {
	for _, role := range m.roles {
		if strings.EqualFold(role.Name, name) && role.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *roleRepoMock) Update(_ context.Context, role domain.Role) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.roles[role.ID]; !ok {
		return domain.NewNotFoundError("role %q not found", role.ID)
	}
	m.roles[role.ID] = role
	return nil
}

func (m *roleRepoMock) Delete(_ context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	role, ok := m.roles[id]
	if !ok {
		return domain.NewNotFoundError("role %q not found", id)
	}
	if role.IsSystemRole {
		return domain.NewInvariantViolation("system role %q cannot be deleted", role.Name)
	}
	delete(m.roles, id)
	return nil
}

func (m *roleRepoMock) GetUserRoles(_ context.Context, userID string, includeInactive bool) ([]domain.ResolvedUserRole, error) {
	entries := make([]domain.ResolvedUserRole, 0)
	for _, assignment := range m.assignments {
		if assignment.UserID != userID {
			continue
		}
		role, ok := m.roles[assignment.RoleID]
		if !ok {
			continue
		}
		entry := domain.ResolvedUserRole{UserRole: assignment, Role: role}
		if includeInactive || entry.IsCurrentlyValid() {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Role.Priority < entries[j].Role.Priority
	})
	return entries, nil
}

func (m *roleRepoMock) AssignRoleToUser(_ context.Context, assignment domain.UserRole) (domain.UserRole, error) {
	if m.assignErr != nil {
		return domain.UserRole{}, m.assignErr
	}
	role, ok := m.roles[assignment.RoleID]
	if !ok {
		return domain.UserRole{}, domain.NewNotFoundError("role %q not found", assignment.RoleID)
	}
	if !role.IsActive {
		return domain.UserRole{}, domain.NewValidationError("role %q is inactive", role.Name)
	}

	for i, existing := range m.assignments {
		if existing.UserID != assignment.UserID || existing.RoleID != assignment.RoleID {
			continue
		}
		existing.Grant(assignment.AssignedBy, assignment.ExpiresAt, assignment.Comment)
		existing.IsPrimary = assignment.IsPrimary
		m.assignments[i] = existing
		m.demoteOtherPrimaries(existing)
		return existing, nil
	}

	row := assignment
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	row.Grant(assignment.AssignedBy, assignment.ExpiresAt, assignment.Comment)
	row.IsPrimary = assignment.IsPrimary
	m.assignments = append(m.assignments, row)
	m.demoteOtherPrimaries(row)
	return row, nil
}

func (m *roleRepoMock) demoteOtherPrimaries(row domain.UserRole) {
	if !row.IsPrimary {
		return
	}
	for i, other := range m.assignments {
		if other.UserID == row.UserID && other.ID != row.ID && other.IsPrimary {
			other.IsPrimary = false
			m.assignments[i] = other
		}
	}
}

func (m *roleRepoMock) RemoveRoleFromUser(_ context.Context, userID, roleID string) (bool, error) {
	for i, assignment := range m.assignments {
		if assignment.UserID == userID && assignment.RoleID == roleID && assignment.IsActive {
			assignment.Revoke("", "")
			m.assignments[i] = assignment
			return true, nil
		}
	}
	return false, nil
}

func (m *roleRepoMock) GetExpiringUserRoles(_ context.Context, within time.Duration) ([]domain.ResolvedUserRole, error) {
	deadline := time.Now().UTC().Add(within)
	entries := make([]domain.ResolvedUserRole, 0)
	for _, assignment := range m.assignments {
		if !assignment.IsCurrentlyValid() || assignment.ExpiresAt == nil || assignment.ExpiresAt.After(deadline) {
			continue
		}
		role, ok := m.roles[assignment.RoleID]
		if !ok || !role.IsActive {
			continue
		}
		entries = append(entries, domain.ResolvedUserRole{UserRole: assignment, Role: role})
	}
	return entries, nil
}

func (m *roleRepoMock) DeactivateExpiredUserRoles(_ context.Context) (int, error) {
	retired := 0
	for i, assignment := range m.assignments {
		if assignment.IsActive && assignment.IsExpired() {
			assignment.Revoke("", "")
			m.assignments[i] = assignment
			retired++
		}
	}
	return retired, nil
}

type permissionRepoMock struct {
	permissions map[string]domain.Permission
	grants      []domain.RolePermission
	roles       *roleRepoMock

	reconcileErr error
}

func newPermissionRepoMock(roles *roleRepoMock) *permissionRepoMock {
	return &permissionRepoMock{permissions: make(map[string]domain.Permission), roles: roles}
}

func (m *permissionRepoMock) addPermission(permission domain.Permission) {
	m.permissions[permission.ID] = permission
}

func (m *permissionRepoMock) addGrant(grant domain.RolePermission) {
	m.grants = append(m.grants, grant)
}

func (m *permissionRepoMock) Create(_ context.Context, permission domain.Permission) error {
	for _, existing := range m.permissions {
		if strings.EqualFold(existing.Name, permission.Name) {
			return domain.NewValidationError("permission name %q is already taken", permission.Name)
		}
	}
	m.permissions[permission.ID] = permission
	return nil
}

func (m *permissionRepoMock) GetByID(_ context.Context, id string) (*domain.Permission, error) {
	if permission, ok := m.permissions[id]; ok {
		return &permission, nil
	}
	return nil, domain.NewNotFoundError("permission %q not found", id)
}

func (m *permissionRepoMock) GetByName(_ context.Context, name string) (*domain.Permission, error) {
	for _, permission := range m.permissions {
		if strings.EqualFold(permission.Name, name) {
			found := permission
			return &found, nil
		}
	}
	return nil, domain.NewNotFoundError("permission %q not found", name)
}

func (m *permissionRepoMock) GetAll(_ context.Context, includeInactive bool) ([]domain.Permission, error) {
	permissions := make([]domain.Permission, 0, len(m.permissions))
	for _, permission := range m.permissions {
		if includeInactive || permission.IsActive {
			permissions = append(permissions, permission)
		}
	}
	sort.Slice(permissions, func(i, j int) bool { return permissions[i].Name < permissions[j].Name })
	return permissions, nil
}

func (m *permissionRepoMock) Exists(_ context.Context, name, excludeID string) (bool, error) {
	for _, permission := range m.permissions {
		if strings.EqualFold(permission.Name, name) && permission.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *permissionRepoMock) Update(_ context.Context, permission domain.Permission) error {
	if _, ok := m.permissions[permission.ID]; !ok {
		return domain.NewNotFoundError("permission %q not found", permission.ID)
	}
	m.permissions[permission.ID] = permission
	return nil
}

func (m *permissionRepoMock) Delete(_ context.Context, id string) error {
	permission, ok := m.permissions[id]
	if !ok {
		return domain.NewNotFoundError("permission %q not found", id)
	}
	if permission.IsSystemPermission {
		return domain.NewInvariantViolation("system permission %q cannot be deleted", permission.Name)
	}
	delete(m.permissions, id)
	return nil
}

func (m *permissionRepoMock) GetRolePermissions(_ context.Context, roleID string, includeInactive bool) ([]domain.ResolvedRolePermission, error) {
	entries := make([]domain.ResolvedRolePermission, 0)
	for _, grant := range m.grants {
		if grant.RoleID != roleID {
			continue
		}
		permission, ok := m.permissions[grant.PermissionID]
		if !ok {
			continue
		}
		entry := domain.ResolvedRolePermission{RolePermission: grant, Permission: permission}
		if includeInactive || entry.IsCurrentlyValid() {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (m *permissionRepoMock) AssignPermissionToRole(_ context.Context, grant domain.RolePermission) (domain.RolePermission, error) {
	if _, ok := m.permissions[grant.PermissionID]; !ok {
		return domain.RolePermission{}, domain.NewNotFoundError("permission %q not found", grant.PermissionID)
	}
	for i, existing := range m.grants {
		if existing.RoleID == grant.RoleID && existing.PermissionID == grant.PermissionID {
			existing.Grant(grant.GrantedBy, grant.ExpiresAt, grant.Comment)
			m.grants[i] = existing
			return existing, nil
		}
	}
	row := grant
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	row.Grant(grant.GrantedBy, grant.ExpiresAt, grant.Comment)
	m.grants = append(m.grants, row)
	return row, nil
}

func (m *permissionRepoMock) RemovePermissionFromRole(_ context.Context, roleID, permissionID string) (bool, error) {
	for i, grant := range m.grants {
		if grant.RoleID == roleID && grant.PermissionID == permissionID && grant.IsGranted {
			grant.Revoke("", "")
			m.grants[i] = grant
			return true, nil
		}
	}
	return false, nil
}

func (m *permissionRepoMock) UpdateRolePermissions(ctx context.Context, roleID string, permissionIDs []string, updatedBy string) error {
	if m.reconcileErr != nil {
		return m.reconcileErr
	}
	target := make(map[string]struct{}, len(permissionIDs))
	for _, permissionID := range permissionIDs {
		if _, ok := m.permissions[permissionID]; !ok {
			return domain.NewNotFoundError("permission %q not found", permissionID)
		}
		target[permissionID] = struct{}{}
	}

	covered := make(map[string]struct{})
	for i, grant := range m.grants {
		if grant.RoleID != roleID {
			continue
		}
		_, wanted := target[grant.PermissionID]
		if grant.IsGranted && !wanted {
			grant.Revoke(updatedBy, "")
		}
		if !grant.IsGranted && wanted {
			grant.Grant(updatedBy, nil, "")
		}
		m.grants[i] = grant
		covered[grant.PermissionID] = struct{}{}
	}
	for permissionID := range target {
		if _, ok := covered[permissionID]; ok {
			continue
		}
		row := domain.RolePermission{ID: uuid.NewString(), RoleID: roleID, PermissionID: permissionID}
		row.Grant(updatedBy, nil, "")
		m.grants = append(m.grants, row)
	}
	return nil
}

func (m *permissionRepoMock) UserHasPermission(ctx context.Context, userID, permissionName string) (bool, error) {
	entries, err := m.roles.GetUserRoles(ctx, userID, false)
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		grants, err := m.GetRolePermissions(ctx, entry.RoleID, false)
		if err != nil {
			return false, err
		}
		if domain.RoleHasPermission(grants, permissionName) {
			return true, nil
		}
	}
	return false, nil
}

func (m *permissionRepoMock) UserHasPermissionFor(ctx context.Context, userID, module string, action domain.PermissionAction, resource string) (bool, error) {
	name, err := domain.GeneratePermissionName(module, action, resource)
	if err != nil {
		return false, err
	}
	return m.UserHasPermission(ctx, userID, name)
}

func (m *permissionRepoMock) GetUserPermissions(ctx context.Context, userID string, includeInactive bool) ([]domain.Permission, error) {
	entries, err := m.roles.GetUserRoles(ctx, userID, includeInactive)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	permissions := make([]domain.Permission, 0)
	for _, entry := range entries {
		grants, err := m.GetRolePermissions(ctx, entry.RoleID, includeInactive)
		if err != nil {
			return nil, err
		}
		for _, grant := range grants {
			if _, ok := seen[grant.Permission.ID]; ok {
				continue
			}
			seen[grant.Permission.ID] = struct{}{}
			permissions = append(permissions, grant.Permission)
		}
	}
	sort.Slice(permissions, func(i, j int) bool { return permissions[i].Name < permissions[j].Name })
	return permissions, nil
}

func (m *permissionRepoMock) RevokeExpiredRolePermissions(_ context.Context) (int, error) {
	revoked := 0
	for i, grant := range m.grants {
		if grant.IsGranted && grant.IsExpired() {
			grant.Revoke("", "")
			m.grants[i] = grant
			revoked++
		}
	}
	return revoked, nil
}

type eventsMock struct {
	assigned   []domain.RoleAssignedEvent
	revoked    []domain.RoleRevokedEvent
	reconciled []domain.RolePermissionsReconciledEvent
	publishErr error
}

func (m *eventsMock) PublishRoleAssigned(_ context.Context, event domain.RoleAssignedEvent) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.assigned = append(m.assigned, event)
	return nil
}

func (m *eventsMock) PublishRoleRevoked(_ context.Context, event domain.RoleRevokedEvent) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.revoked = append(m.revoked, event)
	return nil
}

func (m *eventsMock) PublishRolePermissionsReconciled(_ context.Context, event domain.RolePermissionsReconciledEvent) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.reconciled = append(m.reconciled, event)
	return nil
}

type observerMock struct {
	allowed int
	denied  int
}

func (m *observerMock) ObserveCheck(allowed bool) {
	if allowed {
		m.allowed++
	} else {
		m.denied++
	}
}
