// Package redis implements the engine's repositories over a key-value
// store that offers only atomic single-key operations. Every record is
// one JSON document under its own key; relations are ID sets resolved
// by indexed lookup at read time. Mutations that span multiple keys for
// one user or one role run behind a keyed mutex; reads are lock-free
// and may observe momentarily stale, but never torn, single-key state.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/remon646/staffdesk-authz/internal/core/domain"
	"github.com/remon646/staffdesk-authz/internal/infra/lock"
)

const defaultKeyPrefix = "authz"

// Repositories bundles the role and permission repositories over one
// client. Both share the same keyed mutex so a role delete and a grant
// reconciliation for the same role exclude each other.
type Repositories struct {
	Roles       *RoleRepository
	Permissions *PermissionRepository
}

// NewRepositories wires a Redis client into the repository set.
func NewRepositories(client *red.Client, keyPrefix string) *Repositories {
	s := newStore(client, keyPrefix)
	locks := lock.NewKeyedMutex()

	return &Repositories{
		Roles:       &RoleRepository{store: s, locks: locks},
		Permissions: &PermissionRepository{store: s, locks: locks},
	}
}

type store struct {
	client *red.Client
	prefix string
}

func newStore(client *red.Client, keyPrefix string) *store {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &store{client: client, prefix: prefix}
}

func (s *store) key(parts ...string) string {
	return s.prefix + ":" + strings.Join(parts, ":")
}

func (s *store) roleKey(id string) string       { return s.key("role", id) }
func (s *store) roleNameKey(name string) string { return s.key("role", "name", strings.ToLower(name)) }
func (s *store) roleSetKey() string             { return s.key("role", "all") }

func (s *store) permKey(id string) string       { return s.key("perm", id) }
func (s *store) permNameKey(name string) string { return s.key("perm", "name", strings.ToLower(name)) }
func (s *store) permSetKey() string             { return s.key("perm", "all") }

func (s *store) grantKey(id string) string           { return s.key("grant", id) }
func (s *store) grantsByRoleKey(roleID string) string { return s.key("grant", "role", roleID) }
func (s *store) grantsByPermKey(permID string) string { return s.key("grant", "perm", permID) }
func (s *store) grantSetKey() string                  { return s.key("grant", "all") }

func (s *store) assignKey(id string) string             { return s.key("assign", id) }
func (s *store) assignsByUserKey(userID string) string  { return s.key("assign", "user", userID) }
func (s *store) assignsByRoleKey(roleID string) string  { return s.key("assign", "role", roleID) }
func (s *store) assignSetKey() string                   { return s.key("assign", "all") }

// getJSON loads one record; found=false on a missing key.
func (s *store) getJSON(ctx context.Context, key string, out any) (bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis get record: %w", err)
	}

	if err := json.Unmarshal([]byte(value), out); err != nil {
		return false, fmt.Errorf("decode record: %w", err)
	}
	return true, nil
}

func (s *store) setJSON(ctx context.Context, key string, in any) error {
	bytes, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := s.client.Set(ctx, key, bytes, 0).Err(); err != nil {
		return fmt.Errorf("redis set record: %w", err)
	}
	return nil
}

func isNil(err error) bool {
	return errors.Is(err, red.Nil)
}

func (s *store) members(ctx context.Context, key string) ([]string, error) {
	ids, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis set members: %w", err)
	}
	return ids, nil
}

// Persisted record shapes. Kept separate from the domain structs so the
// storage encoding can evolve without touching entity fields.

type roleRecord struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	Priority     int        `json:"priority"`
	IsSystemRole bool       `json:"is_system_role"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
	UpdatedBy    string     `json:"updated_by,omitempty"`
}

func roleToRecord(role domain.Role) roleRecord {
	return roleRecord(role)
}

func recordToRole(rec roleRecord) domain.Role {
	return domain.Role(rec)
}

type permissionRecord struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Description        string     `json:"description,omitempty"`
	Module             string     `json:"module"`
	Action             string     `json:"action"`
	Resource           string     `json:"resource,omitempty"`
	IsSystemPermission bool       `json:"is_system_permission"`
	IsActive           bool       `json:"is_active"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          *time.Time `json:"updated_at,omitempty"`
	UpdatedBy          string     `json:"updated_by,omitempty"`
}

func permissionToRecord(p domain.Permission) permissionRecord {
	return permissionRecord{
		ID:                 p.ID,
		Name:               p.Name,
		Description:        p.Description,
		Module:             p.Module,
		Action:             string(p.Action),
		Resource:           p.Resource,
		IsSystemPermission: p.IsSystemPermission,
		IsActive:           p.IsActive,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
		UpdatedBy:          p.UpdatedBy,
	}
}

func recordToPermission(rec permissionRecord) domain.Permission {
	return domain.Permission{
		ID:                 rec.ID,
		Name:               rec.Name,
		Description:        rec.Description,
		Module:             rec.Module,
		Action:             domain.PermissionAction(rec.Action),
		Resource:           rec.Resource,
		IsSystemPermission: rec.IsSystemPermission,
		IsActive:           rec.IsActive,
		CreatedAt:          rec.CreatedAt,
		UpdatedAt:          rec.UpdatedAt,
		UpdatedBy:          rec.UpdatedBy,
	}
}

type rolePermissionRecord struct {
	ID           string     `json:"id"`
	RoleID       string     `json:"role_id"`
	PermissionID string     `json:"permission_id"`
	IsGranted    bool       `json:"is_granted"`
	GrantedAt    time.Time  `json:"granted_at"`
	GrantedBy    string     `json:"granted_by,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Comment      string     `json:"comment,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
	UpdatedBy    string     `json:"updated_by,omitempty"`
}

func grantToRecord(g domain.RolePermission) rolePermissionRecord {
	return rolePermissionRecord(g)
}

func recordToGrant(rec rolePermissionRecord) domain.RolePermission {
	return domain.RolePermission(rec)
}

type userRoleRecord struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	RoleID     string     `json:"role_id"`
	IsActive   bool       `json:"is_active"`
	IsPrimary  bool       `json:"is_primary"`
	AssignedAt time.Time  `json:"assigned_at"`
	AssignedBy string     `json:"assigned_by,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Comment    string     `json:"comment,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
	UpdatedBy  string     `json:"updated_by,omitempty"`
}

func assignmentToRecord(a domain.UserRole) userRoleRecord {
	return userRoleRecord(a)
}

func recordToAssignment(rec userRoleRecord) domain.UserRole {
	return domain.UserRole(rec)
}

// loadRole fetches one role record, reporting absence as found=false.
func (s *store) loadRole(ctx context.Context, id string) (domain.Role, bool, error) {
	var rec roleRecord
	found, err := s.getJSON(ctx, s.roleKey(id), &rec)
	if err != nil || !found {
		return domain.Role{}, found, err
	}
	return recordToRole(rec), true, nil
}

func (s *store) loadPermission(ctx context.Context, id string) (domain.Permission, bool, error) {
	var rec permissionRecord
	found, err := s.getJSON(ctx, s.permKey(id), &rec)
	if err != nil || !found {
		return domain.Permission{}, found, err
	}
	return recordToPermission(rec), true, nil
}

func (s *store) loadGrant(ctx context.Context, id string) (domain.RolePermission, bool, error) {
	var rec rolePermissionRecord
	found, err := s.getJSON(ctx, s.grantKey(id), &rec)
	if err != nil || !found {
		return domain.RolePermission{}, found, err
	}
	return recordToGrant(rec), true, nil
}

func (s *store) loadAssignment(ctx context.Context, id string) (domain.UserRole, bool, error) {
	var rec userRoleRecord
	found, err := s.getJSON(ctx, s.assignKey(id), &rec)
	if err != nil || !found {
		return domain.UserRole{}, found, err
	}
	return recordToAssignment(rec), true, nil
}

// loadUserAssignments returns every assignment row of the user, in
// unspecified order. Rows whose record vanished between the index read
// and the record read are skipped.
func (s *store) loadUserAssignments(ctx context.Context, userID string) ([]domain.UserRole, error) {
	ids, err := s.members(ctx, s.assignsByUserKey(userID))
	if err != nil {
		return nil, err
	}

	assignments := make([]domain.UserRole, 0, len(ids))
	for _, id := range ids {
		assignment, found, err := s.loadAssignment(ctx, id)
		if err != nil {
			return nil, err
		}
		if found {
			assignments = append(assignments, assignment)
		}
	}
	return assignments, nil
}

// loadRoleAssignments returns every assignment row referencing the role.
func (s *store) loadRoleAssignments(ctx context.Context, roleID string) ([]domain.UserRole, error) {
	ids, err := s.members(ctx, s.assignsByRoleKey(roleID))
	if err != nil {
		return nil, err
	}

	assignments := make([]domain.UserRole, 0, len(ids))
	for _, id := range ids {
		assignment, found, err := s.loadAssignment(ctx, id)
		if err != nil {
			return nil, err
		}
		if found {
			assignments = append(assignments, assignment)
		}
	}
	return assignments, nil
}

// loadRoleGrants returns every grant row of the role.
func (s *store) loadRoleGrants(ctx context.Context, roleID string) ([]domain.RolePermission, error) {
	ids, err := s.members(ctx, s.grantsByRoleKey(roleID))
	if err != nil {
		return nil, err
	}

	grants := make([]domain.RolePermission, 0, len(ids))
	for _, id := range ids {
		grant, found, err := s.loadGrant(ctx, id)
		if err != nil {
			return nil, err
		}
		if found {
			grants = append(grants, grant)
		}
	}
	return grants, nil
}

func (s *store) saveAssignment(ctx context.Context, a domain.UserRole) error {
	return s.setJSON(ctx, s.assignKey(a.ID), assignmentToRecord(a))
}

func (s *store) saveGrant(ctx context.Context, g domain.RolePermission) error {
	return s.setJSON(ctx, s.grantKey(g.ID), grantToRecord(g))
}
