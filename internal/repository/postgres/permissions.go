package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/remon646/staffdesk-authz/internal/core/domain"
	"github.com/remon646/staffdesk-authz/internal/core/port"
)

// PermissionRepository implements port.PermissionRepository backed by
// PostgreSQL.
type PermissionRepository struct {
	pool    txBeginner
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPermissionRepository constructs a PostgreSQL-backed permission
// repository.
func NewPermissionRepository(pool txBeginner) *PermissionRepository {
	return &PermissionRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository configured to execute within the provided
// transaction.
func (r *PermissionRepository) WithTx(tx pgx.Tx) *PermissionRepository {
	if tx == nil {
		return r
	}
	return &PermissionRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

const permissionColumns = "id, name, description, module, action, resource, is_system_permission, is_active, created_at, updated_at, updated_by"

func scanPermission(row pgx.Row) (domain.Permission, error) {
	var (
		permission domain.Permission
		action     string
		updatedAt  sql.NullTime
		updatedBy  sql.NullString
	)
	err := row.Scan(
		&permission.ID,
		&permission.Name,
		&permission.Description,
		&permission.Module,
		&action,
		&permission.Resource,
		&permission.IsSystemPermission,
		&permission.IsActive,
		&permission.CreatedAt,
		&updatedAt,
		&updatedBy,
	)
	if err != nil {
		return domain.Permission{}, err
	}
	permission.Action = domain.PermissionAction(action)
	if updatedAt.Valid {
		at := updatedAt.Time
		permission.UpdatedAt = &at
	}
	if updatedBy.Valid {
		permission.UpdatedBy = updatedBy.String
	}
	return permission, nil
}

// Create inserts a new permission. The unique index on LOWER(name)
// turns a duplicate into a validation error.
func (r *PermissionRepository) Create(ctx context.Context, permission domain.Permission) error {
	stmt, args, err := r.builder.Insert("authz.permissions").
		Columns("id", "name", "description", "module", "action", "resource", "is_system_permission", "is_active", "created_at").
		Values(
			permission.ID, permission.Name, permission.Description,
			permission.Module, string(permission.Action), permission.Resource,
			permission.IsSystemPermission, permission.IsActive, permission.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert permission sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return domain.NewValidationError("permission name %q is already taken", permission.Name)
		}
		return fmt.Errorf("insert permission: %w", err)
	}
	return nil
}

func (r *PermissionRepository) GetByID(ctx context.Context, id string) (*domain.Permission, error) {
	stmt, args, err := r.builder.Select(permissionColumns).
		From("authz.permissions").
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select permission by id sql: %w", err)
	}

	permission, err := scanPermission(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("permission %q not found", id)
		}
		return nil, fmt.Errorf("scan permission by id: %w", err)
	}
	return &permission, nil
}

// GetByName matches the name case-insensitively.
func (r *PermissionRepository) GetByName(ctx context.Context, name string) (*domain.Permission, error) {
	stmt, args, err := r.builder.Select(permissionColumns).
		From("authz.permissions").
		Where(squirrel.Expr("LOWER(name) = LOWER(?)", name)).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select permission by name sql: %w", err)
	}

	permission, err := scanPermission(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("permission %q not found", name)
		}
		return nil, fmt.Errorf("scan permission by name: %w", err)
	}
	return &permission, nil
}

// GetAll returns permissions ordered by name.
func (r *PermissionRepository) GetAll(ctx context.Context, includeInactive bool) ([]domain.Permission, error) {
	query := r.builder.Select(permissionColumns).
		From("authz.permissions").
		OrderBy("name ASC")
	if !includeInactive {
		query = query.Where(squirrel.Eq{"is_active": true})
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list permissions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query permissions: %w", err)
	}
	defer rows.Close()

	permissions := make([]domain.Permission, 0)
	for rows.Next() {
		permission, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		permissions = append(permissions, permission)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permissions: %w", err)
	}
	return permissions, nil
}

// Exists reports whether a permission with the name exists, ignoring
// the row with excludeID.
func (r *PermissionRepository) Exists(ctx context.Context, name, excludeID string) (bool, error) {
	stmt, args, err := r.builder.Select("1").
		From("authz.permissions").
		Where(squirrel.Expr("LOWER(name) = LOWER(?)", name)).
		Where(squirrel.NotEq{"id": excludeID}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build permission exists sql: %w", err)
	}

	var one int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("scan permission exists: %w", err)
	}
	return true, nil
}

// Update modifies an existing permission.
func (r *PermissionRepository) Update(ctx context.Context, permission domain.Permission) error {
	stmt, args, err := r.builder.Update("authz.permissions").
		Set("name", permission.Name).
		Set("description", permission.Description).
		Set("module", permission.Module).
		Set("action", string(permission.Action)).
		Set("resource", permission.Resource).
		Set("is_active", permission.IsActive).
		Set("updated_at", permission.UpdatedAt).
		Set("updated_by", permission.UpdatedBy).
		Where(squirrel.Eq{"id": permission.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update permission sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewValidationError("permission name %q is already taken", permission.Name)
		}
		return fmt.Errorf("update permission: %w", err)
	}
	if res.RowsAffected() == 0 {
		return domain.NewNotFoundError("permission %q not found", permission.ID)
	}
	return nil
}

// Delete removes the permission. System permissions and permissions
// still granted to roles are rejected; revoked grant rows referencing
// it go with it.
func (r *PermissionRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete permission tx: %w", err)
	}
	defer tx.Rollback(ctx)

	repo := r.WithTx(tx)

	permission, err := repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if permission.IsSystemPermission {
		return domain.NewInvariantViolation("system permission %q cannot be deleted", permission.Name)
	}

	stmt, args, err := r.builder.Select("COUNT(*)").
		From("authz.role_permissions").
		Where(squirrel.Eq{"permission_id": id, "is_granted": true}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build count grants sql: %w", err)
	}

	var granted int
	if err := tx.QueryRow(ctx, stmt, args...).Scan(&granted); err != nil {
		return fmt.Errorf("scan grant count: %w", err)
	}
	if granted > 0 {
		return domain.NewConflictError("permission %q is still granted to %d roles", permission.Name, granted)
	}

	stmt, args, err = r.builder.Delete("authz.role_permissions").
		Where(squirrel.Eq{"permission_id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build cascade delete sql: %w", err)
	}
	if _, err := tx.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("cascade delete grants: %w", err)
	}

	stmt, args, err = r.builder.Delete("authz.permissions").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete permission sql: %w", err)
	}
	if _, err := tx.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}

	return tx.Commit(ctx)
}

// GetRolePermissions returns the role's grants joined against their
// permissions, ordered by permission name.
func (r *PermissionRepository) GetRolePermissions(ctx context.Context, roleID string, includeInactive bool) ([]domain.ResolvedRolePermission, error) {
	query := r.builder.Select(
		"rp.id", "rp.role_id", "rp.permission_id", "rp.is_granted",
		"rp.granted_at", "rp.granted_by", "rp.expires_at", "rp.comment",
		"rp.updated_at", "rp.updated_by",
		"p.id", "p.name", "p.description", "p.module", "p.action", "p.resource",
		"p.is_system_permission", "p.is_active", "p.created_at", "p.updated_at", "p.updated_by",
	).
		From("authz.role_permissions rp").
		Join("authz.permissions p ON p.id = rp.permission_id").
		Where(squirrel.Eq{"rp.role_id": roleID}).
		OrderBy("p.name ASC")
	if !includeInactive {
		query = query.Where(squirrel.Expr(validGrant)).
			Where(squirrel.Eq{"p.is_active": true})
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build role permissions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query role permissions: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.ResolvedRolePermission, 0)
	for rows.Next() {
		entry, err := scanResolvedRolePermission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan role permission: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role permissions: %w", err)
	}
	return entries, nil
}

func scanResolvedRolePermission(row pgx.Row) (domain.ResolvedRolePermission, error) {
	var (
		entry         domain.ResolvedRolePermission
		grantedBy     sql.NullString
		expiresAt     sql.NullTime
		comment       sql.NullString
		updatedAt     sql.NullTime
		updatedBy     sql.NullString
		action        string
		permUpdatedAt sql.NullTime
		permUpdatedBy sql.NullString
	)
	err := row.Scan(
		&entry.RolePermission.ID,
		&entry.RoleID,
		&entry.PermissionID,
		&entry.IsGranted,
		&entry.GrantedAt,
		&grantedBy,
		&expiresAt,
		&comment,
		&updatedAt,
		&updatedBy,
		&entry.Permission.ID,
		&entry.Permission.Name,
		&entry.Permission.Description,
		&entry.Permission.Module,
		&action,
		&entry.Permission.Resource,
		&entry.Permission.IsSystemPermission,
		&entry.Permission.IsActive,
		&entry.Permission.CreatedAt,
		&permUpdatedAt,
		&permUpdatedBy,
	)
	if err != nil {
		return domain.ResolvedRolePermission{}, err
	}
	entry.Permission.Action = domain.PermissionAction(action)
	if grantedBy.Valid {
		entry.GrantedBy = grantedBy.String
	}
	if expiresAt.Valid {
		at := expiresAt.Time
		entry.ExpiresAt = &at
	}
	if comment.Valid {
		entry.RolePermission.Comment = comment.String
	}
	if updatedAt.Valid {
		at := updatedAt.Time
		entry.RolePermission.UpdatedAt = &at
	}
	if updatedBy.Valid {
		entry.RolePermission.UpdatedBy = updatedBy.String
	}
	if permUpdatedAt.Valid {
		at := permUpdatedAt.Time
		entry.Permission.UpdatedAt = &at
	}
	if permUpdatedBy.Valid {
		entry.Permission.UpdatedBy = permUpdatedBy.String
	}
	return entry, nil
}

// AssignPermissionToRole upserts the (role, permission) grant. An
// existing row, granted or revoked, is re-granted in place instead of
// duplicated.
func (r *PermissionRepository) AssignPermissionToRole(ctx context.Context, grant domain.RolePermission) (domain.RolePermission, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.RolePermission{}, fmt.Errorf("begin assign permission tx: %w", err)
	}
	defer tx.Rollback(ctx)

	repo := r.WithTx(tx)

	if err := repo.requireRole(ctx, grant.RoleID); err != nil {
		return domain.RolePermission{}, err
	}
	if _, err := repo.GetByID(ctx, grant.PermissionID); err != nil {
		return domain.RolePermission{}, err
	}

	stmt, args, err := r.builder.Select("id").
		From("authz.role_permissions").
		Where(squirrel.Eq{"role_id": grant.RoleID, "permission_id": grant.PermissionID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return domain.RolePermission{}, fmt.Errorf("build select grant sql: %w", err)
	}

	row := domain.RolePermission{
		RoleID:       grant.RoleID,
		PermissionID: grant.PermissionID,
	}
	existed := true
	if err := tx.QueryRow(ctx, stmt, args...).Scan(&row.ID); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return domain.RolePermission{}, fmt.Errorf("scan grant: %w", err)
		}
		existed = false
	}

	row.Grant(grant.GrantedBy, grant.ExpiresAt, grant.Comment)

	if existed {
		stmt, args, err = r.builder.Update("authz.role_permissions").
			Set("is_granted", true).
			Set("granted_at", row.GrantedAt).
			Set("granted_by", row.GrantedBy).
			Set("expires_at", row.ExpiresAt).
			Set("comment", row.Comment).
			Set("updated_at", row.UpdatedAt).
			Set("updated_by", row.UpdatedBy).
			Where(squirrel.Eq{"id": row.ID}).
			ToSql()
		if err != nil {
			return domain.RolePermission{}, fmt.Errorf("build update grant sql: %w", err)
		}
		if _, err := tx.Exec(ctx, stmt, args...); err != nil {
			return domain.RolePermission{}, fmt.Errorf("update grant: %w", err)
		}
	} else {
		if row.ID = grant.ID; row.ID == "" {
			row.ID = uuid.NewString()
		}
		stmt, args, err = r.builder.Insert("authz.role_permissions").
			Columns("id", "role_id", "permission_id", "is_granted", "granted_at", "granted_by", "expires_at", "comment", "updated_at", "updated_by").
			Values(row.ID, row.RoleID, row.PermissionID, row.IsGranted, row.GrantedAt, row.GrantedBy, row.ExpiresAt, row.Comment, row.UpdatedAt, row.UpdatedBy).
			ToSql()
		if err != nil {
			return domain.RolePermission{}, fmt.Errorf("build insert grant sql: %w", err)
		}
		if _, err := tx.Exec(ctx, stmt, args...); err != nil {
			return domain.RolePermission{}, fmt.Errorf("insert grant: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.RolePermission{}, fmt.Errorf("commit assign permission tx: %w", err)
	}
	return row, nil
}

// RemovePermissionFromRole revokes the matching grant, keeping the row
// as an explicit revocation. False means no granted row existed.
func (r *PermissionRepository) RemovePermissionFromRole(ctx context.Context, roleID, permissionID string) (bool, error) {
	stmt, args, err := r.builder.Update("authz.role_permissions").
		Set("is_granted", false).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"role_id": roleID, "permission_id": permissionID, "is_granted": true}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build revoke grant sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("revoke grant: %w", err)
	}
	return res.RowsAffected() > 0, nil
}

// UpdateRolePermissions reconciles the role's grants against the target
// permission set in one transaction. The batch is validated up front;
// an unknown permission ID rejects the whole call. Grants already in
// the target set keep their GrantedAt and Comment.
func (r *PermissionRepository) UpdateRolePermissions(ctx context.Context, roleID string, permissionIDs []string, updatedBy string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reconcile tx: %w", err)
	}
	defer tx.Rollback(ctx)

	repo := r.WithTx(tx)

	if err := repo.requireRole(ctx, roleID); err != nil {
		return err
	}
	for _, permissionID := range permissionIDs {
		if _, err := repo.GetByID(ctx, permissionID); err != nil {
			return err
		}
	}

	now := time.Now().UTC()

	revoke := r.builder.Update("authz.role_permissions").
		Set("is_granted", false).
		Set("updated_at", now).
		Set("updated_by", updatedBy).
		Where(squirrel.Eq{"role_id": roleID, "is_granted": true})
	if len(permissionIDs) > 0 {
		revoke = revoke.Where(squirrel.NotEq{"permission_id": permissionIDs})
	}
	stmt, args, err := revoke.ToSql()
	if err != nil {
		return fmt.Errorf("build revoke outside target sql: %w", err)
	}
	if _, err := tx.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("revoke outside target: %w", err)
	}

	if len(permissionIDs) > 0 {
		stmt, args, err = r.builder.Update("authz.role_permissions").
			Set("is_granted", true).
			Set("granted_at", now).
			Set("granted_by", updatedBy).
			Set("expires_at", nil).
			Set("updated_at", now).
			Set("updated_by", updatedBy).
			Where(squirrel.Eq{"role_id": roleID, "is_granted": false, "permission_id": permissionIDs}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build regrant sql: %w", err)
		}
		if _, err := tx.Exec(ctx, stmt, args...); err != nil {
			return fmt.Errorf("regrant: %w", err)
		}

		insert := r.builder.Insert("authz.role_permissions").
			Columns("id", "role_id", "permission_id", "is_granted", "granted_at", "granted_by", "updated_at", "updated_by")
		for _, permissionID := range permissionIDs {
			insert = insert.Values(uuid.NewString(), roleID, permissionID, true, now, updatedBy, now, updatedBy)
		}
		stmt, args, err = insert.Suffix("ON CONFLICT (role_id, permission_id) DO NOTHING").ToSql()
		if err != nil {
			return fmt.Errorf("build insert missing grants sql: %w", err)
		}
		if _, err := tx.Exec(ctx, stmt, args...); err != nil {
			return fmt.Errorf("insert missing grants: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// UserHasPermission reports whether the permission name appears in the
// user's effective permission set.
func (r *PermissionRepository) UserHasPermission(ctx context.Context, userID, permissionName string) (bool, error) {
	stmt, args, err := r.builder.Select("1").
		From("authz.user_roles ur").
		Join("authz.roles r ON r.id = ur.role_id").
		Join("authz.role_permissions rp ON rp.role_id = r.id").
		Join("authz.permissions p ON p.id = rp.permission_id").
		Where(squirrel.Eq{"ur.user_id": userID, "r.is_active": true, "p.is_active": true}).
		Where(squirrel.Expr(validAssignment)).
		Where(squirrel.Expr(validGrant)).
		Where(squirrel.Expr("LOWER(p.name) = LOWER(?)", permissionName)).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build user has permission sql: %w", err)
	}

	var one int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("scan user has permission: %w", err)
	}
	return true, nil
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
// expired assignments, revoked grants, and inactive rows.
func (r *PermissionRepository) GetUserPermissions(ctx context.Context, userID string, includeInactive bool) ([]domain.Permission, error) {
	query := r.builder.Select(
		"DISTINCT p.id", "p.name", "p.description", "p.module", "p.action", "p.resource",
		"p.is_system_permission", "p.is_active", "p.created_at", "p.updated_at", "p.updated_by",
	).
		From("authz.user_roles ur").
		Join("authz.roles r ON r.id = ur.role_id").
		Join("authz.role_permissions rp ON rp.role_id = r.id").
		Join("authz.permissions p ON p.id = rp.permission_id").
		Where(squirrel.Eq{"ur.user_id": userID}).
		OrderBy("p.name ASC")
	if !includeInactive {
		query = query.Where(squirrel.Eq{"r.is_active": true, "p.is_active": true}).
			Where(squirrel.Expr(validAssignment)).
			Where(squirrel.Expr(validGrant))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build user permissions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query user permissions: %w", err)
	}
	defer rows.Close()

	permissions := make([]domain.Permission, 0)
	for rows.Next() {
		permission, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user permission: %w", err)
		}
		permissions = append(permissions, permission)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user permissions: %w", err)
	}
	return permissions, nil
}

// RevokeExpiredRolePermissions retires grants whose expiry has passed
// and returns how many rows changed.
func (r *PermissionRepository) RevokeExpiredRolePermissions(ctx context.Context) (int, error) {
	stmt, args, err := r.builder.Update("authz.role_permissions").
		Set("is_granted", false).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"is_granted": true}).
		Where(squirrel.Expr("expires_at IS NOT NULL AND expires_at <= NOW()")).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build revoke expired sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("revoke expired grants: %w", err)
	}
	return int(res.RowsAffected()), nil
}

func (r *PermissionRepository) requireRole(ctx context.Context, roleID string) error {
	stmt, args, err := r.builder.Select("1").
		From("authz.roles").
		Where(squirrel.Eq{"id": roleID}).
		Limit(1).
		ToSql()
	if err != nil {
		return fmt.Errorf("build role exists sql: %w", err)
	}

	var one int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NewNotFoundError("role %q not found", roleID)
		}
		return fmt.Errorf("scan role exists: %w", err)
	}
	return nil
}

var _ port.PermissionRepository = (*PermissionRepository)(nil)
