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

// RoleRepository implements port.RoleRepository backed by PostgreSQL.
type RoleRepository struct {
	pool    txBeginner
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewRoleRepository constructs a PostgreSQL-backed role repository.
func NewRoleRepository(pool txBeginner) *RoleRepository {
	return &RoleRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository configured to execute within the provided
// transaction.
func (r *RoleRepository) WithTx(tx pgx.Tx) *RoleRepository {
	if tx == nil {
		return r
	}
	return &RoleRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

const roleColumns = "id, name, description, priority, is_system_role, is_active, created_at, updated_at, updated_by"

func scanRole(row pgx.Row) (domain.Role, error) {
	var (
		role      domain.Role
		updatedAt sql.NullTime
		updatedBy sql.NullString
	)
	err := row.Scan(
		&role.ID,
		&role.Name,
		&role.Description,
		&role.Priority,
		&role.IsSystemRole,
		&role.IsActive,
		&role.CreatedAt,
		&updatedAt,
		&updatedBy,
	)
	if err != nil {
		return domain.Role{}, err
	}
	if updatedAt.Valid {
		at := updatedAt.Time
		role.UpdatedAt = &at
	}
	if updatedBy.Valid {
		role.UpdatedBy = updatedBy.String
	}
	return role, nil
}

// Create inserts a new role. The unique index on LOWER(name) turns a
// duplicate into a validation error.
func (r *RoleRepository) Create(ctx context.Context, role domain.Role) error {
	stmt, args, err := r.builder.Insert("authz.roles").
		Columns("id", "name", "description", "priority", "is_system_role", "is_active", "created_at").
		Values(role.ID, role.Name, role.Description, role.Priority, role.IsSystemRole, role.IsActive, role.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert role sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return domain.NewValidationError("role name %q is already taken", role.Name)
		}
		return fmt.Errorf("insert role: %w", err)
	}
	return nil
}

func (r *RoleRepository) GetByID(ctx context.Context, id string) (*domain.Role, error) {
	stmt, args, err := r.builder.Select(roleColumns).
		From("authz.roles").
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select role by id sql: %w", err)
	}

	role, err := scanRole(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("role %q not found", id)
		}
		return nil, fmt.Errorf("scan role by id: %w", err)
	}
	return &role, nil
}

// GetByName matches the name case-insensitively.
func (r *RoleRepository) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	stmt, args, err := r.builder.Select(roleColumns).
		From("authz.roles").
		Where(squirrel.Expr("LOWER(name) = LOWER(?)", name)).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select role by name sql: %w", err)
	}

	role, err := scanRole(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("role %q not found", name)
		}
		return nil, fmt.Errorf("scan role by name: %w", err)
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
	query := r.builder.Select(roleColumns).
		From("authz.roles").
		OrderBy("priority ASC", "name ASC")
	if !includeInactive {
		query = query.Where(squirrel.Eq{"is_active": true})
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list roles sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	roles := make([]domain.Role, 0)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}
	return roles, nil
}

// Exists reports whether a role with the name exists, ignoring the row
// with excludeID.
func (r *RoleRepository) Exists(ctx context.Context, name, excludeID string) (bool, error) {
	stmt, args, err := r.builder.Select("1").
		From("authz.roles").
		Where(squirrel.Expr("LOWER(name) = LOWER(?)", name)).
		Where(squirrel.NotEq{"id": excludeID}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build role exists sql: %w", err)
	}

	var one int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("scan role exists: %w", err)
	}
	return true, nil
}

// Update modifies an existing role.
func (r *RoleRepository) Update(ctx context.Context, role domain.Role) error {
	stmt, args, err := r.builder.Update("authz.roles").
		Set("name", role.Name).
		Set("description", role.Description).
		Set("priority", role.Priority).
		Set("is_active", role.IsActive).
		Set("updated_at", role.UpdatedAt).
		Set("updated_by", role.UpdatedBy).
		Where(squirrel.Eq{"id": role.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update role sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewValidationError("role name %q is already taken", role.Name)
		}
		return fmt.Errorf("update role: %w", err)
	}
	if res.RowsAffected() == 0 {
		return domain.NewNotFoundError("role %q not found", role.ID)
	}
	return nil
}

// Delete removes the role together with its grant rows and retired
// assignment rows. System roles and roles still held by users are
// rejected.
func (r *RoleRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete role tx: %w", err)
	}
	defer tx.Rollback(ctx)

	repo := r.WithTx(tx)

	role, err := repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if role.IsSystemRole {
		return domain.NewInvariantViolation("system role %q cannot be deleted", role.Name)
	}

	stmt, args, err := r.builder.Select("COUNT(*)").
		From("authz.user_roles ur").
		Where(squirrel.Eq{"ur.role_id": id}).
		Where(squirrel.Expr(validAssignment)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build count role holders sql: %w", err)
	}

	var holders int
	if err := tx.QueryRow(ctx, stmt, args...).Scan(&holders); err != nil {
		return fmt.Errorf("scan role holders: %w", err)
	}
	if !role.CanBeDeleted(holders) {
		return domain.NewConflictError("role %q is still assigned to %d users", role.Name, holders)
	}

	for _, table := range []string{"authz.role_permissions", "authz.user_roles"} {
		stmt, args, err := r.builder.Delete(table).
			Where(squirrel.Eq{"role_id": id}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build cascade delete sql: %w", err)
		}
		if _, err := tx.Exec(ctx, stmt, args...); err != nil {
			return fmt.Errorf("cascade delete %s: %w", table, err)
		}
	}

	stmt, args, err = r.builder.Delete("authz.roles").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete role sql: %w", err)
	}
	if _, err := tx.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete role: %w", err)
	}

	return tx.Commit(ctx)
}

// GetUserRoles returns the user's assignments joined against their
// roles, ordered by role priority ascending, then role name.
func (r *RoleRepository) GetUserRoles(ctx context.Context, userID string, includeInactive bool) ([]domain.ResolvedUserRole, error) {
	query := r.builder.Select(
		"ur.id", "ur.user_id", "ur.role_id", "ur.is_active", "ur.is_primary",
		"ur.assigned_at", "ur.assigned_by", "ur.expires_at", "ur.comment",
		"ur.updated_at", "ur.updated_by",
		"r.id", "r.name", "r.description", "r.priority", "r.is_system_role",
		"r.is_active", "r.created_at", "r.updated_at", "r.updated_by",
	).
		From("authz.user_roles ur").
		Join("authz.roles r ON r.id = ur.role_id").
		Where(squirrel.Eq{"ur.user_id": userID}).
		OrderBy("r.priority ASC", "r.name ASC")
	if !includeInactive {
		query = query.Where(squirrel.Expr(validAssignment)).
			Where(squirrel.Eq{"r.is_active": true})
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build user roles sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query user roles: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.ResolvedUserRole, 0)
	for rows.Next() {
		entry, err := scanResolvedUserRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user role: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user roles: %w", err)
	}
	return entries, nil
}

func scanResolvedUserRole(row pgx.Row) (domain.ResolvedUserRole, error) {
	var (
		entry         domain.ResolvedUserRole
		assignedBy    sql.NullString
		expiresAt     sql.NullTime
		comment       sql.NullString
		updatedAt     sql.NullTime
		updatedBy     sql.NullString
		roleUpdatedAt sql.NullTime
		roleUpdatedBy sql.NullString
	)
	err := row.Scan(
		&entry.UserRole.ID,
		&entry.UserID,
		&entry.RoleID,
		&entry.UserRole.IsActive,
		&entry.IsPrimary,
		&entry.AssignedAt,
		&assignedBy,
		&expiresAt,
		&comment,
		&updatedAt,
		&updatedBy,
		&entry.Role.ID,
		&entry.Role.Name,
		&entry.Role.Description,
		&entry.Role.Priority,
		&entry.Role.IsSystemRole,
		&entry.Role.IsActive,
		&entry.Role.CreatedAt,
		&roleUpdatedAt,
		&roleUpdatedBy,
	)
	if err != nil {
		return domain.ResolvedUserRole{}, err
	}
	if assignedBy.Valid {
		entry.AssignedBy = assignedBy.String
	}
	if expiresAt.Valid {
		at := expiresAt.Time
		entry.ExpiresAt = &at
	}
	if comment.Valid {
		entry.Comment = comment.String
	}
	if updatedAt.Valid {
		at := updatedAt.Time
		entry.UserRole.UpdatedAt = &at
	}
	if updatedBy.Valid {
		entry.UserRole.UpdatedBy = updatedBy.String
	}
	if roleUpdatedAt.Valid {
		at := roleUpdatedAt.Time
		entry.Role.UpdatedAt = &at
	}
	if roleUpdatedBy.Valid {
		entry.Role.UpdatedBy = roleUpdatedBy.String
	}
	return entry, nil
}

// AssignRoleToUser upserts the (user, role) assignment in one
// transaction. An existing row is reactivated in place, keeping its
// AssignedAt when it was already in force; a primary assignment demotes
// every other primary row of the user before commit.
func (r *RoleRepository) AssignRoleToUser(ctx context.Context, assignment domain.UserRole) (domain.UserRole, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.UserRole{}, fmt.Errorf("begin assign role tx: %w", err)
	}
	defer tx.Rollback(ctx)

	repo := r.WithTx(tx)

	role, err := repo.GetByID(ctx, assignment.RoleID)
	if err != nil {
		return domain.UserRole{}, err
	}
	if !role.IsActive {
		return domain.UserRole{}, domain.NewValidationError("role %q is inactive", role.Name)
	}

	stmt, args, err := r.builder.Select(
		"id", "is_active", "assigned_at",
	).
		From("authz.user_roles").
		Where(squirrel.Eq{"user_id": assignment.UserID, "role_id": assignment.RoleID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return domain.UserRole{}, fmt.Errorf("build select assignment sql: %w", err)
	}

	row := domain.UserRole{
		UserID: assignment.UserID,
		RoleID: assignment.RoleID,
	}
	var (
		wasActive          bool
		previousAssignedAt time.Time
	)
	existed := true
	if err := tx.QueryRow(ctx, stmt, args...).Scan(&row.ID, &wasActive, &previousAssignedAt); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return domain.UserRole{}, fmt.Errorf("scan assignment: %w", err)
		}
		existed = false
	}

	row.Grant(assignment.AssignedBy, assignment.ExpiresAt, assignment.Comment)
	if existed && wasActive {
		row.AssignedAt = previousAssignedAt
	}
	row.IsPrimary = assignment.IsPrimary

	if existed {
		stmt, args, err = r.builder.Update("authz.user_roles").
			Set("is_active", row.IsActive).
			Set("is_primary", row.IsPrimary).
			Set("assigned_at", row.AssignedAt).
			Set("assigned_by", row.AssignedBy).
			Set("expires_at", row.ExpiresAt).
			Set("comment", row.Comment).
			Set("updated_at", row.UpdatedAt).
			Set("updated_by", row.UpdatedBy).
			Where(squirrel.Eq{"id": row.ID}).
			ToSql()
		if err != nil {
			return domain.UserRole{}, fmt.Errorf("build update assignment sql: %w", err)
		}
		if _, err := tx.Exec(ctx, stmt, args...); err != nil {
			return domain.UserRole{}, fmt.Errorf("update assignment: %w", err)
		}
	} else {
		if row.ID = assignment.ID; row.ID == "" {
			row.ID = uuid.NewString()
		}
		stmt, args, err = r.builder.Insert("authz.user_roles").
			Columns("id", "user_id", "role_id", "is_active", "is_primary", "assigned_at", "assigned_by", "expires_at", "comment", "updated_at", "updated_by").
			Values(row.ID, row.UserID, row.RoleID, row.IsActive, row.IsPrimary, row.AssignedAt, row.AssignedBy, row.ExpiresAt, row.Comment, row.UpdatedAt, row.UpdatedBy).
			ToSql()
		if err != nil {
			return domain.UserRole{}, fmt.Errorf("build insert assignment sql: %w", err)
		}
		if _, err := tx.Exec(ctx, stmt, args...); err != nil {
			return domain.UserRole{}, fmt.Errorf("insert assignment: %w", err)
		}
	}

	if row.IsPrimary {
		stmt, args, err = r.builder.Update("authz.user_roles").
			Set("is_primary", false).
			Set("updated_at", row.UpdatedAt).
			Set("updated_by", row.UpdatedBy).
			Where(squirrel.Eq{"user_id": row.UserID, "is_primary": true}).
			Where(squirrel.NotEq{"id": row.ID}).
			ToSql()
		if err != nil {
			return domain.UserRole{}, fmt.Errorf("build demote primaries sql: %w", err)
		}
		if _, err := tx.Exec(ctx, stmt, args...); err != nil {
			return domain.UserRole{}, fmt.Errorf("demote primaries: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.UserRole{}, fmt.Errorf("commit assign role tx: %w", err)
	}
	return row, nil
}

// RemoveRoleFromUser deactivates the matching assignment, keeping the
// row as audit trail. False means no active assignment existed.
func (r *RoleRepository) RemoveRoleFromUser(ctx context.Context, userID, roleID string) (bool, error) {
	stmt, args, err := r.builder.Update("authz.user_roles").
		Set("is_active", false).
		Set("is_primary", false).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"user_id": userID, "role_id": roleID, "is_active": true}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build remove role sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("remove role from user: %w", err)
	}
	return res.RowsAffected() > 0, nil
}

// GetExpiringUserRoles returns currently-valid assignments whose expiry
// falls within the window, soonest first.
func (r *RoleRepository) GetExpiringUserRoles(ctx context.Context, within time.Duration) ([]domain.ResolvedUserRole, error) {
	deadline := time.Now().UTC().Add(within)

	stmt, args, err := r.builder.Select(
		"ur.id", "ur.user_id", "ur.role_id", "ur.is_active", "ur.is_primary",
		"ur.assigned_at", "ur.assigned_by", "ur.expires_at", "ur.comment",
		"ur.updated_at", "ur.updated_by",
		"r.id", "r.name", "r.description", "r.priority", "r.is_system_role",
		"r.is_active", "r.created_at", "r.updated_at", "r.updated_by",
	).
		From("authz.user_roles ur").
		Join("authz.roles r ON r.id = ur.role_id").
		Where(squirrel.Expr(validAssignment)).
		Where(squirrel.Eq{"r.is_active": true}).
		Where(squirrel.LtOrEq{"ur.expires_at": deadline}).
		OrderBy("ur.expires_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build expiring user roles sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query expiring user roles: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.ResolvedUserRole, 0)
	for rows.Next() {
		entry, err := scanResolvedUserRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expiring user role: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expiring user roles: %w", err)
	}
	return entries, nil
}

// DeactivateExpiredUserRoles retires assignments whose expiry has
// passed and returns how many rows changed.
func (r *RoleRepository) DeactivateExpiredUserRoles(ctx context.Context) (int, error) {
	stmt, args, err := r.builder.Update("authz.user_roles").
		Set("is_active", false).
		Set("is_primary", false).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"is_active": true}).
		Where(squirrel.Expr("(expires_at IS NOT NULL AND expires_at <= NOW())")).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build deactivate expired sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("deactivate expired user roles: %w", err)
	}
	return int(res.RowsAffected()), nil
}

var _ port.RoleRepository = (*RoleRepository)(nil)
