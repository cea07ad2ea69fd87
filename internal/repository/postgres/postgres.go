// Package postgres implements the engine's repositories on PostgreSQL.
// The relational backend gets the invariants the key-value backend
// builds by hand: uniqueness from indexes, multi-row mutations from
// transactions.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// txBeginner is satisfied by *pgxpool.Pool and by pgxmock pools.
type txBeginner interface {
	pgExecutor
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repositories groups the concrete PostgreSQL repository
// implementations.
type Repositories struct {
	Roles       *RoleRepository
	Permissions *PermissionRepository
}

// NewRepositories wires the repositories backed by the provided pool.
func NewRepositories(pool txBeginner) *Repositories {
	return &Repositories{
		Roles:       NewRoleRepository(pool),
		Permissions: NewPermissionRepository(pool),
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// validAssignment is the SQL rendering of UserRole.IsCurrentlyValid.
const validAssignment = "ur.is_active AND (ur.expires_at IS NULL OR ur.expires_at > NOW())"

// validGrant is the SQL rendering of RolePermission.IsCurrentlyValid.
const validGrant = "rp.is_granted AND (rp.expires_at IS NULL OR rp.expires_at > NOW())"
