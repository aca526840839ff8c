package rbac

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PermissionStore is the source of truth for defined permissions.
type PermissionStore interface {
	// FetchAll returns every permission ordered by name. It fails with
	// ErrStorageUnavailable when the backing storage cannot be read.
	FetchAll(ctx context.Context) ([]Permission, error)
}

// Querier is the subset of pgxpool.Pool used by the stores in this package.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGStore reads permissions from PostgreSQL.
type PGStore struct {
	db Querier
}

// NewPGStore constructs a PermissionStore backed by the provided pool.
func NewPGStore(db Querier) *PGStore {
	return &PGStore{db: db}
}

// FetchAll loads all permissions ordered by name.
func (s *PGStore) FetchAll(ctx context.Context) ([]Permission, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("rbac: fetch permissions: %w", ErrStorageUnavailable)
	}
	rows, err := s.db.Query(ctx, `SELECT id, name, COALESCE(description, '') FROM permissions ORDER BY name`)
	if err != nil {
		return nil, classifyStoreError(err)
	}
	defer rows.Close()
	perms := make([]Permission, 0)
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyStoreError(err)
	}
	return perms, nil
}

// Postgres error codes meaning the authorization schema cannot be read.
var unavailableCodes = map[string]struct{}{
	"42P01": {}, // undefined_table
	"3F000": {}, // invalid_schema_name
	"3D000": {}, // invalid_catalog_name
	"57P01": {}, // admin_shutdown
	"57P03": {}, // cannot_connect_now
}

// classifyStoreError wraps err with ErrStorageUnavailable when it signals a
// missing schema or an unreachable server. Other errors are returned as-is.
func classifyStoreError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := unavailableCodes[pgErr.Code]; ok || strings.HasPrefix(pgErr.Code, "08") {
			return fmt.Errorf("%w: %s", ErrStorageUnavailable, pgErr.Message)
		}
		return err
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	// context.DeadlineExceeded satisfies net.Error; the caller's deadline is
	// not a storage outage.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return err
}
