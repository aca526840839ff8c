package rbac

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-authz/internal/platform/db"
)

// ChangeNotifier is told when the permission set changed.
type ChangeNotifier interface {
	Invalidate(ctx context.Context) error
}

// Service orchestrates RBAC administration.
type Service struct {
	db       Querier
	notifier ChangeNotifier
}

// NewService constructs a Service backed by the provided pool.
func NewService(db Querier, notifier ChangeNotifier) *Service {
	return &Service{db: db, notifier: notifier}
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, COALESCE(description, ''), created_at, updated_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	roles := make([]Role, 0)
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// ListPermissions returns all permissions ordered by name.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return NewPGStore(s.db).FetchAll(ctx)
}

// EnsurePermission upserts a permission and refreshes the bindings.
func (s *Service) EnsurePermission(ctx context.Context, name, description string) (Permission, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Permission{}, errors.New("rbac: permission name required")
	}
	var p Permission
	err := s.db.QueryRow(ctx, `INSERT INTO permissions (name, description) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
RETURNING id, name, COALESCE(description, '')`, name, strings.TrimSpace(description)).Scan(&p.ID, &p.Name, &p.Description)
	if err != nil {
		return Permission{}, classifyStoreError(err)
	}
	if err := s.changed(ctx); err != nil {
		return p, err
	}
	return p, nil
}

// DeletePermission removes a permission by ID. Returns ErrNotFound if nothing was deleted.
func (s *Service) DeletePermission(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return classifyStoreError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return s.changed(ctx)
}

// SetRolePermissions replaces the permissions attached to a role.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, roleID).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if !exists {
		return ErrNotFound
	}
	if permissionIDs == nil {
		permissionIDs = []int64{}
	}
	replace := func(q Querier) error {
		if _, err := q.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND NOT (permission_id = ANY($2))`, roleID, permissionIDs); err != nil {
			return err
		}
		_, err := q.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id)
SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING`, roleID, permissionIDs)
		return err
	}
	var err error
	if starter, ok := s.db.(db.TxStarter); ok {
		err = db.WithTx(ctx, starter, func(tx pgx.Tx) error { return replace(tx) })
	} else {
		err = replace(s.db)
	}
	if err != nil {
		return err
	}
	return s.changed(ctx)
}

// AssignRole assigns a role to the given user.
func (s *Service) AssignRole(ctx context.Context, userID, roleID int64) error {
	_, err := s.db.Exec(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, roleID)
	return err
}

// RemoveRole removes a role from a user.
func (s *Service) RemoveRole(ctx context.Context, userID, roleID int64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	return err
}

// EffectivePermissions returns deduplicated permission names for a user.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT p.name
FROM user_roles ur
JOIN role_permissions rp ON rp.role_id = ur.role_id
JOIN permissions p ON p.id = rp.permission_id
WHERE ur.user_id = $1
ORDER BY p.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	perms := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		perms = append(perms, name)
	}
	return perms, rows.Err()
}

func (s *Service) changed(ctx context.Context) error {
	if s.notifier == nil {
		return nil
	}
	return s.notifier.Invalidate(ctx)
}
