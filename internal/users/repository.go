package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-authz/internal/rbac"
	"github.com/odyssey-erp/odyssey-authz/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	db rbac.Querier
}

// NewRepository constructs a repository.
func NewRepository(db rbac.Querier) *Repository {
	return &Repository{db: db}
}

// FindActor loads a user with its role names and effective permission names.
func (r *Repository) FindActor(ctx context.Context, id int64) (*User, error) {
	var user User
	err := r.db.QueryRow(ctx, `SELECT id, email, COALESCE(name, ''), is_active, created_at, updated_at FROM users WHERE id = $1`, id).
		Scan(&user.ID, &user.Email, &user.Name, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	roles, err := r.names(ctx, `SELECT r.name FROM user_roles ur JOIN roles r ON r.id = ur.role_id WHERE ur.user_id = $1 ORDER BY r.name`, id)
	if err != nil {
		return nil, err
	}
	perms, err := r.names(ctx, `SELECT DISTINCT p.name
FROM user_roles ur
JOIN role_permissions rp ON rp.role_id = ur.role_id
JOIN permissions p ON p.id = rp.permission_id
WHERE ur.user_id = $1
ORDER BY p.name`, id)
	if err != nil {
		return nil, err
	}
	user.Roles = roles
	user.Permissions = perms
	return &user, nil
}

func (r *Repository) names(ctx context.Context, query string, id int64) ([]string, error) {
	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}
