package users

import (
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/odyssey-erp/odyssey-authz/internal/rbac"
)

// User represents a user account together with its authorization data.
type User struct {
	ID          int64
	Email       string
	Name        string
	IsActive    bool
	Roles       []string
	Permissions []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasRoles reports whether the user holds at least one of names.
// Inactive users hold no roles.
func (u *User) HasRoles(names ...string) bool {
	if u == nil || !u.IsActive {
		return false
	}
	return intersects(u.Roles, names)
}

// HasPermission reports whether any of the user's roles grants p.
func (u *User) HasPermission(p rbac.Permission) bool {
	if u == nil || !u.IsActive {
		return false
	}
	return intersects(u.Permissions, []string{p.Name})
}

func intersects(held, wanted []string) bool {
	if len(held) == 0 || len(wanted) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(held))
	for _, name := range held {
		if name = foldName(name); name != "" {
			set[name] = struct{}{}
		}
	}
	for _, name := range wanted {
		if _, ok := set[foldName(name)]; ok {
			return true
		}
	}
	return false
}

// foldName trims and case-folds a role or permission name.
func foldName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return cases.Fold().String(name)
}

var _ rbac.Actor = (*User)(nil)
