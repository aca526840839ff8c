package rbac

import "time"

// Role represents a named group an actor may belong to.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission represents an atomic capability.
type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Actor describes the authenticated entity being authorized.
type Actor interface {
	// HasRoles reports whether the actor holds at least one of the names.
	HasRoles(names ...string) bool
	// HasPermission reports whether the actor is authorized for p.
	HasPermission(p Permission) bool
}

// Predicate is a compiled authorization check bound into a Gate.
type Predicate func(Actor) bool

func permissionPredicate(p Permission) Predicate {
	return func(actor Actor) bool {
		if actor == nil {
			return false
		}
		return actor.HasPermission(p)
	}
}
