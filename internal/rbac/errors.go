package rbac

import "errors"

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("rbac: not found")
	// ErrStorageUnavailable indicates the permission storage cannot be read,
	// either because it is unreachable or its schema is not provisioned.
	ErrStorageUnavailable = errors.New("rbac: permission storage unavailable")
	// ErrUnauthorized indicates the actor lacks every required role.
	ErrUnauthorized = errors.New("rbac: unauthorized")
)

// UnauthorizedMessage is the fixed body written when a request is rejected.
const UnauthorizedMessage = "Unauthorized."
