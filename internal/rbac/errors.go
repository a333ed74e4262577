package rbac

import "errors"

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("rbac: not found")
	// ErrUnknownAction is returned for actions outside the known set.
	ErrUnknownAction = errors.New("rbac: unknown action")
	// ErrUnknownResource is returned when a matrix names an unregistered resource.
	ErrUnknownResource = errors.New("rbac: unknown resource")
	// ErrUnknownRole is returned for user roles outside the known set.
	ErrUnknownRole = errors.New("rbac: unknown role")
)
