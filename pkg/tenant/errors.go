package tenant

import "errors"

var (
	ErrNotFound             = errors.New("tenant not found")
	ErrInactive             = errors.New("tenant is inactive")
	ErrIncomplete           = errors.New("tenant configuration is incomplete")
	ErrInvalidConfiguration = errors.New("tenant configuration is invalid")
	ErrAlreadyExists        = errors.New("tenant already exists")
	ErrForbidden            = errors.New("operation is forbidden")
	ErrUnsupported          = errors.New("operation is not supported by this store")
	ErrRateLimited          = errors.New("tenant rate limit exceeded")
	ErrUnauthenticated      = errors.New("authentication required")
	ErrUnauthorized         = errors.New("invalid credentials")
	ErrInvalidIdentifier    = errors.New("invalid tenant identifier")
	ErrInvalidInput         = errors.New("invalid input")
	ErrTenantRequired       = errors.New("tenant identification required")
	ErrNoContext            = errors.New("no request context")
)
