package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrUnauthorized        = errors.New("caller is not authorized for this entity")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrRateLimited         = errors.New("job creation rate limit exceeded")
	ErrInvalidTransition   = errors.New("operation not permitted from current status")
	ErrProviderUnavailable = errors.New("completion provider call failed")
	ErrNoPendingAction     = errors.New("no pending action awaiting a decision")
	ErrReadDatabaseRow     = errors.New("failed to read database row")
	ErrInvalidExecContext  = errors.New("invalid executor context passed to repository")
)
