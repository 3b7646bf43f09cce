package models

import "errors"

// Error taxonomy shared by services, repositories and handlers. Callers
// classify with errors.Is; wrapped context travels via fmt.Errorf("%w").
var (
	// ErrValidation — malformed input, rejected before any state change.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized — the actor is not allowed to perform this action.
	ErrUnauthorized = errors.New("not authorized")
	// ErrPrecondition — valid actor, but the entity is in the wrong state.
	ErrPrecondition = errors.New("precondition failed")
	// ErrVersionConflict — the optimistic version guard rejected the write.
	// The transition was superseded; callers refetch and decide, never
	// retry blindly.
	ErrVersionConflict = errors.New("transition superseded")
	// ErrNotFound — no such entity.
	ErrNotFound = errors.New("not found")
	// ErrProvider — an external payment provider call or check failed.
	ErrProvider = errors.New("provider error")
)
