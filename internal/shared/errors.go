package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness violation.
	ErrConflict = errors.New("conflict")
	// ErrInvalidInput indicates a caller contract violation, distinct from a deny decision.
	ErrInvalidInput = errors.New("invalid input")
	// ErrRoleCycle indicates a role inheritance edge that would close a cycle.
	ErrRoleCycle = errors.New("role inheritance cycle")
)
