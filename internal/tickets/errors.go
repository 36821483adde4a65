package tickets

import "errors"

var (
	// ErrNotFound indicates the ticket does not exist or is soft-deleted.
	ErrNotFound = errors.New("tickets: not found")
	// ErrInvalid indicates rejected input.
	ErrInvalid = errors.New("tickets: invalid input")
	// ErrInvalidTransition indicates the lifecycle forbids the requested move.
	ErrInvalidTransition = errors.New("tickets: invalid status transition")
	// ErrAccessDenied indicates the caller may not see or touch this ticket.
	ErrAccessDenied = errors.New("tickets: access denied")
)
