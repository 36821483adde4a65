package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenInvalid occurs when a credential token is missing, malformed,
	// expired, or carries a bad signature.
	ErrTokenInvalid = errors.New("invalid credential token")
)
