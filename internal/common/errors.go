package common

import "errors"

// Callers should use errors.Is to match these values; services wrap them
// with context via fmt.Errorf("%w: ...").
var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("conflict")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")
	ErrorInvalidInput = errors.New("invalid input")
	ErrorInvalidState = errors.New("invalid state")

	// ErrorGone marks a proof (code or token) that was valid but has expired.
	ErrorGone = errors.New("expired")

	// ErrorDependency marks a failure of an outbound collaborator such as mail.
	ErrorDependency = errors.New("dependency failure")

	// Token errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
