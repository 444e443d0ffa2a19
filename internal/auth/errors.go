package auth

import "errors"

var (
	ErrNotFound        = errors.New("auth: not found")
	ErrDuplicate       = errors.New("auth: already exists")
	ErrInvalidInput    = errors.New("auth: invalid input")
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	ErrForbidden       = errors.New("auth: insufficient permissions")

	// ErrInvalidToken covers every token verification failure. Expiry,
	// signature mismatch and claim mismatch are deliberately collapsed
	// into one value so callers cannot probe which check failed.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrDownstream marks a failure in a collaborator (store, mail)
	// that is surfaced without leaking internals.
	ErrDownstream = errors.New("auth: downstream failure")
)
