package appwrite

import "errors"

// Typed errors for remote service operations.
// These allow stores to use errors.Is() for reliable error detection
// instead of fragile string matching.
var (
	// ErrNotAuthenticated indicates the request requires a valid session (HTTP 401).
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrForbidden indicates the request was rejected due to insufficient permissions (HTTP 403).
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound indicates the requested resource does not exist (HTTP 404).
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a revision precondition failed or the resource
	// already exists (HTTP 409).
	ErrConflict = errors.New("conflict")

	// ErrBadRequest indicates the request was malformed or invalid (HTTP 400).
	ErrBadRequest = errors.New("bad request")
)

// IsAuthError returns true if the error is an authentication/authorization error.
// This is a convenience function for checking if re-authentication might help.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrNotAuthenticated) || errors.Is(err, ErrForbidden)
}
