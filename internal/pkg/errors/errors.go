package errors

import "errors"

// Shared application errors.
var (
	// ErrNotFound is returned when a record or resource does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrUnauthorized is returned for authorization failures (bad token, no rights).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrValidation is returned for invalid input data.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned for state conflicts (e.g. duplicate registration).
	ErrConflict = errors.New("resource state conflict")
)
