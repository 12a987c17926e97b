package service

import "errors"

// Auth flow specific errors used by handlers for stable error_type mapping.
var (
	// ErrInvalidEmail: the address fails syntactic validation.
	ErrInvalidEmail = errors.New("invalid_email")
	// ErrUserNotFound: no account is registered for the address.
	ErrUserNotFound = errors.New("user_not_found")
	// ErrEmailTaken: registration with an already registered address.
	ErrEmailTaken = errors.New("email_taken")
	// ErrCodeNotFound: no code row matches the user and submitted code.
	ErrCodeNotFound = errors.New("code_not_found")
	// ErrCodeAlreadyUsed: the matched code was already consumed.
	ErrCodeAlreadyUsed = errors.New("code_already_used")
	// ErrCodeExpired: the matched code's validity window has passed.
	ErrCodeExpired = errors.New("code_expired")
	// ErrLockTimeout: the exclusive section could not be entered in time; retryable.
	ErrLockTimeout = errors.New("lock_timeout")
	// ErrSessionNotFound: the refresh session is unknown or revoked.
	ErrSessionNotFound = errors.New("session_not_found")
	// ErrInternal wraps unexpected infrastructure faults. The cause is kept for
	// logs and never shown to the subject.
	ErrInternal = errors.New("internal_error")
)
