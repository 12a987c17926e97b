package repository

import (
	"context"
	"time"
)

// SessionRepository tracks refresh sessions so they can be revoked before the
// refresh token itself expires.
type SessionRepository interface {
	// Save stores a refresh session with the given lifetime.
	Save(ctx context.Context, sessionID string, userID uint, ttl time.Duration) error
	// Check returns the owning user id, or apperrors.ErrNotFound if the session
	// is unknown or revoked.
	Check(ctx context.Context, sessionID string) (uint, error)
	// Delete revokes a session. Deleting an unknown session is not an error.
	Delete(ctx context.Context, sessionID string) error
}
