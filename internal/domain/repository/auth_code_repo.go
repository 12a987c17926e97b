package repository

import (
	"context"
	"errors"
	"time"

	"github.com/yourusername/auth-api/internal/domain/entity"
)

// ErrLockNotAcquired is returned by a unit of work when the exclusive lock
// could not be acquired within its timeout. Callers should treat it as
// transient and retryable.
var ErrLockNotAcquired = errors.New("exclusive lock not acquired")

// AuthCodeRepository persists login code slots. Methods carry no business
// logic: lookups do not filter by expiry or consumption, the service decides
// liveness.
type AuthCodeRepository interface {
	// LatestByUserID returns the row with the greatest id for the user,
	// or apperrors.ErrNotFound.
	LatestByUserID(userID uint) (*entity.AuthCode, error)
	// FindByUserIDAndCode returns the exact user+code match, or apperrors.ErrNotFound.
	FindByUserIDAndCode(userID uint, code string) (*entity.AuthCode, error)
	// Create inserts a new row. The id is assigned by the database sequence.
	Create(code *entity.AuthCode) error
	// ResetCode overwrites code and expiry on an existing row and clears the used flag.
	ResetCode(id uint, newCode string, expiresAt time.Time) error
	// ExtendExpiry overwrites only the expiry, leaving code and used flag untouched.
	ExtendExpiry(id uint, expiresAt time.Time) error
	// MarkValidated flags the row as consumed.
	MarkValidated(id uint) error
	// DeleteExpiredByEmail removes all rows for the email expired at the given instant.
	DeleteExpiredByEmail(email string, now time.Time) (int64, error)
	// DeleteOthersByEmail removes all rows for the email except keepID.
	DeleteOthersByEmail(email string, keepID uint) (int64, error)
}

// AuthCodeUnitOfWork runs a function inside a single transaction that holds a
// cooperative, transaction-lifetime exclusive lock. Concurrent holders of the
// same key are serialized; unrelated keys do not block each other. The lock is
// released when the transaction commits or rolls back, on every exit path.
type AuthCodeUnitOfWork interface {
	// WithUserLock serializes on a key derived from the user id.
	WithUserLock(ctx context.Context, userID uint, fn func(codes AuthCodeRepository) error) error
	// WithEmailLock serializes on a key derived from a hash of the email.
	WithEmailLock(ctx context.Context, email string, fn func(codes AuthCodeRepository) error) error
}
