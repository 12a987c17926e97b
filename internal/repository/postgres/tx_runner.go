package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/yourusername/auth-api/internal/domain/repository"
)

// pgLockNotAvailable is raised when lock_timeout fires before the advisory
// lock is granted.
const pgLockNotAvailable = "55P03"

const defaultLockTimeout = 5 * time.Second

// AuthCodeTxRunner implements repository.AuthCodeUnitOfWork with
// transaction-scoped Postgres advisory locks. The lock is taken as the first
// statement of the transaction and released automatically on commit or
// rollback, so every exit path of fn leaves the section.
type AuthCodeTxRunner struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

func NewAuthCodeTxRunner(db *gorm.DB, lockTimeout time.Duration) *AuthCodeTxRunner {
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	return &AuthCodeTxRunner{db: db, lockTimeout: lockTimeout}
}

// WithUserLock serializes same-user operations on pg_advisory_xact_lock(userID).
func (r *AuthCodeTxRunner) WithUserLock(ctx context.Context, userID uint, fn func(codes repository.AuthCodeRepository) error) error {
	return r.withLock(ctx, "SELECT pg_advisory_xact_lock(?)", int64(userID), fn)
}

// WithEmailLock serializes same-email operations on pg_advisory_xact_lock(hashtext(email)).
func (r *AuthCodeTxRunner) WithEmailLock(ctx context.Context, email string, fn func(codes repository.AuthCodeRepository) error) error {
	return r.withLock(ctx, "SELECT pg_advisory_xact_lock(hashtext(?))", email, fn)
}

func (r *AuthCodeTxRunner) withLock(ctx context.Context, lockSQL string, key interface{}, fn func(codes repository.AuthCodeRepository) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// SET LOCAL reverts when the transaction ends.
		timeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
		if err := tx.Exec(timeout).Error; err != nil {
			return fmt.Errorf("failed to set lock timeout: %w", err)
		}
		if err := tx.Exec(lockSQL, key).Error; err != nil {
			if isLockTimeout(err) {
				return repository.ErrLockNotAcquired
			}
			return fmt.Errorf("failed to acquire advisory lock: %w", err)
		}
		return fn(NewAuthCodeRepo(tx))
	})
	return err
}

func isLockTimeout(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable
}
