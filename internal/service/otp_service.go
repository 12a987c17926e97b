package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/yourusername/auth-api/internal/domain/entity"
	"github.com/yourusername/auth-api/internal/domain/repository"
	apperrors "github.com/yourusername/auth-api/internal/pkg/errors"
)

const (
	// codeValidity is the fixed window a freshly issued or extended code stays live.
	codeValidity = 2*time.Minute + time.Second
	// extendThreshold: a live code with less remaining than this gets its expiry
	// pushed out instead of being replaced, so a code the user is already typing
	// is not invalidated mid-flight.
	extendThreshold = 30 * time.Second
)

// IssuedCode is what RequestCode hands back to the delivery layer.
type IssuedCode struct {
	Code      string
	ExpiresAt time.Time
}

// OtpService owns the login code lifecycle: issue/reuse/extend/reset on
// request, and the validation/consumption protocol. It holds no state between
// calls; every decision re-reads the latest row inside an exclusive section
// provided by the unit of work.
type OtpService struct {
	codes repository.AuthCodeUnitOfWork
	now   func() time.Time
}

func NewOtpService(codes repository.AuthCodeUnitOfWork) (*OtpService, error) {
	if codes == nil {
		return nil, fmt.Errorf("auth code unit of work is required")
	}
	return &OtpService{codes: codes, now: time.Now}, nil
}

// RequestCode returns the authoritative code for the user, creating or
// resetting the user's single code slot as needed. Concurrent calls for the
// same user are serialized on the user-keyed lock, so two racing requests can
// never leave two different live codes behind: the loser of the race observes
// the winner's row and reuses it.
//
// The email must already be normalized; it is denormalized onto the row for
// cleanup-by-email during consumption.
func (s *OtpService) RequestCode(ctx context.Context, userID uint, email string) (*IssuedCode, error) {
	var issued IssuedCode
	err := s.codes.WithUserLock(ctx, userID, func(codes repository.AuthCodeRepository) error {
		now := s.now().UTC()
		expiresAt := now.Add(codeValidity)

		latest, err := codes.LatestByUserID(userID)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return err
		}

		if latest != nil && latest.IsLive(now) {
			// A live code is never replaced mid-flight.
			if latest.ExpiresAt.Sub(now) < extendThreshold {
				if err := codes.ExtendExpiry(latest.ID, expiresAt); err != nil {
					return err
				}
				latest.ExpiresAt = expiresAt
			}
			issued = IssuedCode{Code: latest.Code, ExpiresAt: latest.ExpiresAt}
			return nil
		}

		newCode, err := generateLoginCode()
		if err != nil {
			return fmt.Errorf("failed to generate login code: %w", err)
		}

		if latest != nil {
			// Used or expired: reuse the same slot, swap code and expiry.
			if err := codes.ResetCode(latest.ID, newCode, expiresAt); err != nil {
				return err
			}
		} else {
			if err := codes.Create(&entity.AuthCode{
				UserID:    userID,
				Email:     email,
				Code:      newCode,
				ExpiresAt: expiresAt,
			}); err != nil {
				return err
			}
		}
		issued = IssuedCode{Code: newCode, ExpiresAt: expiresAt}
		return nil
	})
	if err != nil {
		return nil, s.classify(err)
	}
	return &issued, nil
}

// ConsumeCode validates a submitted code and marks it used. Concurrent calls
// for the same email are serialized on the email-keyed lock. The check order
// not-found -> already-used -> expired is part of the contract: each failure
// maps to a distinct user-facing message and retry affordance.
func (s *OtpService) ConsumeCode(ctx context.Context, userID uint, email, candidate string) error {
	err := s.codes.WithEmailLock(ctx, email, func(codes repository.AuthCodeRepository) error {
		now := s.now().UTC()

		// Opportunistic cleanup: bounds table growth and drops stale siblings.
		if _, err := codes.DeleteExpiredByEmail(email, now); err != nil {
			return err
		}

		row, err := codes.FindByUserIDAndCode(userID, candidate)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return ErrCodeNotFound
			}
			return err
		}
		if row.IsUsed() {
			return ErrCodeAlreadyUsed
		}
		if row.IsExpired(now) {
			return ErrCodeExpired
		}

		if err := codes.MarkValidated(row.ID); err != nil {
			return err
		}
		// Any other rows sharing the email are leftovers (changed account
		// linkage, stale slots); drop everything but the row just validated.
		if _, err := codes.DeleteOthersByEmail(email, row.ID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return s.classify(err)
	}
	return nil
}

// classify maps unit-of-work results onto the service error taxonomy.
// Business outcomes pass through untouched; infrastructure faults collapse
// into a single coarse internal error carrying the cause for logs.
func (s *OtpService) classify(err error) error {
	switch {
	case errors.Is(err, ErrCodeNotFound),
		errors.Is(err, ErrCodeAlreadyUsed),
		errors.Is(err, ErrCodeExpired):
		return err
	case errors.Is(err, repository.ErrLockNotAcquired):
		return fmt.Errorf("%w: %v", ErrLockTimeout, err)
	default:
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
}

// generateLoginCode samples a 6-digit code from [100000, 999999) with a
// cryptographically secure source.
func generateLoginCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(899999))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(100000+n.Int64(), 10), nil
}
