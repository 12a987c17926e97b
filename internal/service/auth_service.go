package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/auth-api/internal/domain/entity"
	"github.com/yourusername/auth-api/internal/domain/repository"
	apperrors "github.com/yourusername/auth-api/internal/pkg/errors"
	"github.com/yourusername/auth-api/pkg/auth"
)

// Token lifetimes. "Keep me connected" trades the short session for a long one.
const (
	accessTTLShort  = 25 * time.Minute
	accessTTLLong   = 7 * 24 * time.Hour
	refreshTTLShort = 7 * 24 * time.Hour
	refreshTTLLong  = 30 * 24 * time.Hour
)

// OtpManager is the code lifecycle collaborator consumed by AuthService.
type OtpManager interface {
	RequestCode(ctx context.Context, userID uint, email string) (*IssuedCode, error)
	ConsumeCode(ctx context.Context, userID uint, email, candidate string) error
}

// TokenIssuer mints and parses session artifacts after a successful validation.
type TokenIssuer interface {
	GenerateAccessToken(userID uint, email string, ttl time.Duration) (string, error)
	GenerateRefreshToken(userID uint, sessionID string, ttl time.Duration) (string, error)
	ParseRefreshToken(token string) (*auth.RefreshClaims, error)
}

// PreLoginResult reports where the code went and until when it is valid.
// The code itself is never returned to the caller.
type PreLoginResult struct {
	User      *entity.User
	ExpiresAt time.Time
}

// LoginResult carries the minted session artifacts.
type LoginResult struct {
	User         *entity.User
	AccessToken  string
	RefreshToken string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
}

// AuthService orchestrates the passwordless login flow around OtpService:
// directory lookup, code issue and delivery, code consumption, token minting.
type AuthService struct {
	userRepo repository.UserRepository
	otp      OtpManager
	email    EmailService
	tokens   TokenIssuer
	sessions repository.SessionRepository
}

func NewAuthService(
	userRepo repository.UserRepository,
	otp OtpManager,
	email EmailService,
	tokens TokenIssuer,
	sessions repository.SessionRepository,
) (*AuthService, error) {
	if userRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if otp == nil {
		return nil, fmt.Errorf("otp manager is required")
	}
	if email == nil {
		return nil, fmt.Errorf("email service is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token issuer is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session repository is required")
	}
	return &AuthService{
		userRepo: userRepo,
		otp:      otp,
		email:    email,
		tokens:   tokens,
		sessions: sessions,
	}, nil
}

// PreLogin issues (or re-issues) the login code for the account registered
// under the email and delivers it. A delivery failure is reported but does not
// invalidate the issued code; the user can retry delivery independently.
func (s *AuthService) PreLogin(ctx context.Context, email string) (*PreLoginResult, error) {
	norm := normalizeEmail(email)
	if !isValidEmail(norm) {
		return nil, ErrInvalidEmail
	}

	user, err := s.userRepo.GetByEmail(norm)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	issued, err := s.otp.RequestCode(ctx, user.ID, norm)
	if err != nil {
		return nil, err
	}

	// The code row is already committed; the expiry stamp keys redelivery
	// attempts of the same code to one email.
	idempotencyKey := fmt.Sprintf("login-code:%d:%d", user.ID, issued.ExpiresAt.Unix())
	if err := s.email.SendLoginCode(ctx, user.Email, issued.Code, issued.ExpiresAt, idempotencyKey); err != nil {
		log.Printf("[AuthService] failed to deliver login code to user=%d: %v", user.ID, err)
		return nil, fmt.Errorf("%w: login code delivery failed", ErrInternal)
	}

	return &PreLoginResult{User: user, ExpiresAt: issued.ExpiresAt}, nil
}

// Login consumes the submitted code and mints the session token pair.
func (s *AuthService) Login(ctx context.Context, email, code string, keepConnected bool) (*LoginResult, error) {
	norm := normalizeEmail(email)
	if !isValidEmail(norm) {
		return nil, ErrInvalidEmail
	}

	user, err := s.userRepo.GetByEmail(norm)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	if err := s.otp.ConsumeCode(ctx, user.ID, norm, strings.TrimSpace(code)); err != nil {
		return nil, err
	}

	accessTTL, refreshTTL := accessTTLShort, refreshTTLShort
	if keepConnected {
		accessTTL, refreshTTL = accessTTLLong, refreshTTLLong
	}

	sessionID := uuid.NewString()
	accessToken, err := s.tokens.GenerateAccessToken(user.ID, user.Email, accessTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	refreshToken, err := s.tokens.GenerateRefreshToken(user.ID, sessionID, refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if err := s.sessions.Save(ctx, sessionID, user.ID, refreshTTL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	return &LoginResult{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessTTL:    accessTTL,
		RefreshTTL:   refreshTTL,
	}, nil
}

// Refresh mints a new access token from a still-valid, unrevoked refresh session.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	claims, err := s.tokens.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	}

	userID, err := s.sessions.Check(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if userID != claims.UserID {
		return nil, ErrSessionNotFound
	}

	user, err := s.userRepo.GetByID(claims.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	accessToken, err := s.tokens.GenerateAccessToken(user.ID, user.Email, accessTTLShort)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	return &LoginResult{User: user, AccessToken: accessToken, AccessTTL: accessTTLShort}, nil
}

// Register creates a new account. Ids come from the database sequence.
func (s *AuthService) Register(ctx context.Context, name, email string) (*entity.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name must not be empty", apperrors.ErrValidation)
	}
	norm := normalizeEmail(email)
	if norm == "" {
		return nil, fmt.Errorf("%w: email must not be empty", apperrors.ErrValidation)
	}
	if !isValidEmail(norm) {
		return nil, ErrInvalidEmail
	}

	_, err := s.userRepo.GetByEmail(norm)
	if err == nil {
		return nil, ErrEmailTaken
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	user := &entity.User{Name: name, Email: norm}
	if err := s.userRepo.Create(user); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return user, nil
}

// GetUser resolves an authenticated user id back to the account record.
func (s *AuthService) GetUser(ctx context.Context, id uint) (*entity.User, error) {
	user, err := s.userRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return user, nil
}

// Logout revokes the refresh session, best effort. An unparseable or missing
// token is not an error: the caller is clearing cookies regardless.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	claims, err := s.tokens.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil
	}
	if err := s.sessions.Delete(ctx, claims.SessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
