package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	// ErrInvalidToken is returned for malformed or badly signed tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when a token's validity window has passed.
	ErrExpiredToken = errors.New("token is expired")
)

// Claims are carried by access tokens.
type Claims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// RefreshClaims are carried by refresh tokens. The SessionID references a
// revocable session record; the token alone is not sufficient to refresh.
type RefreshClaims struct {
	UserID    uint   `json:"user_id"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// JWTService signs and parses HMAC tokens.
type JWTService struct {
	secret []byte
}

func NewJWTService(secret string) (*JWTService, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 bytes")
	}
	return &JWTService{secret: []byte(secret)}, nil
}

func (s *JWTService) GenerateAccessToken(userID uint, email string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := &Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *JWTService) GenerateRefreshToken(userID uint, sessionID string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := &RefreshClaims{
		UserID:    userID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ParseAccessToken validates signature and expiry and returns the claims.
func (s *JWTService) ParseAccessToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// ParseRefreshToken validates signature and expiry and returns the claims.
func (s *JWTService) ParseRefreshToken(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *JWTService) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
