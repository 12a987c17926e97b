package handler

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/auth-api/internal/middleware"
	apperrors "github.com/yourusername/auth-api/internal/pkg/errors"
	"github.com/yourusername/auth-api/internal/service"
)

const (
	accessCookieName  = "jwt"
	refreshCookieName = "refreshToken"
)

// AuthHandler exposes the passwordless login flow over HTTP.
type AuthHandler struct {
	authService *service.AuthService
	// secureCookies controls the Secure/SameSite=None attributes; off for
	// local development over plain HTTP.
	secureCookies bool
}

func NewAuthHandler(authService *service.AuthService, secureCookies bool) *AuthHandler {
	return &AuthHandler{authService: authService, secureCookies: secureCookies}
}

// PreLoginRequest asks for a login code to be sent.
type PreLoginRequest struct {
	Email string `json:"email" binding:"required"`
}

// LoginRequest submits the code the user received.
type LoginRequest struct {
	Email           string `json:"email" binding:"required"`
	Code            string `json:"code" binding:"required"`
	KeepMeConnected bool   `json:"keep_me_connected"`
}

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Name  string `json:"name" binding:"required,min=1,max=100"`
	Email string `json:"email" binding:"required,email"`
}

// PreLogin validates the address, issues (or re-issues) the code and emails it.
func (h *AuthHandler) PreLogin(c *gin.Context) {
	var req PreLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	result, err := h.authService.PreLogin(c.Request.Context(), req.Email)
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    fmt.Sprintf("Login code sent to %s", result.User.Email),
		"expires_at": result.ExpiresAt,
	})
}

// Login consumes the code and sets the session cookies.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	result, err := h.authService.Login(c.Request.Context(), req.Email, req.Code, req.KeepMeConnected)
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	h.setAuthCookie(c, accessCookieName, result.AccessToken, int(result.AccessTTL.Seconds()))
	h.setAuthCookie(c, refreshCookieName, result.RefreshToken, int(result.RefreshTTL.Seconds()))

	log.Printf("[AuthHandler] user ID=%d logged in", result.User.ID)
	c.JSON(http.StatusOK, gin.H{"user": result.User})
}

// Register creates an account; logging in still requires the email code.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	user, err := h.authService.Register(c.Request.Context(), req.Name, req.Email)
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	log.Printf("[AuthHandler] user ID=%d (%s) registered", user.ID, user.Email)
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// Refresh rotates the access token off the refresh cookie.
func (h *AuthHandler) Refresh(c *gin.Context) {
	refreshToken, err := c.Cookie(refreshCookieName)
	if err != nil || refreshToken == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing refresh token"})
		return
	}

	result, err := h.authService.Refresh(c.Request.Context(), refreshToken)
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	h.setAuthCookie(c, accessCookieName, result.AccessToken, int(result.AccessTTL.Seconds()))
	c.JSON(http.StatusOK, gin.H{"user": result.User})
}

// Logout revokes the refresh session and clears both cookies.
func (h *AuthHandler) Logout(c *gin.Context) {
	refreshToken, _ := c.Cookie(refreshCookieName)
	if err := h.authService.Logout(c.Request.Context(), refreshToken); err != nil {
		h.handleAuthError(c, err)
		return
	}

	h.setAuthCookie(c, accessCookieName, "", -1)
	h.setAuthCookie(c, refreshCookieName, "", -1)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me returns the authenticated account.
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	user, err := h.authService.GetUser(c.Request.Context(), userID)
	if err != nil {
		h.handleAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *AuthHandler) setAuthCookie(c *gin.Context, name, value string, maxAge int) {
	sameSite := http.SameSiteLaxMode
	if h.secureCookies {
		// Cross-site frontends need SameSite=None, which requires Secure.
		sameSite = http.SameSiteNoneMode
	}
	c.SetSameSite(sameSite)
	c.SetCookie(name, value, maxAge, "/", "", h.secureCookies, true)
}

// handleAuthError maps service errors onto stable HTTP responses. Business
// failures carry their error kind; infrastructure detail never leaks.
func (h *AuthHandler) handleAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidEmail):
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": "The email address is not valid.", "error_type": "invalid_email"})
	case errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": "No account found for this email.", "error_type": "user_not_found"})
	case errors.Is(err, service.ErrEmailTaken):
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": "This email is already registered.", "error_type": "email_taken"})
	case errors.Is(err, service.ErrCodeNotFound):
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": "Invalid login code.", "error_type": "code_not_found"})
	case errors.Is(err, service.ErrCodeAlreadyUsed):
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": "This login code was already used. Request a new one.", "error_type": "code_already_used"})
	case errors.Is(err, service.ErrCodeExpired):
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": "This login code has expired. Request a new one.", "error_type": "code_expired"})
	case errors.Is(err, service.ErrSessionNotFound):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired, please log in again.", "error_type": "session_not_found"})
	case errors.Is(err, service.ErrLockTimeout):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "The service is busy, please try again.", "error_type": "lock_timeout"})
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_type": "validation"})
	default:
		log.Printf("[AuthHandler] internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong, please try again.", "error_type": "internal"})
	}
}
