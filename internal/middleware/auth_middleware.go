package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/auth-api/pkg/auth"
)

const (
	userIDKey    = "userID"
	userEmailKey = "userEmail"
)

// AuthMiddleware guards routes behind a valid access token.
type AuthMiddleware struct {
	jwtService *auth.JWTService
}

func NewAuthMiddleware(jwtService *auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwtService: jwtService}
}

// RequireAuth reads the access token from the jwt cookie, falling back to the
// Authorization header, and stores the authenticated identity on the context.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := m.extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		claims, err := m.jwtService.ParseAccessToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Set(userEmailKey, claims.Email)
		c.Next()
	}
}

func (m *AuthMiddleware) extractToken(c *gin.Context) string {
	if cookie, err := c.Cookie("jwt"); err == nil && cookie != "" {
		return cookie
	}
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// UserIDFromContext returns the authenticated user id set by RequireAuth.
func UserIDFromContext(c *gin.Context) (uint, bool) {
	val, ok := c.Get(userIDKey)
	if !ok {
		return 0, false
	}
	id, ok := val.(uint)
	return id, ok
}
