package middleware

import (
	"net/http"
	"strings"

	"github.com/go-tokengate/tokengate/internal/services"
	"github.com/go-tokengate/tokengate/internal/token"

	"github.com/gin-gonic/gin"
)

const (
	// ContextVerifiedToken is the gin context key holding the verified access token claims
	ContextVerifiedToken = "verified_token"
	// ContextUserID is the gin context key holding the authenticated subject
	ContextUserID = "user_id"
)

// BearerToken extracts the raw bearer token from the Authorization header.
func BearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	raw := strings.TrimPrefix(authHeader, "Bearer ")
	if raw == "" {
		return "", false
	}
	return raw, true
}

// RequireBearer validates the presented access token and stores the verified
// claims in the request context. Any verification failure is a 401; scope
// enforcement (RequireScope) is the only source of 403.
func RequireBearer(verifier *services.VerificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := BearerToken(c)
		if !ok {
			c.Header("WWW-Authenticate", `Bearer realm="TokenGate"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":             "invalid_token",
				"error_description": "Bearer token required",
			})
			return
		}

		verified, err := verifier.VerifyAccessToken(c.Request.Context(), raw)
		if err != nil {
			c.Header("WWW-Authenticate", `Bearer realm="TokenGate", error="invalid_token"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":             "invalid_token",
				"error_description": "The access token is expired, revoked, or otherwise invalid",
			})
			return
		}

		c.Set(ContextVerifiedToken, verified)
		c.Set(ContextUserID, verified.UserID)
		c.Next()
	}
}

// RequireScope enforces that the verified token carries the given scope.
// Must run after RequireBearer.
func RequireScope(verifier *services.VerificationService, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		verified, ok := VerifiedTokenFromContext(c)
		if !ok {
			c.Header("WWW-Authenticate", `Bearer realm="TokenGate"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":             "invalid_token",
				"error_description": "Bearer token required",
			})
			return
		}

		if err := verifier.RequireScope(verified, scope); err != nil {
			c.Header("WWW-Authenticate", `Bearer realm="TokenGate", error="insufficient_scope", scope="`+scope+`"`)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":             "insufficient_scope",
				"error_description": "The token does not carry the required scope",
			})
			return
		}

		c.Next()
	}
}

// RequireAdmin restricts an endpoint to administrator subjects.
// Must run after RequireBearer.
func RequireAdmin(userService *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get(ContextUserID)
		if !exists {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":             "access_denied",
				"error_description": "Unauthorized access",
			})
			return
		}

		subject, _ := userID.(string)
		user, err := userService.GetUserByID(subject)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":             "access_denied",
				"error_description": "User not found",
			})
			return
		}

		if !user.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":             "access_denied",
				"error_description": "Admin access required",
			})
			return
		}

		c.Set("user", user)
		c.Next()
	}
}

// VerifiedTokenFromContext returns the verified token placed by RequireBearer.
func VerifiedTokenFromContext(c *gin.Context) (*token.VerifiedToken, bool) {
	value, exists := c.Get(ContextVerifiedToken)
	if !exists {
		return nil, false
	}
	verified, ok := value.(*token.VerifiedToken)
	return verified, ok
}
