package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gopherchat/internal/pkg/jwtutil"
	"gopherchat/internal/transport/http/response"
)

const (
	ContextUserIDKey = "user_id"
	ContextEmailKey  = "user_email"
	ContextAdminKey  = "user_admin"
)

type Authenticator interface {
	Authenticate(accessToken string) (*jwtutil.Claims, error)
}

func AuthJWT(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing authorization header")
			return
		}

		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid authorization scheme")
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
		claims, err := auth.Authenticate(token)
		if err != nil {
			if errors.Is(err, jwtutil.ErrTokenExpired) {
				response.Abort(c, http.StatusUnauthorized, response.CodeTokenExpired, "token expired")
				return
			}
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid or expired token")
			return
		}

		c.Set(ContextUserIDKey, claims.Subject)
		c.Set(ContextEmailKey, claims.Email)
		c.Set(ContextAdminKey, claims.Admin)
		c.Next()
	}
}

// RequireAdmin must run after AuthJWT.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ContextAdminKey) {
			response.Abort(c, http.StatusForbidden, response.CodeForbidden, "admin only")
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated subject, if any.
func UserID(c *gin.Context) (string, bool) {
	id := c.GetString(ContextUserIDKey)
	return id, id != ""
}

func IsAdmin(c *gin.Context) bool {
	return c.GetBool(ContextAdminKey)
}
