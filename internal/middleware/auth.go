package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"atelier/api/internal/models"
	"atelier/api/internal/security"
)

// CurrentAdminKey is where the auth gate stores the resolved admin.
const CurrentAdminKey = "current_admin"

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.AdminUser, error)
}

// Auth is the single enforcement point for protected routes: it reads the
// session cookie, resolves the admin, and answers a uniform 401 otherwise.
// There is no secondary authorization layer; the single admin role holds
// every permission.
func Auth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(security.SessionCookieName)
		if err != nil || token == "" {
			abortUnauthorized(c)
			return
		}

		admin, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			abortUnauthorized(c)
			return
		}

		c.Set(CurrentAdminKey, admin)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   "unauthorized",
	})
}

// CurrentAdmin returns the admin resolved by Auth for this request.
func CurrentAdmin(c *gin.Context) (models.AdminUser, bool) {
	val, exists := c.Get(CurrentAdminKey)
	if !exists {
		return models.AdminUser{}, false
	}
	admin, ok := val.(models.AdminUser)
	return admin, ok
}
