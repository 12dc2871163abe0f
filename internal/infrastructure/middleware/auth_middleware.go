package middleware

import (
	"strings"

	"streamhub/internal/core/domain"
	"streamhub/internal/core/ports"
	apperrors "streamhub/pkg/errors"
	"streamhub/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

const identityKey = "identity"

// AuthMiddleware authenticates "Authorization: Bearer <token>" with the
// same authenticator the websocket endpoint uses.
func AuthMiddleware(auth ports.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme, token, found := strings.Cut(c.GetHeader("Authorization"), " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
			_ = c.Error(apperrors.NewUnauthorizedError("authorization header required"))
			c.Abort()
			return
		}

		identity, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			_ = c.Error(domain.ToAppError(err))
			c.Abort()
			return
		}

		c.Set(identityKey, *identity)
		c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), string(identity.UserID)))
		c.Next()
	}
}

// RequireRole lets the request through only for the listed roles. It must
// run after AuthMiddleware.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		if !ok {
			_ = c.Error(domain.ToAppError(domain.ErrNotAuthenticated))
			c.Abort()
			return
		}
		if !lo.Contains(roles, identity.Role) {
			_ = c.Error(domain.ToAppError(domain.ErrInsufficientRole))
			c.Abort()
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the identity AuthMiddleware stored on c.
func IdentityFrom(c *gin.Context) (domain.Identity, bool) {
	v, exists := c.Get(identityKey)
	if !exists {
		return domain.Identity{}, false
	}
	identity, ok := v.(domain.Identity)
	return identity, ok
}
