package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"streamhub/internal/core/domain"
	"streamhub/internal/core/ports"
	"streamhub/internal/infrastructure/middleware"
	apperrors "streamhub/pkg/errors"
	"streamhub/pkg/validation"

	"github.com/gin-gonic/gin"
)

// TokenIssuer signs access tokens for stored identities.
type TokenIssuer interface {
	GenerateToken(identity domain.Identity) (string, error)
}

// IdentityDirectory is an identity store that admins can write to.
type IdentityDirectory interface {
	ports.IdentityStore
	PutIdentity(ctx context.Context, identity domain.Identity) error
}

// AuthHandler lets admins manage identities and mint tokens for them.
// There is no password login; tokens come from the site's own auth.
type AuthHandler struct {
	tokens     TokenIssuer
	identities IdentityDirectory
	tokenTTL   time.Duration
	// invalidate drops a cached identity after it is written. May be nil.
	invalidate func(domain.UserID)
}

func NewAuthHandler(tokens TokenIssuer, identities IdentityDirectory, tokenTTL time.Duration, invalidate func(domain.UserID)) *AuthHandler {
	return &AuthHandler{
		tokens:     tokens,
		identities: identities,
		tokenTTL:   tokenTTL,
		invalidate: invalidate,
	}
}

func (h *AuthHandler) SetupRoutes(router *gin.Engine, auth ports.Authenticator) {
	api := router.Group("/api/v1", middleware.AuthMiddleware(auth))
	{
		api.GET("/auth/me", h.Me)
		api.POST("/auth/token", middleware.RequireRole(domain.RoleAdmin), h.IssueToken)
		api.PUT("/identities/:id", middleware.RequireRole(domain.RoleAdmin), h.PutIdentity)
	}
}

func (h *AuthHandler) Me(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		_ = c.Error(domain.ErrNotAuthenticated)
		return
	}
	c.JSON(http.StatusOK, identity.Summary())
}

type TokenRequest struct {
	UserID domain.UserID `json:"userId"`
}

func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		_ = c.Error(apperrors.NewInvalidInputError("userId is required"))
		return
	}

	identity, err := h.identities.FindIdentityByID(c.Request.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			_ = c.Error(apperrors.NewNotFoundError("identity"))
			return
		}
		_ = c.Error(apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable, "identity store unavailable", http.StatusServiceUnavailable))
		return
	}

	token, err := h.tokens.GenerateToken(*identity)
	if err != nil {
		_ = c.Error(apperrors.WrapError(err, apperrors.ErrCodeInternal, "failed to generate token", http.StatusInternalServerError))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"expiresIn": int(h.tokenTTL / time.Second),
		"user":      identity.Summary(),
	})
}

type IdentityRequest struct {
	DisplayName string      `json:"displayName" validate:"required,max=100"`
	Email       string      `json:"email"`
	Role        domain.Role `json:"role" validate:"required,oneof=viewer operator admin"`
}

func (h *AuthHandler) PutIdentity(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := validation.ValidateNonEmptyString(id, "id"); err != nil {
		_ = c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	var req IdentityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if err := validation.Struct(req); err != nil {
		_ = c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if req.Email != "" {
		if err := validation.ValidateEmail(req.Email); err != nil {
			_ = c.Error(apperrors.NewInvalidInputError(err.Error()))
			return
		}
	}

	identity := domain.Identity{
		UserID:      domain.UserID(id),
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Role:        req.Role,
	}
	if err := h.identities.PutIdentity(c.Request.Context(), identity); err != nil {
		_ = c.Error(apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable, "identity store unavailable", http.StatusServiceUnavailable))
		return
	}
	if h.invalidate != nil {
		h.invalidate(identity.UserID)
	}

	c.JSON(http.StatusOK, identity.Summary())
}
