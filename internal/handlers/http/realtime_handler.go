package http

import (
	"context"
	"net/http"

	"streamhub/internal/core/domain"
	"streamhub/internal/core/ports"
	"streamhub/internal/infrastructure/middleware"
	apperrors "streamhub/pkg/errors"
	"streamhub/pkg/validation"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Presence is the read and notify surface of the realtime layer.
type Presence interface {
	ListRoomMembers(streamID domain.StreamID) []domain.MemberSummary
	Stats() domain.ConnectionStats
	Notify(role *domain.Role, message, kind string) domain.DeliveryReport
}

// NotificationPublisher forwards a notification to the other instances.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, role *domain.Role, message, kind string) error
}

type RealtimeHandler struct {
	presence  Presence
	publisher NotificationPublisher
	logger    *zap.SugaredLogger
}

// NewRealtimeHandler wires the presence endpoints. publisher may be nil
// when no notification bus is configured.
func NewRealtimeHandler(presence Presence, publisher NotificationPublisher, logger *zap.SugaredLogger) *RealtimeHandler {
	return &RealtimeHandler{
		presence:  presence,
		publisher: publisher,
		logger:    logger,
	}
}

func (h *RealtimeHandler) SetupRoutes(router *gin.Engine, auth ports.Authenticator) {
	api := router.Group("/api/v1", middleware.AuthMiddleware(auth))
	{
		api.GET("/streams/:id/viewers", middleware.RequireRole(domain.RoleOperator, domain.RoleAdmin), h.ListViewers)
		api.GET("/realtime/stats", middleware.RequireRole(domain.RoleAdmin), h.GetStats)
		api.POST("/notifications", middleware.RequireRole(domain.RoleAdmin), h.SendNotification)
	}
}

func (h *RealtimeHandler) ListViewers(c *gin.Context) {
	streamID := c.Param("id")
	if err := validation.ValidateStreamID(streamID); err != nil {
		_ = c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	viewers := h.presence.ListRoomMembers(domain.StreamID(streamID))
	c.JSON(http.StatusOK, gin.H{
		"streamId":    streamID,
		"viewers":     viewers,
		"viewerCount": len(viewers),
	})
}

func (h *RealtimeHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.presence.Stats())
}

type NotificationRequest struct {
	Message string      `json:"message" validate:"required,max=500"`
	Type    string      `json:"type" validate:"omitempty,max=32"`
	Role    domain.Role `json:"role" validate:"omitempty,oneof=viewer operator admin"`
}

func (h *RealtimeHandler) SendNotification(c *gin.Context) {
	var req NotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}
	if err := validation.ValidateNonEmptyString(req.Message, "message"); err != nil {
		_ = c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if err := validation.Struct(req); err != nil {
		_ = c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	var role *domain.Role
	if req.Role != "" {
		role = &req.Role
	}
	report := h.presence.Notify(role, req.Message, req.Type)

	published := false
	if h.publisher != nil {
		if err := h.publisher.PublishNotification(c.Request.Context(), role, req.Message, req.Type); err != nil {
			h.logger.Warnw("failed to publish notification", "error", err)
		} else {
			published = true
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"delivered": report.Delivered,
		"dropped":   report.Dropped,
		"published": published,
	})
}
