package notification

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"servicemarket/internal/domain"
	"servicemarket/internal/middleware"
	"servicemarket/internal/pkg/response"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(protected *gin.RouterGroup) {
	g := protected.Group("/notifications")
	{
		g.GET("", h.GetNotifications)
		g.GET("/unread-count", h.GetUnreadCount)
		g.POST("/:id/mark-read", h.MarkAsRead)
		g.POST("/mark-all-read", h.MarkAllAsRead)
	}
}

func (h *Handler) GetNotifications(c *gin.Context) {
	limit := DefaultLimit
	if s := c.Query("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}

	list, err := h.service.List(c.Request.Context(), middleware.Actor(c).UserID, limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"notifications": list})
}

func (h *Handler) GetUnreadCount(c *gin.Context) {
	counts, err := h.service.UnreadCounts(c.Request.Context(), middleware.Actor(c).UserID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, counts)
}

func (h *Handler) MarkAsRead(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, domain.CodeValidation, "Invalid notification ID")
		return
	}

	if err := h.service.MarkRead(c.Request.Context(), middleware.Actor(c).UserID, id); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "read"})
}

func (h *Handler) MarkAllAsRead(c *gin.Context) {
	if err := h.service.MarkAllRead(c.Request.Context(), middleware.Actor(c).UserID); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "all_read"})
}
