package chat

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"servicemarket/internal/domain"
	"servicemarket/internal/middleware"
	"servicemarket/internal/pkg/jwt"
	"servicemarket/internal/pkg/response"
)

type Handler struct {
	service *Service
	hub     *Hub
	tokens  *jwt.Service
}

func NewHandler(service *Service, hub *Hub, tokens *jwt.Service) *Handler {
	return &Handler{service: service, hub: hub, tokens: tokens}
}

// RegisterRoutes registers the HTTP fallback under the protected group.
func (h *Handler) RegisterRoutes(protected *gin.RouterGroup) {
	protected.GET("/orders/:id/messages", h.GetMessages)
	protected.POST("/orders/:id/messages", h.SendMessage)
}

// RegisterRealtime registers the websocket endpoint. It authenticates with the
// first frame, not a header, so it lives outside the protected group.
func (h *Handler) RegisterRealtime(r gin.IRoutes) {
	r.GET("/ws/orders/:id", h.ServeWS)
}

func (h *Handler) GetMessages(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}

	msgs, err := h.service.History(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if msgs == nil {
		msgs = []*domain.Message{}
	}
	response.Success(c, http.StatusOK, MessagesResponse{Messages: msgs})
}

func (h *Handler) SendMessage(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, domain.CodeValidation, err.Error())
		return
	}

	msg, err := h.service.Post(c.Request.Context(), middleware.Actor(c), id, req.Body, req.ClientID, domain.ChannelFallback)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, msg)
}

func orderID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, domain.CodeValidation, "Invalid order ID")
		return 0, false
	}
	return id, true
}
