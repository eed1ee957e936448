package order

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"servicemarket/internal/domain"
	"servicemarket/internal/middleware"
	"servicemarket/internal/orders"
	"servicemarket/internal/pkg/response"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(protected *gin.RouterGroup) {
	protected.POST("/services", middleware.RequireRole(domain.RoleWorker), h.CreateService)

	ordersGroup := protected.Group("/orders")
	{
		ordersGroup.GET("", h.List)
		ordersGroup.POST("", middleware.RequireRole(domain.RoleClient), h.Create)
		ordersGroup.GET("/:id", h.Get)
		ordersGroup.DELETE("/:id", h.transition(orders.ActionCancel))
		ordersGroup.POST("/:id/accept", h.transition(orders.ActionAccept))
		ordersGroup.POST("/:id/decline", h.transition(orders.ActionDecline))
		ordersGroup.POST("/:id/start", h.transition(orders.ActionStart))
		ordersGroup.POST("/:id/complete", h.transition(orders.ActionComplete))
	}
}

func (h *Handler) CreateService(c *gin.Context) {
	var req CreateServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, domain.CodeValidation, err.Error())
		return
	}

	svc, err := h.service.CreateService(c.Request.Context(), middleware.Actor(c), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, svc)
}

func (h *Handler) Create(c *gin.Context) {
	var draft domain.OrderDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		response.Error(c, http.StatusBadRequest, domain.CodeValidation, "Invalid request body")
		return
	}

	o, err := h.service.Create(c.Request.Context(), middleware.Actor(c), draft)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, o)
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}

	o, err := h.service.Get(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, o)
}

func (h *Handler) List(c *gin.Context) {
	list, err := h.service.List(c.Request.Context(), middleware.Actor(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, ListResponse{Orders: list})
}

func (h *Handler) transition(action orders.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := orderID(c)
		if !ok {
			return
		}

		var reason string
		if action == orders.ActionDecline {
			var req DeclineRequest
			if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
				response.Error(c, http.StatusBadRequest, domain.CodeValidation, "Invalid request body")
				return
			}
			reason = req.Reason
		}

		o, changed, err := h.service.Transition(c.Request.Context(), middleware.Actor(c), id, action, reason)
		if err != nil {
			response.FromError(c, err)
			return
		}
		response.Success(c, http.StatusOK, TransitionResponse{Order: o, Changed: changed})
	}
}

// orderID parses the :id param and writes the error response itself.
func orderID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, domain.CodeValidation, "Invalid order ID")
		return 0, false
	}
	return id, true
}
