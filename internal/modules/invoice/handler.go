package invoice

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
	protected.POST("/invoices", h.Create)
	protected.GET("/orders/:id/invoice", h.GetByOrder)
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, domain.CodeValidation, err.Error())
		return
	}

	inv, created, err := h.service.Create(c.Request.Context(), middleware.Actor(c), req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.Success(c, status, inv)
}

func (h *Handler) GetByOrder(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, domain.CodeValidation, "Invalid order ID")
		return
	}

	inv, err := h.service.GetByOrder(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, inv)
}
