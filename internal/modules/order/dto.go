package order

import "servicemarket/internal/domain"

type DeclineRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type CreateServiceRequest struct {
	Title     string  `json:"title" binding:"required,max=200"`
	BasePrice float64 `json:"base_price" binding:"gte=0"`
}

// TransitionResponse tells the caller whether the call changed the order.
type TransitionResponse struct {
	Order   *domain.Order `json:"order"`
	Changed bool          `json:"changed"`
}

type ListResponse struct {
	Orders []*domain.Order `json:"orders"`
}
