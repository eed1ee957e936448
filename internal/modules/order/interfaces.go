package order

import (
	"context"

	"servicemarket/internal/domain"
)

type OrderRepositoryInterface interface {
	Create(ctx context.Context, o *domain.Order) error
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	ListVisible(ctx context.Context, actor domain.Actor) ([]*domain.Order, error)
	CompareAndSwap(ctx context.Context, expected domain.OrderStatus, next *domain.Order) error
}

type ServiceRepositoryInterface interface {
	Create(ctx context.Context, s *domain.Service) error
	GetByID(ctx context.Context, id int64) (*domain.Service, error)
}

type NotificationWriter interface {
	Create(ctx context.Context, n *domain.Notification) error
	ResolveAction(ctx context.Context, orderID int64, action domain.NotificationAction) error
}
