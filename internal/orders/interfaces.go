package orders

import (
	"context"

	"servicemarket/internal/domain"
	"servicemarket/internal/transport"
)

// API is the slice of the backend the order service calls.
type API interface {
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	ListOrders(ctx context.Context) ([]*domain.Order, error)
	CreateOrder(ctx context.Context, draft domain.OrderDraft) (*domain.Order, error)
	TransitionOrder(ctx context.Context, id int64, action, reason string) (*transport.TransitionResult, error)
	CancelOrder(ctx context.Context, id int64) (*transport.TransitionResult, error)
}

// InvoiceCreator is the billing collaborator invoked once per completed order.
type InvoiceCreator interface {
	CreateInvoice(ctx context.Context, orderID int64, amount float64) (*domain.Invoice, error)
}
