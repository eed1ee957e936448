package invoice

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"servicemarket/internal/domain"
	"servicemarket/internal/logger"
	"servicemarket/internal/metrics"
)

type OrderReader interface {
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
}

type InvoiceRepositoryInterface interface {
	CreateOnce(ctx context.Context, orderID int64, amount float64) (*domain.Invoice, bool, error)
	GetByOrder(ctx context.Context, orderID int64) (*domain.Invoice, error)
}

type CreateInvoiceRequest struct {
	OrderID int64   `json:"order_id" binding:"required,gt=0"`
	Amount  float64 `json:"amount" binding:"gte=0"`
}

// Service bills completed orders. An order gets at most one invoice; asking
// again returns the existing one.
type Service struct {
	orders   OrderReader
	invoices InvoiceRepositoryInterface
	log      zerolog.Logger
}

func NewService(orders OrderReader, invoices InvoiceRepositoryInterface) *Service {
	return &Service{orders: orders, invoices: invoices, log: logger.WithComponent("invoice-service")}
}

// Create returns the invoice and whether this call created it. A zero amount
// bills the offered price.
func (s *Service) Create(ctx context.Context, actor domain.Actor, req CreateInvoiceRequest) (*domain.Invoice, bool, error) {
	o, err := s.orders.GetByID(ctx, req.OrderID)
	if err != nil {
		return nil, false, err
	}
	if actor.Role != domain.RoleAdmin && !o.IsParticipant(actor.UserID) {
		return nil, false, fmt.Errorf("%w: not a participant of order %d", domain.ErrForbidden, o.ID)
	}
	if o.Status != domain.OrderCompleted {
		return nil, false, fmt.Errorf("%w: order %d is %s, not completed", domain.ErrInvalidTransition, o.ID, o.Status)
	}

	amount := req.Amount
	if amount == 0 {
		amount = o.OfferedPrice
	}

	inv, created, err := s.invoices.CreateOnce(ctx, o.ID, amount)
	if err != nil {
		return nil, false, err
	}
	if created {
		metrics.InvoicesCreated.Inc()
		s.log.Info().Int64("order_id", o.ID).Int64("invoice_id", inv.ID).Float64("amount", inv.Amount).Msg("invoice created")
	}
	return inv, created, nil
}

func (s *Service) GetByOrder(ctx context.Context, actor domain.Actor, orderID int64) (*domain.Invoice, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleAdmin && !o.IsParticipant(actor.UserID) {
		return nil, fmt.Errorf("%w: not a participant of order %d", domain.ErrForbidden, o.ID)
	}
	return s.invoices.GetByOrder(ctx, orderID)
}
