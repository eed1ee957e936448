package chat

import (
	"context"

	"servicemarket/internal/domain"
)

type OrderReader interface {
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
}

type MessageRepositoryInterface interface {
	CreateMessage(ctx context.Context, msg *domain.Message) (*domain.Message, error)
	GetMessages(ctx context.Context, orderID int64, limit int) ([]*domain.Message, error)
	MarkRead(ctx context.Context, orderID, readerID int64) error
}
