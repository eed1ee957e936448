package conversation

import (
	"context"

	"servicemarket/internal/domain"
)

// API is the request/response path of a conversation.
type API interface {
	ListMessages(ctx context.Context, orderID int64) ([]*domain.Message, error)
	PostMessage(ctx context.Context, orderID int64, body, clientID string) (*domain.Message, error)
}

// OrderSource resolves the order a conversation belongs to. Get may serve a
// cached copy; Refresh always asks the backend.
type OrderSource interface {
	Get(ctx context.Context, id int64) (*domain.Order, error)
	Refresh(ctx context.Context, id int64) (*domain.Order, error)
}

// SessionSource provides the signed-in user and the bearer for the realtime handshake.
type SessionSource interface {
	Get() domain.Session
}
