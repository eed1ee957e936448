package syncer

import (
	"context"

	"servicemarket/internal/domain"
)

// API is the notification slice of the backend.
type API interface {
	UnreadCounts(ctx context.Context) (domain.UnreadCounts, error)
	ListNotifications(ctx context.Context, limit int) ([]*domain.Notification, error)
	MarkNotificationRead(ctx context.Context, id int64) error
	MarkAllNotificationsRead(ctx context.Context) error
}

// OrderActor performs the order decisions a notification can ask for.
type OrderActor interface {
	Accept(ctx context.Context, id int64, actor domain.Actor) (*domain.Order, error)
	Decline(ctx context.Context, id int64, actor domain.Actor, reason string) (*domain.Order, error)
}

// SessionSource identifies the signed-in user.
type SessionSource interface {
	Get() domain.Session
}
