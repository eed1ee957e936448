package notification

import (
	"context"

	"servicemarket/internal/domain"
)

type NotificationRepositoryInterface interface {
	List(ctx context.Context, userID int64, limit int) ([]*domain.Notification, error)
	CountUnread(ctx context.Context, userID int64) (int64, error)
	MarkRead(ctx context.Context, userID, id int64) error
	MarkAllRead(ctx context.Context, userID int64) error
}

// UnreadMessageCounter counts chat messages the user has not read yet.
type UnreadMessageCounter interface {
	CountUnread(ctx context.Context, userID int64) (int64, error)
}
