package notification

import (
	"context"

	"servicemarket/internal/domain"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

type Service struct {
	notifications NotificationRepositoryInterface
	messages      UnreadMessageCounter
}

func NewService(notifications NotificationRepositoryInterface, messages UnreadMessageCounter) *Service {
	return &Service{notifications: notifications, messages: messages}
}

// List returns the newest notifications, limit clamped to (0, MaxLimit].
func (s *Service) List(ctx context.Context, userID int64, limit int) ([]*domain.Notification, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	list, err := s.notifications.List(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*domain.Notification{}
	}
	return list, nil
}

func (s *Service) UnreadCounts(ctx context.Context, userID int64) (domain.UnreadCounts, error) {
	n, err := s.notifications.CountUnread(ctx, userID)
	if err != nil {
		return domain.UnreadCounts{}, err
	}
	m, err := s.messages.CountUnread(ctx, userID)
	if err != nil {
		return domain.UnreadCounts{}, err
	}
	return domain.UnreadCounts{Notifications: n, Messages: m}, nil
}

func (s *Service) MarkRead(ctx context.Context, userID, id int64) error {
	return s.notifications.MarkRead(ctx, userID, id)
}

func (s *Service) MarkAllRead(ctx context.Context, userID int64) error {
	return s.notifications.MarkAllRead(ctx, userID)
}
