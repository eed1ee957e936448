package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"servicemarket/internal/domain"
)

type notificationModel struct {
	ID             int64     `gorm:"column:id;primaryKey"`
	UserID         int64     `gorm:"column:user_id;index;not null"`
	Level          string    `gorm:"column:level;not null"`
	Verb           string    `gorm:"column:verb;not null"`
	Message        string    `gorm:"column:message"`
	Read           bool      `gorm:"column:read;not null;default:false"`
	OrderID        *int64    `gorm:"column:order_id;index"`
	TargetURL      *string   `gorm:"column:target_url"`
	RequiresAction bool      `gorm:"column:requires_action;not null;default:false"`
	ActionTaken    bool      `gorm:"column:action_taken;not null;default:false"`
	TakenAction    *string   `gorm:"column:taken_action"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

func (notificationModel) TableName() string { return "notifications" }

func toDomainNotification(m notificationModel) *domain.Notification {
	n := &domain.Notification{
		ID:             m.ID,
		UserID:         m.UserID,
		Level:          domain.NotificationLevel(m.Level),
		Verb:           m.Verb,
		Message:        m.Message,
		Read:           m.Read,
		OrderID:        m.OrderID,
		RequiresAction: m.RequiresAction,
		ActionTaken:    m.ActionTaken,
		CreatedAt:      m.CreatedAt,
	}
	if m.TargetURL != nil {
		n.TargetURL = *m.TargetURL
	}
	if m.TakenAction != nil {
		n.TakenAction = domain.NotificationAction(*m.TakenAction)
	}
	return n
}

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	m := notificationModel{
		UserID:         n.UserID,
		Level:          string(n.Level),
		Verb:           n.Verb,
		Message:        n.Message,
		OrderID:        n.OrderID,
		RequiresAction: n.RequiresAction,
	}
	if n.TargetURL != "" {
		u := n.TargetURL
		m.TargetURL = &u
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return err
	}
	*n = *toDomainNotification(m)
	return nil
}

// List returns the newest notifications of a user.
func (r *NotificationRepository) List(ctx context.Context, userID int64, limit int) ([]*domain.Notification, error) {
	var rows []notificationModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Notification, 0, len(rows))
	for _, m := range rows {
		out = append(out, toDomainNotification(m))
	}
	return out, nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&notificationModel{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&n).Error
	return n, err
}

// MarkRead is idempotent; a notification of another user is reported as missing.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, id int64) error {
	tx := r.db.WithContext(ctx).Model(&notificationModel{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read", true)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		var n int64
		if err := r.db.WithContext(ctx).Model(&notificationModel{}).
			Where("id = ? AND user_id = ?", id, userID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: notification %d", domain.ErrNotFound, id)
		}
	}
	return nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID int64) error {
	return r.db.WithContext(ctx).Model(&notificationModel{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true).Error
}

// ResolveAction closes every pending decision about an order once any recipient
// took it: action_taken, taken_action and read are set together.
func (r *NotificationRepository) ResolveAction(ctx context.Context, orderID int64, action domain.NotificationAction) error {
	return r.db.WithContext(ctx).Model(&notificationModel{}).
		Where("order_id = ? AND requires_action = ? AND action_taken = ?", orderID, true, false).
		Updates(map[string]any{
			"action_taken": true,
			"taken_action": string(action),
			"read":         true,
		}).Error
}
