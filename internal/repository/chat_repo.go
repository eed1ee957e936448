package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"servicemarket/internal/domain"
)

type messageModel struct {
	ID        int64      `gorm:"column:id;primaryKey"`
	OrderID   int64      `gorm:"column:order_id;index;not null"`
	SenderID  int64      `gorm:"column:sender_id;not null;uniqueIndex:idx_messages_sender_client"`
	ClientID  *string    `gorm:"column:client_id;uniqueIndex:idx_messages_sender_client"`
	Body      string     `gorm:"column:body;not null"`
	ReadAt    *time.Time `gorm:"column:read_at"`
	CreatedAt time.Time  `gorm:"column:created_at"`
}

func (messageModel) TableName() string { return "messages" }

func toDomainMessage(m messageModel) *domain.Message {
	msg := &domain.Message{
		ID:       m.ID,
		OrderID:  m.OrderID,
		SenderID: m.SenderID,
		Body:     m.Body,
		SentAt:   m.CreatedAt,
	}
	if m.ClientID != nil {
		msg.ClientID = *m.ClientID
	}
	return msg
}

type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// CreateMessage stores a message. A retried send carrying the same client id
// returns the message stored the first time instead of a duplicate.
func (r *ChatRepository) CreateMessage(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	m := messageModel{
		OrderID:  msg.OrderID,
		SenderID: msg.SenderID,
		Body:     msg.Body,
	}
	if msg.ClientID != "" {
		id := msg.ClientID
		m.ClientID = &id
	}

	err := r.db.WithContext(ctx).Create(&m).Error
	if err == nil {
		return toDomainMessage(m), nil
	}
	if !isUniqueViolation(err) || m.ClientID == nil {
		return nil, err
	}

	var existing messageModel
	if err := r.db.WithContext(ctx).
		Where("sender_id = ? AND client_id = ?", msg.SenderID, msg.ClientID).
		First(&existing).Error; err != nil {
		return nil, err
	}
	return toDomainMessage(existing), nil
}

// GetMessages returns the conversation of an order in chronological order.
func (r *ChatRepository) GetMessages(ctx context.Context, orderID int64, limit int) ([]*domain.Message, error) {
	var rows []messageModel

	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Message, len(rows))
	for i, m := range rows {
		out[len(rows)-1-i] = toDomainMessage(m)
	}
	return out, nil
}

// MarkRead marks every message in the order not written by readerID as read.
func (r *ChatRepository) MarkRead(ctx context.Context, orderID, readerID int64) error {
	return r.db.WithContext(ctx).
		Model(&messageModel{}).
		Where("order_id = ? AND sender_id <> ? AND read_at IS NULL", orderID, readerID).
		Update("read_at", time.Now().UTC()).Error
}

// CountUnread counts unread messages addressed to userID across their orders.
func (r *ChatRepository) CountUnread(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Table("messages").
		Joins("JOIN orders ON orders.id = messages.order_id").
		Where("(orders.customer_id = ? OR orders.worker_id = ?) AND messages.sender_id <> ? AND messages.read_at IS NULL",
			userID, userID, userID).
		Count(&n).Error
	return n, err
}
