package chat

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"servicemarket/internal/domain"
	"servicemarket/internal/logger"
	"servicemarket/internal/metrics"
)

const (
	maxBodyRunes   = 4000
	defaultHistory = 200
)

type Service struct {
	orders   OrderReader
	messages MessageRepositoryInterface
	hub      *Hub
	log      zerolog.Logger
}

func NewService(orders OrderReader, messages MessageRepositoryInterface, hub *Hub) *Service {
	return &Service{
		orders:   orders,
		messages: messages,
		hub:      hub,
		log:      logger.WithComponent("chat-service"),
	}
}

// Authorize returns the order when actor may talk in its conversation: the
// actor is a participant, a worker is bound and the status allows chatting.
func (s *Service) Authorize(ctx context.Context, actor domain.Actor, orderID int64) (*domain.Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.IsParticipant(actor.UserID) {
		return nil, fmt.Errorf("%w: not a participant of order %d", domain.ErrForbidden, orderID)
	}
	if !o.HasWorker() || !o.Status.AllowsConversation() {
		return nil, fmt.Errorf("%w: order %d is %s", domain.ErrNoParticipant, orderID, o.Status)
	}
	return o, nil
}

// History returns the conversation and marks the counterpart's messages read.
func (s *Service) History(ctx context.Context, actor domain.Actor, orderID int64) ([]*domain.Message, error) {
	if _, err := s.Authorize(ctx, actor, orderID); err != nil {
		return nil, err
	}

	msgs, err := s.messages.GetMessages(ctx, orderID, defaultHistory)
	if err != nil {
		return nil, err
	}
	if err := s.messages.MarkRead(ctx, orderID, actor.UserID); err != nil {
		s.log.Warn().Err(err).Int64("order_id", orderID).Msg("failed to mark messages read")
	}
	return msgs, nil
}

// Post stores a message and fans it out to the order's realtime peers. A retry
// with the same clientID yields the stored message again.
func (s *Service) Post(ctx context.Context, actor domain.Actor, orderID int64, body, clientID string, via domain.ChannelKind) (*domain.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: message body is empty", domain.ErrValidation)
	}
	if utf8.RuneCountInString(body) > maxBodyRunes {
		return nil, fmt.Errorf("%w: message longer than %d characters", domain.ErrValidation, maxBodyRunes)
	}
	if _, err := s.Authorize(ctx, actor, orderID); err != nil {
		return nil, err
	}

	msg, err := s.messages.CreateMessage(ctx, &domain.Message{
		OrderID:  orderID,
		SenderID: actor.UserID,
		Body:     body,
		ClientID: clientID,
	})
	if err != nil {
		return nil, err
	}
	metrics.ChannelMessages.WithLabelValues("in", string(via)).Inc()

	if s.hub != nil {
		n := s.hub.Broadcast(orderID, domain.NewMessageFrame(msg))
		s.log.Debug().Int64("order_id", orderID).Int64("message_id", msg.ID).Int("peers", n).Msg("message broadcast")
	}
	return msg, nil
}
