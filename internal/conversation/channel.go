package conversation

import (
	"context"

	"servicemarket/internal/domain"
)

// channel is one way of delivering a message. Handle picks the realtime channel
// while it is ready and the fallback one otherwise; callers never see which.
type channel interface {
	kind() domain.ChannelKind

	// send returns the stored message, or an error once the server refused it or
	// ctx ended before it was acknowledged.
	send(ctx context.Context, m *domain.Message) (*domain.Message, error)
	close()
}

// fallbackChannel is the HTTP request/response path.
type fallbackChannel struct {
	api     API
	orderID int64
}

func (f *fallbackChannel) kind() domain.ChannelKind { return domain.ChannelFallback }

func (f *fallbackChannel) send(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	acked, err := f.api.PostMessage(ctx, f.orderID, m.Body, m.ClientID)
	if err != nil {
		return nil, err
	}
	if acked.ClientID == "" {
		acked.ClientID = m.ClientID
	}
	acked.Channel = domain.ChannelFallback
	return acked, nil
}

func (f *fallbackChannel) fetch(ctx context.Context) ([]*domain.Message, error) {
	msgs, err := f.api.ListMessages(ctx, f.orderID)
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		if m.Channel == "" {
			m.Channel = domain.ChannelFallback
		}
	}
	return msgs, nil
}

func (f *fallbackChannel) close() {}
