package chat

import "servicemarket/internal/domain"

type SendMessageRequest struct {
	Body     string `json:"body" binding:"required"`
	ClientID string `json:"client_id" binding:"omitempty,max=64"`
}

type MessagesResponse struct {
	Messages []*domain.Message `json:"messages"`
}
