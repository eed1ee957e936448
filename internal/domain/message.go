package domain

import (
	"strconv"
	"time"
)

// ChannelKind records which path delivered a message.
type ChannelKind string

const (
	ChannelRealtime ChannelKind = "realtime"
	ChannelFallback ChannelKind = "fallback"
)

// Message is one chat line of an order's conversation.
//
// ID is assigned by the server; a message written locally carries only ClientID
// (and Pending=true) until the server acknowledges it.
type Message struct {
	ID       int64       `json:"id"`
	ClientID string      `json:"client_id,omitempty"`
	OrderID  int64       `json:"order_id"`
	SenderID int64       `json:"sender_id"`
	Body     string      `json:"body"`
	SentAt   time.Time   `json:"sent_at"`
	Channel  ChannelKind `json:"channel,omitempty"`
	Pending  bool        `json:"pending,omitempty"`
}

// Key identifies a message for deduplication: the server id when known, the provisional id otherwise.
func (m *Message) Key() string {
	if m.ID > 0 {
		return "id:" + strconv.FormatInt(m.ID, 10)
	}
	return "tmp:" + m.ClientID
}

// Before is the display order: by timestamp, then by server id.
func (m *Message) Before(other *Message) bool {
	if !m.SentAt.Equal(other.SentAt) {
		return m.SentAt.Before(other.SentAt)
	}
	if m.ID != other.ID {
		// unacknowledged messages sort after acknowledged ones with the same timestamp
		if m.ID == 0 {
			return false
		}
		if other.ID == 0 {
			return true
		}
		return m.ID < other.ID
	}
	return m.ClientID < other.ClientID
}
