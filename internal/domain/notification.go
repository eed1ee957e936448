package domain

import "time"

type NotificationLevel string

const (
	LevelInfo    NotificationLevel = "info"
	LevelSuccess NotificationLevel = "success"
	LevelWarning NotificationLevel = "warning"
	LevelError   NotificationLevel = "error"
)

const (
	VerbOrderCreated       = "order_created"
	VerbOrderStatusChanged = "order_status_changed"
)

// NotificationAction is an order decision a notification asks its recipient to take.
type NotificationAction string

const (
	ActionAccept  NotificationAction = "accept"
	ActionDecline NotificationAction = "decline"
)

func (a NotificationAction) Valid() bool {
	return a == ActionAccept || a == ActionDecline
}

type Notification struct {
	ID      int64             `json:"id"`
	UserID  int64             `json:"user_id,omitempty"`
	Level   NotificationLevel `json:"level"`
	Verb    string            `json:"verb"`
	Message string            `json:"message,omitempty"`
	Read    bool              `json:"read"`

	// Target: either an order or a free-form URL
	OrderID   *int64 `json:"order_id,omitempty"`
	TargetURL string `json:"target_url,omitempty"`

	RequiresAction bool               `json:"requires_action"`
	ActionTaken    bool               `json:"action_taken"`
	TakenAction    NotificationAction `json:"taken_action,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (n *Notification) Clone() *Notification {
	if n == nil {
		return nil
	}
	c := *n
	if n.OrderID != nil {
		id := *n.OrderID
		c.OrderID = &id
	}
	return &c
}

// MergeFrom applies a server copy onto the local one. Read and ActionTaken
// never go back to false on the client.
func (n *Notification) MergeFrom(remote *Notification) {
	read := n.Read || remote.Read
	taken := n.ActionTaken || remote.ActionTaken
	takenAction := remote.TakenAction
	if takenAction == "" {
		takenAction = n.TakenAction
	}

	*n = *remote.Clone()
	n.Read = read
	n.ActionTaken = taken
	n.TakenAction = takenAction
}

// UnreadCounts is what the unread-count endpoint reports.
type UnreadCounts struct {
	Notifications int64 `json:"unread_count"`
	Messages      int64 `json:"unread_messages"`
}
