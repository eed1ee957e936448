package domain

import "time"

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderAccepted   OrderStatus = "accepted"
	OrderInProgress OrderStatus = "in_progress"
	OrderCompleted  OrderStatus = "completed"
	OrderDeclined   OrderStatus = "declined"
	OrderCancelled  OrderStatus = "cancelled"
)

// IsTerminal reports whether no further transition can leave the status.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderCompleted || s == OrderDeclined || s == OrderCancelled
}

// AllowsConversation reports whether a chat between customer and worker is meaningful.
func (s OrderStatus) AllowsConversation() bool {
	return s == OrderAccepted || s == OrderInProgress || s == OrderCompleted
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderAccepted, OrderInProgress, OrderCompleted, OrderDeclined, OrderCancelled:
		return true
	}
	return false
}

type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

type Order struct {
	ID            int64       `json:"id"`
	Status        OrderStatus `json:"status"`
	OfferedPrice  float64     `json:"offered_price"`
	Description   string      `json:"description"`
	ScheduledTime time.Time   `json:"scheduled_time"`
	DeliveryTime  time.Time   `json:"delivery_time"`
	Location      *Location   `json:"location,omitempty"`
	ServiceID     int64       `json:"service_id"`
	CustomerID    int64       `json:"customer_id"`
	WorkerID      *int64      `json:"worker_id,omitempty"`

	// Set only when Status is declined
	DeclineReason *string `json:"decline_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers never share pointers with an owner's state.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	if o.Location != nil {
		loc := *o.Location
		c.Location = &loc
	}
	if o.WorkerID != nil {
		w := *o.WorkerID
		c.WorkerID = &w
	}
	if o.DeclineReason != nil {
		r := *o.DeclineReason
		c.DeclineReason = &r
	}
	return &c
}

func (o *Order) HasWorker() bool {
	return o.WorkerID != nil && *o.WorkerID > 0
}

// IsParticipant reports whether userID is the customer or the bound worker.
func (o *Order) IsParticipant(userID int64) bool {
	if o.CustomerID == userID {
		return true
	}
	return o.HasWorker() && *o.WorkerID == userID
}

// OrderDraft is the input for creating an order. It carries no identity or status.
type OrderDraft struct {
	Description   string    `json:"description" validate:"required,max=2000"`
	OfferedPrice  float64   `json:"offered_price" validate:"gte=0"`
	ScheduledTime time.Time `json:"scheduled_time" validate:"required"`
	DeliveryTime  time.Time `json:"delivery_time" validate:"required"`
	Location      *Location `json:"location,omitempty"`
	ServiceID     int64     `json:"service_id" validate:"required,gt=0"`

	// Set when the draft was produced by reorder
	SourceOrderID *int64 `json:"source_order_id,omitempty"`
}

// ValidateSchedule enforces delivery > scheduled > now.
func (d *OrderDraft) ValidateSchedule(now time.Time) error {
	if !d.ScheduledTime.After(now) {
		return ErrScheduleInPast
	}
	if !d.DeliveryTime.After(d.ScheduledTime) {
		return ErrDeliveryBeforeSchedule
	}
	return nil
}

type Invoice struct {
	ID        int64     `json:"id"`
	OrderID   int64     `json:"order_id"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}
