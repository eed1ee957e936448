package orders

import (
	"fmt"
	"time"

	"servicemarket/internal/domain"
)

const day = 24 * time.Hour

// Reorder seeds a draft from a completed or declined order. The schedule is kept if
// it is still in the future; otherwise it moves forward by whole days, keeping the
// time of day and the original duration.
func Reorder(src *domain.Order, now time.Time) (*domain.OrderDraft, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: no source order", domain.ErrNotFound)
	}
	if src.Status != domain.OrderCompleted && src.Status != domain.OrderDeclined {
		return nil, fmt.Errorf("%w: cannot reorder order %d in status %s", domain.ErrInvalidTransition, src.ID, src.Status)
	}

	duration := src.DeliveryTime.Sub(src.ScheduledTime)
	if duration <= 0 {
		duration = time.Hour
	}

	scheduled := src.ScheduledTime
	if !scheduled.After(now) {
		days := int(now.Sub(scheduled) / day)
		scheduled = scheduled.AddDate(0, 0, days)
		for !scheduled.After(now) {
			scheduled = scheduled.AddDate(0, 0, 1)
		}
	}

	sourceID := src.ID
	draft := &domain.OrderDraft{
		Description:   src.Description,
		OfferedPrice:  src.OfferedPrice,
		ScheduledTime: scheduled,
		DeliveryTime:  scheduled.Add(duration),
		ServiceID:     src.ServiceID,
		SourceOrderID: &sourceID,
	}
	if src.Location != nil {
		loc := *src.Location
		draft.Location = &loc
	}

	if err := draft.ValidateSchedule(now); err != nil {
		return nil, err
	}
	return draft, nil
}
