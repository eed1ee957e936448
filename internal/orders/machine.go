package orders

import (
	"fmt"
	"strings"
	"time"

	"servicemarket/internal/domain"
)

// Apply performs action on a copy of o and returns it. o is never modified.
//
// changed is false only for complete on an already completed order, which is a
// successful no-op for any participant allowed to complete.
func (p Policy) Apply(o *domain.Order, a Action, actor domain.Actor, reason string, now time.Time) (next *domain.Order, changed bool, err error) {
	r, ok := transitions[a]
	if !ok {
		return nil, false, fmt.Errorf("%w: unknown action %q", domain.ErrInvalidTransition, a)
	}

	if a == ActionComplete && o.Status == domain.OrderCompleted {
		if err := p.Authorize(a, o, actor); err != nil {
			return nil, false, err
		}
		return o.Clone(), false, nil
	}

	if o.Status != r.from {
		return nil, false, fmt.Errorf("%w: cannot %s order %d in status %s", domain.ErrInvalidTransition, a, o.ID, o.Status)
	}
	if err := p.Authorize(a, o, actor); err != nil {
		return nil, false, err
	}

	next = o.Clone()
	next.Status = r.to
	next.UpdatedAt = now

	switch a {
	case ActionAccept:
		worker := actor.UserID
		next.WorkerID = &worker
	case ActionDecline:
		if reason = strings.TrimSpace(reason); reason != "" {
			next.DeclineReason = &reason
		}
	}
	return next, true, nil
}
