package orders

import (
	"fmt"
	"strings"

	"servicemarket/internal/domain"
)

// Action is a named order transition.
type Action string

const (
	ActionAccept   Action = "accept"
	ActionDecline  Action = "decline"
	ActionStart    Action = "start"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
)

// CompletionPolicy decides which participant may complete an order.
type CompletionPolicy string

const (
	CompleteByEither   CompletionPolicy = "either"
	CompleteByWorker   CompletionPolicy = "worker"
	CompleteByCustomer CompletionPolicy = "customer"
)

func ParseCompletionPolicy(s string) (CompletionPolicy, error) {
	switch p := CompletionPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return CompleteByEither, nil
	case CompleteByEither, CompleteByWorker, CompleteByCustomer:
		return p, nil
	}
	return "", fmt.Errorf("unknown completion policy %q", s)
}

type ownership int

const (
	ownerNone ownership = iota
	ownerBoundWorker
	ownerCustomer
	ownerParticipant
)

type rule struct {
	from  domain.OrderStatus
	to    domain.OrderStatus
	roles []domain.UserRole
	owner ownership
}

// transitions is the role-indexed policy table. Admin appears nowhere: it reads but never transitions.
//
// Accept and decline are guarded by role only. Whether the worker offers the
// order's service is known to the backend alone; it answers FORBIDDEN, which the
// caller receives as domain.ErrForbidden with the cached order unchanged.
var transitions = map[Action]rule{
	ActionAccept:   {from: domain.OrderPending, to: domain.OrderAccepted, roles: []domain.UserRole{domain.RoleWorker}},
	ActionDecline:  {from: domain.OrderPending, to: domain.OrderDeclined, roles: []domain.UserRole{domain.RoleWorker}},
	ActionStart:    {from: domain.OrderAccepted, to: domain.OrderInProgress, roles: []domain.UserRole{domain.RoleWorker}, owner: ownerBoundWorker},
	ActionComplete: {from: domain.OrderInProgress, to: domain.OrderCompleted, roles: []domain.UserRole{domain.RoleWorker, domain.RoleClient}, owner: ownerParticipant},
	ActionCancel:   {from: domain.OrderPending, to: domain.OrderCancelled, roles: []domain.UserRole{domain.RoleClient}, owner: ownerCustomer},
}

func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := transitions[a]; !ok {
		return "", fmt.Errorf("%w: unknown action %q", domain.ErrInvalidTransition, s)
	}
	return a, nil
}

// Policy is the transition guard.
type Policy struct {
	completion CompletionPolicy
}

func NewPolicy(completion CompletionPolicy) Policy {
	if completion == "" {
		completion = CompleteByEither
	}
	return Policy{completion: completion}
}

func (p Policy) Completion() CompletionPolicy {
	return p.completion
}

// Target returns the status an action leads to.
func Target(a Action) (domain.OrderStatus, bool) {
	r, ok := transitions[a]
	return r.to, ok
}

// Authorize checks role and ownership only; source state is checked by Apply.
func (p Policy) Authorize(a Action, o *domain.Order, actor domain.Actor) error {
	r, ok := transitions[a]
	if !ok {
		return fmt.Errorf("%w: unknown action %q", domain.ErrInvalidTransition, a)
	}

	roles := r.roles
	if a == ActionComplete {
		roles = p.completionRoles()
	}
	if !hasRole(roles, actor.Role) {
		return fmt.Errorf("%w: role %s cannot %s orders", domain.ErrForbidden, actor.Role, a)
	}

	switch r.owner {
	case ownerBoundWorker:
		if !o.HasWorker() || *o.WorkerID != actor.UserID {
			return fmt.Errorf("%w: only the assigned worker can %s order %d", domain.ErrForbidden, a, o.ID)
		}
	case ownerCustomer:
		if o.CustomerID != actor.UserID {
			return fmt.Errorf("%w: only the customer can %s order %d", domain.ErrForbidden, a, o.ID)
		}
	case ownerParticipant:
		var owns bool
		switch actor.Role {
		case domain.RoleWorker:
			owns = o.HasWorker() && *o.WorkerID == actor.UserID
		case domain.RoleClient:
			owns = o.CustomerID == actor.UserID
		}
		if !owns {
			return fmt.Errorf("%w: user %d is not a participant of order %d", domain.ErrForbidden, actor.UserID, o.ID)
		}
	}
	return nil
}

func (p Policy) completionRoles() []domain.UserRole {
	switch p.completion {
	case CompleteByWorker:
		return []domain.UserRole{domain.RoleWorker}
	case CompleteByCustomer:
		return []domain.UserRole{domain.RoleClient}
	}
	return []domain.UserRole{domain.RoleWorker, domain.RoleClient}
}

func hasRole(roles []domain.UserRole, role domain.UserRole) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
