package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"servicemarket/internal/domain"
	"servicemarket/internal/logger"
	"servicemarket/internal/orders"
	"servicemarket/internal/pkg/validator"
)

// Service is the authoritative order lifecycle. It shares the transition table
// with the client and settles races with a status compare-and-swap in the database.
type Service struct {
	orders        OrderRepositoryInterface
	services      ServiceRepositoryInterface
	notifications NotificationWriter
	policy        orders.Policy
	now           func() time.Time
	log           zerolog.Logger
}

func NewService(
	orderRepo OrderRepositoryInterface,
	serviceRepo ServiceRepositoryInterface,
	notifications NotificationWriter,
	policy orders.Policy,
) *Service {
	return &Service{
		orders:        orderRepo,
		services:      serviceRepo,
		notifications: notifications,
		policy:        policy,
		now:           func() time.Time { return time.Now().UTC() },
		log:           logger.WithComponent("order-service"),
	}
}

func (s *Service) CreateService(ctx context.Context, actor domain.Actor, req CreateServiceRequest) (*domain.Service, error) {
	if actor.Role != domain.RoleWorker {
		return nil, fmt.Errorf("%w: only workers offer services", domain.ErrForbidden)
	}
	svc := &domain.Service{WorkerID: actor.UserID, Title: strings.TrimSpace(req.Title), BasePrice: req.BasePrice}
	if err := s.services.Create(ctx, svc); err != nil {
		return nil, err
	}
	return svc, nil
}

// Create places a pending order and asks the service's worker to decide on it.
func (s *Service) Create(ctx context.Context, actor domain.Actor, draft domain.OrderDraft) (*domain.Order, error) {
	if actor.Role != domain.RoleClient {
		return nil, fmt.Errorf("%w: only clients create orders", domain.ErrForbidden)
	}
	if err := validator.Struct(draft); err != nil {
		return nil, err
	}
	now := s.now()
	if err := draft.ValidateSchedule(now); err != nil {
		return nil, err
	}

	svc, err := s.services.GetByID(ctx, draft.ServiceID)
	if err != nil {
		return nil, err
	}

	o := &domain.Order{
		Status:        domain.OrderPending,
		OfferedPrice:  draft.OfferedPrice,
		Description:   strings.TrimSpace(draft.Description),
		ScheduledTime: draft.ScheduledTime.UTC(),
		DeliveryTime:  draft.DeliveryTime.UTC(),
		Location:      draft.Location,
		ServiceID:     svc.ID,
		CustomerID:    actor.UserID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, err
	}

	s.notify(ctx, &domain.Notification{
		UserID:         svc.WorkerID,
		Level:          domain.LevelInfo,
		Verb:           domain.VerbOrderCreated,
		Message:        fmt.Sprintf("New order #%d for %s", o.ID, svc.Title),
		OrderID:        &o.ID,
		RequiresAction: true,
	})
	return o, nil
}

// Get returns an order the actor may see.
func (s *Service) Get(ctx context.Context, actor domain.Actor, id int64) (*domain.Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.canSee(ctx, actor, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) List(ctx context.Context, actor domain.Actor) ([]*domain.Order, error) {
	return s.orders.ListVisible(ctx, actor)
}

func (s *Service) canSee(ctx context.Context, actor domain.Actor, o *domain.Order) error {
	if actor.Role == domain.RoleAdmin || o.IsParticipant(actor.UserID) {
		return nil
	}
	if actor.Role == domain.RoleWorker && o.Status == domain.OrderPending {
		if owns, err := s.ownsService(ctx, actor, o); err != nil || owns {
			return err
		}
	}
	return fmt.Errorf("%w: order %d", domain.ErrForbidden, o.ID)
}

func (s *Service) ownsService(ctx context.Context, actor domain.Actor, o *domain.Order) (bool, error) {
	svc, err := s.services.GetByID(ctx, o.ServiceID)
	if err != nil {
		return false, err
	}
	return svc.WorkerID == actor.UserID, nil
}

// Transition applies action. changed is false when the order already was in the
// requested final state (a repeated complete), so the caller knows nothing happened.
func (s *Service) Transition(ctx context.Context, actor domain.Actor, id int64, action orders.Action, reason string) (*domain.Order, bool, error) {
	o, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, false, err
	}

	if action == orders.ActionAccept || action == orders.ActionDecline {
		owns, err := s.ownsService(ctx, actor, o)
		if err != nil {
			return nil, false, err
		}
		if !owns {
			return nil, false, fmt.Errorf("%w: order %d is not for your service", domain.ErrForbidden, o.ID)
		}
	}

	next, changed, err := s.policy.Apply(o, action, actor, reason, s.now())
	if err != nil {
		return nil, false, err
	}
	if !changed {
		return o, false, nil
	}

	if err := s.orders.CompareAndSwap(ctx, o.Status, next); err != nil {
		if errors.Is(err, domain.ErrStaleWrite) && action == orders.ActionComplete {
			if latest, gerr := s.orders.GetByID(ctx, id); gerr == nil && latest.Status == domain.OrderCompleted {
				return latest, false, nil
			}
		}
		return nil, false, err
	}

	s.log.Info().
		Int64("order_id", id).
		Str("action", string(action)).
		Str("from", string(o.Status)).
		Str("to", string(next.Status)).
		Int64("actor_id", actor.UserID).
		Msg("order transitioned")

	if action == orders.ActionAccept || action == orders.ActionDecline {
		if err := s.notifications.ResolveAction(ctx, id, domain.NotificationAction(action)); err != nil {
			s.log.Error().Err(err).Int64("order_id", id).Msg("failed to resolve order notifications")
		}
	}
	s.notifyCounterpart(ctx, actor, next)
	return next, true, nil
}

func (s *Service) notifyCounterpart(ctx context.Context, actor domain.Actor, o *domain.Order) {
	recipient := o.CustomerID
	if actor.UserID == o.CustomerID {
		if !o.HasWorker() {
			return
		}
		recipient = *o.WorkerID
	}

	level := domain.LevelInfo
	switch o.Status {
	case domain.OrderAccepted, domain.OrderCompleted:
		level = domain.LevelSuccess
	case domain.OrderDeclined:
		level = domain.LevelWarning
	}

	msg := fmt.Sprintf("Order #%d is now %s", o.ID, strings.ReplaceAll(string(o.Status), "_", " "))
	if o.DeclineReason != nil {
		msg += ": " + *o.DeclineReason
	}
	s.notify(ctx, &domain.Notification{
		UserID:  recipient,
		Level:   level,
		Verb:    domain.VerbOrderStatusChanged,
		Message: msg,
		OrderID: &o.ID,
	})
}

func (s *Service) notify(ctx context.Context, n *domain.Notification) {
	if err := s.notifications.Create(ctx, n); err != nil {
		s.log.Error().Err(err).Int64("user_id", n.UserID).Str("verb", n.Verb).Msg("failed to create notification")
	}
}
