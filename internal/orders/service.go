package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"servicemarket/internal/domain"
	"servicemarket/internal/events"
	"servicemarket/internal/logger"
	"servicemarket/internal/metrics"
	"servicemarket/internal/pkg/validator"
	"servicemarket/internal/transport"
)

// Transitioned is the payload of events.EventOrderTransitioned.
type Transitioned struct {
	Action Action
	From   domain.OrderStatus
	To     domain.OrderStatus
	Order  *domain.Order
}

type invoiceState int

const (
	invoiceInFlight invoiceState = iota + 1
	invoiceDone
	invoiceFailed
)

// Service exposes the order intents. The backend is authoritative; the local store
// linearizes concurrent intents issued from this process.
type Service struct {
	api      API
	invoices InvoiceCreator
	bus      *events.Bus
	policy   Policy
	store    *Store
	now      func() time.Time
	log      zerolog.Logger

	mu       sync.Mutex
	invoiced map[int64]invoiceState
}

func NewService(api API, invoices InvoiceCreator, bus *events.Bus, policy Policy) *Service {
	return &Service{
		api:      api,
		invoices: invoices,
		bus:      bus,
		policy:   policy,
		store:    NewStore(),
		now:      time.Now,
		log:      logger.WithComponent("orders"),
		invoiced: make(map[int64]invoiceState),
	}
}

func (s *Service) Policy() Policy {
	return s.policy
}

func (s *Service) Accept(ctx context.Context, id int64, actor domain.Actor) (*domain.Order, error) {
	return s.transition(ctx, id, ActionAccept, actor, "")
}

func (s *Service) Decline(ctx context.Context, id int64, actor domain.Actor, reason string) (*domain.Order, error) {
	return s.transition(ctx, id, ActionDecline, actor, reason)
}

func (s *Service) Start(ctx context.Context, id int64, actor domain.Actor) (*domain.Order, error) {
	return s.transition(ctx, id, ActionStart, actor, "")
}

// Complete is idempotent: on an already completed order it returns the order and does nothing.
func (s *Service) Complete(ctx context.Context, id int64, actor domain.Actor) (*domain.Order, error) {
	return s.transition(ctx, id, ActionComplete, actor, "")
}

func (s *Service) Cancel(ctx context.Context, id int64, actor domain.Actor) (*domain.Order, error) {
	return s.transition(ctx, id, ActionCancel, actor, "")
}

// Do dispatches a named action.
func (s *Service) Do(ctx context.Context, id int64, a Action, actor domain.Actor, reason string) (*domain.Order, error) {
	return s.transition(ctx, id, a, actor, reason)
}

func (s *Service) transition(ctx context.Context, id int64, a Action, actor domain.Actor, reason string) (*domain.Order, error) {
	log := s.log.With().Int64("order_id", id).Str("action", string(a)).Int64("actor", actor.UserID).Logger()

	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next, changed, err := s.policy.Apply(cur, a, actor, reason, s.now())
	if err != nil {
		s.observe(a, err)
		log.Info().Err(err).Str("status", string(cur.Status)).Msg("transition rejected")
		return nil, err
	}
	if !changed {
		log.Debug().Msg("order already completed")
		s.retryInvoice(ctx, cur)
		return cur, nil
	}

	res, err := s.send(ctx, id, a, reason)
	if err != nil {
		s.observe(a, err)
		if errors.Is(err, domain.ErrStaleWrite) || errors.Is(err, domain.ErrInvalidTransition) {
			if _, rerr := s.Refresh(ctx, id); rerr != nil {
				log.Warn().Err(rerr).Msg("resync after rejected transition failed")
			}
		}
		log.Warn().Err(err).Msg("backend rejected transition")
		return nil, err
	}

	remote := next
	if res != nil && res.Order != nil {
		remote = res.Order
	}

	if a == ActionComplete && res != nil && !res.Changed {
		s.store.Put(remote)
		log.Debug().Msg("order was completed by the other participant")
		return remote.Clone(), nil
	}

	if err := s.store.CompareAndSwap(id, cur.Status, remote); err != nil {
		latest, _ := s.store.Get(id)
		switch {
		case latest != nil && sameRevision(latest, remote):
			// a concurrent resync already stored this call's result
		case a == ActionComplete && latest != nil && latest.Status == domain.OrderCompleted:
			log.Debug().Msg("concurrent completion already applied")
			return latest, nil
		default:
			s.observe(a, err)
			log.Warn().Err(err).Msg("lost transition race")
			return nil, err
		}
	}
	s.observe(a, nil)
	log.Info().Str("from", string(cur.Status)).Str("to", string(remote.Status)).Msg("order transitioned")

	if a == ActionComplete {
		s.invoiceOnce(ctx, remote)
	}

	s.bus.Publish(&events.Event{
		Type:    events.EventOrderTransitioned,
		OrderID: id,
		Payload: Transitioned{Action: a, From: cur.Status, To: remote.Status, Order: remote.Clone()},
	})
	return remote.Clone(), nil
}

func (s *Service) send(ctx context.Context, id int64, a Action, reason string) (*transport.TransitionResult, error) {
	if a == ActionCancel {
		return s.api.CancelOrder(ctx, id)
	}
	return s.api.TransitionOrder(ctx, id, string(a), reason)
}

func (s *Service) invoiceOnce(ctx context.Context, o *domain.Order) {
	if s.invoices == nil {
		return
	}

	s.mu.Lock()
	switch s.invoiced[o.ID] {
	case invoiceInFlight, invoiceDone:
		s.mu.Unlock()
		return
	}
	s.invoiced[o.ID] = invoiceInFlight
	s.mu.Unlock()

	inv, err := s.invoices.CreateInvoice(ctx, o.ID, o.OfferedPrice)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.invoiced[o.ID] = invoiceFailed
		s.log.Error().Err(err).Int64("order_id", o.ID).Msg("invoice creation failed")
		return
	}
	s.invoiced[o.ID] = invoiceDone
	metrics.InvoicesCreated.Inc()
	s.log.Info().Int64("order_id", o.ID).Int64("invoice_id", inv.ID).Msg("invoice created")
}

// retryInvoice repeats a failed invoice creation for an order this process completed.
func (s *Service) retryInvoice(ctx context.Context, o *domain.Order) {
	s.mu.Lock()
	failed := s.invoiced[o.ID] == invoiceFailed
	s.mu.Unlock()
	if failed {
		s.invoiceOnce(ctx, o)
	}
}

// Get returns the cached order, fetching it on a miss.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Order, error) {
	if o, ok := s.store.Get(id); ok {
		return o, nil
	}
	return s.Refresh(ctx, id)
}

// Refresh replaces the cached order with the backend's copy.
func (s *Service) Refresh(ctx context.Context, id int64) (*domain.Order, error) {
	o, err := s.api.GetOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}
	s.store.Put(o)
	return o.Clone(), nil
}

// Snapshot is a read-only copy of the cached order.
func (s *Service) Snapshot(id int64) (*domain.Order, bool) {
	return s.store.Get(id)
}

func (s *Service) List(ctx context.Context) ([]*domain.Order, error) {
	list, err := s.api.ListOrders(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Order, 0, len(list))
	for _, o := range list {
		s.store.Put(o)
		out = append(out, o.Clone())
	}
	return out, nil
}

// Create submits a new order on behalf of a customer.
func (s *Service) Create(ctx context.Context, draft domain.OrderDraft, actor domain.Actor) (*domain.Order, error) {
	if actor.Role != domain.RoleClient {
		return nil, fmt.Errorf("%w: role %s cannot create orders", domain.ErrForbidden, actor.Role)
	}
	if err := validator.Struct(draft); err != nil {
		return nil, err
	}
	if err := draft.ValidateSchedule(s.now()); err != nil {
		return nil, err
	}

	o, err := s.api.CreateOrder(ctx, draft)
	if err != nil {
		return nil, err
	}
	s.store.Put(o)
	s.log.Info().Int64("order_id", o.ID).Int64("customer_id", o.CustomerID).Msg("order created")

	s.bus.Publish(&events.Event{Type: events.EventOrderCreated, OrderID: o.ID, Payload: o.Clone()})
	return o.Clone(), nil
}

// Reorder creates a new order seeded from one of the customer's completed or declined orders.
func (s *Service) Reorder(ctx context.Context, id int64, actor domain.Actor) (*domain.Order, error) {
	src, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleClient || src.CustomerID != actor.UserID {
		return nil, fmt.Errorf("%w: only the customer can reorder order %d", domain.ErrForbidden, id)
	}

	draft, err := Reorder(src, s.now())
	if err != nil {
		return nil, err
	}
	return s.Create(ctx, *draft, actor)
}

func sameRevision(a, b *domain.Order) bool {
	if a.Status != b.Status || !a.UpdatedAt.Equal(b.UpdatedAt) {
		return false
	}
	if a.HasWorker() != b.HasWorker() {
		return false
	}
	return !a.HasWorker() || *a.WorkerID == *b.WorkerID
}

func (s *Service) observe(a Action, err error) {
	metrics.OrderTransitions.WithLabelValues(string(a), resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	case errors.Is(err, domain.ErrStaleWrite):
		return "stale_write"
	case errors.Is(err, domain.ErrTransportFailure):
		return "transport_failure"
	}
	return "error"
}
