package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"servicemarket/internal/domain"
	"servicemarket/internal/events"
	"servicemarket/internal/transport"
)

var (
	customer = domain.Actor{UserID: 1, Role: domain.RoleClient}
	workerA  = domain.Actor{UserID: 10, Role: domain.RoleWorker}
	workerB  = domain.Actor{UserID: 11, Role: domain.RoleWorker}
	admin    = domain.Actor{UserID: 99, Role: domain.RoleAdmin}
)

// fakeBackend applies transitions with the same policy under a lock, like the real server.
type fakeBackend struct {
	mu     sync.Mutex
	policy Policy
	orders map[int64]*domain.Order
	nextID int64
	calls  int
	actor  func(ctx context.Context) domain.Actor
	fail   error
}

type actorKey struct{}

func withActor(ctx context.Context, a domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func newFakeBackend(orders ...*domain.Order) *fakeBackend {
	fb := &fakeBackend{
		policy: NewPolicy(CompleteByEither),
		orders: make(map[int64]*domain.Order),
		nextID: 100,
		actor: func(ctx context.Context) domain.Actor {
			a, _ := ctx.Value(actorKey{}).(domain.Actor)
			return a
		},
	}
	for _, o := range orders {
		fb.orders[o.ID] = o.Clone()
	}
	return fb
}

func (f *fakeBackend) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return o.Clone(), nil
}

func (f *fakeBackend) ListOrders(ctx context.Context) ([]*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Order
	for _, o := range f.orders {
		out = append(out, o.Clone())
	}
	return out, nil
}

func (f *fakeBackend) CreateOrder(ctx context.Context, d domain.OrderDraft) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	o := &domain.Order{
		ID:            f.nextID,
		Status:        domain.OrderPending,
		OfferedPrice:  d.OfferedPrice,
		Description:   d.Description,
		ScheduledTime: d.ScheduledTime,
		DeliveryTime:  d.DeliveryTime,
		Location:      d.Location,
		ServiceID:     d.ServiceID,
		CustomerID:    f.actor(ctx).UserID,
	}
	f.orders[o.ID] = o.Clone()
	return o, nil
}

func (f *fakeBackend) TransitionOrder(ctx context.Context, id int64, action, reason string) (*transport.TransitionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail != nil {
		return nil, f.fail
	}
	o, ok := f.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	next, changed, err := f.policy.Apply(o, Action(action), f.actor(ctx), reason, time.Now())
	if err != nil {
		return nil, err
	}
	f.orders[id] = next.Clone()
	return &transport.TransitionResult{Order: next, Changed: changed}, nil
}

func (f *fakeBackend) CancelOrder(ctx context.Context, id int64) (*transport.TransitionResult, error) {
	return f.TransitionOrder(ctx, id, string(ActionCancel), "")
}

type MockInvoices struct {
	mock.Mock
}

func (m *MockInvoices) CreateInvoice(ctx context.Context, orderID int64, amount float64) (*domain.Invoice, error) {
	args := m.Called(ctx, orderID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Invoice), args.Error(1)
}

func workerID(id int64) *int64 { return &id }

func pendingOrder(id int64) *domain.Order {
	sched := time.Now().Add(48 * time.Hour)
	return &domain.Order{
		ID:            id,
		Status:        domain.OrderPending,
		OfferedPrice:  500,
		Description:   "fix the sink",
		ScheduledTime: sched,
		DeliveryTime:  sched.Add(2 * time.Hour),
		ServiceID:     3,
		CustomerID:    customer.UserID,
	}
}

func inProgressOrder(id int64) *domain.Order {
	o := pendingOrder(id)
	o.Status = domain.OrderInProgress
	o.WorkerID = workerID(workerA.UserID)
	return o
}

func TestService_Accept_BindsWorker(t *testing.T) {
	backend := newFakeBackend(pendingOrder(1))
	bus := events.NewBus()
	sub := bus.Subscribe(events.EventOrderTransitioned)
	svc := NewService(backend, nil, bus, NewPolicy(CompleteByEither))

	o, err := svc.Accept(withActor(context.Background(), workerA), 1, workerA)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderAccepted, o.Status)
	require.NotNil(t, o.WorkerID)
	assert.Equal(t, workerA.UserID, *o.WorkerID)

	cached, ok := svc.Snapshot(1)
	require.True(t, ok)
	assert.Equal(t, domain.OrderAccepted, cached.Status)

	select {
	case ev := <-sub:
		payload := ev.Payload.(Transitioned)
		assert.Equal(t, ActionAccept, payload.Action)
		assert.Equal(t, domain.OrderPending, payload.From)
		assert.Equal(t, domain.OrderAccepted, payload.To)
	case <-time.After(time.Second):
		t.Fatal("no transition event")
	}
}

func TestService_InvalidTransitionLeavesOrderUnchanged(t *testing.T) {
	cases := []struct {
		name   string
		status domain.OrderStatus
		action Action
		actor  domain.Actor
	}{
		{"accept accepted", domain.OrderAccepted, ActionAccept, workerA},
		{"decline in progress", domain.OrderInProgress, ActionDecline, workerA},
		{"start pending", domain.OrderPending, ActionStart, workerA},
		{"complete accepted", domain.OrderAccepted, ActionComplete, workerA},
		{"cancel accepted", domain.OrderAccepted, ActionCancel, customer},
		{"cancel declined", domain.OrderDeclined, ActionCancel, customer},
		{"accept cancelled", domain.OrderCancelled, ActionAccept, workerB},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := pendingOrder(1)
			src.Status = tc.status
			if tc.status != domain.OrderPending {
				src.WorkerID = workerID(workerA.UserID)
			}
			backend := newFakeBackend(src)
			svc := NewService(backend, nil, events.NewBus(), NewPolicy(CompleteByEither))

			_, err := svc.Do(withActor(context.Background(), tc.actor), 1, tc.action, tc.actor, "")
			assert.ErrorIs(t, err, domain.ErrInvalidTransition)
			assert.Equal(t, 0, backend.calls, "guard must reject before the backend is called")

			after, ok := svc.Snapshot(1)
			require.True(t, ok)
			assert.Equal(t, src, after)
		})
	}
}

func TestService_RoleGuard(t *testing.T) {
	cases := []struct {
		name   string
		status domain.OrderStatus
		action Action
		actor  domain.Actor
	}{
		{"client accepts", domain.OrderPending, ActionAccept, customer},
		{"admin declines", domain.OrderPending, ActionDecline, admin},
		{"other worker starts", domain.OrderAccepted, ActionStart, workerB},
		{"other worker completes", domain.OrderInProgress, ActionComplete, workerB},
		{"worker cancels", domain.OrderPending, ActionCancel, workerA},
		{"other client cancels", domain.OrderPending, ActionCancel, domain.Actor{UserID: 2, Role: domain.RoleClient}},
		{"admin completes", domain.OrderInProgress, ActionComplete, admin},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := pendingOrder(1)
			src.Status = tc.status
			if tc.status != domain.OrderPending {
				src.WorkerID = workerID(workerA.UserID)
			}
			backend := newFakeBackend(src)
			svc := NewService(backend, nil, events.NewBus(), NewPolicy(CompleteByEither))

			_, err := svc.Do(withActor(context.Background(), tc.actor), 1, tc.action, tc.actor, "")
			assert.ErrorIs(t, err, domain.ErrForbidden)

			after, _ := svc.Snapshot(1)
			assert.Equal(t, tc.status, after.Status)
		})
	}
}

func TestService_CompletionPolicy(t *testing.T) {
	backend := newFakeBackend(inProgressOrder(1))
	svc := NewService(backend, nil, events.NewBus(), NewPolicy(CompleteByWorker))

	_, err := svc.Complete(withActor(context.Background(), customer), 1, customer)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	o, err := svc.Complete(withActor(context.Background(), workerA), 1, workerA)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCompleted, o.Status)
}

func TestService_DeclineStoresReason(t *testing.T) {
	backend := newFakeBackend(pendingOrder(1))
	svc := NewService(backend, nil, events.NewBus(), NewPolicy(CompleteByEither))

	o, err := svc.Decline(withActor(context.Background(), workerA), 1, workerA, "  fully booked ")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderDeclined, o.Status)
	require.NotNil(t, o.DeclineReason)
	assert.Equal(t, "fully booked", *o.DeclineReason)
	assert.Nil(t, o.WorkerID)
}

func TestService_CompleteTwiceInvoicesOnce(t *testing.T) {
	backend := newFakeBackend(inProgressOrder(1))
	invoices := new(MockInvoices)
	invoices.On("CreateInvoice", mock.Anything, int64(1), 500.0).Return(&domain.Invoice{ID: 7, OrderID: 1, Amount: 500}, nil).Once()
	svc := NewService(backend, invoices, events.NewBus(), NewPolicy(CompleteByEither))

	first, err := svc.Complete(withActor(context.Background(), workerA), 1, workerA)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCompleted, first.Status)

	second, err := svc.Complete(withActor(context.Background(), customer), 1, customer)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCompleted, second.Status)

	invoices.AssertNumberOfCalls(t, "CreateInvoice", 1)
	assert.Equal(t, 1, backend.calls, "the no-op completion must not reach the backend")
}

func TestService_ConcurrentCompleteInvoicesOnce(t *testing.T) {
	backend := newFakeBackend(inProgressOrder(1))
	invoices := new(MockInvoices)
	invoices.On("CreateInvoice", mock.Anything, int64(1), 500.0).Return(&domain.Invoice{ID: 7}, nil)
	svc := NewService(backend, invoices, events.NewBus(), NewPolicy(CompleteByEither))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, actor := range []domain.Actor{workerA, customer} {
		wg.Add(1)
		go func(i int, actor domain.Actor) {
			defer wg.Done()
			_, errs[i] = svc.Complete(withActor(context.Background(), actor), 1, actor)
		}(i, actor)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	invoices.AssertNumberOfCalls(t, "CreateInvoice", 1)
}

func TestService_CompletedElsewhereIsNoop(t *testing.T) {
	src := inProgressOrder(1)
	backend := newFakeBackend(src)
	invoices := new(MockInvoices)
	svc := NewService(backend, invoices, events.NewBus(), NewPolicy(CompleteByEither))

	// cache the in-progress copy, then let the other participant complete on the server
	_, err := svc.Get(context.Background(), 1)
	require.NoError(t, err)
	_, err = backend.TransitionOrder(withActor(context.Background(), workerA), 1, "complete", "")
	require.NoError(t, err)

	o, err := svc.Complete(withActor(context.Background(), customer), 1, customer)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCompleted, o.Status)
	invoices.AssertNotCalled(t, "CreateInvoice", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_InvoiceFailureRetriedOnNextComplete(t *testing.T) {
	backend := newFakeBackend(inProgressOrder(1))
	invoices := new(MockInvoices)
	invoices.On("CreateInvoice", mock.Anything, int64(1), 500.0).Return(nil, errors.New("billing down")).Once()
	invoices.On("CreateInvoice", mock.Anything, int64(1), 500.0).Return(&domain.Invoice{ID: 8}, nil).Once()
	svc := NewService(backend, invoices, events.NewBus(), NewPolicy(CompleteByEither))

	_, err := svc.Complete(withActor(context.Background(), workerA), 1, workerA)
	require.NoError(t, err)
	_, err = svc.Complete(withActor(context.Background(), workerA), 1, workerA)
	require.NoError(t, err)
	_, err = svc.Complete(withActor(context.Background(), workerA), 1, workerA)
	require.NoError(t, err)

	invoices.AssertNumberOfCalls(t, "CreateInvoice", 2)
}

func TestService_ConcurrentAcceptExactlyOneWins(t *testing.T) {
	backend := newFakeBackend(pendingOrder(1))
	svc := NewService(backend, nil, events.NewBus(), NewPolicy(CompleteByEither))
	_, err := svc.Get(context.Background(), 1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 2)
	start := make(chan struct{})
	for i, actor := range []domain.Actor{workerA, workerB} {
		wg.Add(1)
		go func(i int, actor domain.Actor) {
			defer wg.Done()
			<-start
			_, results[i] = svc.Accept(withActor(context.Background(), actor), 1, actor)
		}(i, actor)
	}
	close(start)
	wg.Wait()

	var wins, losses int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrStaleWrite), errors.Is(err, domain.ErrInvalidTransition):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)

	final, _ := backend.GetOrder(context.Background(), 1)
	cached, _ := svc.Snapshot(1)
	assert.Equal(t, domain.OrderAccepted, final.Status)
	assert.Equal(t, *final.WorkerID, *cached.WorkerID)
}

// lenientBackend accepts every transition, leaving the race to the local store.
type lenientBackend struct {
	*fakeBackend
	release chan struct{}
}

func (l *lenientBackend) TransitionOrder(ctx context.Context, id int64, action, reason string) (*transport.TransitionResult, error) {
	<-l.release
	o, _ := l.fakeBackend.GetOrder(ctx, id)
	next, _, err := l.policy.Apply(o, Action(action), l.actor(ctx), reason, time.Now())
	if err != nil {
		return nil, err
	}
	return &transport.TransitionResult{Order: next, Changed: true}, nil
}

func TestService_LocalCompareAndSwapRejectsLoser(t *testing.T) {
	lb := &lenientBackend{fakeBackend: newFakeBackend(pendingOrder(1)), release: make(chan struct{})}
	svc := NewService(lb, nil, events.NewBus(), NewPolicy(CompleteByEither))
	_, err := svc.Get(context.Background(), 1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for _, actor := range []domain.Actor{workerA, workerB} {
		wg.Add(1)
		go func(actor domain.Actor) {
			defer wg.Done()
			_, err := svc.Accept(withActor(context.Background(), actor), 1, actor)
			results <- err
		}(actor)
	}
	close(lb.release)
	wg.Wait()
	close(results)

	var stale int
	for err := range results {
		if err != nil {
			assert.ErrorIs(t, err, domain.ErrStaleWrite)
			stale++
		}
	}
	assert.Equal(t, 1, stale)
}

func TestService_BackendRejectionResyncs(t *testing.T) {
	backend := newFakeBackend(pendingOrder(1))
	svc := NewService(backend, nil, events.NewBus(), NewPolicy(CompleteByEither))
	_, err := svc.Get(context.Background(), 1)
	require.NoError(t, err)

	// another device accepted meanwhile
	_, err = backend.TransitionOrder(withActor(context.Background(), workerB), 1, "accept", "")
	require.NoError(t, err)

	_, err = svc.Accept(withActor(context.Background(), workerA), 1, workerA)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	cached, _ := svc.Snapshot(1)
	assert.Equal(t, domain.OrderAccepted, cached.Status)
	assert.Equal(t, workerB.UserID, *cached.WorkerID)
}

func TestService_TransportFailureLeavesOrderUnchanged(t *testing.T) {
	backend := newFakeBackend(pendingOrder(1))
	backend.fail = fmt.Errorf("%w: connection refused", domain.ErrTransportFailure)
	svc := NewService(backend, nil, events.NewBus(), NewPolicy(CompleteByEither))

	_, err := svc.Accept(withActor(context.Background(), workerA), 1, workerA)
	assert.ErrorIs(t, err, domain.ErrTransportFailure)

	cached, _ := svc.Snapshot(1)
	assert.Equal(t, domain.OrderPending, cached.Status)
	assert.Nil(t, cached.WorkerID)
}

func TestService_AcceptByWorkerWithoutTheServiceIsForbidden(t *testing.T) {
	backend := newFakeBackend(pendingOrder(1))
	backend.fail = &transport.APIError{Status: 403, Code: domain.CodeForbidden, Message: "worker does not offer service 3"}
	svc := NewService(backend, nil, events.NewBus(), NewPolicy(CompleteByEither))
	_, err := svc.Get(context.Background(), 1)
	require.NoError(t, err)

	_, err = svc.Accept(withActor(context.Background(), workerB), 1, workerB)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	cached, _ := svc.Snapshot(1)
	assert.Equal(t, domain.OrderPending, cached.Status)
	assert.Nil(t, cached.WorkerID)
}

func TestService_CancelByCustomer(t *testing.T) {
	backend := newFakeBackend(pendingOrder(1))
	svc := NewService(backend, nil, events.NewBus(), NewPolicy(CompleteByEither))

	o, err := svc.Cancel(withActor(context.Background(), customer), 1, customer)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, o.Status)
}

func TestService_CreateValidatesDraft(t *testing.T) {
	backend := newFakeBackend()
	svc := NewService(backend, nil, events.NewBus(), NewPolicy(CompleteByEither))
	ctx := withActor(context.Background(), customer)
	sched := time.Now().Add(24 * time.Hour)

	_, err := svc.Create(ctx, domain.OrderDraft{OfferedPrice: 10, ScheduledTime: sched, DeliveryTime: sched.Add(time.Hour), ServiceID: 3}, customer)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Create(ctx, domain.OrderDraft{Description: "x", ScheduledTime: time.Now().Add(-time.Hour), DeliveryTime: sched, ServiceID: 3}, customer)
	assert.ErrorIs(t, err, domain.ErrScheduleInPast)

	_, err = svc.Create(ctx, domain.OrderDraft{Description: "x", ScheduledTime: sched, DeliveryTime: sched, ServiceID: 3}, customer)
	assert.ErrorIs(t, err, domain.ErrDeliveryBeforeSchedule)

	_, err = svc.Create(ctx, domain.OrderDraft{Description: "x", ScheduledTime: sched, DeliveryTime: sched.Add(time.Hour), ServiceID: 3}, workerA)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	o, err := svc.Create(ctx, domain.OrderDraft{Description: "paint the fence", OfferedPrice: 80, ScheduledTime: sched, DeliveryTime: sched.Add(time.Hour), ServiceID: 3}, customer)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, o.Status)
	assert.Equal(t, customer.UserID, o.CustomerID)
}

func TestService_ReorderCreatesNewOrder(t *testing.T) {
	src := inProgressOrder(1)
	src.Status = domain.OrderCompleted
	src.ScheduledTime = time.Now().Add(-72 * time.Hour)
	src.DeliveryTime = src.ScheduledTime.Add(3 * time.Hour)
	backend := newFakeBackend(src)
	svc := NewService(backend, nil, events.NewBus(), NewPolicy(CompleteByEither))

	o, err := svc.Reorder(withActor(context.Background(), customer), 1, customer)
	require.NoError(t, err)
	assert.NotEqual(t, int64(1), o.ID)
	assert.Equal(t, domain.OrderPending, o.Status)
	assert.Equal(t, 500.0, o.OfferedPrice)
	assert.True(t, o.ScheduledTime.After(time.Now()))
	assert.Equal(t, 3*time.Hour, o.DeliveryTime.Sub(o.ScheduledTime))

	_, err = svc.Reorder(withActor(context.Background(), workerA), 1, workerA)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}
