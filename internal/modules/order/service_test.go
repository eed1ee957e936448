package order

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"servicemarket/internal/domain"
	"servicemarket/internal/orders"
)

type mockOrderRepo struct {
	mock.Mock
}

func (m *mockOrderRepo) Create(ctx context.Context, o *domain.Order) error {
	args := m.Called(ctx, o)
	if args.Error(0) == nil {
		o.ID = 100
	}
	return args.Error(0)
}

func (m *mockOrderRepo) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order).Clone(), args.Error(1)
}

func (m *mockOrderRepo) ListVisible(ctx context.Context, actor domain.Actor) ([]*domain.Order, error) {
	args := m.Called(ctx, actor)
	return args.Get(0).([]*domain.Order), args.Error(1)
}

func (m *mockOrderRepo) CompareAndSwap(ctx context.Context, expected domain.OrderStatus, next *domain.Order) error {
	args := m.Called(ctx, expected, next)
	return args.Error(0)
}

type mockServiceRepo struct {
	mock.Mock
}

func (m *mockServiceRepo) Create(ctx context.Context, s *domain.Service) error {
	return m.Called(ctx, s).Error(0)
}

func (m *mockServiceRepo) GetByID(ctx context.Context, id int64) (*domain.Service, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Service), args.Error(1)
}

type mockNotifications struct {
	mock.Mock
}

func (m *mockNotifications) Create(ctx context.Context, n *domain.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func (m *mockNotifications) ResolveAction(ctx context.Context, orderID int64, action domain.NotificationAction) error {
	return m.Called(ctx, orderID, action).Error(0)
}

const (
	customerID = int64(1)
	workerID   = int64(2)
	strangerID = int64(3)
)

var (
	customer = domain.Actor{UserID: customerID, Role: domain.RoleClient}
	worker   = domain.Actor{UserID: workerID, Role: domain.RoleWorker}
	stranger = domain.Actor{UserID: strangerID, Role: domain.RoleWorker}
)

type deps struct {
	orders   *mockOrderRepo
	services *mockServiceRepo
	notes    *mockNotifications
	svc      *Service
}

func newDeps() deps {
	d := deps{orders: new(mockOrderRepo), services: new(mockServiceRepo), notes: new(mockNotifications)}
	d.svc = NewService(d.orders, d.services, d.notes, orders.NewPolicy(orders.CompleteByEither))
	d.svc.now = func() time.Time { return time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC) }
	d.services.On("GetByID", mock.Anything, int64(5)).Return(&domain.Service{ID: 5, WorkerID: workerID, Title: "Cleaning"}, nil)
	return d
}

func pending() *domain.Order {
	return &domain.Order{ID: 10, Status: domain.OrderPending, ServiceID: 5, CustomerID: customerID}
}

func withWorker(status domain.OrderStatus) *domain.Order {
	o := pending()
	o.Status = status
	w := workerID
	o.WorkerID = &w
	return o
}

func TestCreate_NotifiesWorkerWithActionRequest(t *testing.T) {
	d := newDeps()
	d.orders.On("Create", mock.Anything, mock.Anything).Return(nil)
	d.notes.On("Create", mock.Anything, mock.MatchedBy(func(n *domain.Notification) bool {
		return n.UserID == workerID && n.RequiresAction && n.OrderID != nil && *n.OrderID == 100
	})).Return(nil)

	draft := domain.OrderDraft{
		Description:   "Deep clean",
		OfferedPrice:  30,
		ScheduledTime: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC),
		DeliveryTime:  time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC),
		ServiceID:     5,
	}
	o, err := d.svc.Create(context.Background(), customer, draft)

	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, o.Status)
	assert.Equal(t, customerID, o.CustomerID)
	d.notes.AssertExpectations(t)
}

func TestCreate_Rejects(t *testing.T) {
	d := newDeps()
	past := domain.OrderDraft{
		Description:   "Late",
		ScheduledTime: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC),
		DeliveryTime:  time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC),
		ServiceID:     5,
	}

	_, err := d.svc.Create(context.Background(), customer, past)
	assert.ErrorIs(t, err, domain.ErrScheduleInPast)

	_, err = d.svc.Create(context.Background(), worker, past)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = d.svc.Create(context.Background(), customer, domain.OrderDraft{})
	assert.ErrorIs(t, err, domain.ErrValidation)
	d.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestTransition_AcceptBindsWorkerAndResolvesNotification(t *testing.T) {
	d := newDeps()
	d.orders.On("GetByID", mock.Anything, int64(10)).Return(pending(), nil)
	d.orders.On("CompareAndSwap", mock.Anything, domain.OrderPending, mock.MatchedBy(func(o *domain.Order) bool {
		return o.Status == domain.OrderAccepted && o.WorkerID != nil && *o.WorkerID == workerID
	})).Return(nil)
	d.notes.On("ResolveAction", mock.Anything, int64(10), domain.ActionAccept).Return(nil)
	d.notes.On("Create", mock.Anything, mock.MatchedBy(func(n *domain.Notification) bool {
		return n.UserID == customerID && n.Level == domain.LevelSuccess
	})).Return(nil)

	o, changed, err := d.svc.Transition(context.Background(), worker, 10, orders.ActionAccept, "")

	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.OrderAccepted, o.Status)
	d.orders.AssertExpectations(t)
	d.notes.AssertExpectations(t)
}

func TestTransition_StrangerCannotAccept(t *testing.T) {
	d := newDeps()
	d.orders.On("GetByID", mock.Anything, int64(10)).Return(pending(), nil)

	_, _, err := d.svc.Transition(context.Background(), stranger, 10, orders.ActionAccept, "")

	assert.ErrorIs(t, err, domain.ErrForbidden)
	d.orders.AssertNotCalled(t, "CompareAndSwap", mock.Anything, mock.Anything, mock.Anything)
}

func TestTransition_LostRaceIsStale(t *testing.T) {
	d := newDeps()
	d.orders.On("GetByID", mock.Anything, int64(10)).Return(pending(), nil)
	d.orders.On("CompareAndSwap", mock.Anything, domain.OrderPending, mock.Anything).Return(domain.ErrStaleWrite)

	_, _, err := d.svc.Transition(context.Background(), worker, 10, orders.ActionDecline, "busy")

	assert.ErrorIs(t, err, domain.ErrStaleWrite)
	d.notes.AssertNotCalled(t, "ResolveAction", mock.Anything, mock.Anything, mock.Anything)
}

func TestTransition_CompleteTwiceIsUnchanged(t *testing.T) {
	d := newDeps()
	d.orders.On("GetByID", mock.Anything, int64(10)).Return(withWorker(domain.OrderCompleted), nil)

	o, changed, err := d.svc.Transition(context.Background(), customer, 10, orders.ActionComplete, "")

	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, domain.OrderCompleted, o.Status)
	d.orders.AssertNotCalled(t, "CompareAndSwap", mock.Anything, mock.Anything, mock.Anything)
	d.notes.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestTransition_ConcurrentCompleteLoserSeesUnchanged(t *testing.T) {
	d := newDeps()
	d.orders.On("GetByID", mock.Anything, int64(10)).Return(withWorker(domain.OrderInProgress), nil).Once()
	d.orders.On("CompareAndSwap", mock.Anything, domain.OrderInProgress, mock.Anything).Return(domain.ErrStaleWrite)
	d.orders.On("GetByID", mock.Anything, int64(10)).Return(withWorker(domain.OrderCompleted), nil)

	o, changed, err := d.svc.Transition(context.Background(), worker, 10, orders.ActionComplete, "")

	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, domain.OrderCompleted, o.Status)
}

func TestTransition_InvalidFromTerminal(t *testing.T) {
	d := newDeps()
	d.orders.On("GetByID", mock.Anything, int64(10)).Return(withWorker(domain.OrderCompleted), nil)

	_, _, err := d.svc.Transition(context.Background(), worker, 10, orders.ActionStart, "")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestGet_HidesOthersOrders(t *testing.T) {
	d := newDeps()
	d.orders.On("GetByID", mock.Anything, int64(10)).Return(withWorker(domain.OrderAccepted), nil)

	_, err := d.svc.Get(context.Background(), stranger, 10)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = d.svc.Get(context.Background(), domain.Actor{UserID: 99, Role: domain.RoleAdmin}, 10)
	assert.NoError(t, err)
}
