package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"servicemarket/internal/database"
	"servicemarket/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(":memory:")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type fixture struct {
	customer, worker *domain.User
	service          *domain.Service
	order            *domain.Order
}

func seed(t *testing.T, db *gorm.DB) fixture {
	t.Helper()
	ctx := context.Background()
	users := NewUserRepository(db)

	customer := &domain.User{Email: "Client@Example.com", PasswordHash: "x", Role: domain.RoleClient, Name: "Client"}
	worker := &domain.User{Email: "worker@example.com", PasswordHash: "x", Role: domain.RoleWorker, Name: "Worker"}
	require.NoError(t, users.Create(ctx, customer))
	require.NoError(t, users.Create(ctx, worker))

	svc := &domain.Service{WorkerID: worker.ID, Title: "Plumbing", BasePrice: 40}
	require.NoError(t, NewServiceRepository(db).Create(ctx, svc))

	now := time.Now().UTC()
	order := &domain.Order{
		Status:        domain.OrderPending,
		OfferedPrice:  55,
		Description:   "Fix the sink",
		ScheduledTime: now.Add(24 * time.Hour),
		DeliveryTime:  now.Add(26 * time.Hour),
		Location:      &domain.Location{Lat: 43.25, Lng: 76.95, Address: "Abay 10"},
		ServiceID:     svc.ID,
		CustomerID:    customer.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, NewOrderRepository(db).Create(ctx, order))
	return fixture{customer: customer, worker: worker, service: svc, order: order}
}

func TestUserRepository_EmailIsCaseInsensitive(t *testing.T) {
	db := newTestDB(t)
	f := seed(t, db)
	users := NewUserRepository(db)

	got, err := users.GetByEmail(context.Background(), "CLIENT@example.com")
	require.NoError(t, err)
	assert.Equal(t, f.customer.ID, got.ID)

	_, err = users.GetByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOrderRepository_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	f := seed(t, db)

	got, err := NewOrderRepository(db).GetByID(context.Background(), f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, got.Status)
	require.NotNil(t, got.Location)
	assert.Equal(t, "Abay 10", got.Location.Address)
	assert.Nil(t, got.WorkerID)
}

func TestOrderRepository_CompareAndSwapSingleWinner(t *testing.T) {
	db := newTestDB(t)
	f := seed(t, db)
	orders := NewOrderRepository(db)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := f.order.Clone()
			next.Status = domain.OrderAccepted
			worker := f.worker.ID
			next.WorkerID = &worker
			next.UpdatedAt = time.Now().UTC()
			errs[i] = orders.CompareAndSwap(context.Background(), domain.OrderPending, next)
		}(i)
	}
	wg.Wait()

	var won int
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrStaleWrite)
	}
	assert.Equal(t, 1, won)

	got, err := orders.GetByID(context.Background(), f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderAccepted, got.Status)
	require.NotNil(t, got.WorkerID)
	assert.Equal(t, f.worker.ID, *got.WorkerID)
}

func TestOrderRepository_CompareAndSwapMissing(t *testing.T) {
	db := newTestDB(t)
	next := &domain.Order{ID: 99, Status: domain.OrderAccepted}

	err := NewOrderRepository(db).CompareAndSwap(context.Background(), domain.OrderPending, next)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOrderRepository_ListVisible(t *testing.T) {
	db := newTestDB(t)
	f := seed(t, db)
	orders := NewOrderRepository(db)
	ctx := context.Background()

	mine, err := orders.ListVisible(ctx, domain.Actor{UserID: f.customer.ID, Role: domain.RoleClient})
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	offered, err := orders.ListVisible(ctx, domain.Actor{UserID: f.worker.ID, Role: domain.RoleWorker})
	require.NoError(t, err)
	assert.Len(t, offered, 1, "pending order for the worker's service")

	other, err := orders.ListVisible(ctx, domain.Actor{UserID: 999, Role: domain.RoleWorker})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestInvoiceRepository_CreateOnce(t *testing.T) {
	db := newTestDB(t)
	f := seed(t, db)
	invoices := NewInvoiceRepository(db)
	ctx := context.Background()

	first, created, err := invoices.CreateOnce(ctx, f.order.ID, 55)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := invoices.CreateOnce(ctx, f.order.ID, 70)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 55.0, second.Amount)
}

func TestChatRepository_ClientIDDeduplicatesRetries(t *testing.T) {
	db := newTestDB(t)
	f := seed(t, db)
	chat := NewChatRepository(db)
	ctx := context.Background()

	in := &domain.Message{OrderID: f.order.ID, SenderID: f.customer.ID, Body: "hello", ClientID: "c-1"}
	first, err := chat.CreateMessage(ctx, in)
	require.NoError(t, err)
	again, err := chat.CreateMessage(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "c-1", again.ClientID)

	_, err = chat.CreateMessage(ctx, &domain.Message{OrderID: f.order.ID, SenderID: f.customer.ID, Body: "no id"})
	require.NoError(t, err)
	_, err = chat.CreateMessage(ctx, &domain.Message{OrderID: f.order.ID, SenderID: f.customer.ID, Body: "no id either"})
	require.NoError(t, err)

	msgs, err := chat.GetMessages(ctx, f.order.ID, 50)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "hello", msgs[0].Body)
}

func TestChatRepository_UnreadCounts(t *testing.T) {
	db := newTestDB(t)
	f := seed(t, db)
	chat := NewChatRepository(db)
	orders := NewOrderRepository(db)
	ctx := context.Background()

	next := f.order.Clone()
	next.Status = domain.OrderAccepted
	worker := f.worker.ID
	next.WorkerID = &worker
	require.NoError(t, orders.CompareAndSwap(ctx, domain.OrderPending, next))

	_, err := chat.CreateMessage(ctx, &domain.Message{OrderID: f.order.ID, SenderID: f.customer.ID, Body: "when?"})
	require.NoError(t, err)
	_, err = chat.CreateMessage(ctx, &domain.Message{OrderID: f.order.ID, SenderID: f.customer.ID, Body: "?"})
	require.NoError(t, err)

	n, err := chat.CountUnread(ctx, f.worker.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = chat.CountUnread(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, chat.MarkRead(ctx, f.order.ID, f.worker.ID))
	n, err = chat.CountUnread(ctx, f.worker.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNotificationRepository_ResolveAction(t *testing.T) {
	db := newTestDB(t)
	f := seed(t, db)
	notes := NewNotificationRepository(db)
	ctx := context.Background()

	orderID := f.order.ID
	n := &domain.Notification{UserID: f.worker.ID, Level: domain.LevelInfo, Verb: "order_created", OrderID: &orderID, RequiresAction: true}
	require.NoError(t, notes.Create(ctx, n))

	unread, err := notes.CountUnread(ctx, f.worker.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	require.NoError(t, notes.ResolveAction(ctx, orderID, domain.ActionDecline))

	list, err := notes.List(ctx, f.worker.ID, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].ActionTaken)
	assert.True(t, list[0].Read)
	assert.Equal(t, domain.ActionDecline, list[0].TakenAction)

	assert.ErrorIs(t, notes.MarkRead(ctx, f.customer.ID, n.ID), domain.ErrNotFound)
	assert.NoError(t, notes.MarkRead(ctx, f.worker.ID, n.ID))
}
