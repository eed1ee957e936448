package invoice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"servicemarket/internal/domain"
)

type mockOrders struct {
	mock.Mock
}

func (m *mockOrders) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

type mockInvoices struct {
	mock.Mock
}

func (m *mockInvoices) CreateOnce(ctx context.Context, orderID int64, amount float64) (*domain.Invoice, bool, error) {
	args := m.Called(ctx, orderID, amount)
	inv, _ := args.Get(0).(*domain.Invoice)
	return inv, args.Bool(1), args.Error(2)
}

func (m *mockInvoices) GetByOrder(ctx context.Context, orderID int64) (*domain.Invoice, error) {
	args := m.Called(ctx, orderID)
	inv, _ := args.Get(0).(*domain.Invoice)
	return inv, args.Error(1)
}

func completed() *domain.Order {
	w := int64(2)
	return &domain.Order{ID: 10, Status: domain.OrderCompleted, OfferedPrice: 45, CustomerID: 1, WorkerID: &w}
}

var worker = domain.Actor{UserID: 2, Role: domain.RoleWorker}

func TestCreate_DefaultsToOfferedPrice(t *testing.T) {
	orders, invoices := new(mockOrders), new(mockInvoices)
	orders.On("GetByID", mock.Anything, int64(10)).Return(completed(), nil)
	invoices.On("CreateOnce", mock.Anything, int64(10), 45.0).Return(&domain.Invoice{ID: 1, OrderID: 10, Amount: 45}, true, nil)

	inv, created, err := NewService(orders, invoices).Create(context.Background(), worker, CreateInvoiceRequest{OrderID: 10})

	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 45.0, inv.Amount)
}

func TestCreate_SecondCallReturnsExisting(t *testing.T) {
	orders, invoices := new(mockOrders), new(mockInvoices)
	orders.On("GetByID", mock.Anything, int64(10)).Return(completed(), nil)
	invoices.On("CreateOnce", mock.Anything, int64(10), 50.0).Return(&domain.Invoice{ID: 1, OrderID: 10, Amount: 45}, false, nil)

	inv, created, err := NewService(orders, invoices).Create(context.Background(), worker, CreateInvoiceRequest{OrderID: 10, Amount: 50})

	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(1), inv.ID)
}

func TestCreate_Rejects(t *testing.T) {
	inProgress := completed()
	inProgress.Status = domain.OrderInProgress

	tests := []struct {
		name  string
		order *domain.Order
		actor domain.Actor
		want  error
	}{
		{"not completed", inProgress, worker, domain.ErrInvalidTransition},
		{"stranger", completed(), domain.Actor{UserID: 9, Role: domain.RoleClient}, domain.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders, invoices := new(mockOrders), new(mockInvoices)
			orders.On("GetByID", mock.Anything, int64(10)).Return(tt.order, nil)

			_, _, err := NewService(orders, invoices).Create(context.Background(), tt.actor, CreateInvoiceRequest{OrderID: 10})

			assert.ErrorIs(t, err, tt.want)
			invoices.AssertNotCalled(t, "CreateOnce", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}
