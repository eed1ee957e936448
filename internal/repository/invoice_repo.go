package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"servicemarket/internal/domain"
)

type invoiceModel struct {
	ID        int64     `gorm:"column:id;primaryKey"`
	OrderID   int64     `gorm:"column:order_id;uniqueIndex;not null"`
	Amount    float64   `gorm:"column:amount;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (invoiceModel) TableName() string { return "invoices" }

func toDomainInvoice(m invoiceModel) *domain.Invoice {
	return &domain.Invoice{ID: m.ID, OrderID: m.OrderID, Amount: m.Amount, CreatedAt: m.CreatedAt}
}

type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// CreateOnce inserts the invoice of an order. The unique order_id index makes a
// second attempt return the first invoice with created=false.
func (r *InvoiceRepository) CreateOnce(ctx context.Context, orderID int64, amount float64) (*domain.Invoice, bool, error) {
	m := invoiceModel{OrderID: orderID, Amount: amount}
	err := r.db.WithContext(ctx).Create(&m).Error
	if err == nil {
		return toDomainInvoice(m), true, nil
	}
	if !isUniqueViolation(err) {
		return nil, false, err
	}

	var existing invoiceModel
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&existing).Error; err != nil {
		return nil, false, notFound(err, "invoice for order", orderID)
	}
	return toDomainInvoice(existing), false, nil
}

func (r *InvoiceRepository) GetByOrder(ctx context.Context, orderID int64) (*domain.Invoice, error) {
	var m invoiceModel
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&m).Error; err != nil {
		return nil, notFound(err, "invoice for order", orderID)
	}
	return toDomainInvoice(m), nil
}
