package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"servicemarket/internal/domain"
)

const maxListedOrders = 200

type orderModel struct {
	ID              int64     `gorm:"column:id;primaryKey"`
	Status          string    `gorm:"column:status;index;not null"`
	OfferedPrice    float64   `gorm:"column:offered_price"`
	Description     string    `gorm:"column:description"`
	ScheduledTime   time.Time `gorm:"column:scheduled_time"`
	DeliveryTime    time.Time `gorm:"column:delivery_time"`
	LocationLat     *float64  `gorm:"column:location_lat"`
	LocationLng     *float64  `gorm:"column:location_lng"`
	LocationAddress *string   `gorm:"column:location_address"`
	ServiceID       int64     `gorm:"column:service_id;index;not null"`
	CustomerID      int64     `gorm:"column:customer_id;index;not null"`
	WorkerID        *int64    `gorm:"column:worker_id;index"`
	DeclineReason   *string   `gorm:"column:decline_reason"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

func (orderModel) TableName() string { return "orders" }

func toDomainOrder(m orderModel) *domain.Order {
	o := &domain.Order{
		ID:            m.ID,
		Status:        domain.OrderStatus(m.Status),
		OfferedPrice:  m.OfferedPrice,
		Description:   m.Description,
		ScheduledTime: m.ScheduledTime,
		DeliveryTime:  m.DeliveryTime,
		ServiceID:     m.ServiceID,
		CustomerID:    m.CustomerID,
		WorkerID:      m.WorkerID,
		DeclineReason: m.DeclineReason,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.LocationLat != nil && m.LocationLng != nil {
		o.Location = &domain.Location{Lat: *m.LocationLat, Lng: *m.LocationLng}
		if m.LocationAddress != nil {
			o.Location.Address = *m.LocationAddress
		}
	}
	return o
}

func toOrderModel(o *domain.Order) orderModel {
	m := orderModel{
		ID:            o.ID,
		Status:        string(o.Status),
		OfferedPrice:  o.OfferedPrice,
		Description:   o.Description,
		ScheduledTime: o.ScheduledTime,
		DeliveryTime:  o.DeliveryTime,
		ServiceID:     o.ServiceID,
		CustomerID:    o.CustomerID,
		WorkerID:      o.WorkerID,
		DeclineReason: o.DeclineReason,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	if o.Location != nil {
		lat, lng := o.Location.Lat, o.Location.Lng
		m.LocationLat, m.LocationLng = &lat, &lng
		if o.Location.Address != "" {
			addr := o.Location.Address
			m.LocationAddress = &addr
		}
	}
	return m
}

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) error {
	m := toOrderModel(o)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return err
	}
	*o = *toDomainOrder(m)
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	var m orderModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, notFound(err, "order", id)
	}
	return toDomainOrder(m), nil
}

// ListVisible returns the orders an actor may see, newest first: a customer's own
// orders, a worker's bound orders plus pending ones for their services, everything for admin.
func (r *OrderRepository) ListVisible(ctx context.Context, actor domain.Actor) ([]*domain.Order, error) {
	q := r.db.WithContext(ctx).Model(&orderModel{})
	switch actor.Role {
	case domain.RoleClient:
		q = q.Where("customer_id = ?", actor.UserID)
	case domain.RoleWorker:
		q = q.Where("worker_id = ? OR (status = ? AND service_id IN (?))",
			actor.UserID, string(domain.OrderPending),
			r.db.Model(&serviceModel{}).Select("id").Where("worker_id = ?", actor.UserID))
	case domain.RoleAdmin:
	default:
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrForbidden, actor.Role)
	}

	var rows []orderModel
	if err := q.Order("id DESC").Limit(maxListedOrders).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Order, 0, len(rows))
	for _, m := range rows {
		out = append(out, toDomainOrder(m))
	}
	return out, nil
}

// CompareAndSwap writes next only while the stored status still equals expected.
// A lost race yields ErrStaleWrite and leaves the row untouched.
func (r *OrderRepository) CompareAndSwap(ctx context.Context, expected domain.OrderStatus, next *domain.Order) error {
	tx := r.db.WithContext(ctx).Model(&orderModel{}).
		Where("id = ? AND status = ?", next.ID, string(expected)).
		Updates(map[string]any{
			"status":         string(next.Status),
			"worker_id":      next.WorkerID,
			"decline_reason": next.DeclineReason,
			"updated_at":     next.UpdatedAt,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, next.ID); err != nil {
			return err
		}
		return fmt.Errorf("%w: order %d is no longer %s", domain.ErrStaleWrite, next.ID, expected)
	}
	return nil
}
