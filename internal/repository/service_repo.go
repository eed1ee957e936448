package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"servicemarket/internal/domain"
)

type serviceModel struct {
	ID        int64     `gorm:"column:id;primaryKey"`
	WorkerID  int64     `gorm:"column:worker_id;index;not null"`
	Title     string    `gorm:"column:title;not null"`
	BasePrice float64   `gorm:"column:base_price"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (serviceModel) TableName() string { return "services" }

func toDomainService(m serviceModel) *domain.Service {
	return &domain.Service{
		ID:        m.ID,
		WorkerID:  m.WorkerID,
		Title:     m.Title,
		BasePrice: m.BasePrice,
		CreatedAt: m.CreatedAt,
	}
}

// ServiceRepository stores the offerings orders are placed against.
type ServiceRepository struct {
	db *gorm.DB
}

func NewServiceRepository(db *gorm.DB) *ServiceRepository {
	return &ServiceRepository{db: db}
}

func (r *ServiceRepository) Create(ctx context.Context, s *domain.Service) error {
	m := serviceModel{WorkerID: s.WorkerID, Title: s.Title, BasePrice: s.BasePrice}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return err
	}
	*s = *toDomainService(m)
	return nil
}

func (r *ServiceRepository) GetByID(ctx context.Context, id int64) (*domain.Service, error) {
	var m serviceModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, notFound(err, "service", id)
	}
	return toDomainService(m), nil
}
