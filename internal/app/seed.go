package app

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"servicemarket/internal/domain"
	"servicemarket/internal/logger"
	"servicemarket/internal/repository"
)

// DemoPassword is the password of every seeded account.
const DemoPassword = "demo12345"

var demoUsers = []struct {
	email string
	name  string
	role  domain.UserRole
}{
	{"client@servicemarket.local", "Demo Client", domain.RoleClient},
	{"worker@servicemarket.local", "Demo Worker", domain.RoleWorker},
	{"admin@servicemarket.local", "Demo Admin", domain.RoleAdmin},
}

// Seed creates demo accounts, a service and a pending order. It does nothing
// when the demo client already exists.
func (a *App) Seed(ctx context.Context) error {
	log := logger.WithComponent("seed")
	users := repository.NewUserRepository(a.db)

	exists, err := users.ExistsByEmail(ctx, demoUsers[0].email)
	if err != nil {
		return err
	}
	if exists {
		log.Info().Msg("demo data already present")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	created := make(map[domain.UserRole]*domain.User, len(demoUsers))
	for _, du := range demoUsers {
		u := &domain.User{Email: du.email, Name: du.name, Role: du.role, PasswordHash: string(hash)}
		if err := users.Create(ctx, u); err != nil {
			return err
		}
		created[du.role] = u
	}

	svc := &domain.Service{WorkerID: created[domain.RoleWorker].ID, Title: "Apartment cleaning", BasePrice: 40}
	if err := repository.NewServiceRepository(a.db).Create(ctx, svc); err != nil {
		return err
	}

	now := time.Now().UTC()
	start := now.Add(24 * time.Hour).Truncate(time.Hour)
	o := &domain.Order{
		Status:        domain.OrderPending,
		OfferedPrice:  45,
		Description:   "Two-room apartment, windows included",
		ScheduledTime: start,
		DeliveryTime:  start.Add(3 * time.Hour),
		Location:      &domain.Location{Lat: 43.238, Lng: 76.945, Address: "Abay Ave 10"},
		ServiceID:     svc.ID,
		CustomerID:    created[domain.RoleClient].ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := repository.NewOrderRepository(a.db).Create(ctx, o); err != nil {
		return err
	}
	if err := repository.NewNotificationRepository(a.db).Create(ctx, &domain.Notification{
		UserID:         svc.WorkerID,
		Level:          domain.LevelInfo,
		Verb:           domain.VerbOrderCreated,
		Message:        "New order for Apartment cleaning",
		OrderID:        &o.ID,
		RequiresAction: true,
	}); err != nil {
		return err
	}

	log.Info().Int("users", len(created)).Int64("order_id", o.ID).Msg("demo data seeded")
	return nil
}
