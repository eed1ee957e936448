package domain

import "time"

type UserRole string

const (
	RoleClient UserRole = "client"
	RoleWorker UserRole = "worker"
	RoleAdmin  UserRole = "admin"
)

func (r UserRole) Valid() bool {
	return r == RoleClient || r == RoleWorker || r == RoleAdmin
}

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email" validate:"required,email"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Actor is whoever asks for a state change: the user id and the role from their credential.
type Actor struct {
	UserID int64    `json:"user_id"`
	Role   UserRole `json:"role"`
}

// Service is a worker's offering that customers order.
type Service struct {
	ID        int64     `json:"id"`
	WorkerID  int64     `json:"worker_id"`
	Title     string    `json:"title"`
	BasePrice float64   `json:"base_price"`
	CreatedAt time.Time `json:"created_at"`
}
