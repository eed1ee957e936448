package auth

import (
	"context"

	"servicemarket/internal/domain"
	"servicemarket/internal/repository"
)

// UserRepositoryInterface is the slice of the user repository auth needs.
type UserRepositoryInterface interface {
	Create(ctx context.Context, u *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// RefreshTokenRepositoryInterface stores hashed refresh tokens.
type RefreshTokenRepositoryInterface interface {
	Create(ctx context.Context, t *repository.RefreshToken) error
	GetByHash(ctx context.Context, hash string) (*repository.RefreshToken, error)
	Revoke(ctx context.Context, id int64) error
}

type jwtService interface {
	GenerateToken(userID int64, role, name string) (string, error)
}
