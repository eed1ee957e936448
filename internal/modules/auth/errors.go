package auth

import (
	"errors"
	"fmt"

	"servicemarket/internal/domain"
)

var (
	ErrInvalidCredentials  = fmt.Errorf("%w: invalid credentials", domain.ErrUnauthorized)
	ErrInvalidRefreshToken = fmt.Errorf("%w: invalid refresh token", domain.ErrUnauthorized)
	ErrEmailAlreadyExists  = errors.New("email already exists")
)
