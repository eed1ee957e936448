package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"servicemarket/internal/domain"
	"servicemarket/internal/repository"
)

// Service contains all business logic for authentication
type Service struct {
	users              UserRepositoryInterface
	refreshTokens      RefreshTokenRepositoryInterface
	jwt                jwtService
	refreshTokenPepper string
	refreshTTL         time.Duration
	now                func() time.Time
}

type LoginResult struct {
	User         *domain.User
	AccessToken  string
	RefreshToken string
}

func NewService(
	users UserRepositoryInterface,
	refreshTokens RefreshTokenRepositoryInterface,
	jwt jwtService,
	refreshTokenPepper string,
	refreshTTL time.Duration,
) *Service {
	return &Service{
		users:              users,
		refreshTokens:      refreshTokens,
		jwt:                jwt,
		refreshTokenPepper: refreshTokenPepper,
		refreshTTL:         refreshTTL,
		now:                time.Now,
	}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*domain.User, error) {
	role := domain.UserRole(req.Role)
	if role != domain.RoleClient && role != domain.RoleWorker {
		return nil, fmt.Errorf("%w: role must be client or worker", domain.ErrValidation)
	}

	exists, err := s.users.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailAlreadyExists
	}

	hashedPassword, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hashedPassword,
		Name:         req.Name,
		Phone:        req.Phone,
		Role:         role,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	user.PasswordHash = ""
	return user, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	access, refresh, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}

	user.PasswordHash = ""
	return &LoginResult{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

// RefreshSession rotates a refresh token: the presented one is revoked and a new
// pair is issued. Each refresh token works once.
func (s *Service) RefreshSession(ctx context.Context, refreshRaw string) (*LoginResult, error) {
	current, err := s.refreshTokens.GetByHash(ctx, hashTokenWithPepper(refreshRaw, s.refreshTokenPepper))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	if current.RevokedAt != nil || !current.ExpiresAt.After(s.now()) {
		return nil, ErrInvalidRefreshToken
	}

	if err := s.refreshTokens.Revoke(ctx, current.ID); err != nil {
		if errors.Is(err, domain.ErrStaleWrite) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	user, err := s.users.GetByID(ctx, current.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	access, refresh, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) issue(ctx context.Context, user *domain.User) (access, refresh string, err error) {
	access, err = s.jwt.GenerateToken(user.ID, string(user.Role), user.Name)
	if err != nil {
		return "", "", err
	}

	raw, hash, err := generateOpaqueRefreshToken(s.refreshTokenPepper)
	if err != nil {
		return "", "", err
	}
	if err := s.refreshTokens.Create(ctx, &repository.RefreshToken{
		UserID:    user.ID,
		TokenHash: hash,
		ExpiresAt: s.now().Add(s.refreshTTL),
	}); err != nil {
		return "", "", err
	}
	return access, raw, nil
}

func (s *Service) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func generateOpaqueRefreshToken(pepper string) (raw string, hash string, err error) {
	buf := make([]byte, 32)
	if _, err = rand.Read(buf); err != nil {
		return "", "", err
	}
	raw = hex.EncodeToString(buf)
	hash = hashTokenWithPepper(raw, pepper)
	return raw, hash, nil
}

func hashTokenWithPepper(raw, pepper string) string {
	sum := sha256.Sum256([]byte(raw + pepper))
	return hex.EncodeToString(sum[:])
}
