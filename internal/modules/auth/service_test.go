package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"servicemarket/internal/domain"
	"servicemarket/internal/repository"
)

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) Create(ctx context.Context, u *domain.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

type mockRefreshTokenRepo struct {
	mock.Mock
}

func (m *mockRefreshTokenRepo) Create(ctx context.Context, t *repository.RefreshToken) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *mockRefreshTokenRepo) GetByHash(ctx context.Context, hash string) (*repository.RefreshToken, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.RefreshToken), args.Error(1)
}

func (m *mockRefreshTokenRepo) Revoke(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockJWTService struct {
	mock.Mock
}

func (m *mockJWTService) GenerateToken(userID int64, role, name string) (string, error) {
	args := m.Called(userID, role, name)
	return args.String(0), args.Error(1)
}

const pepper = "pepper"

func newService(users *mockUserRepo, tokens *mockRefreshTokenRepo, jwt *mockJWTService) *Service {
	return NewService(users, tokens, jwt, pepper, time.Hour)
}

func TestService_Register_Success(t *testing.T) {
	userRepo := new(mockUserRepo)
	svc := newService(userRepo, new(mockRefreshTokenRepo), new(mockJWTService))

	userRepo.On("ExistsByEmail", mock.Anything, "test@example.com").Return(false, nil)
	userRepo.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.Role == domain.RoleWorker && bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("secret123")) == nil
	})).Return(nil)

	user, err := svc.Register(context.Background(), RegisterRequest{
		Name: "Test", Email: "Test@Example.com ", Password: "secret123", Role: "worker",
	})

	require.NoError(t, err)
	assert.Equal(t, "test@example.com", user.Email)
	assert.Empty(t, user.PasswordHash)
	userRepo.AssertExpectations(t)
}

func TestService_Register_DuplicateEmail(t *testing.T) {
	userRepo := new(mockUserRepo)
	svc := newService(userRepo, new(mockRefreshTokenRepo), new(mockJWTService))
	userRepo.On("ExistsByEmail", mock.Anything, "taken@example.com").Return(true, nil)

	_, err := svc.Register(context.Background(), RegisterRequest{Email: "taken@example.com", Password: "secret123", Role: "client"})

	assert.ErrorIs(t, err, ErrEmailAlreadyExists)
	userRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestService_Register_RejectsAdmin(t *testing.T) {
	svc := newService(new(mockUserRepo), new(mockRefreshTokenRepo), new(mockJWTService))

	_, err := svc.Register(context.Background(), RegisterRequest{Email: "a@example.com", Password: "secret123", Role: "admin"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestService_Login_Success(t *testing.T) {
	userRepo := new(mockUserRepo)
	tokens := new(mockRefreshTokenRepo)
	jwtSvc := new(mockJWTService)
	svc := newService(userRepo, tokens, jwtSvc)

	hash, _ := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.MinCost)
	user := &domain.User{ID: 7, Email: "w@example.com", PasswordHash: string(hash), Role: domain.RoleWorker, Name: "Worker"}

	userRepo.On("GetByEmail", mock.Anything, "w@example.com").Return(user, nil)
	jwtSvc.On("GenerateToken", int64(7), "worker", "Worker").Return("access-token", nil)
	tokens.On("Create", mock.Anything, mock.MatchedBy(func(rt *repository.RefreshToken) bool {
		return rt.UserID == 7 && rt.TokenHash != ""
	})).Return(nil)

	res, err := svc.Login(context.Background(), LoginRequest{Email: "W@example.com", Password: "correct"})

	require.NoError(t, err)
	assert.Equal(t, "access-token", res.AccessToken)
	assert.Len(t, res.RefreshToken, 64)
	assert.Empty(t, res.User.PasswordHash)
	tokens.AssertExpectations(t)
}

func TestService_Login_WrongPassword(t *testing.T) {
	userRepo := new(mockUserRepo)
	svc := newService(userRepo, new(mockRefreshTokenRepo), new(mockJWTService))

	hash, _ := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.MinCost)
	userRepo.On("GetByEmail", mock.Anything, "w@example.com").
		Return(&domain.User{ID: 7, PasswordHash: string(hash)}, nil)

	_, err := svc.Login(context.Background(), LoginRequest{Email: "w@example.com", Password: "wrong"})

	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestService_Login_UnknownUser(t *testing.T) {
	userRepo := new(mockUserRepo)
	svc := newService(userRepo, new(mockRefreshTokenRepo), new(mockJWTService))
	userRepo.On("GetByEmail", mock.Anything, "nobody@example.com").Return(nil, domain.ErrNotFound)

	_, err := svc.Login(context.Background(), LoginRequest{Email: "nobody@example.com", Password: "x"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_RefreshSession_Rotates(t *testing.T) {
	userRepo := new(mockUserRepo)
	tokens := new(mockRefreshTokenRepo)
	jwtSvc := new(mockJWTService)
	svc := newService(userRepo, tokens, jwtSvc)

	stored := &repository.RefreshToken{ID: 3, UserID: 7, ExpiresAt: time.Now().Add(time.Hour)}
	tokens.On("GetByHash", mock.Anything, hashTokenWithPepper("raw", pepper)).Return(stored, nil)
	tokens.On("Revoke", mock.Anything, int64(3)).Return(nil)
	tokens.On("Create", mock.Anything, mock.Anything).Return(nil)
	userRepo.On("GetByID", mock.Anything, int64(7)).Return(&domain.User{ID: 7, Role: domain.RoleClient}, nil)
	jwtSvc.On("GenerateToken", int64(7), "client", "").Return("new-access", nil)

	res, err := svc.RefreshSession(context.Background(), "raw")

	require.NoError(t, err)
	assert.Equal(t, "new-access", res.AccessToken)
	assert.NotEqual(t, "raw", res.RefreshToken)
	tokens.AssertExpectations(t)
}

func TestService_RefreshSession_Rejects(t *testing.T) {
	revokedAt := time.Now()
	tests := []struct {
		name   string
		stored *repository.RefreshToken
		err    error
		revoke error
	}{
		{name: "unknown", err: domain.ErrNotFound},
		{name: "expired", stored: &repository.RefreshToken{ID: 1, UserID: 7, ExpiresAt: time.Now().Add(-time.Minute)}},
		{name: "revoked", stored: &repository.RefreshToken{ID: 1, UserID: 7, ExpiresAt: time.Now().Add(time.Hour), RevokedAt: &revokedAt}},
		{name: "lost rotation race", stored: &repository.RefreshToken{ID: 1, UserID: 7, ExpiresAt: time.Now().Add(time.Hour)}, revoke: domain.ErrStaleWrite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := new(mockRefreshTokenRepo)
			svc := newService(new(mockUserRepo), tokens, new(mockJWTService))

			if tt.stored != nil {
				tokens.On("GetByHash", mock.Anything, mock.Anything).Return(tt.stored, nil)
			} else {
				tokens.On("GetByHash", mock.Anything, mock.Anything).Return(nil, tt.err)
			}
			tokens.On("Revoke", mock.Anything, mock.Anything).Return(tt.revoke)

			_, err := svc.RefreshSession(context.Background(), "raw")
			assert.ErrorIs(t, err, ErrInvalidRefreshToken)
			assert.ErrorIs(t, err, domain.ErrUnauthorized)
		})
	}
}
