package jwt

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	svc := New("secret", time.Minute)

	tok, err := svc.GenerateToken(7, "worker", "Dana")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, "worker", claims.Role)
	assert.Equal(t, "Dana", claims.Name)
}

func TestValidate_Rejects(t *testing.T) {
	svc := New("secret", time.Minute)

	expired, err := New("secret", -time.Minute).GenerateToken(7, "worker", "")
	require.NoError(t, err)
	otherKey, err := New("other", time.Minute).GenerateToken(7, "worker", "")
	require.NoError(t, err)
	noUser, err := New("secret", time.Minute).GenerateToken(0, "worker", "")
	require.NoError(t, err)
	none, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, Claims{UserID: 7}).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"expired":   expired,
		"other key": otherKey,
		"no user":   noUser,
		"alg none":  none,
		"garbage":   "not.a.token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
