package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kost/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTService() *JWTService {
	return NewJWTService(config.JWTConfig{
		Secret: "test-secret-key-at-least-32-chars",
		Issuer: "kost-backend",
	})
}

func TestJWTService_Enabled(t *testing.T) {
	assert.True(t, newTestJWTService().Enabled())
	assert.False(t, NewJWTService(config.JWTConfig{}).Enabled())
}

func TestJWTService_RoundTrip(t *testing.T) {
	svc := newTestJWTService()

	token, err := svc.GenerateToken("ops@kost", []string{RoleAdmin}, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateAdminToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@kost", claims.Subject)
	assert.Equal(t, "kost-backend", claims.Issuer)
	assert.True(t, claims.HasRole(RoleAdmin))
	assert.NotEmpty(t, claims.ID)
}

func TestJWTService_ValidateAdminToken_RequiresRole(t *testing.T) {
	svc := newTestJWTService()

	token, err := svc.GenerateToken("viewer", []string{"viewer"}, time.Hour)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.NoError(t, err)

	_, err = svc.ValidateAdminToken(token)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestJWTService_Expired(t *testing.T) {
	svc := newTestJWTService()
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, err := svc.GenerateToken("ops", []string{RoleAdmin}, time.Hour)
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.ValidateAdminToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTService_NotYetValid(t *testing.T) {
	svc := newTestJWTService()
	svc.now = func() time.Time { return time.Now().Add(time.Hour) }

	token, err := svc.GenerateToken("ops", []string{RoleAdmin}, time.Hour)
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenNotYetValid)
}

func TestJWTService_RejectsTamperedTokens(t *testing.T) {
	svc := newTestJWTService()
	other := NewJWTService(config.JWTConfig{Secret: "another-secret-key-at-least-32-ch", Issuer: "kost-backend"})

	token, err := other.GenerateToken("ops", []string{RoleAdmin}, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer := NewJWTService(config.JWTConfig{Secret: "test-secret-key-at-least-32-chars", Issuer: "someone-else"})
	token, err = wrongIssuer.GenerateToken("ops", []string{RoleAdmin}, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_RejectsOtherAlgorithms(t *testing.T) {
	svc := newTestJWTService()

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops",
			Issuer:    "kost-backend",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: []string{RoleAdmin},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(svc.secret)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_MissingSubject(t *testing.T) {
	svc := newTestJWTService()

	token, err := svc.GenerateToken("", []string{RoleAdmin}, time.Hour)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidClaims)
}
