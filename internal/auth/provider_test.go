package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, subject string, expires time.Time) string {
	t.Helper()
	claims := &Claims{
		UserID: subject,
		Role:   "client",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "fitness-app",
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestProviderStartsSignedOut(t *testing.T) {
	p := NewProvider(0)
	_, ok := p.CurrentToken()
	require.False(t, ok)
}

func TestProviderReturnsValidToken(t *testing.T) {
	p := NewProvider(time.Second)
	token := signToken(t, "user-1", time.Now().Add(time.Hour))

	claims, err := p.SetToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)

	got, ok := p.CurrentToken()
	require.True(t, ok)
	require.Equal(t, token, got)

	subject, ok := p.Subject()
	require.True(t, ok)
	require.Equal(t, "user-1", subject)

	p.Clear()
	_, ok = p.CurrentToken()
	require.False(t, ok)
}

func TestProviderRejectsExpiredToken(t *testing.T) {
	p := NewProvider(0)
	_, err := p.SetToken(signToken(t, "user-1", time.Now().Add(-time.Minute)))
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestProviderExpiresHeldToken(t *testing.T) {
	p := NewProvider(0)
	_, err := p.SetToken(signToken(t, "user-1", time.Now().Add(time.Hour)))
	require.NoError(t, err)

	p.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, ok := p.CurrentToken()
	require.False(t, ok)
}

func TestParseClaimsRejectsGarbage(t *testing.T) {
	_, err := ParseClaims("not-a-jwt")
	require.ErrorIs(t, err, ErrInvalidToken)
	_, err = ParseClaims("  ")
	require.ErrorIs(t, err, ErrMissingToken)
}
