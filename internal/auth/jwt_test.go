package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWT() *JWTService {
	return NewJWTService("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour)
}

func TestJWT_accessRoundTrip(t *testing.T) {
	s := newTestJWT()
	userID := uuid.New()

	token, err := s.IssueAccessToken(userID)
	require.NoError(t, err)

	claims, err := s.Verify(token, TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, TokenAccess, claims.Type)
	assert.Equal(t, tokenIssuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)

	_, err = s.Verify(token, TokenRefresh)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestJWT_refreshTokenRejectedAsAccess(t *testing.T) {
	s := newTestJWT()

	token, err := s.IssueRefreshToken(uuid.New())
	require.NoError(t, err)

	_, err = s.Verify(token, TokenAccess)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	claims, err := s.Verify(token, TokenRefresh)
	require.NoError(t, err)
	assert.Equal(t, TokenRefresh, claims.Type)
}

func TestJWT_sameSecretTypeMismatch(t *testing.T) {
	// Even with one shared secret the type claim must still be enforced
	s := NewJWTService("shared", "shared", time.Minute, time.Hour)

	token, err := s.IssueRefreshToken(uuid.New())
	require.NoError(t, err)

	_, err = s.Verify(token, TokenAccess)
	require.ErrorIs(t, err, ErrTokenInvalid)
	assert.Contains(t, err.Error(), "expected access token")
}

func TestJWT_expired(t *testing.T) {
	s := newTestJWT()
	s.now = func() time.Time { return time.Now().Add(-time.Hour) }

	token, err := s.IssueAccessToken(uuid.New())
	require.NoError(t, err)

	s.now = time.Now
	_, err = s.Verify(token, TokenAccess)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.False(t, errors.Is(err, ErrTokenInvalid))
}

func TestJWT_tamperedAndForeign(t *testing.T) {
	s := newTestJWT()
	token, err := s.IssueAccessToken(uuid.New())
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	_, err = s.Verify(tampered, TokenAccess)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	other := NewJWTService("other-secret", "other-refresh", time.Minute, time.Hour)
	foreign, err := other.IssueAccessToken(uuid.New())
	require.NoError(t, err)
	_, err = s.Verify(foreign, TokenAccess)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = s.Verify("not-a-jwt", TokenAccess)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestJWT_wrongAudience(t *testing.T) {
	s := newTestJWT()
	claims := &JWTClaims{
		UserID: uuid.New(),
		Type:   TokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{"someone-else"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.accessSecret)
	require.NoError(t, err)

	_, err = s.Verify(token, TokenAccess)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestJWT_tokensIssuedTogetherDiffer(t *testing.T) {
	s := newTestJWT()
	userID := uuid.New()

	a, err := s.IssueRefreshToken(userID)
	require.NoError(t, err)
	b, err := s.IssueRefreshToken(userID)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestFormatTTL(t *testing.T) {
	assert.Equal(t, "15m", formatTTL(15*time.Minute))
	assert.Equal(t, "2h", formatTTL(2*time.Hour))
	assert.Equal(t, "7d", formatTTL(7*24*time.Hour))
	assert.Equal(t, "90s", formatTTL(90*time.Second))
}
