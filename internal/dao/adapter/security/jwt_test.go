package security

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "a-test-secret-of-some-length"

func TestNewTokenService(t *testing.T) {
	_, err := NewTokenService("", "issuer", time.Minute)
	assert.Error(t, err)
	_, err = NewTokenService(testSecret, "", time.Minute)
	assert.Error(t, err)
	_, err = NewTokenService(testSecret, "issuer", 0)
	assert.Error(t, err)
}

func TestTokenService_RoundTrip(t *testing.T) {
	s, err := NewTokenService(testSecret, "firestore-dao", time.Minute)
	require.NoError(t, err)

	token, err := s.GenerateToken("user-1")
	require.NoError(t, err)

	claims, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "firestore-dao", claims.Issuer)
}

func TestTokenService_Rejects(t *testing.T) {
	s, err := NewTokenService(testSecret, "firestore-dao", time.Minute)
	require.NoError(t, err)

	t.Run("empty", func(t *testing.T) {
		_, err := s.ValidateToken("")
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := s.ValidateToken("not-a-token")
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("other secret", func(t *testing.T) {
		other, err := NewTokenService("another-secret-of-some-length", "firestore-dao", time.Minute)
		require.NoError(t, err)
		token, err := other.GenerateToken("user-1")
		require.NoError(t, err)
		_, err = s.ValidateToken(token)
		assert.ErrorIs(t, err, ErrTokenSignatureInvalid)
	})

	t.Run("other issuer", func(t *testing.T) {
		other, err := NewTokenService(testSecret, "someone-else", time.Minute)
		require.NoError(t, err)
		token, err := other.GenerateToken("user-1")
		require.NoError(t, err)
		_, err = s.ValidateToken(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("expired", func(t *testing.T) {
		past, err := NewTokenService(testSecret, "firestore-dao", time.Minute)
		require.NoError(t, err)
		past.now = func() time.Time { return time.Now().Add(-time.Hour) }
		token, err := past.GenerateToken("user-1")
		require.NoError(t, err)
		_, err = s.ValidateToken(token)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("no subject", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
			RegisteredClaims: jwt.RegisteredClaims{Issuer: "firestore-dao"},
		}).SignedString([]byte(testSecret))
		require.NoError(t, err)
		_, err = s.ValidateToken(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})
}
