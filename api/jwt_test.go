package api

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndValidateJWT(t *testing.T) {
	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	userID := uuid.New()

	sign := func(key ed25519.PrivateKey, expiresAt time.Time) string {
		token := jwt.NewWithClaims(&jwt.SigningMethodEd25519{}, JWT{
			Username: "octocat",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(expiresAt),
				IssuedAt:  jwt.NewNumericDate(time.Now()),
				Subject:   userID.String(),
			},
		})
		tokenString, err := token.SignedString(key)
		require.NoError(t, err)
		return tokenString
	}

	t.Run("Valid", func(t *testing.T) {
		claims, err := ParseAndValidateJWT(sign(privateKey, time.Now().Add(time.Hour)), privateKey)
		require.NoError(t, err)
		assert.Equal(t, "octocat", claims.Username)
		assert.Equal(t, userID.String(), claims.Subject)
	})
	t.Run("Expired", func(t *testing.T) {
		_, err := ParseAndValidateJWT(sign(privateKey, time.Now().Add(-time.Hour)), privateKey)
		assert.Error(t, err)
	})
	t.Run("WrongKey", func(t *testing.T) {
		_, otherKey, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		_, err = ParseAndValidateJWT(sign(otherKey, time.Now().Add(time.Hour)), privateKey)
		assert.Error(t, err)
	})
	t.Run("Garbage", func(t *testing.T) {
		_, err := ParseAndValidateJWT("not-a-token", privateKey)
		assert.Error(t, err)
	})
}
