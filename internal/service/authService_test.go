package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_Login(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)

	auth := NewAuthService(hash, "secret", 1)
	require.True(t, auth.Enabled())

	token, err := auth.Login("correct horse")
	require.NoError(t, err)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims["role"])

	_, err = auth.Login("wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_NotConfigured(t *testing.T) {
	auth := NewAuthService("", "secret", 1)
	assert.False(t, auth.Enabled())

	_, err := auth.Login("anything")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestAuthService_RejectsForeignTokens(t *testing.T) {
	auth := NewAuthService("$2a$10$abc", "secret", 1)

	other := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := other.SignedString([]byte("different-secret"))
	require.NoError(t, err)
	_, err = auth.ValidateToken(signed)
	assert.Error(t, err)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": "admin",
		"exp":  time.Now().Add(-time.Hour).Unix(),
	})
	signed, err = expired.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = auth.ValidateToken(signed)
	assert.Error(t, err)

	viewer := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": "viewer",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err = viewer.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = auth.ValidateToken(signed)
	assert.Error(t, err)
}

func TestHashPassword_Empty(t *testing.T) {
	_, err := HashPassword("")
	assert.Error(t, err)
}
