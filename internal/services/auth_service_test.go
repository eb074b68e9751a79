package services

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_MintAndVerify(t *testing.T) {
	auth := NewAuthService("test-secret", time.Hour)
	orgID := uuid.New()
	deviceID := uuid.New()

	token, expiresAt, err := auth.MintToken(orgID, deviceID)
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	principal, err := auth.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, orgID, principal.OrgID)
	assert.Equal(t, deviceID, principal.DeviceID)
}

func TestAuthService_VerifyToken_WrongSecret(t *testing.T) {
	minter := NewAuthService("secret-a", time.Hour)
	verifier := NewAuthService("secret-b", time.Hour)

	token, _, err := minter.MintToken(uuid.New(), uuid.New())
	require.NoError(t, err)

	_, err = verifier.VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthService_VerifyToken_Expired(t *testing.T) {
	auth := NewAuthService("test-secret", -time.Minute)

	token, _, err := auth.MintToken(uuid.New(), uuid.New())
	require.NoError(t, err)

	_, err = auth.VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthService_VerifyToken_MissingClaims(t *testing.T) {
	auth := NewAuthService("test-secret", time.Hour)

	claims := jwt.MapClaims{
		"org": uuid.New().String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = auth.VerifyToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthService_VerifyToken_Garbage(t *testing.T) {
	auth := NewAuthService("test-secret", time.Hour)

	_, err := auth.VerifyToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
