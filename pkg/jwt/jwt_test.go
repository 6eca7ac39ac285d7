package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-testing-purposes"

func TestNewService(t *testing.T) {
	service := NewService(testSecret, time.Hour)

	assert.NotNil(t, service)
	assert.Equal(t, testSecret, service.secret)
	assert.Equal(t, time.Hour, service.expiry)
}

func TestGenerateToken(t *testing.T) {
	service := NewService(testSecret, time.Hour)
	staffID := uuid.New()

	token, err := service.GenerateToken(staffID, "Ana Reyes", RoleStaff)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, staffID, claims.StaffID)
	assert.Equal(t, "Ana Reyes", claims.Name)
	assert.Equal(t, RoleStaff, claims.Role)
	assert.Equal(t, staffID.String(), claims.Subject)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	service := NewService(testSecret, time.Hour)
	other := NewService("a-different-secret", time.Hour)

	token, err := other.GenerateToken(uuid.New(), "Ana Reyes", RoleStaff)
	require.NoError(t, err)

	claims, err := service.ValidateToken(token)
	assert.Error(t, err)
	assert.Nil(t, claims)
}

func TestValidateToken_Expired(t *testing.T) {
	service := NewService(testSecret, -time.Minute)

	token, err := service.GenerateToken(uuid.New(), "Ana Reyes", RoleAdmin)
	require.NoError(t, err)

	claims, err := service.ValidateToken(token)
	assert.Error(t, err)
	assert.Nil(t, claims)
	assert.True(t, service.IsTokenExpired(token))
}

func TestValidateToken_Garbage(t *testing.T) {
	service := NewService(testSecret, time.Hour)

	claims, err := service.ValidateToken("not.a.token")
	assert.Error(t, err)
	assert.Nil(t, claims)
	assert.True(t, service.IsTokenExpired("not.a.token"))
}

func TestValidateToken_WrongSigningMethod(t *testing.T) {
	service := NewService(testSecret, time.Hour)

	// Token signed with none algorithm must be rejected
	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		StaffID: uuid.New(),
		Role:    RoleAdmin,
	})
	tokenString, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	claims, err := service.ValidateToken(tokenString)
	assert.Error(t, err)
	assert.Nil(t, claims)
}

func TestExtractClaims(t *testing.T) {
	service := NewService(testSecret, time.Hour)
	staffID := uuid.New()

	token, err := service.GenerateToken(staffID, "Ana Reyes", RoleStaff)
	require.NoError(t, err)

	claims, err := service.ExtractClaims(token)
	require.NoError(t, err)
	assert.Equal(t, staffID, claims.StaffID)
}
