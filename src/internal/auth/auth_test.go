package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAuthService() *AuthService {
	v := viper.New()
	v.Set("app.name", "caslinks")
	v.Set("security.secret_key", "test-secret-key")
	v.Set("security.jwt.access_token_ttl", "15m")
	return NewAuthService(v)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hash)

	assert.True(t, CheckPasswordHash("correct horse battery staple", hash))
	assert.False(t, CheckPasswordHash("wrong password", hash))
}

func TestTokenPairRoundTrip(t *testing.T) {
	service := testAuthService()
	userID := uuid.New()

	tokens, err := service.GenerateTokenPair(userID, "alice", "alice@example.com", false)
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.True(t, tokens.ExpiresAt.After(time.Now()))

	claims, err := service.ValidateToken(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.False(t, claims.IsAdmin)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	service := testAuthService()

	_, err := service.ValidateToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsWrongKey(t *testing.T) {
	service := testAuthService()

	other := viper.New()
	other.Set("security.secret_key", "a-different-secret")
	otherService := NewAuthService(other)

	tokens, err := otherService.GenerateTokenPair(uuid.New(), "eve", "eve@example.com", false)
	require.NoError(t, err)

	_, err = service.ValidateToken(tokens.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshTokensAreUnique(t *testing.T) {
	service := testAuthService()

	a, err := service.GenerateTokenPair(uuid.New(), "a", "a@example.com", false)
	require.NoError(t, err)
	b, err := service.GenerateTokenPair(uuid.New(), "b", "b@example.com", false)
	require.NoError(t, err)

	assert.NotEqual(t, a.RefreshToken, b.RefreshToken)
}
