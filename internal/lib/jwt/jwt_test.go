package jwt

import (
	"testing"
	"time"

	"content_blocks/internal/domain/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUser = models.User{
	ID:    uuid.MustParse("123e4567-e89b-12d3-a456-426614174000"),
	Email: "test@example.com",
	Role:  models.RoleAdmin,
}

func TestNewTokenAndParse(t *testing.T) {
	token, err := NewToken(testUser, TokenTypeAccess, "secret", time.Hour)
	require.NoError(t, err)

	claims, err := Parse(token, "secret")
	require.NoError(t, err)

	assert.Equal(t, testUser.ID, claims.UserID)
	assert.Equal(t, testUser.Email, claims.Email)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, 5*time.Second)
}

func TestParse_Errors(t *testing.T) {
	valid, err := NewToken(testUser, TokenTypeAccess, "secret", time.Hour)
	require.NoError(t, err)
	expired, err := NewToken(testUser, TokenTypeAccess, "secret", -time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "wrong secret", token: valid},
		{name: "expired", token: expired},
		{name: "garbage", token: "invalid.token.string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secret := "secret"
			if tt.name == "wrong secret" {
				secret = "other"
			}
			_, err := Parse(tt.token, secret)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestNewToken_Unique(t *testing.T) {
	a, err := NewToken(testUser, TokenTypeRefresh, "secret", time.Hour)
	require.NoError(t, err)
	b, err := NewToken(testUser, TokenTypeRefresh, "secret", time.Hour)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}
