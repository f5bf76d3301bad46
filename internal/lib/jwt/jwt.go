package jwt

import (
	"errors"
	"fmt"
	"time"

	"content_blocks/internal/domain/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	UserID    uuid.UUID
	Email     string
	Role      models.Role
	TokenType string
	ExpiresAt time.Time
}

func NewToken(user models.User, tokenType string, secret string, duration time.Duration) (string, error) {
	now := time.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid":   user.ID.String(),
		"email": user.Email,
		"role":  string(user.Role),
		"typ":   tokenType,
		"jti":   uuid.NewString(),
		"iat":   now.Unix(),
		"exp":   now.Add(duration).Unix(),
	})

	return token.SignedString([]byte(secret))
}

// Parse проверяет подпись и срок действия токена
func Parse(tokenString, secret string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	uid, _ := claims["uid"].(string)
	userID, err := uuid.Parse(uid)
	if err != nil {
		return nil, fmt.Errorf("%w: bad uid", ErrInvalidToken)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: bad exp", ErrInvalidToken)
	}

	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)
	typ, _ := claims["typ"].(string)

	return &Claims{
		UserID:    userID,
		Email:     email,
		Role:      models.Role(role),
		TokenType: typ,
		ExpiresAt: exp.Time,
	}, nil
}
