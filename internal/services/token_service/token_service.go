package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"content_blocks/internal/domain/models"
	"content_blocks/internal/lib/jwt"
	"content_blocks/internal/repository"
)

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidTokenClaims = errors.New("invalid token claims")
	ErrTokenNotInStorage  = errors.New("token not found in storage")
)

type TokenService struct {
	repo       repository.TokenRepository
	users      repository.UserRepository
	secret     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenService(repo repository.TokenRepository, users repository.UserRepository, secret string, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		repo:       repo,
		users:      users,
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func (s *TokenService) GenerateTokens(ctx context.Context, user models.User) (*models.TokenPair, error) {
	accessToken, err := jwt.NewToken(user, jwt.TokenTypeAccess, s.secret, s.accessTTL)
	if err != nil {
		return nil, err
	}

	refreshToken, err := jwt.NewToken(user, jwt.TokenTypeRefresh, s.secret, s.refreshTTL)
	if err != nil {
		return nil, err
	}

	err = s.repo.SaveRefreshToken(ctx, user.ID.String(), refreshToken, s.refreshTTL)
	if err != nil {
		return nil, err
	}

	return &models.TokenPair{
		UserID:       user.ID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// RefreshTokens одноразово обменивает refresh токен на новую пару.
// Роль берется из хранилища, а не из старого токена.
func (s *TokenService) RefreshTokens(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	claims, err := jwt.Parse(refreshToken, s.secret)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != jwt.TokenTypeRefresh {
		return nil, ErrInvalidTokenClaims
	}

	userID := claims.UserID.String()

	exists, err := s.repo.GetRefreshToken(ctx, userID, refreshToken)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrTokenNotInStorage
	}

	if err := s.repo.DeleteRefreshToken(ctx, userID, refreshToken); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserById(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("token_service.RefreshTokens: %w", err)
	}

	return s.GenerateTokens(ctx, user)
}

// ParseAccessToken возвращает владельца access токена
func (s *TokenService) ParseAccessToken(accessToken string) (*models.Principal, error) {
	claims, err := jwt.Parse(accessToken, s.secret)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != jwt.TokenTypeAccess {
		return nil, ErrInvalidTokenClaims
	}

	return &models.Principal{UserID: claims.UserID, Role: claims.Role}, nil
}

// Revoke удаляет refresh токен, пустой токен отзывает все токены пользователя
func (s *TokenService) Revoke(ctx context.Context, userID, refreshToken string) error {
	if refreshToken == "" {
		return s.repo.DeleteAllUserTokens(ctx, userID)
	}
	return s.repo.DeleteRefreshToken(ctx, userID, refreshToken)
}
