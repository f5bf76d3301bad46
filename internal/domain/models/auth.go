package models

import "github.com/google/uuid"

type TokenPair struct {
	UserID       uuid.UUID `json:"user_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
}

// Principal кто выполняет запрос: из сессии или из access токена
type Principal struct {
	UserID uuid.UUID
	Role   Role
}
