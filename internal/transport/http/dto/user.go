package dto

import (
	"time"

	"content_blocks/internal/domain/models"

	"github.com/google/uuid"
)

// UserRegisterInput содержит данные для регистрации пользователя
type UserRegisterInput struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=64"`
}

func (input UserRegisterInput) ToDomain(passwordHash []byte) models.User {
	return models.User{
		Name:     input.Name,
		Email:    input.Email,
		Password: passwordHash,
		Role:     models.RoleUser,
	}
}

type UpdateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user admin superadmin"`
}

type UserResponse struct {
	ID               uuid.UUID   `json:"id"`
	Name             string      `json:"name"`
	Email            string      `json:"email"`
	Role             models.Role `json:"role"`
	RegistrationDate time.Time   `json:"registration_date"`
	LastLogin        *time.Time  `json:"last_login,omitempty"`
}

func NewUserResponse(user models.User) UserResponse {
	resp := UserResponse{
		ID:               user.ID,
		Name:             user.Name,
		Email:            user.Email,
		Role:             user.Role,
		RegistrationDate: user.RegistrationDate,
	}
	if !user.LastLogin.IsZero() {
		lastLogin := user.LastLogin
		resp.LastLogin = &lastLogin
	}
	return resp
}
