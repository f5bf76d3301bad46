package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"content_blocks/internal/domain/models"
	"content_blocks/internal/lib/logger/sl"
	"content_blocks/internal/repository"
	"content_blocks/internal/storage"
	"content_blocks/internal/transport/http/dto"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExist          = errors.New("user already exist")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidRole        = errors.New("invalid role")
)

const ActionUserRole = "user.role"

type TokenIssuer interface {
	GenerateTokens(ctx context.Context, user models.User) (*models.TokenPair, error)
}

type UserService struct {
	log    *slog.Logger
	repo   repository.UserRepository
	audit  repository.AuditRepository
	tokens TokenIssuer
}

func NewUserService(log *slog.Logger, repo repository.UserRepository, audit repository.AuditRepository, tokens TokenIssuer) *UserService {
	return &UserService{
		log:    log,
		repo:   repo,
		audit:  audit,
		tokens: tokens,
	}
}

// Login проверяет пароль и выдает пару токенов
func (s *UserService) Login(ctx context.Context, identifier, password string) (*models.User, *models.TokenPair, error) {
	const op = "user_service.Login"

	log := s.log.With(
		slog.String("op", op),
		slog.String("username", identifier),
	)

	log.Info("attempting to login user")

	user, err := s.repo.UserByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found", sl.Err(err))

			return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		log.Error("failed to get user", sl.Err(err))

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.Password, []byte(password)); err != nil {
		log.Info("invalid credentials", sl.Err(err))

		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	tokens, err := s.tokens.GenerateTokens(ctx, user)
	if err != nil {
		log.Error("failed to generate token", sl.Err(err))

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.repo.TouchLastLogin(ctx, user.ID); err != nil {
		log.Warn("failed to update last login", sl.Err(err))
	}

	log.Info("user logged in successfully")

	return &user, tokens, nil
}

func (s *UserService) RegisterNewUser(ctx context.Context, input dto.UserRegisterInput) (uuid.UUID, error) {
	const op = "user_service.RegisterNewUser"

	log := s.log.With(
		slog.String("op", op),
		slog.String("email", input.Email),
	)

	log.Info("register user")

	passHash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))

		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	id, err := s.repo.SaveUser(ctx, input.ToDomain(passHash))
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			log.Warn("user already exist", slog.Any("error", err.Error()))

			return uuid.Nil, fmt.Errorf("%s: %w", op, ErrUserExist)
		}

		log.Error("failed to save user", sl.Err(err))

		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user register")

	return id, nil
}

func (s *UserService) GetUserById(ctx context.Context, userID uuid.UUID) (models.User, error) {
	const op = "user_service.GetUserById"

	user, err := s.repo.GetUserById(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.User{}, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UpdateRole меняет роль пользователя и пишет запись аудита
func (s *UserService) UpdateRole(ctx context.Context, actorID string, userID uuid.UUID, role models.Role) error {
	const op = "user_service.UpdateRole"

	log := s.log.With(
		slog.String("op", op),
		slog.String("user_id", userID.String()),
		slog.String("role", string(role)),
	)

	if !role.Valid() {
		return fmt.Errorf("%s: %w", op, ErrInvalidRole)
	}

	if err := s.repo.UpdateRole(ctx, userID, role); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found")
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		log.Error("failed to update role", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	err := s.audit.SaveAudit(ctx, models.AuditRecord{
		Entity:   models.AuditEntityUser,
		EntityID: userID.String(),
		Action:   ActionUserRole,
		ActorID:  actorID,
		Diff:     map[string]any{"role": string(role)},
	})
	if err != nil {
		log.Error("failed to record audit", sl.Err(err))
	}

	log.Info("role updated")

	return nil
}

// EnsureSuperadmin заводит учетную запись суперадмина при старте, если ее еще нет
func (s *UserService) EnsureSuperadmin(ctx context.Context, email, password string) error {
	const op = "user_service.EnsureSuperadmin"

	log := s.log.With(
		slog.String("op", op),
		slog.String("email", email),
	)

	user, err := s.repo.UserByIdentifier(ctx, email)
	switch {
	case err == nil:
		if user.Role == models.RoleSuperadmin {
			return nil
		}
		if err := s.repo.UpdateRole(ctx, user.ID, models.RoleSuperadmin); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		log.Info("existing user promoted to superadmin")
		return nil
	case !errors.Is(err, storage.ErrUserNotFound):
		return fmt.Errorf("%s: %w", op, err)
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.repo.SaveUser(ctx, models.User{
		Name:     "superadmin",
		Email:    email,
		Password: passHash,
		Role:     models.RoleSuperadmin,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("superadmin created")

	return nil
}
