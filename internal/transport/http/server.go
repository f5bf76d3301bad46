package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"content_blocks/internal/domain/models"
	"content_blocks/internal/lib/logger/sl"
	pages "content_blocks/internal/services/page_service"
	tokens "content_blocks/internal/services/token_service"
	users "content_blocks/internal/services/user_service"
	"content_blocks/internal/storage"
	"content_blocks/internal/transport/http/dto"
	"content_blocks/internal/transport/http/dto/request"
	"content_blocks/internal/transport/http/dto/response"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"

	_ "content_blocks/docs"
)

const (
	// PrincipalKey ключ echo.Context, под которым guard кладет *models.Principal
	PrincipalKey = "principal"

	SessionUserID = "user_id"
	SessionRole   = "role"
)

type UserService interface {
	Login(ctx context.Context, identifier, password string) (*models.User, *models.TokenPair, error)
	RegisterNewUser(ctx context.Context, input dto.UserRegisterInput) (uuid.UUID, error)
	GetUserById(ctx context.Context, userID uuid.UUID) (models.User, error)
	UpdateRole(ctx context.Context, actorID string, userID uuid.UUID, role models.Role) error
}

type AuthService interface {
	RefreshTokens(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	ParseAccessToken(accessToken string) (*models.Principal, error)
	Revoke(ctx context.Context, userID, refreshToken string) error
}

type PageService interface {
	Reorder(ctx context.Context, ref string, blockIDs []int64, actor string) ([]models.BlockPosition, error)
	PatchBlock(ctx context.Context, ref string, blockID int64, req dto.PatchBlockRequest, actor string) (*models.Block, error)
	ImportBlocks(ctx context.Context, ref string, inputs []dto.BlockInput, actor string) (int, error)
	ExportBlocks(ctx context.Context, ref string) ([]models.Block, error)
	Publish(ctx context.Context, ref string, inputs []dto.BlockInput, actor string) (int, error)
	Rollback(ctx context.Context, ref string, actor string) (int, error)
	GetBlocks(ctx context.Context, ref string, draft bool, locale string) ([]models.BlockView, error)
	ListPublications(ctx context.Context, ref string, limit int) ([]dto.PublicationSummary, error)
	BackupBlocks(ctx context.Context, ref string, actor string) (*dto.BackupResponse, error)
	ListAudit(ctx context.Context, entity, entityID string, limit int) ([]models.AuditRecord, error)
}

type Routers struct {
	log            *slog.Logger
	UserService    UserService
	AuthService    AuthService
	PageService    PageService
	sessionName    string
	sessionOptions *sessions.Options
}

func NewRouter(
	log *slog.Logger,
	userService UserService,
	authService AuthService,
	pageService PageService,
	sessionName string,
	sessionOptions *sessions.Options,
) *Routers {
	return &Routers{
		log:            log,
		UserService:    userService,
		AuthService:    authService,
		PageService:    pageService,
		sessionName:    sessionName,
		sessionOptions: sessionOptions,
	}
}

func (r *Routers) SessionName() string {
	return r.sessionName
}

// Login godoc
// @Summary Аутентификация пользователя
// @Description Вход по email и паролю. Ставит cookie сессии и возвращает JWT-токены.
// @Tags users
// @Accept json
// @Produce json
// @Param request body request.LoginRequest true "Данные для входа"
// @Success 200 {object} response.Response{data=map[string]string} "Успешный вход (токены)"
// @Failure 400 {object} response.ErrorResponse "Неверный формат запроса"
// @Failure 401 {object} response.ErrorResponse "Ошибка аутентификации"
// @Router /api/v1/login [post]
func (r *Routers) Login(c echo.Context) error {
	const op = "http.routers.Login"

	log := r.log.With(
		slog.String("op", op),
	)

	var req request.LoginRequest

	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat)
	}

	if err := c.Validate(req); err != nil {
		log.Warn("invalid format request", slog.String("identifier", req.Identifier))
		return c.JSON(http.StatusBadRequest, response.ErrorResponseWithDetails("invalid_request", err.Error()))
	}

	user, token, err := r.UserService.Login(c.Request().Context(), req.Identifier, req.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			return c.JSON(http.StatusUnauthorized, response.ErrAuthenticationFailed)
		}
		log.Error("login failed", sl.Err(err))
		return c.JSON(http.StatusInternalServerError, response.ErrInternal)
	}

	sess, err := session.Get(r.sessionName, c)
	if err != nil {
		log.Warn("broken session cookie, issuing a new one", sl.Err(err))
	}
	sess.Options = r.sessionOptions
	sess.Values[SessionUserID] = user.ID.String()
	sess.Values[SessionRole] = string(user.Role)
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		log.Error("failed to save session", sl.Err(err))
		return c.JSON(http.StatusInternalServerError, response.ErrInternal)
	}

	return c.JSON(http.StatusOK, response.Response{
		Status: "success",
		Data: map[string]string{
			"user_id":       token.UserID.String(),
			"role":          string(user.Role),
			"access_token":  token.AccessToken,
			"refresh_token": token.RefreshToken,
		},
	})
}

// Register godoc
// @Summary Регистрация нового пользователя
// @Description Создание аккаунта с ролью user. Возвращает ID пользователя.
// @Tags users
// @Accept json
// @Produce json
// @Param request body dto.UserRegisterInput true "Данные для регистрации"
// @Success 201 {object} response.Response{data=object{user_id=string}} "Успешная регистрация"
// @Failure 400 {object} response.ErrorResponse "Неверный формат запроса"
// @Failure 409 {object} response.ErrorResponse "Пользователь уже существует"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /api/v1/register [post]
func (r *Routers) Register(c echo.Context) error {
	const op = "http.routers.Register"

	log := r.log.With(
		slog.String("op", op),
	)

	var req dto.UserRegisterInput

	if err := c.Bind(&req); err != nil {
		log.Error("failed to bind request", sl.Err(err))
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRegisterRequest)
	}

	if err := c.Validate(req); err != nil {
		log.Warn("validation failed", sl.Err(err))
		return c.JSON(http.StatusBadRequest, response.ErrorResponseWithDetails("invalid_register_request", err.Error()))
	}

	userID, err := r.UserService.RegisterNewUser(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, users.ErrUserExist) {
			log.Warn("user already exists", slog.String("email", req.Email))
			return c.JSON(http.StatusConflict, response.ErrUserAlreadyExists)
		}

		log.Error("registration failed", sl.Err(err))
		return c.JSON(http.StatusInternalServerError, response.ErrInternal)
	}

	log.Info("user registered successfully", slog.String("user_id", userID.String()))

	return c.JSON(http.StatusCreated, response.Response{
		Status: "success",
		Data: map[string]uuid.UUID{
			"user_id": userID,
		},
	})
}

// Refresh godoc
// @Summary Обновление токенов
// @Description Одноразовый обмен refresh токена на новую пару
// @Tags users
// @Accept json
// @Produce json
// @Param request body request.RefreshRequest true "Refresh токен"
// @Success 200 {object} models.TokenPair
// @Failure 400 {object} response.ErrorResponse
// @Failure 401 {object} response.ErrorResponse
// @Router /api/v1/refresh [post]
func (r *Routers) Refresh(c echo.Context) error {
	const op = "http.routers.Refresh"

	log := r.log.With(
		slog.String("op", op),
	)

	var req request.RefreshRequest

	if err := c.Bind(&req); err != nil {
		log.Error("validation bind", sl.Err(err))
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat)
	}

	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrorResponseWithDetails("invalid_request", err.Error()))
	}

	newTokens, err := r.AuthService.RefreshTokens(c.Request().Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, tokens.ErrInvalidToken) ||
			errors.Is(err, tokens.ErrInvalidTokenClaims) ||
			errors.Is(err, tokens.ErrTokenNotInStorage) ||
			errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("refresh rejected", sl.Err(err))
			return c.JSON(http.StatusUnauthorized, response.ErrorResponseWithDetails("authentication_failed", "invalid refresh token"))
		}
		log.Error("error refresh tokens", sl.Err(err))
		return c.JSON(http.StatusInternalServerError, response.ErrInternal)
	}

	return c.JSON(http.StatusOK, newTokens)
}

// Logout godoc
// @Summary Выход
// @Description Сбрасывает cookie сессии и отзывает refresh токены пользователя
// @Tags users
// @Produce json
// @Success 200 {object} response.Response
// @Failure 401 {object} response.ErrorResponse
// @Router /api/v1/logout [post]
func (r *Routers) Logout(c echo.Context) error {
	const op = "http.routers.Logout"

	log := r.log.With(
		slog.String("op", op),
	)

	principal, ok := PrincipalFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, response.ErrorResponseWithDetails("unauthorized", "authentication required"))
	}

	if err := r.AuthService.Revoke(c.Request().Context(), principal.UserID.String(), ""); err != nil {
		log.Error("failed to revoke tokens", sl.Err(err))
	}

	if sess, err := session.Get(r.sessionName, c); err == nil {
		opts := *r.sessionOptions
		opts.MaxAge = -1
		sess.Options = &opts
		sess.Values = map[interface{}]interface{}{}
		if err := sess.Save(c.Request(), c.Response()); err != nil {
			log.Error("failed to drop session", sl.Err(err))
		}
	}

	return c.JSON(http.StatusOK, response.Response{Status: "success", Message: "logged out"})
}

// Me godoc
// @Summary Текущий пользователь
// @Tags users
// @Produce json
// @Success 200 {object} dto.UserResponse
// @Failure 401 {object} response.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/v1/users/me [get]
func (r *Routers) Me(c echo.Context) error {
	const op = "http.routers.Me"

	principal, ok := PrincipalFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, response.ErrorResponseWithDetails("unauthorized", "authentication required"))
	}

	user, err := r.UserService.GetUserById(c.Request().Context(), principal.UserID)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return c.JSON(http.StatusNotFound, response.ErrorResponseWithDetails("not_found", "user not found"))
		}
		r.log.Error("error get user", slog.String("op", op), sl.Err(err))
		return c.JSON(http.StatusInternalServerError, response.ErrInternal)
	}

	return c.JSON(http.StatusOK, dto.NewUserResponse(user))
}

// UpdateUserRole godoc
// @Summary Смена роли пользователя
// @Description Доступно только superadmin
// @Tags admin
// @Accept json
// @Produce json
// @Param user_id path string true "UUID пользователя" format(uuid)
// @Param request body dto.UpdateRoleRequest true "Новая роль"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 403 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/v1/admin/users/{user_id}/role [patch]
func (r *Routers) UpdateUserRole(c echo.Context) error {
	const op = "http.routers.UpdateUserRole"

	log := r.log.With(
		slog.String("op", op),
	)

	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		log.Warn("error parse uuid", sl.Err(err))
		return c.JSON(http.StatusBadRequest, response.ErrorResponseWithDetails("invalid_request", "invalid user ID format"))
	}

	var req dto.UpdateRoleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat)
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrorResponseWithDetails("invalid_request", err.Error()))
	}

	err = r.UserService.UpdateRole(c.Request().Context(), actorID(c), userID, models.Role(req.Role))
	if err != nil {
		switch {
		case errors.Is(err, users.ErrInvalidRole):
			return c.JSON(http.StatusBadRequest, response.ErrorResponseWithDetails("invalid_request", "invalid role"))
		case errors.Is(err, users.ErrUserNotFound):
			return c.JSON(http.StatusNotFound, response.ErrorResponseWithDetails("not_found", "user not found"))
		}
		log.Error("failed to update role", sl.Err(err))
		return c.JSON(http.StatusInternalServerError, response.ErrInternal)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(map[string]string{
		"user_id": userID.String(),
		"role":    req.Role,
	}))
}

// PrincipalFrom достает пользователя, которого guard положил в контекст
func PrincipalFrom(c echo.Context) (*models.Principal, bool) {
	p, ok := c.Get(PrincipalKey).(*models.Principal)
	return p, ok && p != nil
}

func actorID(c echo.Context) string {
	if p, ok := PrincipalFrom(c); ok {
		return p.UserID.String()
	}
	return ""
}

// writeError переводит ошибки сервисов в http статус и тело ErrorResponse
func (r *Routers) writeError(c echo.Context, op string, err error) error {
	var (
		status int
		code   string
	)

	switch {
	case errors.Is(err, pages.ErrValidation):
		status, code = http.StatusBadRequest, "validation_failed"
	case errors.Is(err, storage.ErrPageNotFound):
		status, code = http.StatusNotFound, "page_not_found"
	case errors.Is(err, storage.ErrBlockNotFound):
		status, code = http.StatusNotFound, "block_not_found"
	case errors.Is(err, pages.ErrNoPreviousPublication):
		status, code = http.StatusPreconditionFailed, "no_previous_publication"
	case errors.Is(err, pages.ErrPublishFailed):
		r.log.Error("publish failed", slog.String("op", op), sl.Err(err))
		return c.JSON(http.StatusInternalServerError, response.ErrorResponseWithDetails("publish_failed", "publish failed"))
	default:
		r.log.Error("request failed", slog.String("op", op), sl.Err(err))
		return c.JSON(http.StatusInternalServerError, response.ErrInternal)
	}

	r.log.Warn("request rejected", slog.String("op", op), slog.Int("status", status), sl.Err(err))

	return c.JSON(status, response.ErrorResponseWithDetails(code, err.Error()))
}
