package httpapp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"content_blocks/internal/config"
	"content_blocks/internal/domain/models"
	"content_blocks/internal/middleware"
	httprouters "content_blocks/internal/transport/http"
	"content_blocks/internal/transport/http/dto/response"

	"github.com/arl/statsviz"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	echoSwagger "github.com/swaggo/echo-swagger"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// TokenParser разбирает Bearer access токен
type TokenParser interface {
	ParseAccessToken(accessToken string) (*models.Principal, error)
}

type Server struct {
	m               *http.ServeMux
	log             *slog.Logger
	e               *echo.Echo
	routers         *httprouters.Routers
	tokens          TokenParser
	host            string
	port            string
	shutdownTimeout time.Duration
}

func New(log *slog.Logger, httpCfg config.HTTPConfig, sessionCfg config.SessionConfig, routers *httprouters.Routers, tokens TokenParser) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = httpCfg.ReadTimeout
	e.Server.WriteTimeout = httpCfg.WriteTimeout

	validate := validator.New()
	e.Validator = &CustomValidator{validator: validate}

	store := sessions.NewCookieStore([]byte(sessionCfg.Secret))
	store.Options = SessionOptions(sessionCfg)

	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogRemoteIP: true,
		LogMethod:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			log.Info("request",
				slog.String("method", v.Method),
				slog.String("URI", v.URI),
				slog.Int("status", v.Status),
				slog.String("remote ip", v.RemoteIP),
				slog.Duration("latency", v.Latency),
			)

			return nil
		},
	}))
	e.Use(middleware.PrometheusMetrics)
	e.Use(echomw.CORS())
	e.Use(session.Middleware(store))

	mux := http.NewServeMux()
	err := statsviz.Register(mux)
	if err != nil {
		log.Info("Statsviz start with error", slog.Any("error:", err.Error()))
	}

	return &Server{
		m:               mux,
		log:             log,
		e:               e,
		routers:         routers,
		tokens:          tokens,
		host:            httpCfg.Host,
		port:            httpCfg.Port,
		shutdownTimeout: httpCfg.ShutdownTimeout,
	}
}

func SessionOptions(cfg config.SessionConfig) *sessions.Options {
	return &sessions.Options{
		Path:     "/",
		MaxAge:   cfg.MaxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *Server) Handler() http.Handler {
	return s.e
}

func (s *Server) MustRun() {
	const op = "http.Server.MustRun"

	s.log.Info(op, slog.String("Start", "server"), slog.String("addr", s.addr()))

	if err := s.Start(); err != nil {
		panic(err)
	}
}

func (s *Server) Start() error {
	const op = "http.Server.Start"

	if err := s.e.Start(s.addr()); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("%s server stopped: %w", op, err)
	}

	return nil
}

func (s *Server) Stop() error {
	const op = "http.Server.Stop"

	timeout := s.shutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	optCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.log.Info("stopping", slog.String("op", op))

	if err := s.e.Shutdown(optCtx); err != nil {
		return fmt.Errorf("%s could not shutdown server gracefuly: %w", op, err)
	}

	return nil
}

func (s *Server) addr() string {
	return fmt.Sprintf("%s:%s", s.host, s.port)
}

// identify кладет в контекст пользователя из cookie сессии или Bearer токена.
// Анонимный запрос проходит дальше, решение принимает RequireRole или сам обработчик.
func (s *Server) identify(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if p := s.fromSession(c); p != nil {
			c.Set(httprouters.PrincipalKey, p)
			return next(c)
		}

		auth := c.Request().Header.Get(echo.HeaderAuthorization)
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok && token != "" {
			p, err := s.tokens.ParseAccessToken(token)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, response.ErrorResponseWithDetails("unauthorized", "invalid access token"))
			}
			c.Set(httprouters.PrincipalKey, p)
		}

		return next(c)
	}
}

func (s *Server) fromSession(c echo.Context) *models.Principal {
	sess, err := session.Get(s.routers.SessionName(), c)
	if err != nil {
		return nil
	}

	rawID, _ := sess.Values[httprouters.SessionUserID].(string)
	role, _ := sess.Values[httprouters.SessionRole].(string)
	if rawID == "" {
		return nil
	}

	userID, err := uuid.Parse(rawID)
	if err != nil {
		return nil
	}

	return &models.Principal{UserID: userID, Role: models.Role(role)}
}

// RequireRole 401 без пользователя, 403 если роль ниже min
func (s *Server) RequireRole(min models.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := httprouters.PrincipalFrom(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, response.ErrorResponseWithDetails("unauthorized", "authentication required"))
			}

			if !p.Role.AtLeast(min) {
				s.log.Warn("access denied",
					slog.String("user_id", p.UserID.String()),
					slog.String("role", string(p.Role)),
					slog.String("required", string(min)),
				)
				return c.JSON(http.StatusForbidden, response.ErrorResponseWithDetails("forbidden", string(min)+" role required"))
			}

			return next(c)
		}
	}
}

func (s *Server) BuildRouters() {
	s.e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	s.e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	debug := s.e.Group("/debug")
	{
		debug.GET("/statsviz/", echo.WrapHandler(s.m))
		debug.GET("/statsviz/*", echo.WrapHandler(s.m))
	}

	swagger := s.e.Group("/swag")
	{
		swagger.GET("/swagger/*", echoSwagger.WrapHandler)
	}

	user := s.RequireRole(models.RoleUser)
	admin := s.RequireRole(models.RoleAdmin)

	api := s.e.Group("/api/v1", s.identify)
	{
		api.POST("/register", s.routers.Register)
		api.POST("/login", s.routers.Login)
		api.POST("/refresh", s.routers.Refresh)
		api.POST("/logout", s.routers.Logout, user)
		api.GET("/users/me", s.routers.Me, user)

		pages := api.Group("/pages")
		{
			pages.GET("/:id/blocks", s.routers.GetBlocks)
			pages.GET("/:id/export", s.routers.ExportBlocks)

			pages.POST("/:id/import", s.routers.ImportBlocks, admin)
			pages.PATCH("/:id/blocks/reorder", s.routers.ReorderBlocks, admin)
			pages.PATCH("/:id/blocks/:block_id", s.routers.PatchBlock, admin)
			pages.POST("/:id/publish", s.routers.Publish, admin)
			pages.POST("/:id/rollback", s.routers.Rollback, admin)
			pages.GET("/:id/publications", s.routers.ListPublications, admin)
			pages.POST("/:id/backup", s.routers.Backup, admin)
		}

		adminGroup := api.Group("/admin", admin)
		{
			adminGroup.PATCH("/home/sections/:id", s.routers.PatchHomeSection)
			adminGroup.GET("/audit", s.routers.ListAudit)
			adminGroup.PATCH("/users/:user_id/role", s.routers.UpdateUserRole, s.RequireRole(models.RoleSuperadmin))
		}
	}
}
