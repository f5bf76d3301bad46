package app

import (
	"context"
	"fmt"
	"log/slog"

	httpapp "content_blocks/internal/app/http"
	"content_blocks/internal/cache"
	"content_blocks/internal/config"
	"content_blocks/internal/lib/logger/sl"
	"content_blocks/internal/repository"
	pages "content_blocks/internal/services/page_service"
	tokens "content_blocks/internal/services/token_service"
	users "content_blocks/internal/services/user_service"
	filestorage "content_blocks/internal/storage/filestorage"
	"content_blocks/internal/storage/postgresql"
	redisapp "content_blocks/internal/storage/redis"
	httprouters "content_blocks/internal/transport/http"
)

type App struct {
	log        *slog.Logger
	HTTPServer *httpapp.Server
	repo       *repository.Repository
	redis      *redisapp.Client
}

// New собирает приложение. Без DSN данные живут в памяти процесса,
// без адреса redis кэш и refresh токены тоже.
func New(ctx context.Context, log *slog.Logger, cfg *config.Config) (*App, error) {
	const op = "app.New"

	repo, err := newRepository(ctx, log, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var (
		tokenRepo   repository.TokenRepository
		renderCache cache.RenderCache
		redisClient *redisapp.Client
	)

	if cfg.Redis.RedisAddr != "" {
		redisClient = redisapp.NewClient(cfg.Redis.RedisAddr, cfg.Redis.RedisPassword, cfg.Redis.RedisDB)
		if err := redisClient.HealthCheck(ctx); err != nil {
			repo.Close()
			_ = redisClient.Close()
			return nil, fmt.Errorf("%s: redis: %w", op, err)
		}

		tokenRepo = repository.NewRedisTokenRepo(redisClient)
		renderCache = cache.NewRedisCache(redisClient, cfg.Cache.TTL)
		log.Info("redis connected", slog.String("addr", cfg.Redis.RedisAddr))
	} else {
		tokenRepo = repository.NewMemoryTokenRepo()
		renderCache = cache.NewMemoryCache(cfg.Cache.TTL)
		log.Warn("redis is not configured, using in-memory cache and token store")
	}

	files, err := filestorage.NewLocalFileStorage(cfg.FileStorage.BaseDir, cfg.FileStorage.BaseURL)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("%s: file storage: %w", op, err)
	}

	tokenService := tokens.NewTokenService(tokenRepo, repo.User, cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	userService := users.NewUserService(log, repo.User, repo.Audit, tokenService)
	pageService := pages.NewPageService(log, repo.Page, repo.Audit, renderCache, files, cfg.Content.DefaultLocale, cfg.Cache.TTL)

	if cfg.Bootstrap.Email != "" {
		if err := userService.EnsureSuperadmin(ctx, cfg.Bootstrap.Email, cfg.Bootstrap.Password); err != nil {
			log.Error("failed to seed superadmin", sl.Err(err))
		}
	}

	routers := httprouters.NewRouter(
		log,
		userService,
		tokenService,
		pageService,
		cfg.Session.Name,
		httpapp.SessionOptions(cfg.Session),
	)

	server := httpapp.New(log, cfg.HTTP, cfg.Session, routers, tokenService)
	server.BuildRouters()

	return &App{
		log:        log,
		HTTPServer: server,
		repo:       repo,
		redis:      redisClient,
	}, nil
}

func newRepository(ctx context.Context, log *slog.Logger, dsn string) (*repository.Repository, error) {
	if dsn == "" {
		log.Warn("dsn is empty, using in-memory repositories")
		return repository.NewMemoryRepository(), nil
	}

	storage, err := postgresql.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := storage.Migrate(ctx); err != nil {
		storage.Stop()
		return nil, err
	}

	return repository.NewRepositoryFromPool(storage.Pool()), nil
}

func (a *App) Stop() {
	if err := a.HTTPServer.Stop(); err != nil {
		a.log.Error("http server stop", sl.Err(err))
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Error("redis close", sl.Err(err))
		}
	}

	a.repo.Close()
}
