package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"content_blocks/internal/app"
	"content_blocks/internal/config"
	"content_blocks/internal/lib/logger/sl"

	"github.com/fatih/color"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

// @title Content Blocks API
// @version 1.0
// @description Версионирование блоков страниц: черновик, публикация, откат.
// @BasePath /api/v1
func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	if cfg.Env == envLocal {
		banner(cfg)
	}

	log.Info("starting content_blocks", slog.String("env", cfg.Env))

	application, err := app.New(context.Background(), log, cfg)
	if err != nil {
		log.Error("failed to init application", sl.Err(err))
		os.Exit(1)
	}

	go func() {
		application.HTTPServer.MustRun()
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)

	sign := <-stop
	log.Info("stopping application", slog.String("signal", sign.String()))

	application.Stop()

	log.Info("Gracefully stopped")
}

func banner(cfg *config.Config) {
	title := color.New(color.FgCyan, color.Bold)
	title.Println("content_blocks")

	storage := "memory"
	if cfg.DSN != "" {
		storage = "postgres"
	}
	cacheBackend := "memory"
	if cfg.Redis.RedisAddr != "" {
		cacheBackend = "redis " + cfg.Redis.RedisAddr
	}

	color.Green("  http:    %s:%s", cfg.HTTP.Host, cfg.HTTP.Port)
	color.Yellow("  storage: %s", storage)
	color.Yellow("  cache:   %s", cacheBackend)
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			}),
		)
	}

	return log
}
