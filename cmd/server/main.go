// Supply Gate API server entrypoint. Loads configuration, connects to
// MariaDB and Redis, runs migrations, wires the application, and serves
// HTTP until interrupted.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/supplygate/backend/internal/app"
	"github.com/supplygate/backend/internal/config"
	"github.com/supplygate/backend/internal/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	setupLogging(cfg)

	slog.Info("starting supply gate api",
		slog.String("env", cfg.Env),
		slog.Int("port", cfg.Port),
	)

	db, err := database.NewMariaDB(cfg.Database)
	if err != nil {
		slog.Error("failed to connect to mariadb", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if err := database.RunMigrations(db, "migrations"); err != nil {
		slog.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	rdb, err := database.NewRedis(cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer rdb.Close()

	a := app.New(cfg, db, rdb)
	a.RegisterRoutes()

	// Graceful shutdown: stop accepting new connections on SIGINT/SIGTERM
	// and give in-flight requests up to 10 seconds to finish.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		sig := <-quit

		slog.Info("shutting down", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := a.Echo.Shutdown(ctx); err != nil {
			slog.Error("forced shutdown", slog.Any("error", err))
		}
	}()

	if err := a.Start(); err != nil && err != http.ErrServerClosed {
		slog.Error("server stopped unexpectedly", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("server stopped")
}

// setupLogging configures the global slog logger. Development gets readable
// text output, production gets JSON for log aggregation.
func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
