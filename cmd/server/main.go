package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"campusnotes/internal/auth"
	"campusnotes/internal/cache"
	"campusnotes/internal/config"
	"campusnotes/internal/db"
	"campusnotes/internal/handler"
	"campusnotes/internal/logging"
	"campusnotes/internal/mail"
	"campusnotes/internal/ratelimit"
	"campusnotes/internal/repository"
	"campusnotes/internal/router"
	"campusnotes/internal/service"
)

const shutdownTimeout = 10 * time.Second

// @title CampusNotes Auth API
// @version 1.0
// @description Signup, login, session refresh and password recovery for CampusNotes.
// @host localhost:8080
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	cfg := config.Load()
	logger := logging.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gormDB, err := db.Open(cfg.DBDriver, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	if cfg.ResetDB {
		logger.Warn("RESET_DB=true detected, dropping all tables")
		db.Reset(gormDB, logger)
	}
	if err := db.Migrate(gormDB); err != nil {
		return err
	}

	cacheClient := cache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cacheClient.Close()
	if err := cacheClient.Ping(ctx); err != nil {
		logger.Warn("redis unreachable, continuing without cache", "addr", cfg.RedisAddr, "err", err)
	}

	// Repositories
	userRepo := repository.NewUserRepository(gormDB)
	refreshRepo := repository.NewRefreshTokenRepository(gormDB)
	resetRepo := repository.NewPasswordResetRepository(gormDB)

	mailer, err := mail.New(cfg, logger)
	if err != nil {
		return err
	}

	// Services
	jwtService := auth.NewJWTService(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	authService, err := service.NewAuthService(userRepo, refreshRepo, jwtService, service.AuthConfig{
		AllowedDomains: cfg.AllowedEmailDomains,
		BcryptCost:     cfg.BcryptCost,
	}, logger)
	if err != nil {
		return err
	}
	userService := service.NewUserService(userRepo, cacheClient)
	passwordService := service.NewPasswordService(userRepo, resetRepo, mailer, userService, service.PasswordConfig{
		ResetTTL:    cfg.ResetTokenTTL,
		BcryptCost:  cfg.BcryptCost,
		FrontendURL: cfg.FrontendURL,
	}, logger)

	// Background workers
	dispatcher := service.NewResetDispatcher(passwordService, logger, 0)
	defer dispatcher.Close()
	service.NewTokenJanitor(refreshRepo, resetRepo, logger).Start(ctx, service.DefaultJanitorInterval)

	var store ratelimit.Store
	switch cfg.RateLimitBackend {
	case "redis":
		store = ratelimit.NewRedisStore(cacheClient)
	default:
		memory := ratelimit.NewMemoryStore()
		memory.StartSweeper(ctx, ratelimit.SweepInterval)
		store = memory
	}
	limiters := router.Limiters{
		Login:         ratelimit.New(store, ratelimit.LoginPolicy),
		PasswordReset: ratelimit.New(store, ratelimit.PasswordResetPolicy),
	}

	e := echo.New()
	e.HideBanner = true
	router.Register(
		e,
		cfg,
		logger,
		limiters,
		handler.NewAuthHandler(authService, logger),
		handler.NewPasswordHandler(passwordService, dispatcher, logger),
		handler.NewUserHandler(userService, logger),
	)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.ServerPort
		logger.Info("server listening", "addr", addr, "rate_limit_backend", cfg.RateLimitBackend, "mail_enabled", cfg.MailEnabled())
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
