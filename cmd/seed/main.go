package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"campusnotes/internal/auth"
	"campusnotes/internal/config"
	"campusnotes/internal/db"
	apperrors "campusnotes/internal/errors"
	"campusnotes/internal/logging"
	"campusnotes/internal/model"
	"campusnotes/internal/repository"
	"campusnotes/internal/service"
)

// demoPassword is shared by every seeded account.
const demoPassword = "password1"

func demoAccounts(domain string) []service.SignupInput {
	return []service.SignupInput{
		{Name: "Demo Student", Email: "student@" + domain, Role: model.RoleStudent, Branch: "CSE", Semester: 3, Section: "A"},
		{Name: "Demo Student Two", Email: "student2@" + domain, Role: model.RoleStudent, Branch: "ECE", Semester: 5, Section: "B"},
		{Name: "Demo Teacher", Email: "teacher@" + domain, Role: model.RoleTeacher, Branch: "CSE"},
	}
}

func main() {
	cfg := config.Load()
	logger := logging.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)

	created, skipped, err := run(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("seed failed", "err", err)
		os.Exit(1)
	}
	logger.Info("seed completed", "created", created, "skipped", skipped)
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) (created, skipped int, err error) {
	if len(cfg.AllowedEmailDomains) == 0 {
		return 0, 0, errors.New("ALLOWED_EMAIL_DOMAINS is empty")
	}

	gormDB, err := db.Open(cfg.DBDriver, cfg.DatabaseDSN)
	if err != nil {
		return 0, 0, err
	}
	if err := db.Migrate(gormDB); err != nil {
		return 0, 0, err
	}

	jwtService := auth.NewJWTService(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	refreshRepo := repository.NewRefreshTokenRepository(gormDB)
	authService, err := service.NewAuthService(repository.NewUserRepository(gormDB), refreshRepo, jwtService, service.AuthConfig{
		AllowedDomains: cfg.AllowedEmailDomains,
		BcryptCost:     cfg.BcryptCost,
	}, logger)
	if err != nil {
		return 0, 0, err
	}

	return seedAccounts(ctx, authService, refreshRepo, demoAccounts(cfg.AllowedEmailDomains[0]), logger)
}

// seedAccounts signs up each account that does not exist yet. Sessions opened
// by signup are revoked again since nobody holds their tokens.
func seedAccounts(ctx context.Context, authService service.AuthService, refreshRepo repository.RefreshTokenRepository, accounts []service.SignupInput, logger *slog.Logger) (created, skipped int, err error) {
	for _, in := range accounts {
		in.Password = demoPassword
		res, err := authService.Signup(ctx, in)
		if errors.Is(err, apperrors.ErrUserAlreadyExists) {
			logger.Info("account exists, skipping", "email", in.Email)
			skipped++
			continue
		}
		if err != nil {
			return created, skipped, fmt.Errorf("create %s: %w", in.Email, err)
		}
		if _, err := refreshRepo.DeleteByUser(ctx, res.User.ID); err != nil {
			return created, skipped, fmt.Errorf("revoke seed session of %s: %w", in.Email, err)
		}
		logger.Info("account created", "email", in.Email, "role", in.Role)
		created++
	}
	return created, skipped, nil
}
