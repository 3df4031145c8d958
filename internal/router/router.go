package router

import (
	"log/slog"
	"net/http"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"

	"campusnotes/docs"
	"campusnotes/internal/auth"
	"campusnotes/internal/config"
	apperrors "campusnotes/internal/errors"
	"campusnotes/internal/handler"
	"campusnotes/internal/logging"
	"campusnotes/internal/ratelimit"
)

// Limiters holds the per-route rate limiters.
type Limiters struct {
	Login         *ratelimit.Limiter
	PasswordReset *ratelimit.Limiter
}

// Register wires routes and middleware.
func Register(
	e *echo.Echo,
	cfg *config.Config,
	logger *slog.Logger,
	limiters Limiters,
	authHandler *handler.AuthHandler,
	passwordHandler *handler.PasswordHandler,
	userHandler *handler.UserHandler,
) {
	e.IPExtractor = ClientIPExtractor(cfg.TrustedProxies, logger)

	e.Use(middleware.RequestID())
	e.Use(logging.RequestLogger(logger))
	e.Use(middleware.Recover())

	e.Validator = NewValidator(cfg.AllowedEmailDomains)

	if cfg.SwaggerHost != "" {
		docs.SwaggerInfo.Host = cfg.SwaggerHost
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	a := e.Group("/auth")

	a.POST("/signup", authHandler.Signup)
	a.POST("/login", authHandler.Login, ratelimit.Middleware(ratelimit.MiddlewareConfig{
		Limiter: limiters.Login,
		KeyFunc: ratelimit.EmailKey(ratelimit.LoginKeyPrefix),
		Message: "Too many login attempts. Please try again later.",
		Logger:  logger,
	}))
	a.POST("/refresh", authHandler.Refresh)
	a.POST("/logout", authHandler.Logout)

	a.POST("/forgot-password", passwordHandler.ForgotPassword, ratelimit.Middleware(ratelimit.MiddlewareConfig{
		Limiter: limiters.PasswordReset,
		KeyFunc: ratelimit.EmailKey(ratelimit.PasswordResetKeyPrefix),
		Message: "Too many password reset requests. Please try again later.",
		Logger:  logger,
	}))
	a.POST("/reset-password", passwordHandler.ResetPassword)
	a.GET("/verify-reset-token/:token", passwordHandler.VerifyResetToken)

	// Secured routes (require a valid access token)
	requireAccess := echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(cfg.JWTAccessSecret),
		TokenLookup:   "header:" + echo.HeaderAuthorization + ":Bearer ",
		NewClaimsFunc: auth.NewClaims,
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusUnauthorized, apperrors.ErrorResponse{
				Error: "missing or invalid access token",
				Code:  "UNAUTHORIZED",
			})
		},
	})

	a.GET("/me", userHandler.Me, requireAccess)
}
