package ratelimit

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	apperrors "campusnotes/internal/errors"
)

// Response headers set on every limited route.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Policies for the credential endpoints.
var (
	LoginPolicy         = Config{Window: 15 * time.Minute, Max: 10}
	PasswordResetPolicy = Config{Window: 15 * time.Minute, Max: 3}
)

// Key prefixes for the credential endpoints.
const (
	LoginKeyPrefix         = "login"
	PasswordResetKeyPrefix = "forgot-password"
)

const maxPeekBytes = 64 << 10

// KeyFunc derives the limiter key from a request.
type KeyFunc func(c echo.Context) string

// IPKey keys requests by the caller's network address.
func IPKey(c echo.Context) string {
	return c.RealIP()
}

// EmailKey keys requests by prefix, caller address and the lowercased "email"
// field of the JSON body. The body is restored for the handler.
func EmailKey(prefix string) KeyFunc {
	return func(c echo.Context) string {
		return prefix + ":" + c.RealIP() + ":" + peekEmail(c.Request())
	}
}

func peekEmail(req *http.Request) string {
	if req.Body == nil || req.Body == http.NoBody {
		return ""
	}
	head, err := io.ReadAll(io.LimitReader(req.Body, maxPeekBytes))
	req.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), req.Body), req.Body}
	if err != nil {
		return ""
	}

	var payload struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(head, &payload); err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(payload.Email))
}

// MiddlewareConfig configures Middleware.
type MiddlewareConfig struct {
	Limiter *Limiter
	// KeyFunc defaults to IPKey.
	KeyFunc KeyFunc
	// Message is the error text of throttled responses.
	Message string
	Logger  *slog.Logger
}

// Middleware enforces the limiter on every request. Store failures are
// logged and the request is let through.
func Middleware(cfg MiddlewareConfig) echo.MiddlewareFunc {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = IPKey
	}
	if cfg.Message == "" {
		cfg.Message = apperrors.ErrRateLimited.Error()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			d, err := cfg.Limiter.Allow(ctx, cfg.KeyFunc(c))
			if err != nil {
				cfg.Logger.WarnContext(ctx, "rate limiter unavailable, admitting request",
					"path", c.Path(), "err", err)
				return next(c)
			}

			h := c.Response().Header()
			h.Set(HeaderLimit, strconv.Itoa(d.Limit))
			h.Set(HeaderRemaining, strconv.Itoa(d.Remaining))
			h.Set(HeaderReset, strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				retry := d.RetryAfterSeconds()
				h.Set(HeaderRetryAfter, strconv.FormatInt(retry, 10))
				cfg.Logger.InfoContext(ctx, "request throttled", "path", c.Path(), "ip", c.RealIP())
				return c.JSON(http.StatusTooManyRequests, apperrors.RateLimitResponse{
					Error:      cfg.Message,
					RetryAfter: retry,
				})
			}
			return next(c)
		}
	}
}
