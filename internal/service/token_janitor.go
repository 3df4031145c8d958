package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"campusnotes/internal/repository"
)

// DefaultJanitorInterval is how often expired credential rows are purged.
const DefaultJanitorInterval = time.Hour

// TokenJanitor deletes expired refresh tokens and reset requests. Expired
// rows are already rejected on lookup; purging only bounds table growth.
type TokenJanitor struct {
	refresh repository.RefreshTokenRepository
	resets  repository.PasswordResetRepository
	logger  *slog.Logger
	now     func() time.Time
}

// NewTokenJanitor creates a janitor over both credential tables.
func NewTokenJanitor(refresh repository.RefreshTokenRepository, resets repository.PasswordResetRepository, logger *slog.Logger) *TokenJanitor {
	return &TokenJanitor{refresh: refresh, resets: resets, logger: logger, now: time.Now}
}

// RunOnce purges everything that expired before now.
func (j *TokenJanitor) RunOnce(ctx context.Context) (refreshRemoved, resetsRemoved int64, err error) {
	now := j.now()
	refreshRemoved, err = j.refresh.DeleteExpired(ctx, now)
	if err != nil {
		return 0, 0, fmt.Errorf("purge refresh tokens: %w", err)
	}
	resetsRemoved, err = j.resets.DeleteExpired(ctx, now)
	if err != nil {
		return refreshRemoved, 0, fmt.Errorf("purge reset requests: %w", err)
	}
	return refreshRemoved, resetsRemoved, nil
}

// Start runs RunOnce every interval until ctx is done.
func (j *TokenJanitor) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				refresh, resets, err := j.RunOnce(ctx)
				if err != nil {
					j.logger.ErrorContext(ctx, "token janitor run failed", "err", err)
					continue
				}
				if refresh > 0 || resets > 0 {
					j.logger.InfoContext(ctx, "expired credentials purged", "refresh_tokens", refresh, "reset_requests", resets)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
