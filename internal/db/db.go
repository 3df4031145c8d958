// Package db opens the relational store and manages its schema.
package db

import (
	"fmt"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"campusnotes/internal/model"
)

// Supported drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// models lists every table, parents first.
var models = []interface{}{
	&model.User{},
	&model.RefreshToken{},
	&model.PasswordResetRequest{},
}

// Open connects with the named driver. Driver errors are translated so unique
// violations surface as gorm.ErrDuplicatedKey.
func Open(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}
	switch driver {
	case DriverMySQL:
		return NewMySQL(dsn, cfg)
	case DriverPostgres:
		return NewPostgres(dsn, cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// Reset drops every table, children first. Missing tables are skipped.
func Reset(db *gorm.DB, log *slog.Logger) {
	for i := len(models) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(models[i]); err != nil {
			log.Warn("drop table failed (may not exist)", "err", err)
		}
	}
}
