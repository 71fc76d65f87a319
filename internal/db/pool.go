// Package db is the PostgreSQL generation store.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"horse.fit/newsdesk/internal/config"
)

type Pool struct {
	gdb        *gorm.DB
	sqlDB      *sql.DB
	dimensions int
}

func NewPool(ctx context.Context, cfg *config.Config) (*Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	logLevel := resolveGormLogLevel(cfg.LogLevel, cfg.Environment)

	gdb, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get gorm sql db: %w", err)
	}

	maxOpen := int(cfg.DBMaxConns)
	if maxOpen <= 0 {
		maxOpen = 8
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(max(1, min(int(cfg.DBMinConns), maxOpen)))
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	pool := &Pool{
		gdb:        gdb,
		sqlDB:      sqlDB,
		dimensions: cfg.EmbeddingDimensions,
	}
	if err := pool.autoMigrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("auto-migrate schema: %w", err)
	}

	return pool, nil
}

func (p *Pool) Ping(ctx context.Context) error {
	if p == nil || p.sqlDB == nil {
		return fmt.Errorf("database pool is not initialized")
	}
	return p.sqlDB.PingContext(ctx)
}

func (p *Pool) Close() error {
	if p == nil || p.sqlDB == nil {
		return nil
	}
	return p.sqlDB.Close()
}

func resolveGormLogLevel(appLogLevel, environment string) logger.LogLevel {
	level := strings.ToLower(strings.TrimSpace(appLogLevel))
	switch level {
	case "trace", "debug":
		return logger.Info
	case "warn", "warning", "info", "":
		return logger.Warn
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		if strings.EqualFold(strings.TrimSpace(environment), "local") {
			return logger.Warn
		}
		return logger.Error
	}
}
