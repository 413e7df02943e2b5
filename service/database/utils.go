package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hanamichi-me/DW-traffic/service/config"
)

// Open connects to the run store described by cfg. On postgres the configured
// schema is created first so migrations land in it.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.ConnString())
	case "sqlite":
		dialector = sqlite.Open(cfg.ConnString())
	default:
		return nil, fmt.Errorf("database: unsupported driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("database: connect %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == "sqlite" {
		// sqlite allows a single writer
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}

	if cfg.Driver == "postgres" && cfg.Schema != "" && !CheckSchemaExists(db, cfg.Schema) {
		if err := CreateSchema(db, cfg.Schema); err != nil {
			return nil, err
		}
	}

	slog.Info("database connected", "driver", cfg.Driver)
	return db, nil
}

// CheckSchemaExists reports whether a postgres schema exists.
func CheckSchemaExists(db *gorm.DB, schemaName string) bool {
	var count int64
	db.Raw("SELECT COUNT(*) FROM information_schema.schemata WHERE schema_name = ?", schemaName).Scan(&count)
	return count > 0
}

// CreateSchema creates a postgres schema if it is missing.
func CreateSchema(db *gorm.DB, schemaName string) error {
	slog.Info("creating schema", "schema", schemaName)
	if err := db.Exec("CREATE SCHEMA IF NOT EXISTS " + pq.QuoteIdentifier(schemaName)).Error; err != nil {
		return fmt.Errorf("database: create schema %s: %w", schemaName, err)
	}
	return nil
}

// Ping checks the connection; used by the readiness check.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
