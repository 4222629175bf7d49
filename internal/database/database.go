package database

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"signal-risk-bot/internal/config"
	"signal-risk-bot/internal/models"
)

// NewDatabase opens the configured database and migrates the schema.
func NewDatabase(cfg config.Database) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Driver != "postgres" {
		if err := tuneSQLite(db, cfg.DSN); err != nil {
			return nil, err
		}
	}

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// tuneSQLite serializes writers through a single connection. In-memory
// databases are per-connection, so they must never open a second one.
func tuneSQLite(db *gorm.DB, dsn string) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if strings.Contains(dsn, ":memory:") {
		return nil
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	return nil
}

// AutoMigrate creates or updates the tables. Existing rows are kept so a
// restart recovers open signals and the last bot configuration.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Signal{}, &models.BotConfig{}); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return nil
}
