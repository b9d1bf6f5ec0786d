// Package db opens the relational store backing users and prediction history.
package db

import (
	"fmt"
	"log/slog"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"diabetesrisk/internal/config"
	"diabetesrisk/internal/logger"
	"diabetesrisk/internal/model"
)

// Open connects to the database selected by cfg.DBDriver.
func Open(cfg *config.Config) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: logger.NewGormLogger(gormLevel(cfg.LogLevel))}
	switch cfg.DBDriver {
	case config.DriverMySQL:
		return NewMySQL(cfg.MySQLDSN, gcfg)
	case config.DriverSQLite:
		return NewSQLite(cfg.SQLitePath, gcfg)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.DBDriver)
	}
}

func gormLevel(level string) gormlogger.LogLevel {
	if logger.ParseLevel(level) <= slog.LevelDebug {
		return gormlogger.Info
	}
	return gormlogger.Warn
}

// Models lists every persisted type, parents first.
func Models() []interface{} {
	return []interface{}{
		&model.User{},
		&model.PredictionRecord{},
	}
}

// Migrate creates or updates the schema. With reset set the tables are
// dropped first, children before parents.
func Migrate(db *gorm.DB, reset bool) error {
	models := Models()
	if reset {
		for i := len(models) - 1; i >= 0; i-- {
			if err := db.Migrator().DropTable(models[i]); err != nil {
				return fmt.Errorf("drop table: %w", err)
			}
		}
		slog.Warn("database tables dropped", "tables", len(models))
	}
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}
