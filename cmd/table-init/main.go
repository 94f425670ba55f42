package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/defenseunicorns/uds-preflight-scan/internal/data/db"
	"github.com/defenseunicorns/uds-preflight-scan/internal/log"
	"github.com/defenseunicorns/uds-preflight-scan/internal/sql"
)

// Config holds the history database settings read from the environment.
type Config struct {
	DB sql.Config
}

type connectorFactory func(sql.Config) (sql.DBConnector, error)

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getConfig() *Config {
	return &Config{
		DB: sql.Config{
			Type:                   getEnv("DB_TYPE", sql.TypeSQLite),
			Path:                   getEnv("DB_PATH", "preflight_scan_history.db"),
			DSN:                    getEnv("DATABASE_URL", ""),
			InstanceConnectionName: getEnv("INSTANCE_CONNECTION_NAME", ""),
			User:                   getEnv("DB_USER", ""),
			Password:               getEnv("DB_PASSWORD", ""),
			DBName:                 getEnv("DB_NAME", ""),
		},
	}
}

// run creates the history tables ahead of the first scan so that several
// scanners can share one postgres database.
func run(ctx context.Context, config *Config, newConnector connectorFactory, migrate func(*gorm.DB) error) error {
	connector, err := newConnector(config.DB)
	if err != nil {
		return fmt.Errorf("failed to create connector: %w", err)
	}
	database, err := connector.Connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := migrate(database); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	log.NewLogger(ctx).Info("History tables ready", zap.String("type", config.DB.Type))
	return nil
}

func main() {
	logger, err := log.New(os.Stderr, getEnv("LOG_LEVEL", "info"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	ctx := log.WithLogger(context.Background(), logger)
	if err := run(ctx, getConfig(), sql.CreateDBConnector, db.Migrate); err != nil {
		logger.Fatalf("failed to set up history database", zap.Error(err))
	}
}
