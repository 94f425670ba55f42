package sql

import (
	"context"
	"errors"
	"fmt"
	"net"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported database types.
const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
	TypeCloudSQL = "cloudsql"
)

var (
	errUnknownDBType = errors.New("unknown database type")
	errMissingOption = errors.New("missing database option")
)

// Config holds the settings for every supported connector. Only the fields relevant to Type are read.
type Config struct {
	Type string `yaml:"type"`
	// Path is the SQLite database file.
	Path string `yaml:"path"`
	// DSN is the postgres connection string.
	DSN string `yaml:"dsn"`
	// InstanceConnectionName is the Cloud SQL instance in project:region:instance form.
	InstanceConnectionName string `yaml:"instanceConnectionName"`
	User                   string `yaml:"user"`
	Password               string `yaml:"password"`
	DBName                 string `yaml:"dbName"`
}

// DBConnector is an interface for database connections.
type DBConnector interface {
	Connect(ctx context.Context) (*gorm.DB, error)
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}
}

// SQLiteConnector implements DBConnector for SQLite connections.
type SQLiteConnector struct {
	dbPath string
}

// Connect connects to the SQLite database.
func (c *SQLiteConnector) Connect(ctx context.Context) (*gorm.DB, error) {
	database, err := gorm.Open(sqlite.Open(c.dbPath), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite database: %w", err)
	}
	return database.WithContext(ctx), nil
}

// PostgresConnector implements DBConnector for a postgres server reachable by DSN.
type PostgresConnector struct {
	dsn string
}

// Connect connects to postgres through the pgx stdlib driver.
func (c *PostgresConnector) Connect(ctx context.Context) (*gorm.DB, error) {
	config, err := pgx.ParseConfig(c.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	return openPgx(ctx, config)
}

// CloudSQLConnector implements DBConnector for Cloud SQL connections.
type CloudSQLConnector struct {
	instanceConnectionName string
	user                   string
	password               string
	dbname                 string
}

// Connect connects to the database using the Cloud SQL connection.
func (c *CloudSQLConnector) Connect(ctx context.Context) (*gorm.DB, error) {
	dialer, err := cloudsqlconn.NewDialer(ctx, cloudsqlconn.WithIAMAuthN())
	if err != nil {
		// Fallback to using password if IAMAuthN fails
		dialer, err = cloudsqlconn.NewDialer(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create dialer: %w", err)
		}
	}

	config, err := pgx.ParseConfig(fmt.Sprintf("user=%s password=%s dbname=%s sslmode=disable",
		c.user, c.password, c.dbname))
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	config.DialFunc = func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dialer.Dial(ctx, c.instanceConnectionName)
		if err != nil {
			return nil, fmt.Errorf("failed to dial Cloud SQL instance: %w", err)
		}
		return conn, nil
	}
	return openPgx(ctx, config)
}

func openPgx(ctx context.Context, config *pgx.ConnConfig) (*gorm.DB, error) {
	sqlDB := stdlib.OpenDB(*config)
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to the database: %w", err)
	}
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gorm with pgx connection: %w", err)
	}
	return gormDB, nil
}

// CreateDBConnector is a factory function that returns the appropriate DBConnector.
func CreateDBConnector(cfg Config) (DBConnector, error) {
	switch cfg.Type {
	case TypeSQLite, "":
		if cfg.Path == "" {
			return nil, fmt.Errorf("%w: sqlite needs a path", errMissingOption)
		}
		return &SQLiteConnector{dbPath: cfg.Path}, nil
	case TypePostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("%w: postgres needs a dsn", errMissingOption)
		}
		return &PostgresConnector{dsn: cfg.DSN}, nil
	case TypeCloudSQL:
		if cfg.InstanceConnectionName == "" || cfg.DBName == "" {
			return nil, fmt.Errorf("%w: cloudsql needs an instance connection name and a database name", errMissingOption)
		}
		return &CloudSQLConnector{
			instanceConnectionName: cfg.InstanceConnectionName,
			user:                   cfg.User,
			password:               cfg.Password,
			dbname:                 cfg.DBName,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownDBType, cfg.Type)
	}
}
