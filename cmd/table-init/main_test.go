package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/defenseunicorns/uds-preflight-scan/internal/data/db"
	"github.com/defenseunicorns/uds-preflight-scan/internal/data/model"
	"github.com/defenseunicorns/uds-preflight-scan/internal/sql"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_KEY", "test_value")
	assert.Equal(t, "test_value", getEnv("TEST_KEY", "default"))
	assert.Equal(t, "default", getEnv("NON_EXISTENT_KEY", "default"))
}

func TestGetConfig(t *testing.T) {
	t.Setenv("DB_TYPE", "postgres")
	t.Setenv("DB_PATH", "test.db")
	t.Setenv("DATABASE_URL", "postgres://scan@localhost/history")

	config := getConfig()

	assert.Equal(t, "postgres", config.DB.Type)
	assert.Equal(t, "test.db", config.DB.Path)
	assert.Equal(t, "postgres://scan@localhost/history", config.DB.DSN)
}

// MockDBConnector is a mock implementation of sql.DBConnector.
type MockDBConnector struct {
	mock.Mock
}

func (m *MockDBConnector) Connect(ctx context.Context) (*gorm.DB, error) {
	args := m.Called(ctx)
	return args.Get(0).(*gorm.DB), args.Error(1)
}

func factoryFor(c sql.DBConnector) connectorFactory {
	return func(sql.Config) (sql.DBConnector, error) {
		return c, nil
	}
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	mockDB := &gorm.DB{}
	mockConnector := new(MockDBConnector)
	mockConnector.On("Connect", ctx).Return(mockDB, nil)

	var migrated *gorm.DB
	err := run(ctx, &Config{}, factoryFor(mockConnector), func(d *gorm.DB) error {
		migrated = d
		return nil
	})

	require.NoError(t, err)
	assert.Same(t, mockDB, migrated)
	mockConnector.AssertExpectations(t)
}

func TestRunErrors(t *testing.T) {
	ctx := context.Background()
	noMigrate := func(*gorm.DB) error { return nil }

	t.Run("connector", func(t *testing.T) {
		err := run(ctx, &Config{DB: sql.Config{Type: "mysql"}}, sql.CreateDBConnector, noMigrate)
		require.ErrorContains(t, err, "failed to create connector")
	})

	t.Run("connect", func(t *testing.T) {
		mockConnector := new(MockDBConnector)
		mockConnector.On("Connect", ctx).Return((*gorm.DB)(nil), assert.AnError)
		err := run(ctx, &Config{}, factoryFor(mockConnector), noMigrate)
		require.ErrorContains(t, err, "failed to connect to database")
		mockConnector.AssertExpectations(t)
	})

	t.Run("migrate", func(t *testing.T) {
		mockConnector := new(MockDBConnector)
		mockConnector.On("Connect", ctx).Return(&gorm.DB{}, nil)
		err := run(ctx, &Config{}, factoryFor(mockConnector), func(*gorm.DB) error { return assert.AnError })
		require.ErrorContains(t, err, "failed to migrate database")
	})
}

func TestRunCreatesHistoryTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	config := &Config{DB: sql.Config{Type: sql.TypeSQLite, Path: path}}

	require.NoError(t, run(context.Background(), config, sql.CreateDBConnector, db.Migrate))

	conn, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)
	columnChecks := map[interface{}][]string{
		&model.ScanRun{}:    {"ID", "FQDN", "StartedAt"},
		&model.ImageScan{}:  {"ID", "RunID", "Verdict"},
		&model.TestResult{}: {"ID", "ImageScanID", "Status"},
	}
	for m, columns := range columnChecks {
		require.True(t, conn.Migrator().HasTable(m), "expected table for %T", m)
		for _, column := range columns {
			assert.True(t, conn.Migrator().HasColumn(m, column), "expected column %s in %T", column, m)
		}
	}
}
