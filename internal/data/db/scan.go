package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/defenseunicorns/uds-preflight-scan/internal/data/model"
	"github.com/defenseunicorns/uds-preflight-scan/internal/log"
)

var errNilDB = errors.New("db cannot be nil")

// RunManager defines the interface for persisting scan runs.
type RunManager interface {
	// InsertRun inserts a run with its image scans and test results.
	InsertRun(ctx context.Context, run *model.ScanRun) error
	// GetRun retrieves a run with its image scans and test results.
	GetRun(ctx context.Context, id uint) (*model.ScanRun, error)
	// ListRuns returns the most recent runs, newest first, without their image scans.
	ListRuns(ctx context.Context, limit int) ([]model.ScanRun, error)
	// DeleteRunsBefore deletes runs started before t and returns how many were removed.
	DeleteRunsBefore(ctx context.Context, t time.Time) (int64, error)
}

// GormRunManager implements the RunManager interface using a GORM DB connection.
type GormRunManager struct {
	db *gorm.DB
}

// Migrate creates or updates the history tables.
func Migrate(db *gorm.DB) error {
	if db == nil {
		return errNilDB
	}
	if err := db.AutoMigrate(&model.ScanRun{}, &model.ImageScan{}, &model.TestResult{}); err != nil {
		return fmt.Errorf("failed to migrate history tables: %w", err)
	}
	return nil
}

// NewGormRunManager creates a new GormRunManager.
func NewGormRunManager(db *gorm.DB) (*GormRunManager, error) {
	if db == nil {
		return nil, errNilDB
	}
	return &GormRunManager{db: db}, nil
}

// InsertRun inserts a run with its image scans and test results in one transaction.
func (manager *GormRunManager) InsertRun(ctx context.Context, run *model.ScanRun) error {
	if run == nil {
		return fmt.Errorf("run cannot be nil")
	}
	logger := log.NewLogger(ctx)
	logger.Debug("InsertRun", zap.String("fqdn", run.FQDN), zap.Int("images", len(run.Images)))

	err := manager.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return fmt.Errorf("error inserting run: %w", err)
		}
		if run.ID == 0 {
			return fmt.Errorf("error inserting run the ID is 0")
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}
	return nil
}

// GetRun retrieves a run with its image scans and test results.
func (manager *GormRunManager) GetRun(ctx context.Context, id uint) (*model.ScanRun, error) {
	logger := log.NewLogger(ctx)
	logger.Debug("GetRun", zap.Uint("id", id))

	byID := func(db *gorm.DB) *gorm.DB { return db.Order("id") }
	var run model.ScanRun
	err := manager.db.WithContext(ctx).
		Preload("Images", byID).
		Preload("Images.Results", byID).
		First(&run, id).Error
	if err != nil {
		return nil, fmt.Errorf("error retrieving run: %w", err)
	}
	return &run, nil
}

// ListRuns returns at most limit runs, newest first. A limit <= 0 returns all runs.
func (manager *GormRunManager) ListRuns(ctx context.Context, limit int) ([]model.ScanRun, error) {
	logger := log.NewLogger(ctx)
	logger.Debug("ListRuns", zap.Int("limit", limit))

	query := manager.db.WithContext(ctx).Order("started_at desc").Order("id desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var runs []model.ScanRun
	if err := query.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("error listing runs: %w", err)
	}
	return runs, nil
}

// DeleteRunsBefore deletes runs started before t along with their image scans and test results.
func (manager *GormRunManager) DeleteRunsBefore(ctx context.Context, t time.Time) (int64, error) {
	logger := log.NewLogger(ctx)
	logger.Debug("DeleteRunsBefore", zap.Time("before", t))

	var deleted int64
	err := manager.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var runIDs []uint
		if err := tx.Model(&model.ScanRun{}).Where("started_at < ?", t).Pluck("id", &runIDs).Error; err != nil {
			return fmt.Errorf("failed to find runs: %w", err)
		}
		if len(runIDs) == 0 {
			return nil
		}

		var imageIDs []uint
		if err := tx.Model(&model.ImageScan{}).Where("run_id IN ?", runIDs).Pluck("id", &imageIDs).Error; err != nil {
			return fmt.Errorf("failed to find image scans: %w", err)
		}
		if len(imageIDs) > 0 {
			if err := tx.Where("image_scan_id IN ?", imageIDs).Delete(&model.TestResult{}).Error; err != nil {
				return fmt.Errorf("failed to delete test results: %w", err)
			}
			if err := tx.Where("id IN ?", imageIDs).Delete(&model.ImageScan{}).Error; err != nil {
				return fmt.Errorf("failed to delete image scans: %w", err)
			}
		}

		result := tx.Where("id IN ?", runIDs).Delete(&model.ScanRun{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete runs: %w", result.Error)
		}
		deleted = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("transaction failed: %w", err)
	}
	return deleted, nil
}
