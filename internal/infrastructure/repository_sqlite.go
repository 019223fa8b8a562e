package infrastructure

import (
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yourusername/getcomics-go/internal/domain"
)

// filterColumns are the columns FindAll accepts as filters
var filterColumns = map[string]bool{
	"state":     true,
	"transport": true,
	"url":       true,
	"title":     true,
}

// SQLiteTransferRepository implements TransferRepository using SQLite
type SQLiteTransferRepository struct {
	db *gorm.DB
}

// NewSQLiteTransferRepository opens (or creates) the history database
func NewSQLiteTransferRepository(dbPath string) (*SQLiteTransferRepository, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&domain.TransferTask{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteTransferRepository{db: db}, nil
}

// Save creates or updates a transfer
func (r *SQLiteTransferRepository) Save(task *domain.TransferTask) error {
	return r.db.Save(task).Error
}

// FindByID finds a transfer by ID; nil when absent
func (r *SQLiteTransferRepository) FindByID(id string) (*domain.TransferTask, error) {
	var task domain.TransferTask
	err := r.db.First(&task, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// FindByDestination returns the newest transfer that targeted path
func (r *SQLiteTransferRepository) FindByDestination(path string) (*domain.TransferTask, error) {
	var task domain.TransferTask
	err := r.db.Where("destination_path = ?", path).
		Order("created_at DESC").
		First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// FindAll lists transfers newest first. A limit <= 0 means no limit.
func (r *SQLiteTransferRepository) FindAll(filters map[string]interface{}, limit int) ([]*domain.TransferTask, error) {
	var tasks []*domain.TransferTask
	query := r.db

	for key, value := range filters {
		if !filterColumns[key] {
			return nil, fmt.Errorf("unsupported filter: %s", key)
		}
		query = query.Where(fmt.Sprintf("%s = ?", key), value)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Order("created_at DESC").Find(&tasks).Error
	return tasks, err
}

// GetStats returns transfer statistics
func (r *SQLiteTransferRepository) GetStats() (*domain.TransferStats, error) {
	stats := &domain.TransferStats{}

	if err := r.db.Model(&domain.TransferTask{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	stateCounts := []struct {
		State domain.TransferState
		Count int64
	}{}

	if err := r.db.Model(&domain.TransferTask{}).
		Select("state, count(*) as count").
		Group("state").
		Scan(&stateCounts).Error; err != nil {
		return nil, err
	}

	for _, sc := range stateCounts {
		switch sc.State {
		case domain.StatePending:
			stats.Pending = sc.Count
		case domain.StateInFlight:
			stats.InFlight = sc.Count
		case domain.StateCompleted:
			stats.Completed = sc.Count
		case domain.StateFailed:
			stats.Failed = sc.Count
		}
	}

	var bytes struct{ Total int64 }
	if err := r.db.Model(&domain.TransferTask{}).
		Select("COALESCE(SUM(bytes_transferred), 0) as total").
		Where("state = ?", domain.StateCompleted).
		Scan(&bytes).Error; err != nil {
		return nil, err
	}
	stats.Bytes = bytes.Total

	return stats, nil
}

// Close closes the database connection
func (r *SQLiteTransferRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
