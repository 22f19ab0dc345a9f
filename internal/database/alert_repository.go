package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/aegisshield/chain-monitor/internal/models"
)

// AlertRepository provides database operations for alerts
type AlertRepository struct {
	db *Database
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *Database) *AlertRepository {
	return &AlertRepository{db: db}
}

// AlertFilter narrows List results
type AlertFilter struct {
	Severity string
	Status   string
	Type     string
}

// Create inserts an alert. When the alert carries a transaction hash that
// already has one, the partial unique index turns the insert into a no-op;
// the returned bool reports whether a row was written.
func (r *AlertRepository) Create(ctx context.Context, alert *models.Alert) (bool, error) {
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(alert)
	if res.Error != nil {
		return false, fmt.Errorf("failed to create alert: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ExistsForTransaction reports whether an alert already references the hash
func (r *AlertRepository) ExistsForTransaction(ctx context.Context, hash string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Alert{}).
		Where("transaction_hash = ?", hash).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check alert existence for %s: %w", hash, err)
	}
	return count > 0, nil
}

// Get retrieves an alert by ID
func (r *AlertRepository) Get(ctx context.Context, id uuid.UUID) (*models.Alert, error) {
	var alert models.Alert
	if err := r.db.WithContext(ctx).First(&alert, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to get alert %s: %w", id, err)
	}
	return &alert, nil
}

// List retrieves alerts with filtering and pagination
func (r *AlertRepository) List(ctx context.Context, filter AlertFilter, limit, offset int) ([]*models.Alert, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Alert{})

	if filter.Severity != "" {
		query = query.Where("severity = ?", filter.Severity)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	var alerts []*models.Alert
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&alerts).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, total, nil
}

// Update applies a partial update and returns the updated alert
func (r *AlertRepository) Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (*models.Alert, error) {
	if err := r.db.WithContext(ctx).Model(&models.Alert{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		return nil, fmt.Errorf("failed to update alert %s: %w", id, err)
	}
	return r.Get(ctx, id)
}

// CountBySeverity returns open alert counts grouped by severity
func (r *AlertRepository) CountBySeverity(ctx context.Context) (map[string]int64, error) {
	return r.countGrouped(ctx, "severity")
}

// CountByStatus returns alert counts grouped by status
func (r *AlertRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return r.countGrouped(ctx, "status")
}

func (r *AlertRepository) countGrouped(ctx context.Context, column string) (map[string]int64, error) {
	var rows []struct {
		Key   string
		Count int64
	}
	err := r.db.WithContext(ctx).Model(&models.Alert{}).
		Select(fmt.Sprintf("%s AS key, COUNT(*) AS count", column)).
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts by %s: %w", column, err)
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Key] = row.Count
	}
	return counts, nil
}
