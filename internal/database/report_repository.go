package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aegisshield/chain-monitor/internal/models"
)

// ReportRepository provides database operations for reports
type ReportRepository struct {
	db *Database
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *Database) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create inserts a new report
func (r *ReportRepository) Create(ctx context.Context, report *models.Report) error {
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(report).Error; err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	return nil
}

// Get retrieves a report by ID
func (r *ReportRepository) Get(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	var report models.Report
	if err := r.db.WithContext(ctx).First(&report, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to get report %s: %w", id, err)
	}
	return &report, nil
}

// List retrieves reports with optional status filtering
func (r *ReportRepository) List(ctx context.Context, status string, limit, offset int) ([]*models.Report, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Report{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count reports: %w", err)
	}

	var reports []*models.Report
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&reports).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reports: %w", err)
	}
	return reports, total, nil
}

// Update applies a partial update and returns the updated report
func (r *ReportRepository) Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (*models.Report, error) {
	if err := r.db.WithContext(ctx).Model(&models.Report{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		return nil, fmt.Errorf("failed to update report %s: %w", id, err)
	}
	return r.Get(ctx, id)
}

// ListDue retrieves scheduled reports whose scheduled time has passed
func (r *ReportRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Report, error) {
	var reports []*models.Report
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_for IS NOT NULL AND scheduled_for <= ?", models.ReportStatusScheduled, now).
		Order("scheduled_for ASC").
		Limit(limit).
		Find(&reports).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list due reports: %w", err)
	}
	return reports, nil
}

// DailySummaryExists reports whether a daily summary was already created
// for the calendar day containing the given time
func (r *ReportRepository) DailySummaryExists(ctx context.Context, day time.Time) (bool, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)

	var count int64
	err := r.db.WithContext(ctx).Model(&models.Report{}).
		Where("type = ? AND created_at >= ? AND created_at < ?", models.ReportTypeDailySummary, start, end).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check daily summary existence: %w", err)
	}
	return count > 0, nil
}
