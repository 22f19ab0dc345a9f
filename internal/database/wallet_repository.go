package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aegisshield/chain-monitor/internal/models"
)

// WalletRepository provides database operations for wallet profiles
type WalletRepository struct {
	db *Database
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(db *Database) *WalletRepository {
	return &WalletRepository{db: db}
}

// GetByAddress retrieves a profile by address, or nil if absent
func (r *WalletRepository) GetByAddress(ctx context.Context, address string) (*models.WalletProfile, error) {
	var profile models.WalletProfile
	err := r.db.WithContext(ctx).Where("address = ?", address).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get wallet profile %s: %w", address, err)
	}
	return &profile, nil
}

// Create inserts a new wallet profile
func (r *WalletRepository) Create(ctx context.Context, profile *models.WalletProfile) error {
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(profile).Error; err != nil {
		return fmt.Errorf("failed to create wallet profile %s: %w", profile.Address, err)
	}
	return nil
}

// Update saves an existing wallet profile
func (r *WalletRepository) Update(ctx context.Context, profile *models.WalletProfile) error {
	if err := r.db.WithContext(ctx).Save(profile).Error; err != nil {
		return fmt.Errorf("failed to update wallet profile %s: %w", profile.Address, err)
	}
	return nil
}

// List retrieves wallet profiles with optional risk level filtering
func (r *WalletRepository) List(ctx context.Context, riskLevel string, limit, offset int) ([]*models.WalletProfile, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.WalletProfile{})
	if riskLevel != "" {
		query = query.Where("risk_level = ?", riskLevel)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count wallet profiles: %w", err)
	}

	var profiles []*models.WalletProfile
	err := query.Order("average_risk_score DESC").Limit(limit).Offset(offset).Find(&profiles).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list wallet profiles: %w", err)
	}
	return profiles, total, nil
}

// CountByRiskLevel returns profile counts grouped by risk level
func (r *WalletRepository) CountByRiskLevel(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Key   string
		Count int64
	}
	err := r.db.WithContext(ctx).Model(&models.WalletProfile{}).
		Select("risk_level AS key, COUNT(*) AS count").
		Group("risk_level").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count wallet profiles by risk level: %w", err)
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Key] = row.Count
	}
	return counts, nil
}
