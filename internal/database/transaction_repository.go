package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aegisshield/chain-monitor/internal/models"
)

// TransactionRepository provides database operations for transactions
type TransactionRepository struct {
	db *Database
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *Database) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// TransactionFilter narrows List results
type TransactionFilter struct {
	Status       string
	Network      string
	MinRiskScore float64
	Address      string
}

// Create inserts a transaction. A duplicate hash is a benign no-op; the
// returned bool reports whether a row was actually written.
func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) (bool, error) {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "hash"}},
		DoNothing: true,
	}).Create(tx)
	if res.Error != nil {
		return false, fmt.Errorf("failed to create transaction %s: %w", tx.Hash, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// GetByHash retrieves a transaction by hash, or nil if absent
func (r *TransactionRepository) GetByHash(ctx context.Context, hash string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.WithContext(ctx).Where("hash = ?", hash).First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get transaction %s: %w", hash, err)
	}
	return &tx, nil
}

// List retrieves transactions with filtering and pagination
func (r *TransactionRepository) List(ctx context.Context, filter TransactionFilter, limit, offset int) ([]*models.Transaction, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Transaction{})

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Network != "" {
		query = query.Where("network = ?", filter.Network)
	}
	if filter.MinRiskScore > 0 {
		query = query.Where("risk_score >= ?", filter.MinRiskScore)
	}
	if filter.Address != "" {
		query = query.Where("from_address = ? OR to_address = ?", filter.Address, filter.Address)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	var txs []*models.Transaction
	err := query.Order("timestamp DESC").Limit(limit).Offset(offset).Find(&txs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, total, nil
}

// ListHighRisk retrieves transactions at or above a risk score observed
// since the given time
func (r *TransactionRepository) ListHighRisk(ctx context.Context, since time.Time, minScore float64, limit int) ([]*models.Transaction, error) {
	var txs []*models.Transaction
	err := r.db.WithContext(ctx).
		Where("timestamp >= ? AND risk_score >= ?", since, minScore).
		Order("risk_score DESC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list high risk transactions: %w", err)
	}
	return txs, nil
}

// ListUnscored retrieves transactions not yet analyzed
func (r *TransactionRepository) ListUnscored(ctx context.Context, limit int) ([]*models.Transaction, error) {
	var txs []*models.Transaction
	err := r.db.WithContext(ctx).
		Where("risk_score <= 0 AND analyzed_at IS NULL").
		Order("timestamp ASC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unscored transactions: %w", err)
	}
	return txs, nil
}

// ListScoredAbove retrieves analyzed transactions at or above a risk score
func (r *TransactionRepository) ListScoredAbove(ctx context.Context, minScore float64, limit int) ([]*models.Transaction, error) {
	var txs []*models.Transaction
	err := r.db.WithContext(ctx).
		Where("analyzed_at IS NOT NULL AND risk_score >= ?", minScore).
		Order("risk_score DESC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list scored transactions: %w", err)
	}
	return txs, nil
}

// MarkAnalyzed writes the risk score and analysis time once. The analyzed_at
// guard keeps a already-scored transaction from being re-scored.
func (r *TransactionRepository) MarkAnalyzed(ctx context.Context, id uuid.UUID, score float64, analyzedAt time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND analyzed_at IS NULL", id).
		Updates(map[string]interface{}{
			"risk_score":  score,
			"analyzed_at": analyzedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark transaction %s analyzed: %w", id, err)
	}
	return nil
}

// Count returns the total number of transactions
func (r *TransactionRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Transaction{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return total, nil
}

// CountAnalyzed returns the number of scored transactions
func (r *TransactionRepository) CountAnalyzed(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("analyzed_at IS NOT NULL").
		Count(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count analyzed transactions: %w", err)
	}
	return total, nil
}

// CountSince returns the number of transactions observed since a time
func (r *TransactionRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("timestamp >= ?", since).
		Count(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions since %s: %w", since, err)
	}
	return total, nil
}

// RecentRiskScores returns the most recent computed scores, newest first
func (r *TransactionRepository) RecentRiskScores(ctx context.Context, limit int) ([]float64, error) {
	var scores []float64
	err := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("analyzed_at IS NOT NULL").
		Order("analyzed_at DESC").
		Limit(limit).
		Pluck("risk_score", &scores).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent risk scores: %w", err)
	}
	return scores, nil
}
