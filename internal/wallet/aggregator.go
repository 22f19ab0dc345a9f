// Package wallet maintains per-address running aggregates over scored
// transactions.
package wallet

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/aegisshield/chain-monitor/internal/models"
)

// Store is the persistence surface the aggregator folds into.
type Store interface {
	GetByAddress(ctx context.Context, address string) (*models.WalletProfile, error)
	Create(ctx context.Context, profile *models.WalletProfile) error
	Update(ctx context.Context, profile *models.WalletProfile) error
}

// Aggregator incrementally folds scored transactions into wallet profiles.
// Mutations for the same address are serialized by a per-address lock so
// concurrent folds cannot lose updates.
type Aggregator struct {
	store Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewAggregator creates an aggregator over the given store.
func NewAggregator(store Store) *Aggregator {
	return &Aggregator{
		store: store,
		locks: make(map[string]*sync.Mutex),
	}
}

// Tier maps a risk score to its risk level. Thresholds are inclusive lower
// bounds, checked highest-first.
func Tier(score float64) models.RiskLevel {
	switch {
	case score >= 8:
		return models.RiskLevelCritical
	case score >= 6:
		return models.RiskLevelHigh
	case score >= 4:
		return models.RiskLevelMedium
	default:
		return models.RiskLevelLow
	}
}

// FoldTransaction incorporates one scored transaction into the profile for
// the given address, creating the profile on first sight. The running mean
// is maintained incrementally, never recomputed from history.
func (a *Aggregator) FoldTransaction(ctx context.Context, address string, tx *models.Transaction) (*models.WalletProfile, error) {
	lock := a.addressLock(address)
	lock.Lock()
	defer lock.Unlock()

	profile, err := a.store.GetByAddress(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet profile for %s: %w", address, err)
	}

	if profile == nil {
		profile = &models.WalletProfile{
			Address:           address,
			TotalTransactions: 1,
			TotalValue:        tx.Amount,
			AverageRiskScore:  tx.RiskScore,
			FirstSeen:         tx.Timestamp,
			LastSeen:          tx.Timestamp,
			RiskLevel:         Tier(tx.RiskScore),
		}
		if err := a.store.Create(ctx, profile); err != nil {
			return nil, fmt.Errorf("failed to create wallet profile for %s: %w", address, err)
		}
		return profile, nil
	}

	total, err := addDecimal(profile.TotalValue, tx.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to add transaction value for %s: %w", address, err)
	}

	oldCount := float64(profile.TotalTransactions)
	profile.TotalTransactions++
	profile.TotalValue = total
	profile.AverageRiskScore = (profile.AverageRiskScore*oldCount + tx.RiskScore) / float64(profile.TotalTransactions)
	profile.LastSeen = tx.Timestamp
	profile.RiskLevel = Tier(profile.AverageRiskScore)

	if err := a.store.Update(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to update wallet profile for %s: %w", address, err)
	}
	return profile, nil
}

func (a *Aggregator) addressLock(address string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	lock, ok := a.locks[address]
	if !ok {
		lock = &sync.Mutex{}
		a.locks[address] = lock
	}
	return lock
}

func addDecimal(a, b string) (string, error) {
	left, err := decimal.NewFromString(a)
	if err != nil {
		return "", fmt.Errorf("invalid decimal %q: %w", a, err)
	}
	right, err := decimal.NewFromString(b)
	if err != nil {
		return "", fmt.Errorf("invalid decimal %q: %w", b, err)
	}
	return left.Add(right).String(), nil
}
