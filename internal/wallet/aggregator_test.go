package wallet

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegisshield/chain-monitor/internal/models"
)

type memoryStore struct {
	mu       sync.Mutex
	profiles map[string]*models.WalletProfile
}

func newMemoryStore() *memoryStore {
	return &memoryStore{profiles: make(map[string]*models.WalletProfile)}
}

func (s *memoryStore) GetByAddress(ctx context.Context, address string) (*models.WalletProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[address]
	if !ok {
		return nil, nil
	}
	clone := *profile
	return &clone, nil
}

func (s *memoryStore) Create(ctx context.Context, profile *models.WalletProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *profile
	s.profiles[profile.Address] = &clone
	return nil
}

func (s *memoryStore) Update(ctx context.Context, profile *models.WalletProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *profile
	s.profiles[profile.Address] = &clone
	return nil
}

func scoredTx(amount string, score float64, at time.Time) *models.Transaction {
	return &models.Transaction{
		Hash:      "0x" + amount,
		Amount:    amount,
		RiskScore: score,
		Timestamp: at,
	}
}

func TestFoldCreatesProfileOnFirstSight(t *testing.T) {
	store := newMemoryStore()
	agg := NewAggregator(store)
	at := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	profile, err := agg.FoldTransaction(context.Background(), "0xwallet", scoredTx("1000", 3.5, at))
	require.NoError(t, err)

	assert.Equal(t, int64(1), profile.TotalTransactions)
	assert.Equal(t, "1000", profile.TotalValue)
	assert.Equal(t, 3.5, profile.AverageRiskScore)
	assert.Equal(t, models.RiskLevelLow, profile.RiskLevel)
	assert.Equal(t, at, profile.FirstSeen)
	assert.Equal(t, at, profile.LastSeen)
}

func TestFoldIncrementalMeanMatchesBatchMean(t *testing.T) {
	store := newMemoryStore()
	agg := NewAggregator(store)
	at := time.Now().UTC()

	scores := []float64{1.2, 9.7, 4.4, 0.3, 6.6, 8.1, 2.9, 5.5, 7.3, 3.8}
	sum := 0.0
	for i, score := range scores {
		tx := scoredTx(fmt.Sprintf("%d", 100+i), score, at.Add(time.Duration(i)*time.Minute))
		_, err := agg.FoldTransaction(context.Background(), "0xwallet", tx)
		require.NoError(t, err)
		sum += score
	}

	profile, err := store.GetByAddress(context.Background(), "0xwallet")
	require.NoError(t, err)
	require.NotNil(t, profile)

	assert.Equal(t, int64(len(scores)), profile.TotalTransactions)
	assert.InDelta(t, sum/float64(len(scores)), profile.AverageRiskScore, 1e-9)
}

func TestFoldAccumulatesValueExactly(t *testing.T) {
	store := newMemoryStore()
	agg := NewAggregator(store)
	at := time.Now().UTC()

	amounts := []string{"0.1", "0.2", "0.3"}
	for _, amount := range amounts {
		_, err := agg.FoldTransaction(context.Background(), "0xwallet", scoredTx(amount, 1, at))
		require.NoError(t, err)
	}

	profile, err := store.GetByAddress(context.Background(), "0xwallet")
	require.NoError(t, err)
	// Decimal arithmetic, not float.
	assert.Equal(t, "0.6", profile.TotalValue)
}

func TestTierBoundaries(t *testing.T) {
	tests := []struct {
		score float64
		level models.RiskLevel
	}{
		{0, models.RiskLevelLow},
		{3.99, models.RiskLevelLow},
		{4, models.RiskLevelMedium},
		{5.99, models.RiskLevelMedium},
		{6, models.RiskLevelHigh},
		{7.99, models.RiskLevelHigh},
		{8, models.RiskLevelCritical},
		{10, models.RiskLevelCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.level, Tier(tt.score), "score %.2f", tt.score)
	}
}

func TestFoldRecomputesRiskLevelFromAverage(t *testing.T) {
	store := newMemoryStore()
	agg := NewAggregator(store)
	at := time.Now().UTC()

	// Scores averaging exactly 6.0 put the wallet at high.
	for i, score := range []float64{4.0, 8.0, 6.0} {
		tx := scoredTx(fmt.Sprintf("%d", i), score, at)
		_, err := agg.FoldTransaction(context.Background(), "0xwallet", tx)
		require.NoError(t, err)
	}

	profile, err := store.GetByAddress(context.Background(), "0xwallet")
	require.NoError(t, err)
	assert.InDelta(t, 6.0, profile.AverageRiskScore, 1e-9)
	assert.Equal(t, models.RiskLevelHigh, profile.RiskLevel)
}

func TestFoldConcurrentSameAddress(t *testing.T) {
	store := newMemoryStore()
	agg := NewAggregator(store)
	at := time.Now().UTC()

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx := scoredTx(fmt.Sprintf("%d", i), 5, at)
			_, err := agg.FoldTransaction(context.Background(), "0xwallet", tx)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	profile, err := store.GetByAddress(context.Background(), "0xwallet")
	require.NoError(t, err)
	assert.Equal(t, int64(workers), profile.TotalTransactions)
	assert.InDelta(t, 5.0, profile.AverageRiskScore, 1e-9)
}
