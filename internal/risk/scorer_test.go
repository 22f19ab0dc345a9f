package risk

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegisshield/chain-monitor/internal/models"
)

func txAt(amount string, hour int) *models.Transaction {
	return &models.Transaction{
		Hash:        "0xabc",
		FromAddress: "0xfrom",
		Amount:      amount,
		Timestamp:   time.Date(2026, 3, 10, hour, 30, 0, 0, time.Local),
	}
}

func TestScoreAmountTiers(t *testing.T) {
	tests := []struct {
		amount string
		base   float64
	}{
		{"500", 0},
		{"10000", 0},
		{"10000.01", 1},
		{"50000", 1},
		{"60000", 2},
		{"100000", 2},
		{"150000", 3},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			scorer := NewScorer(rand.NewSource(1))
			score := scorer.Score(txAt(tt.amount, 12))
			assert.GreaterOrEqual(t, score, tt.base)
			assert.Less(t, score, tt.base+JitterBound)
		})
	}
}

func TestScoreNightHours(t *testing.T) {
	nightHours := []int{22, 23, 0, 1, 2, 3, 4}
	for _, hour := range nightHours {
		t.Run(fmt.Sprintf("hour_%d", hour), func(t *testing.T) {
			scorer := NewScorer(rand.NewSource(1))
			score := scorer.Score(txAt("500", hour))
			assert.GreaterOrEqual(t, score, 1.0, "night hour should add the bonus")
			assert.Less(t, score, 1.0+JitterBound)
		})
	}

	dayHours := []int{5, 12, 21}
	for _, hour := range dayHours {
		t.Run(fmt.Sprintf("hour_%d", hour), func(t *testing.T) {
			scorer := NewScorer(rand.NewSource(1))
			score := scorer.Score(txAt("500", hour))
			assert.Less(t, score, JitterBound)
		})
	}
}

func TestScoreLargeNightTransfer(t *testing.T) {
	// Largest amount tier plus night bonus gives base 4; with jitter the
	// score lands in [4, 6).
	scorer := NewScorer(rand.NewSource(42))
	score := scorer.Score(txAt("250000", 2))
	assert.GreaterOrEqual(t, score, 4.0)
	assert.Less(t, score, 6.0)
}

func TestScoreUnparseableAmount(t *testing.T) {
	scorer := NewScorer(rand.NewSource(1))
	score := scorer.Score(txAt("not-a-number", 12))
	assert.GreaterOrEqual(t, score, 0.0)
	assert.Less(t, score, JitterBound)
}

func TestScoreBounds(t *testing.T) {
	scorer := NewScorer(rand.NewSource(7))
	amounts := []string{"1", "20000", "75000", "500000"}
	for i := 0; i < 200; i++ {
		score := scorer.Score(txAt(amounts[i%len(amounts)], i%24))
		require.GreaterOrEqual(t, score, 0.0)
		require.LessOrEqual(t, score, MaxScore)
	}
}

func TestScoreDeterministicWithSeed(t *testing.T) {
	first := NewScorer(rand.NewSource(99))
	second := NewScorer(rand.NewSource(99))
	for i := 0; i < 50; i++ {
		tx := txAt("60000", i%24)
		assert.Equal(t, first.Score(tx), second.Score(tx))
	}
}
