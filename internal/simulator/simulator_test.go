package simulator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aegisshield/chain-monitor/internal/config"
)

func newTestSimulator(seed int64) *Simulator {
	cfg := &config.SimulatorConfig{
		Enabled:         true,
		IntervalSeconds: 5,
		Seed:            seed,
		Network:         "ethereum",
	}
	return New(cfg, nil, nil, zap.NewNop())
}

func TestGenerateProducesWellFormedTransactions(t *testing.T) {
	sim := newTestSimulator(7)

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		tx := sim.Generate()

		require.Len(t, tx.Hash, 66)
		assert.Equal(t, "0x", tx.Hash[:2])
		assert.False(t, seen[tx.Hash], "hashes must be unique")
		seen[tx.Hash] = true

		assert.NotEqual(t, tx.FromAddress, tx.ToAddress)
		assert.Equal(t, "ethereum", tx.Network)
		assert.Greater(t, tx.BlockNumber, int64(0))

		amount, err := decimal.NewFromString(tx.Amount)
		require.NoError(t, err)
		assert.True(t, amount.IsPositive())
	}
}

func TestGenerateBlockNumbersIncrease(t *testing.T) {
	sim := newTestSimulator(7)
	prev := sim.Generate().BlockNumber
	for i := 0; i < 20; i++ {
		next := sim.Generate().BlockNumber
		assert.Equal(t, prev+1, next)
		prev = next
	}
}

func TestGenerateDeterministicWithSeed(t *testing.T) {
	first := newTestSimulator(42)
	second := newTestSimulator(42)
	for i := 0; i < 50; i++ {
		a := first.Generate()
		b := second.Generate()
		assert.Equal(t, a.Hash, b.Hash)
		assert.Equal(t, a.Amount, b.Amount)
		assert.Equal(t, a.FromAddress, b.FromAddress)
	}
}
