package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistributionEmptySample(t *testing.T) {
	assert.Equal(t, RiskDistribution{}, Distribution(nil))
	assert.Equal(t, RiskDistribution{}, Distribution([]float64{}))
}

func TestDistributionKnownSample(t *testing.T) {
	dist := Distribution([]float64{5, 1, 3, 2, 4})

	assert.Equal(t, 5, dist.Count)
	assert.InDelta(t, 3.0, dist.Mean, 1e-9)
	assert.InDelta(t, math.Sqrt(2.5), dist.StdDev, 1e-9)
	assert.InDelta(t, 3.0, dist.P50, 1e-9)
	assert.InDelta(t, 5.0, dist.P90, 1e-9)
	assert.InDelta(t, 5.0, dist.P99, 1e-9)
}

func TestDistributionDoesNotMutateInput(t *testing.T) {
	scores := []float64{9, 1, 5}
	Distribution(scores)
	assert.Equal(t, []float64{9, 1, 5}, scores)
}

func TestDistributionSingleValue(t *testing.T) {
	dist := Distribution([]float64{7.5})
	assert.Equal(t, 1, dist.Count)
	assert.InDelta(t, 7.5, dist.Mean, 1e-9)
	assert.InDelta(t, 7.5, dist.P50, 1e-9)
	assert.Zero(t, dist.StdDev)
}
