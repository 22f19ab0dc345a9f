// Package risk computes a heuristic risk score for a transaction.
package risk

import (
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/aegisshield/chain-monitor/internal/models"
)

// MaxScore is the upper clamp of the scoring scale.
const MaxScore = 10.0

// JitterBound is the exclusive upper bound of the random component added to
// every score.
const JitterBound = 2.0

const nightBonus = 1.0

// Amount tiers, highest applicable only.
var (
	tierLarge  = decimal.NewFromInt(100000)
	tierMedium = decimal.NewFromInt(50000)
	tierSmall  = decimal.NewFromInt(10000)
)

// Scorer computes risk scores. The random source is injected so tests can
// seed it for deterministic output. Safe for concurrent use.
type Scorer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewScorer creates a scorer drawing jitter from the given source.
func NewScorer(src rand.Source) *Scorer {
	return &Scorer{rng: rand.New(src)}
}

// Score maps a transaction's attributes to a score in [0, MaxScore].
// Large amounts and night-hour activity raise the base; a bounded random
// jitter in [0, JitterBound) is added before clamping.
func (s *Scorer) Score(tx *models.Transaction) float64 {
	score := amountTier(tx.Amount)

	hour := tx.Timestamp.Local().Hour()
	if hour >= 22 || hour <= 4 {
		score += nightBonus
	}

	s.mu.Lock()
	score += s.rng.Float64() * JitterBound
	s.mu.Unlock()

	if score > MaxScore {
		score = MaxScore
	}
	if score < 0 {
		score = 0
	}
	return score
}

func amountTier(amount string) float64 {
	value, err := decimal.NewFromString(amount)
	if err != nil {
		// An unparseable amount contributes nothing to the score.
		return 0
	}
	switch {
	case value.GreaterThan(tierLarge):
		return 3
	case value.GreaterThan(tierMedium):
		return 2
	case value.GreaterThan(tierSmall):
		return 1
	default:
		return 0
	}
}
