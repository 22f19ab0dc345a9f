// Package simulator generates synthetic transactions for development and
// demo environments.
package simulator

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aegisshield/chain-monitor/internal/config"
	"github.com/aegisshield/chain-monitor/internal/models"
	"github.com/aegisshield/chain-monitor/internal/realtime"
)

// addressPoolSize bounds the synthetic address space so wallet profiles
// accumulate history instead of every transaction minting a fresh address.
const addressPoolSize = 40

// Store persists generated transactions.
type Store interface {
	Create(ctx context.Context, tx *models.Transaction) (bool, error)
}

// Broadcaster pushes generated transactions to connected clients.
type Broadcaster interface {
	Broadcast(eventType string, data interface{})
}

// Simulator emits a synthetic transaction on a fixed interval.
type Simulator struct {
	store       Store
	broadcaster Broadcaster
	network     string
	interval    time.Duration

	mu        sync.Mutex
	rng       *rand.Rand
	addresses []string
	block     int64

	logger *zap.Logger
}

// New creates a simulator. The seed makes the generated stream
// reproducible; a zero seed falls back to the current time.
func New(cfg *config.SimulatorConfig, store Store, broadcaster Broadcaster, logger *zap.Logger) *Simulator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	addresses := make([]string, addressPoolSize)
	for i := range addresses {
		addresses[i] = randomHex(rng, 40)
	}

	return &Simulator{
		store:       store,
		broadcaster: broadcaster,
		network:     cfg.Network,
		interval:    time.Duration(cfg.IntervalSeconds) * time.Second,
		rng:         rng,
		addresses:   addresses,
		block:       1_000_000 + rng.Int63n(1_000_000),
		logger:      logger.Named("simulator"),
	}
}

// Run emits transactions until the context is cancelled.
func (s *Simulator) Run(ctx context.Context) {
	s.logger.Info("simulator started",
		zap.Duration("interval", s.interval),
		zap.String("network", s.network))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("simulator stopped")
			return
		case <-ticker.C:
			s.emit(ctx)
		}
	}
}

func (s *Simulator) emit(ctx context.Context) {
	tx := s.Generate()
	created, err := s.store.Create(ctx, tx)
	if err != nil {
		s.logger.Error("failed to persist synthetic transaction", zap.Error(err))
		return
	}
	if !created {
		return
	}
	s.broadcaster.Broadcast(realtime.EventTransactionUpdate, tx)
}

// Generate builds one synthetic transaction. Amounts are tiered so a
// realistic share of the stream trips the large transfer heuristics.
func (s *Simulator) Generate() *models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.block++
	from := s.addresses[s.rng.Intn(len(s.addresses))]
	to := s.addresses[s.rng.Intn(len(s.addresses))]
	for to == from {
		to = s.addresses[s.rng.Intn(len(s.addresses))]
	}

	return &models.Transaction{
		Hash:        "0x" + randomHex(s.rng, 64),
		BlockNumber: s.block,
		FromAddress: "0x" + from,
		ToAddress:   "0x" + to,
		Amount:      s.randomAmount(),
		GasPrice:    fmt.Sprintf("%d", 10+s.rng.Intn(190)),
		GasUsed:     21000 + s.rng.Int63n(200000),
		Timestamp:   time.Now().UTC(),
		Status:      models.TransactionStatusPending,
		Network:     s.network,
	}
}

// randomAmount draws from tiers: mostly small transfers, occasionally
// amounts large enough to trigger risk scoring bonuses.
func (s *Simulator) randomAmount() string {
	roll := s.rng.Float64()
	switch {
	case roll < 0.70:
		return fmt.Sprintf("%.2f", 10+s.rng.Float64()*9990)
	case roll < 0.90:
		return fmt.Sprintf("%.2f", 10_000+s.rng.Float64()*40_000)
	case roll < 0.97:
		return fmt.Sprintf("%.2f", 50_000+s.rng.Float64()*50_000)
	default:
		return fmt.Sprintf("%.2f", 100_000+s.rng.Float64()*900_000)
	}
}

const hexDigits = "0123456789abcdef"

func randomHex(rng *rand.Rand, n int) string {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = hexDigits[rng.Intn(len(hexDigits))]
	}
	return string(buf)
}
