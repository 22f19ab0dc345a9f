// Package stats computes dashboard aggregates over the store and caches
// them in redis.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/aegisshield/chain-monitor/internal/database"
)

const dashboardCacheKey = "chain-monitor:stats:dashboard"

// RiskDistribution summarizes the recent risk score population.
type RiskDistribution struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	P50    float64 `json:"p50"`
	P90    float64 `json:"p90"`
	P99    float64 `json:"p99"`
}

// Dashboard is the aggregate payload served to the UI and broadcast as
// stats_update events.
type Dashboard struct {
	GeneratedAt          time.Time         `json:"generated_at"`
	TotalTransactions    int64             `json:"total_transactions"`
	AnalyzedTransactions int64             `json:"analyzed_transactions"`
	TransactionsLast24h  int64             `json:"transactions_last_24h"`
	AlertsBySeverity     map[string]int64  `json:"alerts_by_severity"`
	AlertsByStatus       map[string]int64  `json:"alerts_by_status"`
	WalletsByRiskLevel   map[string]int64  `json:"wallets_by_risk_level"`
	AgentStatuses        map[string]string `json:"agent_statuses"`
	RiskDistribution     RiskDistribution  `json:"risk_distribution"`
}

// Summary is the reporting window aggregate rendered into report files.
type Summary struct {
	Since                time.Time        `json:"since"`
	Until                time.Time        `json:"until"`
	TotalTransactions    int64            `json:"total_transactions"`
	AnalyzedTransactions int64            `json:"analyzed_transactions"`
	AlertsBySeverity     map[string]int64 `json:"alerts_by_severity"`
	WalletsByRiskLevel   map[string]int64 `json:"wallets_by_risk_level"`
	RiskDistribution     RiskDistribution `json:"risk_distribution"`
}

// Service computes aggregates. The redis client may be nil, in which case
// every call recomputes from the store.
type Service struct {
	repos      *database.Repositories
	redis      *redis.Client
	cacheTTL   time.Duration
	sampleSize int
	logger     *zap.Logger
}

// NewService creates a stats service
func NewService(repos *database.Repositories, rdb *redis.Client, cacheTTL time.Duration, sampleSize int, logger *zap.Logger) *Service {
	return &Service{
		repos:      repos,
		redis:      rdb,
		cacheTTL:   cacheTTL,
		sampleSize: sampleSize,
		logger:     logger.Named("stats"),
	}
}

// Dashboard returns the cached dashboard aggregate, recomputing on miss.
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, dashboardCacheKey).Bytes()
		if err == nil {
			var dashboard Dashboard
			if err := json.Unmarshal(cached, &dashboard); err == nil {
				return &dashboard, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn("failed to read stats cache", zap.Error(err))
		}
	}

	dashboard, err := s.computeDashboard(ctx)
	if err != nil {
		return nil, err
	}

	if s.redis != nil {
		payload, err := json.Marshal(dashboard)
		if err == nil {
			if err := s.redis.Set(ctx, dashboardCacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn("failed to write stats cache", zap.Error(err))
			}
		}
	}
	return dashboard, nil
}

func (s *Service) computeDashboard(ctx context.Context) (*Dashboard, error) {
	total, err := s.repos.Transactions.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute dashboard stats: %w", err)
	}
	analyzed, err := s.repos.Transactions.CountAnalyzed(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute dashboard stats: %w", err)
	}
	last24h, err := s.repos.Transactions.CountSince(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to compute dashboard stats: %w", err)
	}
	alertsBySeverity, err := s.repos.Alerts.CountBySeverity(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute dashboard stats: %w", err)
	}
	alertsByStatus, err := s.repos.Alerts.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute dashboard stats: %w", err)
	}
	walletsByRisk, err := s.repos.Wallets.CountByRiskLevel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute dashboard stats: %w", err)
	}
	agents, err := s.repos.Agents.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute dashboard stats: %w", err)
	}
	scores, err := s.repos.Transactions.RecentRiskScores(ctx, s.sampleSize)
	if err != nil {
		return nil, fmt.Errorf("failed to compute dashboard stats: %w", err)
	}

	agentStatuses := make(map[string]string, len(agents))
	for _, agent := range agents {
		agentStatuses[string(agent.Type)] = string(agent.Status)
	}

	return &Dashboard{
		GeneratedAt:          time.Now().UTC(),
		TotalTransactions:    total,
		AnalyzedTransactions: analyzed,
		TransactionsLast24h:  last24h,
		AlertsBySeverity:     alertsBySeverity,
		AlertsByStatus:       alertsByStatus,
		WalletsByRiskLevel:   walletsByRisk,
		AgentStatuses:        agentStatuses,
		RiskDistribution:     Distribution(scores),
	}, nil
}

// Summary computes the reporting aggregate for a time window. Not cached;
// report generation is infrequent.
func (s *Service) Summary(ctx context.Context, since, until time.Time) (*Summary, error) {
	totalSince, err := s.repos.Transactions.CountSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to compute summary: %w", err)
	}
	analyzed, err := s.repos.Transactions.CountAnalyzed(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute summary: %w", err)
	}
	alertsBySeverity, err := s.repos.Alerts.CountBySeverity(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute summary: %w", err)
	}
	walletsByRisk, err := s.repos.Wallets.CountByRiskLevel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute summary: %w", err)
	}
	scores, err := s.repos.Transactions.RecentRiskScores(ctx, s.sampleSize)
	if err != nil {
		return nil, fmt.Errorf("failed to compute summary: %w", err)
	}

	return &Summary{
		Since:                since,
		Until:                until,
		TotalTransactions:    totalSince,
		AnalyzedTransactions: analyzed,
		AlertsBySeverity:     alertsBySeverity,
		WalletsByRiskLevel:   walletsByRisk,
		RiskDistribution:     Distribution(scores),
	}, nil
}

// Distribution computes mean, standard deviation, and quantiles over a
// score sample. An empty sample yields the zero distribution.
func Distribution(scores []float64) RiskDistribution {
	if len(scores) == 0 {
		return RiskDistribution{}
	}
	sorted := make([]float64, len(scores))
	copy(sorted, scores)
	sort.Float64s(sorted)

	// Sample standard deviation needs at least two points; NaN would break
	// JSON encoding of the dashboard payload.
	stddev := 0.0
	if len(sorted) > 1 {
		stddev = stat.StdDev(sorted, nil)
	}

	return RiskDistribution{
		Count:  len(sorted),
		Mean:   stat.Mean(sorted, nil),
		StdDev: stddev,
		P50:    stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P90:    stat.Quantile(0.9, stat.Empirical, sorted, nil),
		P99:    stat.Quantile(0.99, stat.Empirical, sorted, nil),
	}
}
