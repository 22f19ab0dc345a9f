package agents

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aegisshield/chain-monitor/internal/clock"
	"github.com/aegisshield/chain-monitor/internal/metrics"
	"github.com/aegisshield/chain-monitor/internal/models"
	"github.com/aegisshield/chain-monitor/internal/realtime"
	"github.com/aegisshield/chain-monitor/internal/risk"
	"github.com/aegisshield/chain-monitor/internal/wallet"
)

// Handler is the type-specific logic an agent dispatches to at the midpoint
// of its cycle. Errors propagate to the scheduler failure policy; handlers
// never retry internally.
type Handler interface {
	Execute(ctx context.Context, agent *models.Agent) error
}

const (
	defaultLookbackHours = 24

	behaviorQueryLimit = 10
	behaviorMinScore   = 7.0
	behaviorAlertScore = 8.0

	scoringBatchLimit = 50

	alertingQueryLimit       = 10
	alertingDefaultThreshold = 6.0
	alertingHighThreshold    = 8.0

	reportingBatchLimit = 5

	monitorDrainLimit = 100
)

// HandlerDeps carries the collaborators shared across the handler set.
type HandlerDeps struct {
	Transactions TransactionStore
	Alerts       AlertStore
	Reports      ReportStore
	Scorer       *risk.Scorer
	Wallets      *wallet.Aggregator
	Generator    ReportGenerator
	Feed         Feed
	Broadcaster  Broadcaster
	Collector    *metrics.Collector
	Clock        clock.Clock
	Logger       *zap.Logger
}

// HandlerSet holds one handler per agent type.
type HandlerSet struct {
	monitor   Handler
	behavior  Handler
	scoring   Handler
	alerting  Handler
	reporting Handler
}

// NewHandlerSet builds the full handler set from shared dependencies.
func NewHandlerSet(deps HandlerDeps) *HandlerSet {
	logger := deps.Logger.Named("handlers")
	return &HandlerSet{
		monitor: &MonitorHandler{
			transactions: deps.Transactions,
			feed:         deps.Feed,
			broadcaster:  deps.Broadcaster,
			collector:    deps.Collector,
			logger:       logger,
		},
		behavior: &BehaviorAnalysisHandler{
			transactions: deps.Transactions,
			alerts:       deps.Alerts,
			broadcaster:  deps.Broadcaster,
			collector:    deps.Collector,
			clk:          deps.Clock,
			logger:       logger,
		},
		scoring: &RiskScoringHandler{
			transactions: deps.Transactions,
			scorer:       deps.Scorer,
			wallets:      deps.Wallets,
			broadcaster:  deps.Broadcaster,
			collector:    deps.Collector,
			clk:          deps.Clock,
			logger:       logger,
		},
		alerting: &AlertingHandler{
			transactions: deps.Transactions,
			alerts:       deps.Alerts,
			broadcaster:  deps.Broadcaster,
			collector:    deps.Collector,
			logger:       logger,
		},
		reporting: &ReportingHandler{
			reports:   deps.Reports,
			generator: deps.Generator,
			clk:       deps.Clock,
			logger:    logger,
		},
	}
}

// ForType returns the handler for an agent type. Every known type has a
// handler; an unknown type is a configuration error.
func (hs *HandlerSet) ForType(t models.AgentType) (Handler, error) {
	switch t {
	case models.AgentTypeMonitor:
		return hs.monitor, nil
	case models.AgentTypeBehaviorAnalysis:
		return hs.behavior, nil
	case models.AgentTypeRiskScoring:
		return hs.scoring, nil
	case models.AgentTypeAlerting:
		return hs.alerting, nil
	case models.AgentTypeReporting:
		return hs.reporting, nil
	default:
		return nil, fmt.Errorf("no handler for agent type %q", t)
	}
}

// MonitorHandler drains the external transaction feed into the store.
// Without a configured feed it performs no store mutation.
type MonitorHandler struct {
	transactions TransactionStore
	feed         Feed
	broadcaster  Broadcaster
	collector    *metrics.Collector
	logger       *zap.Logger
}

func (h *MonitorHandler) Execute(ctx context.Context, agent *models.Agent) error {
	if h.feed == nil {
		h.logger.Debug("no transaction feed configured, monitor cycle is a no-op")
		return nil
	}

	batch := h.feed.Drain(monitorDrainLimit)
	ingested := 0
	for _, tx := range batch {
		created, err := h.transactions.Create(ctx, tx)
		if err != nil {
			return fmt.Errorf("failed to ingest transaction %s: %w", tx.Hash, err)
		}
		if !created {
			// Duplicate hash, benign no-op.
			continue
		}
		ingested++
		h.collector.RecordIngested("feed")
		h.broadcaster.Broadcast(realtime.EventTransactionUpdate, tx)
	}

	if ingested > 0 {
		h.logger.Info("ingested transactions from feed", zap.Int("count", ingested))
	}
	return nil
}

// BehaviorAnalysisHandler flags recent high-risk transactions as pattern
// alerts, at most one alert per transaction hash.
type BehaviorAnalysisHandler struct {
	transactions TransactionStore
	alerts       AlertStore
	broadcaster  Broadcaster
	collector    *metrics.Collector
	clk          clock.Clock
	logger       *zap.Logger
}

func (h *BehaviorAnalysisHandler) Execute(ctx context.Context, agent *models.Agent) error {
	lookback := agent.ConfigInt("lookbackHours", defaultLookbackHours)
	since := h.clk.Now().Add(-time.Duration(lookback) * time.Hour)

	txs, err := h.transactions.ListHighRisk(ctx, since, behaviorMinScore, behaviorQueryLimit)
	if err != nil {
		return fmt.Errorf("failed to query high risk transactions: %w", err)
	}

	for _, tx := range txs {
		if tx.RiskScore < behaviorAlertScore {
			continue
		}
		exists, err := h.alerts.ExistsForTransaction(ctx, tx.Hash)
		if err != nil {
			return fmt.Errorf("failed to check existing alert for %s: %w", tx.Hash, err)
		}
		if exists {
			continue
		}

		severity := models.AlertSeverityHigh
		if tx.RiskScore >= 9 {
			severity = models.AlertSeverityCritical
		}
		alert := &models.Alert{
			Title:           fmt.Sprintf("Suspicious activity pattern on %s", shortHash(tx.Hash)),
			Description:     fmt.Sprintf("Transaction %s from %s scored %.2f in pattern analysis", tx.Hash, tx.FromAddress, tx.RiskScore),
			Severity:        severity,
			Type:            models.AlertTypePatternAnalysis,
			Status:          models.AlertStatusOpen,
			TransactionHash: &tx.Hash,
			WalletAddress:   &tx.FromAddress,
			RiskScore:       &tx.RiskScore,
			Metadata: models.JSON{
				"network": tx.Network,
				"amount":  tx.Amount,
			},
		}
		created, err := h.alerts.Create(ctx, alert)
		if err != nil {
			return fmt.Errorf("failed to create pattern alert for %s: %w", tx.Hash, err)
		}
		if created {
			h.collector.RecordAlert(string(severity), models.AlertTypePatternAnalysis)
			h.broadcaster.Broadcast(realtime.EventAlertUpdate, alert)
		}
	}
	return nil
}

// RiskScoringHandler scores unanalyzed transactions and folds each into the
// wallet profile of its sender. The analyzed_at gate keeps a transaction
// from being scored twice.
type RiskScoringHandler struct {
	transactions TransactionStore
	scorer       *risk.Scorer
	wallets      *wallet.Aggregator
	broadcaster  Broadcaster
	collector    *metrics.Collector
	clk          clock.Clock
	logger       *zap.Logger
}

func (h *RiskScoringHandler) Execute(ctx context.Context, agent *models.Agent) error {
	txs, err := h.transactions.ListUnscored(ctx, scoringBatchLimit)
	if err != nil {
		return fmt.Errorf("failed to query unscored transactions: %w", err)
	}

	for _, tx := range txs {
		score := h.scorer.Score(tx)
		now := h.clk.Now()

		if err := h.transactions.MarkAnalyzed(ctx, tx.ID, score, now); err != nil {
			return fmt.Errorf("failed to mark transaction %s analyzed: %w", tx.Hash, err)
		}
		tx.RiskScore = score
		tx.AnalyzedAt = &now
		h.collector.RecordScore(score)

		if _, err := h.wallets.FoldTransaction(ctx, tx.FromAddress, tx); err != nil {
			return fmt.Errorf("failed to fold transaction %s into wallet profile: %w", tx.Hash, err)
		}
		h.broadcaster.Broadcast(realtime.EventTransactionUpdate, tx)
	}

	if len(txs) > 0 {
		h.logger.Info("scored transactions", zap.Int("count", len(txs)))
	}
	return nil
}

// AlertingHandler raises threshold alerts for analyzed transactions whose
// score crosses the configured severity threshold.
type AlertingHandler struct {
	transactions TransactionStore
	alerts       AlertStore
	broadcaster  Broadcaster
	collector    *metrics.Collector
	logger       *zap.Logger
}

func (h *AlertingHandler) Execute(ctx context.Context, agent *models.Agent) error {
	threshold := alertingDefaultThreshold
	if agent.ConfigString("severityThreshold", "") == "high" {
		threshold = alertingHighThreshold
	}

	txs, err := h.transactions.ListScoredAbove(ctx, threshold, alertingQueryLimit)
	if err != nil {
		return fmt.Errorf("failed to query scored transactions: %w", err)
	}

	for _, tx := range txs {
		exists, err := h.alerts.ExistsForTransaction(ctx, tx.Hash)
		if err != nil {
			return fmt.Errorf("failed to check existing alert for %s: %w", tx.Hash, err)
		}
		if exists {
			continue
		}

		var severity models.AlertSeverity
		switch {
		case tx.RiskScore >= 9:
			severity = models.AlertSeverityCritical
		case tx.RiskScore >= 7:
			severity = models.AlertSeverityHigh
		default:
			severity = models.AlertSeverityMedium
		}
		alert := &models.Alert{
			Title:           fmt.Sprintf("Risk threshold exceeded on %s", shortHash(tx.Hash)),
			Description:     fmt.Sprintf("Transaction %s scored %.2f, above threshold %.1f", tx.Hash, tx.RiskScore, threshold),
			Severity:        severity,
			Type:            models.AlertTypeRiskThreshold,
			Status:          models.AlertStatusOpen,
			TransactionHash: &tx.Hash,
			WalletAddress:   &tx.FromAddress,
			RiskScore:       &tx.RiskScore,
			Metadata: models.JSON{
				"network":   tx.Network,
				"amount":    tx.Amount,
				"threshold": threshold,
			},
		}
		created, err := h.alerts.Create(ctx, alert)
		if err != nil {
			return fmt.Errorf("failed to create threshold alert for %s: %w", tx.Hash, err)
		}
		if created {
			h.collector.RecordAlert(string(severity), models.AlertTypeRiskThreshold)
			h.broadcaster.Broadcast(realtime.EventAlertUpdate, alert)
		}
	}
	return nil
}

// ReportingHandler generates due reports and schedules the daily summary
// once per calendar day.
type ReportingHandler struct {
	reports   ReportStore
	generator ReportGenerator
	clk       clock.Clock
	logger    *zap.Logger
}

func (h *ReportingHandler) Execute(ctx context.Context, agent *models.Agent) error {
	now := h.clk.Now()

	due, err := h.reports.ListDue(ctx, now, reportingBatchLimit)
	if err != nil {
		return fmt.Errorf("failed to query due reports: %w", err)
	}
	for _, report := range due {
		if err := h.generator.Generate(ctx, report); err != nil {
			return fmt.Errorf("failed to generate report %s: %w", report.ID, err)
		}
	}

	exists, err := h.reports.DailySummaryExists(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to check daily summary: %w", err)
	}
	if !exists {
		scheduledFor := now
		report := &models.Report{
			Title:        fmt.Sprintf("Daily summary %s", now.Format("2006-01-02")),
			Type:         models.ReportTypeDailySummary,
			Status:       models.ReportStatusScheduled,
			Format:       agent.ConfigString("format", "pdf"),
			GeneratedBy:  "reporting-agent",
			ScheduledFor: &scheduledFor,
			Parameters:   models.JSON{"period": "24h"},
		}
		if err := h.reports.Create(ctx, report); err != nil {
			return fmt.Errorf("failed to schedule daily summary: %w", err)
		}
		h.logger.Info("scheduled daily summary report", zap.String("report_id", report.ID.String()))
	}
	return nil
}

func shortHash(hash string) string {
	if len(hash) <= 10 {
		return hash
	}
	return hash[:10]
}
