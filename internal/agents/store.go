package agents

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aegisshield/chain-monitor/internal/models"
)

// AgentStore is the persistence surface the scheduler drives agents through.
type AgentStore interface {
	List(ctx context.Context) ([]*models.Agent, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Agent, error)
	FindByType(ctx context.Context, t models.AgentType) (*models.Agent, error)
	Create(ctx context.Context, agent *models.Agent) error
	Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (*models.Agent, error)
}

// TransactionStore is the transaction surface the handlers work against.
type TransactionStore interface {
	Create(ctx context.Context, tx *models.Transaction) (bool, error)
	ListHighRisk(ctx context.Context, since time.Time, minScore float64, limit int) ([]*models.Transaction, error)
	ListUnscored(ctx context.Context, limit int) ([]*models.Transaction, error)
	ListScoredAbove(ctx context.Context, minScore float64, limit int) ([]*models.Transaction, error)
	MarkAnalyzed(ctx context.Context, id uuid.UUID, score float64, analyzedAt time.Time) error
}

// AlertStore is the alert surface the handlers work against. Create must
// treat a duplicate transaction hash as a no-op, reporting false.
type AlertStore interface {
	Create(ctx context.Context, alert *models.Alert) (bool, error)
	ExistsForTransaction(ctx context.Context, hash string) (bool, error)
}

// ReportStore is the report surface the reporting handler works against.
type ReportStore interface {
	Create(ctx context.Context, report *models.Report) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Report, error)
	DailySummaryExists(ctx context.Context, day time.Time) (bool, error)
}

// Broadcaster pushes typed events to connected dashboard clients.
// Fire-and-forget; implementations must never block the caller.
type Broadcaster interface {
	Broadcast(eventType string, data interface{})
}

// ReportGenerator drives a report through its progress ladder to a terminal
// state.
type ReportGenerator interface {
	Generate(ctx context.Context, report *models.Report) error
}

// Feed is a buffered source of externally ingested transactions drained by
// the monitor agent. A nil Feed means no ingestion is configured.
type Feed interface {
	Drain(max int) []*models.Transaction
}
