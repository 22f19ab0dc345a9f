package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JSON is an opaque key-value bag stored as jsonb.
type JSON map[string]interface{}

// Value implements driver.Valuer.
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner.
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for JSON column: %T", value)
	}
	return json.Unmarshal(data, j)
}

// AgentType identifies which handler an agent dispatches to.
type AgentType string

const (
	AgentTypeMonitor          AgentType = "monitor"
	AgentTypeBehaviorAnalysis AgentType = "behavior_analysis"
	AgentTypeRiskScoring      AgentType = "risk_scoring"
	AgentTypeAlerting         AgentType = "alerting"
	AgentTypeReporting        AgentType = "reporting"
)

// AgentTypes lists every known agent type, one handler each.
var AgentTypes = []AgentType{
	AgentTypeMonitor,
	AgentTypeBehaviorAnalysis,
	AgentTypeRiskScoring,
	AgentTypeAlerting,
	AgentTypeReporting,
}

// AgentStatus represents the lifecycle state of an agent.
type AgentStatus string

const (
	AgentStatusActive     AgentStatus = "active"
	AgentStatusInactive   AgentStatus = "inactive"
	AgentStatusProcessing AgentStatus = "processing"
	AgentStatusError      AgentStatus = "error"
)

// Agent is a named, independently scheduled periodic task.
// Progress is non-zero only while the agent is processing.
type Agent struct {
	ID              uuid.UUID   `gorm:"type:uuid;primary_key" json:"id"`
	Name            string      `gorm:"not null" json:"name"`
	Type            AgentType   `gorm:"not null;uniqueIndex" json:"type"`
	Status          AgentStatus `gorm:"not null;index" json:"status"`
	Progress        int         `gorm:"not null;default:0" json:"progress"`
	LastRun         *time.Time  `json:"last_run,omitempty"`
	NextRun         *time.Time  `json:"next_run,omitempty"`
	IntervalSeconds int         `gorm:"not null" json:"interval_seconds"`
	Config          JSON        `gorm:"type:jsonb" json:"config"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// ConfigInt reads an integer config field, falling back to def when the
// field is missing or not a number.
func (a *Agent) ConfigInt(key string, def int) int {
	if a.Config == nil {
		return def
	}
	switch v := a.Config[key].(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case int:
		if v > 0 {
			return v
		}
	}
	return def
}

// ConfigString reads a string config field, falling back to def.
func (a *Agent) ConfigString(key, def string) string {
	if a.Config == nil {
		return def
	}
	if v, ok := a.Config[key].(string); ok && v != "" {
		return v
	}
	return def
}

// TransactionStatus represents the on-chain status of a transaction.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusConfirmed TransactionStatus = "confirmed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Transaction is an observed blockchain transaction. Hash is globally
// unique; duplicate-hash inserts are no-ops. RiskScore and AnalyzedAt are
// written once by the risk scoring agent and immutable thereafter.
type Transaction struct {
	ID          uuid.UUID         `gorm:"type:uuid;primary_key" json:"id"`
	Hash        string            `gorm:"not null;uniqueIndex" json:"hash"`
	BlockNumber int64             `json:"block_number"`
	FromAddress string            `gorm:"not null;index" json:"from_address"`
	ToAddress   string            `gorm:"not null;index" json:"to_address"`
	Amount      string            `gorm:"not null" json:"amount"`
	GasPrice    string            `json:"gas_price"`
	GasUsed     int64             `json:"gas_used"`
	Timestamp   time.Time         `gorm:"not null;index" json:"timestamp"`
	RiskScore   float64           `gorm:"not null;default:0;index" json:"risk_score"`
	Status      TransactionStatus `gorm:"not null;index" json:"status"`
	Network     string            `gorm:"not null;index" json:"network"`
	AnalyzedAt  *time.Time        `gorm:"index" json:"analyzed_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// AlertSeverity classifies how urgent an alert is.
type AlertSeverity string

const (
	AlertSeverityLow      AlertSeverity = "low"
	AlertSeverityMedium   AlertSeverity = "medium"
	AlertSeverityHigh     AlertSeverity = "high"
	AlertSeverityCritical AlertSeverity = "critical"
)

// AlertStatus represents the triage state of an alert. Transitions are
// monotonic: open -> investigating -> resolved or false_positive.
type AlertStatus string

const (
	AlertStatusOpen          AlertStatus = "open"
	AlertStatusInvestigating AlertStatus = "investigating"
	AlertStatusResolved      AlertStatus = "resolved"
	AlertStatusFalsePositive AlertStatus = "false_positive"
)

// Alert types produced by the automatic handlers.
const (
	AlertTypePatternAnalysis = "pattern_analysis"
	AlertTypeRiskThreshold   = "risk_threshold"
)

// Alert is a flagged condition for analyst review. The automatic handlers
// create at most one alert per transaction hash.
type Alert struct {
	ID              uuid.UUID     `gorm:"type:uuid;primary_key" json:"id"`
	Title           string        `gorm:"not null" json:"title"`
	Description     string        `json:"description"`
	Severity        AlertSeverity `gorm:"not null;index" json:"severity"`
	Type            string        `gorm:"not null;index" json:"type"`
	Status          AlertStatus   `gorm:"not null;index" json:"status"`
	TransactionHash *string       `json:"transaction_hash,omitempty"`
	WalletAddress   *string       `gorm:"index" json:"wallet_address,omitempty"`
	RiskScore       *float64      `json:"risk_score,omitempty"`
	Metadata        JSON          `gorm:"type:jsonb" json:"metadata"`
	ResolvedAt      *time.Time    `json:"resolved_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// RiskLevel is a step function of a numeric risk score.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// WalletProfile is the running aggregate over every scored transaction seen
// from an address. AverageRiskScore is maintained incrementally and equals
// the arithmetic mean of all folded scores.
type WalletProfile struct {
	ID                uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Address           string    `gorm:"not null;uniqueIndex" json:"address"`
	TotalTransactions int64     `gorm:"not null;default:0" json:"total_transactions"`
	TotalValue        string    `gorm:"not null;default:'0'" json:"total_value"`
	AverageRiskScore  float64   `gorm:"not null;default:0" json:"average_risk_score"`
	FirstSeen         time.Time `gorm:"not null" json:"first_seen"`
	LastSeen          time.Time `gorm:"not null" json:"last_seen"`
	RiskLevel         RiskLevel `gorm:"not null;index" json:"risk_level"`
	Tags              JSON      `gorm:"type:jsonb" json:"tags"`
	BehaviorPatterns  JSON      `gorm:"type:jsonb" json:"behavior_patterns"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ReportStatus represents the generation state of a report.
type ReportStatus string

const (
	ReportStatusScheduled  ReportStatus = "scheduled"
	ReportStatusGenerating ReportStatus = "generating"
	ReportStatusCompleted  ReportStatus = "completed"
	ReportStatusFailed     ReportStatus = "failed"
)

// ReportTypeDailySummary is the report created automatically once per
// calendar day by the reporting agent.
const ReportTypeDailySummary = "daily_summary"

// Report is a generated artifact. Scheduled reports whose ScheduledFor has
// passed are picked up by the reporting agent and driven to completion.
type Report struct {
	ID           uuid.UUID    `gorm:"type:uuid;primary_key" json:"id"`
	Title        string       `gorm:"not null" json:"title"`
	Type         string       `gorm:"not null;index" json:"type"`
	Status       ReportStatus `gorm:"not null;index" json:"status"`
	Progress     int          `gorm:"not null;default:0" json:"progress"`
	Format       string       `gorm:"not null" json:"format"`
	Parameters   JSON         `gorm:"type:jsonb" json:"parameters"`
	GeneratedBy  string       `json:"generated_by"`
	ScheduledFor *time.Time   `gorm:"index" json:"scheduled_for,omitempty"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
	FilePath     string       `json:"file_path,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// AuditLog is an append-only record of a mutating API call. Written by the
// HTTP layer, never read by the agents.
type AuditLog struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	UserID     string    `gorm:"index" json:"user_id"`
	Username   string    `json:"username"`
	Action     string    `gorm:"not null" json:"action"`
	Resource   string    `gorm:"not null;index" json:"resource"`
	ResourceID string    `json:"resource_id,omitempty"`
	Details    JSON      `gorm:"type:jsonb" json:"details"`
	IPAddress  string    `json:"ip_address"`
	UserAgent  string    `json:"user_agent"`
	Timestamp  time.Time `gorm:"not null;index" json:"timestamp"`
}

// User is a dashboard login.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Username     string    `gorm:"not null;uniqueIndex" json:"username"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Role         string    `gorm:"not null;default:'analyst'" json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
