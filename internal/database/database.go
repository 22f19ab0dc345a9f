package database

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aegisshield/chain-monitor/internal/config"
	"github.com/aegisshield/chain-monitor/internal/models"
)

// Database wraps the GORM database connection
type Database struct {
	*gorm.DB
}

// NewDatabase creates a new database connection
func NewDatabase(cfg *config.DatabaseConfig) (*Database, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.Username,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConnections)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConnections)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	return &Database{DB: db}, nil
}

// AutoMigrate runs automatic migration for all models
func (db *Database) AutoMigrate() error {
	if err := db.DB.AutoMigrate(
		&models.Agent{},
		&models.Transaction{},
		&models.Alert{},
		&models.WalletProfile{},
		&models.Report{},
		&models.AuditLog{},
		&models.User{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	// One automatic alert per transaction hash; manual alerts may omit the
	// hash, so the uniqueness is partial. Insert paths use ON CONFLICT DO
	// NOTHING so concurrent check-then-insert collapses to a benign no-op.
	if err := db.DB.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_transaction_hash
		 ON alerts (transaction_hash) WHERE transaction_hash IS NOT NULL`,
	).Error; err != nil {
		return fmt.Errorf("failed to create alert uniqueness index: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *Database) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health checks the database connection
func (db *Database) Health() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Repositories aggregates all repository instances
type Repositories struct {
	Agents       *AgentRepository
	Transactions *TransactionRepository
	Alerts       *AlertRepository
	Wallets      *WalletRepository
	Reports      *ReportRepository
	Audit        *AuditRepository
	Users        *UserRepository
}

// NewRepositories creates all repository instances
func NewRepositories(db *Database) *Repositories {
	return &Repositories{
		Agents:       NewAgentRepository(db),
		Transactions: NewTransactionRepository(db),
		Alerts:       NewAlertRepository(db),
		Wallets:      NewWalletRepository(db),
		Reports:      NewReportRepository(db),
		Audit:        NewAuditRepository(db),
		Users:        NewUserRepository(db),
	}
}
