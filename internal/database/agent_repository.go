package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aegisshield/chain-monitor/internal/models"
)

// AgentRepository provides database operations for agents
type AgentRepository struct {
	db *Database
}

// NewAgentRepository creates a new agent repository
func NewAgentRepository(db *Database) *AgentRepository {
	return &AgentRepository{db: db}
}

// Create inserts a new agent
func (r *AgentRepository) Create(ctx context.Context, agent *models.Agent) error {
	if agent.ID == uuid.Nil {
		agent.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(agent).Error; err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}
	return nil
}

// Get retrieves an agent by ID
func (r *AgentRepository) Get(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	var agent models.Agent
	if err := r.db.WithContext(ctx).First(&agent, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to get agent %s: %w", id, err)
	}
	return &agent, nil
}

// FindByType retrieves the agent of a given type, or nil if absent
func (r *AgentRepository) FindByType(ctx context.Context, t models.AgentType) (*models.Agent, error) {
	var agent models.Agent
	err := r.db.WithContext(ctx).Where("type = ?", t).First(&agent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find agent by type %s: %w", t, err)
	}
	return &agent, nil
}

// List retrieves all agents ordered by name
func (r *AgentRepository) List(ctx context.Context) ([]*models.Agent, error) {
	var agents []*models.Agent
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&agents).Error; err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	return agents, nil
}

// Update applies a partial update and returns the updated agent
func (r *AgentRepository) Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (*models.Agent, error) {
	if err := r.db.WithContext(ctx).Model(&models.Agent{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		return nil, fmt.Errorf("failed to update agent %s: %w", id, err)
	}
	return r.Get(ctx, id)
}
