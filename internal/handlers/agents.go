package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aegisshield/chain-monitor/internal/models"
)

func (s *Server) listAgents(c *gin.Context) {
	agents, err := s.repos.Agents.List(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to list agents", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list agents"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": agents, "total": len(agents)})
}

func (s *Server) getAgent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid agent id"})
		return
	}
	agent, err := s.repos.Agents.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		return
	}
	c.JSON(http.StatusOK, agent)
}

type updateAgentRequest struct {
	Status *string     `json:"status"`
	Config models.JSON `json:"config"`
}

// updateAgent changes an agent's status or config. Status transitions go
// through the scheduler so timers stay consistent.
func (s *Server) updateAgent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid agent id"})
		return
	}

	var req updateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Status == nil && req.Config == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}

	updates := map[string]interface{}{}
	if req.Config != nil {
		updates["config"] = req.Config
	}
	if req.Status != nil {
		status := models.AgentStatus(*req.Status)
		if status != models.AgentStatusActive && status != models.AgentStatusInactive {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be active or inactive"})
			return
		}
		updates["status"] = status
	}

	agent, err := s.scheduler.SetAgentStatus(c.Request.Context(), id, updates)
	if err != nil {
		s.logger.Error("failed to update agent", zap.String("agent_id", id.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update agent"})
		return
	}
	c.JSON(http.StatusOK, agent)
}
