package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aegisshield/chain-monitor/internal/database"
	"github.com/aegisshield/chain-monitor/internal/models"
	"github.com/aegisshield/chain-monitor/internal/realtime"
)

// alertStore is the slice of the alert repository the API needs.
type alertStore interface {
	List(ctx context.Context, filter database.AlertFilter, limit, offset int) ([]*models.Alert, int64, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Alert, error)
	Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (*models.Alert, error)
}

// statusRank orders alert statuses along the triage workflow. Transitions
// may only move forward, and the two terminal states are mutually
// exclusive.
var statusRank = map[models.AlertStatus]int{
	models.AlertStatusOpen:          0,
	models.AlertStatusInvestigating: 1,
	models.AlertStatusResolved:      2,
	models.AlertStatusFalsePositive: 2,
}

func (s *Server) listAlerts(c *gin.Context) {
	limit, offset := pagination(c)
	filter := database.AlertFilter{
		Severity: c.Query("severity"),
		Status:   c.Query("status"),
		Type:     c.Query("type"),
	}

	alerts, total, err := s.alerts.List(c.Request.Context(), filter, limit, offset)
	if err != nil {
		s.logger.Error("failed to list alerts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list alerts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

type updateAlertRequest struct {
	Status string `json:"status" binding:"required"`
}

func (s *Server) updateAlert(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert id"})
		return
	}

	var req updateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}
	next := models.AlertStatus(req.Status)
	nextRank, ok := statusRank[next]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown alert status"})
		return
	}

	alert, err := s.alerts.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
		return
	}
	if statusRank[alert.Status] >= nextRank {
		c.JSON(http.StatusConflict, gin.H{
			"error": "invalid status transition",
			"from":  alert.Status,
			"to":    next,
		})
		return
	}

	fields := map[string]interface{}{"status": next}
	if next == models.AlertStatusResolved || next == models.AlertStatusFalsePositive {
		now := time.Now().UTC()
		fields["resolved_at"] = &now
	}

	updated, err := s.alerts.Update(c.Request.Context(), id, fields)
	if err != nil {
		s.logger.Error("failed to update alert", zap.String("alert_id", id.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update alert"})
		return
	}

	s.hub.Broadcast(realtime.EventAlertUpdate, updated)
	c.JSON(http.StatusOK, updated)
}
