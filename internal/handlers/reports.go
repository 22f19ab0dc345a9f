package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aegisshield/chain-monitor/internal/models"
)

var reportFormats = map[string]bool{
	"pdf":  true,
	"xlsx": true,
	"csv":  true,
	"json": true,
}

func (s *Server) listReports(c *gin.Context) {
	limit, offset := pagination(c)
	reports, total, err := s.repos.Reports.List(c.Request.Context(), c.Query("status"), limit, offset)
	if err != nil {
		s.logger.Error("failed to list reports", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list reports"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reports": reports,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

func (s *Server) getReport(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report id"})
		return
	}
	report, err := s.repos.Reports.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		return
	}
	c.JSON(http.StatusOK, report)
}

type createReportRequest struct {
	Title      string      `json:"title" binding:"required"`
	Type       string      `json:"type" binding:"required"`
	Format     string      `json:"format"`
	Parameters models.JSON `json:"parameters"`
}

// createReport schedules a report for the next reporting agent cycle.
func (s *Server) createReport(c *gin.Context) {
	var req createReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	format := req.Format
	if format == "" {
		format = "pdf"
	}
	if !reportFormats[format] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be one of pdf, xlsx, csv, json"})
		return
	}

	now := time.Now().UTC()
	report := &models.Report{
		Title:        req.Title,
		Type:         req.Type,
		Status:       models.ReportStatusScheduled,
		Format:       format,
		Parameters:   req.Parameters,
		GeneratedBy:  c.GetString("username"),
		ScheduledFor: &now,
	}
	if err := s.repos.Reports.Create(c.Request.Context(), report); err != nil {
		s.logger.Error("failed to create report", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create report"})
		return
	}
	c.JSON(http.StatusAccepted, report)
}
