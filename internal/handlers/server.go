// Package handlers exposes the REST and websocket API.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aegisshield/chain-monitor/internal/agents"
	"github.com/aegisshield/chain-monitor/internal/config"
	"github.com/aegisshield/chain-monitor/internal/database"
	"github.com/aegisshield/chain-monitor/internal/metrics"
	"github.com/aegisshield/chain-monitor/internal/realtime"
	"github.com/aegisshield/chain-monitor/internal/stats"
)

const defaultPageSize = 50
const maxPageSize = 200

// Server wires the HTTP API to the rest of the service.
type Server struct {
	cfg       *config.Config
	db        *database.Database
	repos     *database.Repositories
	scheduler *agents.Scheduler
	hub       *realtime.Hub
	stats     *stats.Service
	collector *metrics.Collector
	logger    *zap.Logger

	// Narrowed views of the repository layer, so the alert workflow and
	// audit trail can be exercised against fakes.
	alerts alertStore
	audit  auditStore
}

// NewServer creates an API server
func NewServer(
	cfg *config.Config,
	db *database.Database,
	repos *database.Repositories,
	scheduler *agents.Scheduler,
	hub *realtime.Hub,
	statsService *stats.Service,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Server {
	return &Server{
		cfg:       cfg,
		db:        db,
		repos:     repos,
		scheduler: scheduler,
		hub:       hub,
		stats:     statsService,
		collector: collector,
		logger:    logger.Named("api"),
		alerts:    repos.Alerts,
		audit:     repos.Audit,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	if s.cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestIDMiddleware())
	router.Use(s.corsMiddleware())
	router.Use(s.loggingMiddleware())
	if s.collector != nil {
		router.Use(s.metricsMiddleware())
	}

	router.GET("/health", s.healthCheck)
	if s.cfg.Metrics.Enabled {
		router.GET(s.cfg.Metrics.Endpoint, gin.WrapH(promhttp.Handler()))
	}
	router.GET("/ws", s.hub.HandleWebSocket)

	api := router.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/login", s.login)
			auth.GET("/me", s.authMiddleware(), s.currentUser)
		}

		protected := api.Group("")
		protected.Use(s.authMiddleware())
		protected.Use(s.auditMiddleware())
		{
			protected.GET("/agents", s.listAgents)
			protected.GET("/agents/:id", s.getAgent)
			protected.PATCH("/agents/:id", s.updateAgent)

			protected.GET("/transactions", s.listTransactions)
			protected.GET("/transactions/:hash", s.getTransaction)
			protected.POST("/transactions", s.createTransaction)

			protected.GET("/alerts", s.listAlerts)
			protected.PATCH("/alerts/:id", s.updateAlert)

			protected.GET("/wallets", s.listWallets)
			protected.GET("/wallets/:address", s.getWallet)

			protected.GET("/reports", s.listReports)
			protected.POST("/reports", s.createReport)
			protected.GET("/reports/:id", s.getReport)

			protected.GET("/stats/dashboard", s.dashboardStats)
		}
	}

	return router
}

func (s *Server) healthCheck(c *gin.Context) {
	if err := s.db.Health(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"service":    "chain-monitor",
		"ws_clients": s.hub.ConnectedClients(),
	})
}

func (s *Server) dashboardStats(c *gin.Context) {
	dashboard, err := s.stats.Dashboard(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to compute dashboard stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, dashboard)
}
