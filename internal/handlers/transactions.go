package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aegisshield/chain-monitor/internal/database"
	"github.com/aegisshield/chain-monitor/internal/models"
	"github.com/aegisshield/chain-monitor/internal/realtime"
)

func (s *Server) listTransactions(c *gin.Context) {
	limit, offset := pagination(c)
	minScore, _ := strconv.ParseFloat(c.Query("min_risk_score"), 64)
	filter := database.TransactionFilter{
		Status:       c.Query("status"),
		Network:      c.Query("network"),
		MinRiskScore: minScore,
		Address:      c.Query("address"),
	}

	txs, total, err := s.repos.Transactions.List(c.Request.Context(), filter, limit, offset)
	if err != nil {
		s.logger.Error("failed to list transactions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list transactions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"transactions": txs,
		"total":        total,
		"limit":        limit,
		"offset":       offset,
	})
}

func (s *Server) getTransaction(c *gin.Context) {
	tx, err := s.repos.Transactions.GetByHash(c.Request.Context(), c.Param("hash"))
	if err != nil {
		s.logger.Error("failed to fetch transaction", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch transaction"})
		return
	}
	if tx == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
		return
	}
	c.JSON(http.StatusOK, tx)
}

type createTransactionRequest struct {
	Hash        string    `json:"hash" binding:"required"`
	BlockNumber int64     `json:"block_number"`
	FromAddress string    `json:"from_address" binding:"required"`
	ToAddress   string    `json:"to_address" binding:"required"`
	Amount      string    `json:"amount" binding:"required"`
	GasPrice    string    `json:"gas_price"`
	GasUsed     int64     `json:"gas_used"`
	Network     string    `json:"network" binding:"required"`
	Timestamp   time.Time `json:"timestamp"`
}

// createTransaction accepts a manually submitted transaction. Duplicates
// are acknowledged without modification.
func (s *Server) createTransaction(c *gin.Context) {
	var req createTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := decimal.NewFromString(req.Amount); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a decimal string"})
		return
	}

	timestamp := req.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	tx := &models.Transaction{
		Hash:        req.Hash,
		BlockNumber: req.BlockNumber,
		FromAddress: req.FromAddress,
		ToAddress:   req.ToAddress,
		Amount:      req.Amount,
		GasPrice:    req.GasPrice,
		GasUsed:     req.GasUsed,
		Timestamp:   timestamp,
		Status:      models.TransactionStatusPending,
		Network:     req.Network,
	}

	created, err := s.repos.Transactions.Create(c.Request.Context(), tx)
	if err != nil {
		s.logger.Error("failed to create transaction", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create transaction"})
		return
	}
	if !created {
		c.JSON(http.StatusOK, gin.H{"status": "exists", "hash": req.Hash})
		return
	}

	s.hub.Broadcast(realtime.EventTransactionUpdate, tx)
	c.JSON(http.StatusCreated, tx)
}
