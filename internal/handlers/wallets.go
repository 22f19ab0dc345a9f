package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (s *Server) listWallets(c *gin.Context) {
	limit, offset := pagination(c)
	wallets, total, err := s.repos.Wallets.List(c.Request.Context(), c.Query("risk_level"), limit, offset)
	if err != nil {
		s.logger.Error("failed to list wallets", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list wallets"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"wallets": wallets,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

func (s *Server) getWallet(c *gin.Context) {
	wallet, err := s.repos.Wallets.GetByAddress(c.Request.Context(), c.Param("address"))
	if err != nil {
		s.logger.Error("failed to fetch wallet", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch wallet"})
		return
	}
	if wallet == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "wallet not found"})
		return
	}
	c.JSON(http.StatusOK, wallet)
}
