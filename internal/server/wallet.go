package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
)

func (s *Server) GetWallet(c *gin.Context) {
	userID := userIDFromContext(c)
	before, limit, err := historyQuery(c.Query("before"), c.Query("limit"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	wallet, err := s.ledgerSvc.GetWallet(ctx, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	history, err := s.ledgerSvc.ListWalletHistory(ctx, ledgerdomain.HistoryFilter{
		UserID:   userID,
		BeforeID: before,
		Limit:    limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"wallet":  wallet,
		"history": history,
	}})
}

func (s *Server) GetUsage(c *gin.Context) {
	status, err := s.usageSvc.Status(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": status})
}
