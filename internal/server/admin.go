package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/creditledger/internal/catalog/domain"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	"github.com/smallbiznis/creditledger/internal/observability/logger"
	purchasedomain "github.com/smallbiznis/creditledger/internal/purchase/domain"
	"github.com/smallbiznis/creditledger/pkg/db/pagination"
	"go.uber.org/zap"
)

type grantCreditsRequest struct {
	Credits int64  `json:"credits"`
	Reason  string `json:"reason"`
}

type adjustWalletRequest struct {
	Direction   string          `json:"direction"`
	Amount      decimal.Decimal `json:"amount"`
	Purpose     string          `json:"purpose"`
	ReferenceID string          `json:"reference_id"`
	Description string          `json:"description"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type reconciliationResponse struct {
	WalletID      string          `json:"wallet_id"`
	UserID        string          `json:"user_id"`
	Balance       decimal.Decimal `json:"balance"`
	LedgerBalance decimal.Decimal `json:"ledger_balance"`
	Drift         decimal.Decimal `json:"drift"`
	Consistent    bool            `json:"consistent"`
}

func (s *Server) UpdatePricing(c *gin.Context) {
	var req catalogdomain.UpdatePricingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	pricing, err := s.catalogSvc.UpdatePricing(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.auditAdmin(c, "pricing.update", zap.String("rate_per_credit", pricing.RatePerCredit.StringFixed(2)))
	c.JSON(http.StatusOK, gin.H{"data": pricing})
}

func (s *Server) CreateBundle(c *gin.Context) {
	var req catalogdomain.CreateBundleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	bundle, err := s.catalogSvc.CreateBundle(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.auditAdmin(c, "bundle.create", zap.String("bundle_id", bundle.ID.String()))
	c.JSON(http.StatusCreated, gin.H{"data": bundle})
}

func (s *Server) UpdateBundle(c *gin.Context) {
	var req catalogdomain.UpdateBundleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ID = strings.TrimSpace(c.Param("id"))

	bundle, err := s.catalogSvc.UpdateBundle(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.auditAdmin(c, "bundle.update", zap.String("bundle_id", bundle.ID.String()))
	c.JSON(http.StatusOK, gin.H{"data": bundle})
}

// DeactivateBundle hides a bundle from the catalog. Purchases keep
// referencing it, so the row is never removed.
func (s *Server) DeactivateBundle(c *gin.Context) {
	bundle, err := s.catalogSvc.DeactivateBundle(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.auditAdmin(c, "bundle.delete", zap.String("bundle_id", bundle.ID.String()))
	c.JSON(http.StatusOK, gin.H{"data": bundle})
}

func (s *Server) GrantCredits(c *gin.Context) {
	var req grantCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	userID := strings.TrimSpace(c.Param("user_id"))
	credits, err := s.ledgerSvc.GrantCredits(c.Request.Context(), ledgerdomain.GrantCreditsRequest{
		UserID:  userID,
		Credits: req.Credits,
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.auditAdmin(c, "credits.grant",
		zap.String("target_user_id", userID),
		zap.Int64("credits", req.Credits),
	)
	c.JSON(http.StatusOK, gin.H{"data": credits})
}

func (s *Server) AdjustWallet(c *gin.Context) {
	var req adjustWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	userID := strings.TrimSpace(c.Param("user_id"))
	wallet, err := s.ledgerSvc.AdjustWallet(c.Request.Context(), ledgerdomain.AdjustWalletRequest{
		UserID:      userID,
		Direction:   ledgerdomain.Direction(strings.ToLower(strings.TrimSpace(req.Direction))),
		Amount:      req.Amount,
		Purpose:     ledgerdomain.Purpose(strings.ToLower(strings.TrimSpace(req.Purpose))),
		ReferenceID: req.ReferenceID,
		Description: req.Description,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.auditAdmin(c, "wallet.adjust",
		zap.String("target_user_id", userID),
		zap.String("direction", req.Direction),
		zap.String("amount", req.Amount.StringFixed(2)),
	)
	c.JSON(http.StatusOK, gin.H{"data": wallet})
}

func (s *Server) ReconcileWallet(c *gin.Context) {
	report, err := s.ledgerSvc.ReconcileWallet(c.Request.Context(), strings.TrimSpace(c.Param("user_id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": reconciliationResponse{
		WalletID:      report.WalletID.String(),
		UserID:        report.UserID,
		Balance:       report.Balance,
		LedgerBalance: report.LedgerBalance,
		Drift:         report.Drift(),
		Consistent:    report.Consistent(),
	}})
}

func (s *Server) RefundPurchase(c *gin.Context) {
	var req reasonRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	orderID := strings.TrimSpace(c.Param("order_id"))
	purchase, err := s.purchaseSvc.Refund(c.Request.Context(), purchasedomain.RefundRequest{
		OrderID: orderID,
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.auditAdmin(c, "purchase.refund", zap.String("order_id", orderID))
	c.JSON(http.StatusOK, gin.H{"data": purchase})
}

func (s *Server) FailPurchase(c *gin.Context) {
	var req reasonRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	orderID := strings.TrimSpace(c.Param("order_id"))
	purchase, err := s.purchaseSvc.MarkFailed(c.Request.Context(), purchasedomain.MarkFailedRequest{
		OrderID: orderID,
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.auditAdmin(c, "purchase.fail", zap.String("order_id", orderID))
	c.JSON(http.StatusOK, gin.H{"data": purchase})
}

// ListCreditUsage is the usage log across users, newest first.
func (s *Server) ListCreditUsage(c *gin.Context) {
	before, limit, err := historyQuery(c.Query("before"), c.Query("limit"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	history, err := s.ledgerSvc.ListAllCreditUsage(c.Request.Context(), ledgerdomain.HistoryFilter{
		UserID:   strings.TrimSpace(c.Query("user_id")),
		BeforeID: before,
		Limit:    limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": history})
}

func (s *Server) ListAllPurchases(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status string `form:"status"`
		UserID string `form:"user_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	status, err := parseOptionalStatus(query.Status)
	if err != nil {
		AbortWithError(c, newValidationError("status", "invalid_status", "invalid status"))
		return
	}

	resp, err := s.purchaseSvc.ListAll(c.Request.Context(), purchasedomain.ListRequest{
		UserID:     query.UserID,
		Status:     status,
		Pagination: query.Pagination,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetStats(c *gin.Context) {
	stats, err := s.ledgerSvc.Stats(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": stats})
}

// auditAdmin leaves a log line for every operator write.
func (s *Server) auditAdmin(c *gin.Context, action string, fields ...zap.Field) {
	log := logger.WithContext(c.Request.Context(), s.log)
	log.Info("admin action", append([]zap.Field{zap.String("action", action)}, fields...)...)
}

// bindOptionalJSON accepts an empty body.
func bindOptionalJSON(c *gin.Context, out any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(out)
}
