package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/creditledger/internal/catalog/domain"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	paymentdomain "github.com/smallbiznis/creditledger/internal/payment/domain"
	purchasedomain "github.com/smallbiznis/creditledger/internal/purchase/domain"
)

const headerIdempotencyKey = "Idempotency-Key"

type purchaseRequest struct {
	BundleID string `json:"bundle_id"`
	Credits  int64  `json:"credits"`
}

func (s *Server) GetCredits(c *gin.Context) {
	userID := userIDFromContext(c)
	before, limit, err := historyQuery(c.Query("before"), c.Query("limit"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	credits, err := s.ledgerSvc.GetUserCredits(ctx, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	history, err := s.ledgerSvc.ListCreditUsage(ctx, ledgerdomain.HistoryFilter{
		UserID:   userID,
		BeforeID: before,
		Limit:    limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"credits":       credits,
		"usage_history": history,
	}})
}

func (s *Server) GetPricing(c *gin.Context) {
	pricing, err := s.catalogSvc.GetPricing(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": pricing})
}

func (s *Server) ListBundles(c *gin.Context) {
	bundles, err := s.catalogSvc.ListBundles(c.Request.Context(), catalogdomain.ListBundlesRequest{})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": bundles})
}

func (s *Server) CreateOrder(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.purchaseSvc.CreateOrder(c.Request.Context(), purchasedomain.CreateOrderRequest{
		UserID:   userIDFromContext(c),
		BundleID: strings.TrimSpace(req.BundleID),
		Credits:  req.Credits,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// VerifyPayment is the client confirmation path. Replays of an already
// fulfilled order answer 200 with result already_processed.
func (s *Server) VerifyPayment(c *gin.Context) {
	var req paymentdomain.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	userID := userIDFromContext(c)
	req.UserID = userID

	ctx := c.Request.Context()
	result, err := s.dispatcher.VerifyClientPayment(ctx, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	purchase, err := s.purchaseSvc.Get(ctx, userID, strings.TrimSpace(req.OrderID))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	credits, err := s.ledgerSvc.GetUserCredits(ctx, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"result":   result,
		"purchase": purchase,
		"credits":  credits,
	}})
}

func (s *Server) PurchaseWithWallet(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.purchaseSvc.PurchaseWithWallet(c.Request.Context(), purchasedomain.WalletPurchaseRequest{
		UserID:         userIDFromContext(c),
		BundleID:       strings.TrimSpace(req.BundleID),
		Credits:        req.Credits,
		IdempotencyKey: strings.TrimSpace(c.GetHeader(headerIdempotencyKey)),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
