package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	purchasedomain "github.com/smallbiznis/creditledger/internal/purchase/domain"
	"github.com/smallbiznis/creditledger/pkg/db/pagination"
)

func (s *Server) ListPurchases(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status string `form:"status"`
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

	resp, err := s.purchaseSvc.List(c.Request.Context(), purchasedomain.ListRequest{
		UserID:     userIDFromContext(c),
		Status:     status,
		Pagination: query.Pagination,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPurchase(c *gin.Context) {
	purchase, err := s.purchaseSvc.Get(c.Request.Context(), userIDFromContext(c), strings.TrimSpace(c.Param("order_id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": purchase})
}

func (s *Server) GetPurchaseReceipt(c *gin.Context) {
	orderID := strings.TrimSpace(c.Param("order_id"))
	pdf, err := s.purchaseSvc.Receipt(c.Request.Context(), userIDFromContext(c), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "receipt-"+orderID+".pdf"))
	c.Data(http.StatusOK, "application/pdf", pdf)
}
