package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	assistantdomain "github.com/smallbiznis/creditledger/internal/assistant/domain"
)

func (s *Server) Ask(c *gin.Context) {
	var req assistantdomain.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.UserID = userIDFromContext(c)

	resp, err := s.assistantSvc.Ask(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListMessages(c *gin.Context) {
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	messages, err := s.assistantSvc.History(c.Request.Context(), userIDFromContext(c), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": messages})
}
