package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/creditledger/internal/authorization"
	obscontext "github.com/smallbiznis/creditledger/internal/observability/context"
)

const (
	defaultUserHeader = "X-User-ID"
	defaultRoleHeader = "X-User-Role"

	contextUserIDKey = "user_id"
	contextRoleKey   = "user_role"

	maxUserIDLength = 64
)

// IdentityRequired trusts the identity headers set by the upstream proxy.
// Requests without a user id never reach a handler.
func (s *Server) IdentityRequired() gin.HandlerFunc {
	userHeader := strings.TrimSpace(s.cfg.Identity.UserHeader)
	if userHeader == "" {
		userHeader = defaultUserHeader
	}
	roleHeader := strings.TrimSpace(s.cfg.Identity.RoleHeader)
	if roleHeader == "" {
		roleHeader = defaultRoleHeader
	}

	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(userHeader))
		if userID == "" || len(userID) > maxUserIDLength {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		role := strings.ToLower(strings.TrimSpace(c.GetHeader(roleHeader)))
		if role == "" {
			role = authorization.RoleUser
		}

		actorType := obscontext.ActorTypeUser
		if role == authorization.RoleAdmin {
			actorType = obscontext.ActorTypeAdmin
		}
		c.Set(contextUserIDKey, userID)
		c.Set(contextRoleKey, role)
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), actorType, userID))
		c.Next()
	}
}

func userIDFromContext(c *gin.Context) string {
	return c.GetString(contextUserIDKey)
}

func roleFromContext(c *gin.Context) string {
	return c.GetString(contextRoleKey)
}
