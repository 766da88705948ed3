package auth

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/windschord/claude-work/internal/common/errors"
)

const (
	// QueryParam carries the session id for WebSocket clients, which cannot
	// always send cookies.
	QueryParam = "session_id"

	contextKey = "auth_session"
)

// SessionID returns the session id of a request: the query parameter when
// present, otherwise the cookie.
func (s *Service) SessionID(c *gin.Context) string {
	if id := c.Query(QueryParam); id != "" {
		return id
	}
	id, err := c.Cookie(s.cookieName)
	if err != nil {
		return ""
	}
	return id
}

// Middleware rejects requests without a valid session with 401. It accepts
// everything when auth is disabled.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.enabled {
			c.Next()
			return
		}

		as, err := s.VerifySession(c.Request.Context(), s.SessionID(c))
		if err != nil {
			s.logger.Debug("request rejected",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err))
			c.AbortWithStatusJSON(apperrors.GetHTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.Set(contextKey, as)
		c.Next()
	}
}
