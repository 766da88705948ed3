package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Token string `json:"token" form:"token"`
}

// Login exchanges the shared token for a session cookie.
// POST /api/auth/login
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	_ = c.ShouldBind(&req)

	sessionID, err := h.auth.Login(c.Request.Context(), req.Token)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.auth.CookieName(), sessionID, int(h.auth.TTL().Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "Login successful"})
}

// Logout forgets the session of the cookie and clears it.
// POST /api/auth/logout
func (h *Handler) Logout(c *gin.Context) {
	if sessionID, err := c.Cookie(h.auth.CookieName()); err == nil {
		if err := h.auth.Logout(c.Request.Context(), sessionID); err != nil {
			h.respondError(c, err)
			return
		}
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.auth.CookieName(), "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logout successful"})
}
