package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type loginRequestPayload struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type sessionResponsePayload struct {
	UserID      string   `json:"user_id"`
	Email       string   `json:"email"`
	DisplayName string   `json:"display_name"`
	Roles       []string `json:"roles"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBindError(c, err)
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	roles := user.RoleList()
	token, expiresIn, err := h.issuer.IssueSessionToken(user.ID, user.Email, user.DisplayName, roles)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.validator.CookieName(), token, int(expiresIn), "/", "", h.cookieSecure, true)
	c.JSON(http.StatusOK, sessionResponsePayload{
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Roles:       roles,
	})
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.validator.CookieName(), "", -1, "/", "", h.cookieSecure, true)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleMe(c *gin.Context) {
	claims, ok := h.sessionClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": msgNotAuthenticated})
		return
	}
	c.JSON(http.StatusOK, sessionResponsePayload{
		UserID:      claims.UserID,
		Email:       claims.UserEmail,
		DisplayName: claims.UserDisplayName,
		Roles:       claims.UserRoles,
	})
}
