package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"atelier/api/internal/middleware"
	"atelier/api/internal/models"
	"atelier/api/internal/security"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.failValidation(c, err)
		return
	}

	admin, token, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}

	security.SetSessionCookie(c, token, h.cfg.Security.SessionTTL, h.cfg.IsProduction())

	h.activity.Record(c.Request.Context(), models.ActivityEntry{
		AdminID:    admin.ID,
		Action:     models.ActionLogin,
		EntityType: "admin_user",
		EntityID:   admin.ID,
		IPAddress:  c.ClientIP(),
	})

	h.ok(c, gin.H{"user": admin})
}

func (h HandlerSet) Logout(c *gin.Context) {
	security.ClearSessionCookie(c, h.cfg.IsProduction())
	h.ok(c, gin.H{"logged_out": true})
}

func (h HandlerSet) Me(c *gin.Context) {
	admin, ok := middleware.CurrentAdmin(c)
	if !ok {
		// Auth middleware guarantees the admin is present; reaching here means
		// the route was registered outside the protected group.
		h.fail(c, errors.New("current admin missing from context"))
		return
	}
	h.ok(c, gin.H{"user": admin})
}
