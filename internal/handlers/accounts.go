package handlers

import (
	"github.com/gin-gonic/gin"

	"atelier/api/internal/models"
)

func (h HandlerSet) ListAccounts(c *gin.Context) {
	accounts, err := h.gateway.ListConnectedAccounts(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, gin.H{"accounts": accounts})
}

type createAccountRequest struct {
	Email   string `json:"email" binding:"required,email"`
	Country string `json:"country"`
}

func (h HandlerSet) CreateAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.failValidation(c, err)
		return
	}

	account, err := h.gateway.CreateConnectedAccount(c.Request.Context(), req.Email, req.Country)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.recordAdminActivity(c, models.ActionAccountCreated, "connected_account", account.ID, nil, map[string]string{
		"email": req.Email,
	})
	h.created(c, gin.H{"account": account})
}

func (h HandlerSet) CreateOnboardingLink(c *gin.Context) {
	link, err := h.gateway.CreateOnboardingLink(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, gin.H{"url": link.URL, "expires_at": link.ExpiresAt})
}
