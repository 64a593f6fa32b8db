package handlers

import (
	"errors"
	"io"
	"strconv"

	"github.com/gin-gonic/gin"

	"atelier/api/internal/apperr"
	"atelier/api/internal/models"
	"atelier/api/internal/repository"
)

func (h HandlerSet) ListSubscriptions(c *gin.Context) {
	filters := repository.NewFilters()
	if clientID := c.Query("client_id"); clientID != "" {
		filters.Eq("client_id", clientID)
	}
	if status := c.Query("status"); status != "" {
		if !validSubscriptionStatus(models.SubscriptionStatus(status)) {
			h.fail(c, apperr.Validation("invalid subscription status"))
			return
		}
		filters.Eq("status", status)
	}

	limit, offset := pagination(c)
	subscriptions, err := h.subscriptions.List(c.Request.Context(), filters, limit, offset)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, gin.H{"subscriptions": subscriptions})
}

type cancelSubscriptionRequest struct {
	AtPeriodEnd bool `json:"at_period_end"`
}

func (h HandlerSet) CancelSubscription(c *gin.Context) {
	var req cancelSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.failValidation(c, err)
		return
	}

	sub, err := h.billing.CancelSubscription(c.Request.Context(), c.Param("id"), req.AtPeriodEnd)
	if err != nil {
		h.fail(c, err)
		return
	}

	details := map[string]string{"at_period_end": strconv.FormatBool(req.AtPeriodEnd)}
	h.recordAdminActivity(c, models.ActionSubscriptionCancel, "subscription", sub.ID, &sub.ClientID, details)

	h.ok(c, gin.H{"subscription": sub})
}

func validSubscriptionStatus(status models.SubscriptionStatus) bool {
	switch status {
	case models.SubscriptionStatusActive, models.SubscriptionStatusTrialing, models.SubscriptionStatusPastDue,
		models.SubscriptionStatusUnpaid, models.SubscriptionStatusCanceled:
		return true
	}
	return false
}
