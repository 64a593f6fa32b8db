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

func (h HandlerSet) ListPayments(c *gin.Context) {
	filters := repository.NewFilters()
	if clientID := c.Query("client_id"); clientID != "" {
		filters.Eq("client_id", clientID)
	}
	if status := c.Query("status"); status != "" {
		if !validPaymentStatus(models.PaymentStatus(status)) {
			h.fail(c, apperr.Validation("invalid payment status"))
			return
		}
		filters.Eq("status", status)
	}
	if paymentType := c.Query("payment_type"); paymentType != "" {
		if !validPaymentType(models.PaymentType(paymentType)) {
			h.fail(c, apperr.Validation("invalid payment type"))
			return
		}
		filters.Eq("payment_type", paymentType)
	}

	limit, offset := pagination(c)
	payments, err := h.payments.List(c.Request.Context(), filters, limit, offset)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, gin.H{"payments": payments})
}

func (h HandlerSet) GetPayment(c *gin.Context) {
	payment, err := h.payments.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			h.fail(c, apperr.NotFound("payment not found"))
			return
		}
		h.fail(c, err)
		return
	}
	h.ok(c, gin.H{"payment": payment})
}

type refundRequest struct {
	// AmountCents of zero (or absent) requests a full refund.
	AmountCents int64 `json:"amount_cents" binding:"omitempty,gte=0"`
}

func (h HandlerSet) RefundPayment(c *gin.Context) {
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.failValidation(c, err)
		return
	}

	outcome, err := h.billing.RefundPayment(c.Request.Context(), c.Param("id"), req.AmountCents)
	if err != nil {
		h.fail(c, err)
		return
	}

	details := map[string]string{
		"amount_cents": strconv.FormatInt(req.AmountCents, 10),
		"full_refund":  strconv.FormatBool(outcome.IsFullRefund),
	}
	h.recordAdminActivity(c, models.ActionPaymentRefunded, "payment", outcome.Original.ID, &outcome.Original.ClientID, details)

	data := gin.H{
		"is_full_refund": outcome.IsFullRefund,
		"payment":        outcome.Original,
	}
	if outcome.Refund != nil {
		data["refund"] = outcome.Refund
	}
	h.ok(c, data)
}

func validPaymentStatus(status models.PaymentStatus) bool {
	switch status {
	case models.PaymentStatusPending, models.PaymentStatusProcessing, models.PaymentStatusSucceeded,
		models.PaymentStatusFailed, models.PaymentStatusCanceled, models.PaymentStatusRefunded:
		return true
	}
	return false
}

func validPaymentType(paymentType models.PaymentType) bool {
	switch paymentType {
	case models.PaymentTypeOneTime, models.PaymentTypeSubscription, models.PaymentTypeDeposit,
		models.PaymentTypeFinalPayment, models.PaymentTypeRefund:
		return true
	}
	return false
}
