package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"atelier/api/internal/apperr"
	"atelier/api/internal/billing"
	"atelier/api/internal/ids"
	"atelier/api/internal/models"
)

type createCheckoutRequest struct {
	Mode        string `json:"mode" binding:"required,oneof=one_time subscription quote"`
	AmountCents int64  `json:"amount_cents" binding:"required,gt=0"`
	Currency    string `json:"currency"`
	ProductName string `json:"product_name" binding:"required"`
	ClientEmail string `json:"client_email" binding:"required,email"`
	ClientName  string `json:"client_name"`
	// PaymentType selects deposit or final for quote mode; ignored otherwise.
	PaymentType        string            `json:"payment_type" binding:"omitempty,oneof=deposit final"`
	Interval           string            `json:"interval" binding:"omitempty,oneof=day week month year"`
	ProjectID          *string           `json:"project_id"`
	ConnectedAccountID string            `json:"connected_account_id"`
	FeePercent         *float64          `json:"fee_percent"`
	Metadata           map[string]string `json:"metadata"`
}

// CreateCheckoutSession opens a Stripe checkout session and records a PENDING
// payment locally so the webhook can link the resulting payment intent back.
// Subscription sessions record nothing up front; their payments arrive via
// invoice events.
func (h HandlerSet) CreateCheckoutSession(c *gin.Context) {
	var req createCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.failValidation(c, err)
		return
	}

	ctx := c.Request.Context()
	email := strings.TrimSpace(strings.ToLower(req.ClientEmail))
	name := strings.TrimSpace(req.ClientName)
	if name == "" {
		name = email
	}

	paymentType := models.PaymentTypeOneTime
	switch billing.CheckoutMode(req.Mode) {
	case billing.CheckoutModeSubscription:
		paymentType = models.PaymentTypeSubscription
	case billing.CheckoutModeQuote:
		if req.PaymentType == "final" {
			paymentType = models.PaymentTypeFinalPayment
		} else {
			paymentType = models.PaymentTypeDeposit
		}
	}

	client, err := h.clients.EnsureByEmail(ctx, ids.New(), email, name)
	if err != nil {
		h.fail(c, err)
		return
	}

	if req.ProjectID != nil && *req.ProjectID != "" {
		project, err := h.projects.GetByID(ctx, *req.ProjectID)
		if err != nil {
			h.fail(c, apperr.Validation("project does not exist"))
			return
		}
		if project.ClientID != client.ID {
			h.fail(c, apperr.Validation("project belongs to a different client"))
			return
		}
	}

	metadata := make(map[string]string, len(req.Metadata)+2)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata["payment_type"] = string(paymentType)
	metadata["client_email"] = email
	if req.ProjectID != nil && *req.ProjectID != "" {
		metadata["project_id"] = *req.ProjectID
	}

	session, err := h.gateway.CreateCheckoutSession(ctx, billing.CheckoutInput{
		Mode:               billing.CheckoutMode(req.Mode),
		AmountCents:        req.AmountCents,
		Currency:           req.Currency,
		ProductName:        req.ProductName,
		CustomerEmail:      email,
		Interval:           req.Interval,
		ConnectedAccountID: req.ConnectedAccountID,
		FeePercentOverride: req.FeePercent,
		Metadata:           metadata,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	data := gin.H{
		"session_id":   session.ID,
		"checkout_url": session.URL,
	}

	if paymentType != models.PaymentTypeSubscription {
		currency := req.Currency
		if currency == "" {
			currency = "usd"
		}
		payment := models.Payment{
			ID:                      ids.New(),
			ClientID:                client.ID,
			ProjectID:               req.ProjectID,
			StripeCheckoutSessionID: &session.ID,
			AmountCents:             req.AmountCents,
			Currency:                currency,
			PaymentType:             paymentType,
			Status:                  models.PaymentStatusPending,
			Metadata:                metadata,
		}
		if err := h.payments.Create(ctx, payment); err != nil {
			h.fail(c, err)
			return
		}
		data["payment_id"] = payment.ID
	}

	details := map[string]string{
		"mode":         req.Mode,
		"amount_cents": strconv.FormatInt(req.AmountCents, 10),
		"session_id":   session.ID,
	}
	h.recordAdminActivity(c, models.ActionCheckoutCreated, "checkout_session", session.ID, &client.ID, details)

	h.created(c, data)
}
