package models

import "time"

type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "ACTIVE"
	SubscriptionStatusTrialing SubscriptionStatus = "TRIALING"
	SubscriptionStatusPastDue  SubscriptionStatus = "PAST_DUE"
	SubscriptionStatusUnpaid   SubscriptionStatus = "UNPAID"
	SubscriptionStatusCanceled SubscriptionStatus = "CANCELED"
)

// Subscription mirrors one Stripe subscription. CANCELED is terminal: no
// later webhook or admin action may move the row to any other status.
type Subscription struct {
	ID                   string             `json:"id"`
	ClientID             string             `json:"client_id"`
	StripeSubscriptionID string             `json:"stripe_subscription_id"`
	ProductType          string             `json:"product_type,omitempty"`
	Status               SubscriptionStatus `json:"status"`
	AmountCents          int64              `json:"amount_cents"`
	Currency             string             `json:"currency"`
	CancelAtPeriodEnd    bool               `json:"cancel_at_period_end"`
	CanceledAt           *time.Time         `json:"canceled_at,omitempty"`
	CurrentPeriodStart   *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time         `json:"current_period_end,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

type PaymentType string

const (
	PaymentTypeOneTime      PaymentType = "ONE_TIME"
	PaymentTypeSubscription PaymentType = "SUBSCRIPTION"
	PaymentTypeDeposit      PaymentType = "DEPOSIT"
	PaymentTypeFinalPayment PaymentType = "FINAL_PAYMENT"
	PaymentTypeRefund       PaymentType = "REFUND"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusSucceeded  PaymentStatus = "SUCCEEDED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusCanceled   PaymentStatus = "CANCELED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
)

// Payment rows are never deleted. A full refund flips the original row to
// REFUNDED; a partial refund inserts a new row with a negative amount and
// payment_type REFUND, carrying refund_of in its metadata.
type Payment struct {
	ID                      string            `json:"id"`
	ClientID                string            `json:"client_id"`
	ProjectID               *string           `json:"project_id,omitempty"`
	SubscriptionID          *string           `json:"subscription_id,omitempty"`
	StripePaymentIntentID   *string           `json:"stripe_payment_intent_id,omitempty"`
	StripeCheckoutSessionID *string           `json:"stripe_checkout_session_id,omitempty"`
	AmountCents             int64             `json:"amount_cents"`
	Currency                string            `json:"currency"`
	PaymentType             PaymentType       `json:"payment_type"`
	Status                  PaymentStatus     `json:"status"`
	PaymentMethod           *string           `json:"payment_method,omitempty"`
	Metadata                map[string]string `json:"metadata,omitempty"`
	PaidAt                  *time.Time        `json:"paid_at,omitempty"`
	CreatedAt               time.Time         `json:"created_at"`
	UpdatedAt               time.Time         `json:"updated_at"`
}

const MetadataRefundOf = "refund_of"
