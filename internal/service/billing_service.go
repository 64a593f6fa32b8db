package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"atelier/api/internal/apperr"
	"atelier/api/internal/billing"
	"atelier/api/internal/ids"
	"atelier/api/internal/models"
	"atelier/api/internal/repository"
)

type PaymentStore interface {
	GetByID(ctx context.Context, id string) (models.Payment, error)
	SumRefunded(ctx context.Context, originalID string) (int64, error)
	ApplyFullRefund(ctx context.Context, id string) error
	ApplyPartialRefund(ctx context.Context, original models.Payment, refund models.Payment) error
}

type SubscriptionStore interface {
	GetByID(ctx context.Context, id string) (models.Subscription, error)
	MarkCanceled(ctx context.Context, stripeSubscriptionID string, canceledAt time.Time) error
	SetCancelAtPeriodEnd(ctx context.Context, stripeSubscriptionID string, value bool) error
}

type Gateway interface {
	RefundPayment(ctx context.Context, paymentIntentID string, amountCents int64) (billing.RefundResult, error)
	CancelSubscription(ctx context.Context, stripeSubscriptionID string, atPeriodEnd bool) error
}

type BillingService struct {
	payments      PaymentStore
	subscriptions SubscriptionStore
	gateway       Gateway
	log           zerolog.Logger
	now           func() time.Time
}

func NewBillingService(payments PaymentStore, subscriptions SubscriptionStore, gateway Gateway, log zerolog.Logger) *BillingService {
	return &BillingService{
		payments:      payments,
		subscriptions: subscriptions,
		gateway:       gateway,
		log:           log,
		now:           time.Now,
	}
}

type RefundOutcome struct {
	IsFullRefund bool
	Original     models.Payment
	// Refund is the inserted negative row; nil for a full refund, which only
	// flips the original's status.
	Refund *models.Payment
}

// RefundPayment refunds a SUCCEEDED payment. amountCents of 0 means a full
// refund: the original row flips to REFUNDED and nothing is inserted. A
// positive amount is a partial refund recorded as one new negative row; the
// original row is left untouched. Over-refunds are rejected before any state
// moves, locally or at Stripe.
func (s *BillingService) RefundPayment(ctx context.Context, paymentID string, amountCents int64) (RefundOutcome, error) {
	if amountCents < 0 {
		return RefundOutcome{}, apperr.Validation("amount_cents must not be negative")
	}

	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return RefundOutcome{}, apperr.NotFound("payment not found")
		}
		return RefundOutcome{}, err
	}

	if payment.PaymentType == models.PaymentTypeRefund {
		return RefundOutcome{}, apperr.Conflict("refund records cannot be refunded")
	}
	if payment.Status != models.PaymentStatusSucceeded {
		return RefundOutcome{}, apperr.Conflict("only succeeded payments can be refunded")
	}
	if payment.StripePaymentIntentID == nil || *payment.StripePaymentIntentID == "" {
		return RefundOutcome{}, apperr.Conflict("payment has no payment intent to refund")
	}
	if amountCents > payment.AmountCents {
		return RefundOutcome{}, apperr.Conflict("refund amount exceeds payment amount")
	}

	refunded, err := s.payments.SumRefunded(ctx, payment.ID)
	if err != nil {
		return RefundOutcome{}, err
	}

	full := amountCents == 0
	if full && refunded > 0 {
		return RefundOutcome{}, apperr.Conflict("payment already partially refunded; specify an amount")
	}
	if !full && refunded+amountCents > payment.AmountCents {
		return RefundOutcome{}, apperr.Conflict("refund amount exceeds remaining refundable amount")
	}

	result, err := s.gateway.RefundPayment(ctx, *payment.StripePaymentIntentID, amountCents)
	if err != nil {
		return RefundOutcome{}, err
	}

	if full {
		if err := s.payments.ApplyFullRefund(ctx, payment.ID); err != nil {
			if errors.Is(err, repository.ErrPaymentNotRefundable) {
				return RefundOutcome{}, apperr.Conflict("payment is no longer refundable")
			}
			return RefundOutcome{}, err
		}
		payment.Status = models.PaymentStatusRefunded
		return RefundOutcome{IsFullRefund: true, Original: payment}, nil
	}

	paidAt := s.now().UTC()
	refund := models.Payment{
		ID:             ids.New(),
		ClientID:       payment.ClientID,
		ProjectID:      payment.ProjectID,
		SubscriptionID: payment.SubscriptionID,
		AmountCents:    -amountCents,
		Currency:       payment.Currency,
		PaymentType:    models.PaymentTypeRefund,
		Status:         models.PaymentStatusSucceeded,
		Metadata: map[string]string{
			models.MetadataRefundOf: payment.ID,
			"stripe_refund_id":      result.ID,
		},
		PaidAt: &paidAt,
	}

	if err := s.payments.ApplyPartialRefund(ctx, payment, refund); err != nil {
		if errors.Is(err, repository.ErrPaymentNotRefundable) {
			return RefundOutcome{}, apperr.Conflict("payment is no longer refundable")
		}
		return RefundOutcome{}, err
	}

	return RefundOutcome{Original: payment, Refund: &refund}, nil
}

// CancelSubscription cancels on Stripe and mirrors the result locally. A
// CANCELED subscription is terminal, so a repeated cancel is a Conflict.
func (s *BillingService) CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) (models.Subscription, error) {
	sub, err := s.subscriptions.GetByID(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			return models.Subscription{}, apperr.NotFound("subscription not found")
		}
		return models.Subscription{}, err
	}

	if sub.Status == models.SubscriptionStatusCanceled {
		return models.Subscription{}, apperr.Conflict("subscription is already canceled")
	}

	if err := s.gateway.CancelSubscription(ctx, sub.StripeSubscriptionID, atPeriodEnd); err != nil {
		return models.Subscription{}, err
	}

	if atPeriodEnd {
		if err := s.subscriptions.SetCancelAtPeriodEnd(ctx, sub.StripeSubscriptionID, true); err != nil {
			return models.Subscription{}, err
		}
		sub.CancelAtPeriodEnd = true
		return sub, nil
	}

	canceledAt := s.now().UTC()
	if err := s.subscriptions.MarkCanceled(ctx, sub.StripeSubscriptionID, canceledAt); err != nil {
		return models.Subscription{}, err
	}
	sub.Status = models.SubscriptionStatusCanceled
	sub.CanceledAt = &canceledAt
	return sub, nil
}
