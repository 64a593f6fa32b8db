package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"atelier/api/internal/apperr"
	"atelier/api/internal/ids"
	"atelier/api/internal/models"
	"atelier/api/internal/repository"
)

type ClientStore interface {
	EnsureByEmail(ctx context.Context, id string, email string, name string) (models.Client, error)
	FindByEmail(ctx context.Context, email string) (models.Client, error)
}

type PaymentStore interface {
	AttachIntentBySession(ctx context.Context, sessionID string, intentID string) (bool, error)
	UpsertByIntentID(ctx context.Context, payment models.Payment) error
	TransitionIntentStatus(ctx context.Context, intentID string, to models.PaymentStatus, paidAt *time.Time, paymentMethod *string) (bool, error)
}

type SubscriptionStore interface {
	GetByStripeID(ctx context.Context, stripeSubscriptionID string) (models.Subscription, error)
	Upsert(ctx context.Context, sub models.Subscription) error
	MarkCanceled(ctx context.Context, stripeSubscriptionID string, canceledAt time.Time) error
}

type Result string

const (
	ResultProcessed Result = "processed"
	ResultDuplicate Result = "duplicate"
	ResultIgnored   Result = "ignored"
)

// Processor verifies and reconciles asynchronous Stripe events. Every branch
// is idempotent: redeliveries are short-circuited by the deduper, and all
// writes are upserts keyed by Stripe IDs with terminal-state guards, so a
// lost dedup key still cannot duplicate financial records.
type Processor struct {
	secret        string
	clients       ClientStore
	payments      PaymentStore
	subscriptions SubscriptionStore
	dedup         Deduper
	log           zerolog.Logger
}

func NewProcessor(
	secret string,
	clients ClientStore,
	payments PaymentStore,
	subscriptions SubscriptionStore,
	dedup Deduper,
	log zerolog.Logger,
) *Processor {
	return &Processor{
		secret:        secret,
		clients:       clients,
		payments:      payments,
		subscriptions: subscriptions,
		dedup:         dedup,
		log:           log,
	}
}

// Process verifies the signature over the raw body bytes and dispatches the
// event. Signature failures come back as Validation errors (reject, no
// retry); reconciliation failures come back as internal errors so the caller
// answers 5xx and Stripe redelivers.
func (p *Processor) Process(ctx context.Context, payload []byte, sigHeader string) (Result, error) {
	if sigHeader == "" {
		return "", apperr.Validation("missing stripe signature header")
	}

	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, p.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return "", apperr.Wrap(apperr.KindValidation, "invalid stripe signature", err)
	}

	duplicate, err := p.dedup.Begin(ctx, event.ID)
	if err != nil {
		return "", fmt.Errorf("webhook dedup: %w", err)
	}
	if duplicate {
		p.log.Debug().Str("event_id", event.ID).Str("type", string(event.Type)).Msg("stripe event already processed")
		return ResultDuplicate, nil
	}

	result, err := p.handleEvent(ctx, event)
	if err != nil {
		// Give the claim back so the redelivery is processed, not skipped.
		if relErr := p.dedup.Release(ctx, event.ID); relErr != nil {
			p.log.Error().Err(relErr).Str("event_id", event.ID).Msg("dedup release failed")
		}
		return "", err
	}
	return result, nil
}

func (p *Processor) handleEvent(ctx context.Context, event stripe.Event) (Result, error) {
	eventTime := time.Unix(event.Created, 0)

	switch event.Type {
	case "checkout.session.completed":
		var session checkoutSessionPayload
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return "", fmt.Errorf("decode checkout session: %w", err)
		}
		return ResultProcessed, p.handleCheckoutCompleted(ctx, session, eventTime)

	case "payment_intent.succeeded":
		var intent paymentIntentPayload
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return "", fmt.Errorf("decode payment intent: %w", err)
		}
		return ResultProcessed, p.handlePaymentIntent(ctx, intent, models.PaymentStatusSucceeded, eventTime)

	case "payment_intent.payment_failed":
		var intent paymentIntentPayload
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return "", fmt.Errorf("decode payment intent: %w", err)
		}
		return ResultProcessed, p.handlePaymentIntent(ctx, intent, models.PaymentStatusFailed, eventTime)

	case "customer.subscription.created", "customer.subscription.updated":
		var sub subscriptionPayload
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return "", fmt.Errorf("decode subscription: %w", err)
		}
		return ResultProcessed, p.handleSubscriptionUpserted(ctx, sub)

	case "customer.subscription.deleted":
		var sub subscriptionPayload
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return "", fmt.Errorf("decode subscription: %w", err)
		}
		return ResultProcessed, p.handleSubscriptionDeleted(ctx, sub, eventTime)

	case "invoice.payment_succeeded":
		var invoice invoicePayload
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return "", fmt.Errorf("decode invoice: %w", err)
		}
		return ResultProcessed, p.handleInvoice(ctx, invoice, models.PaymentStatusSucceeded, eventTime)

	case "invoice.payment_failed":
		var invoice invoicePayload
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return "", fmt.Errorf("decode invoice: %w", err)
		}
		return ResultProcessed, p.handleInvoice(ctx, invoice, models.PaymentStatusFailed, eventTime)

	default:
		// The event catalog evolves independently of this system; unknown
		// types are acknowledged, never failed.
		p.log.Info().Str("type", string(event.Type)).Str("event_id", event.ID).Msg("stripe event ignored (unhandled type)")
		return ResultIgnored, nil
	}
}

// Event payloads are decoded into local structs rather than the SDK's types:
// only the reconciled fields matter and the webhook JSON shape is stable
// across API versions for them.

type checkoutSessionPayload struct {
	ID              string `json:"id"`
	Mode            string `json:"mode"`
	Customer        string `json:"customer"`
	CustomerEmail   string `json:"customer_email"`
	CustomerDetails struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"customer_details"`
	PaymentIntent string            `json:"payment_intent"`
	Subscription  string            `json:"subscription"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	PaymentStatus string            `json:"payment_status"`
	Metadata      map[string]string `json:"metadata"`
}

type paymentIntentPayload struct {
	ID                 string   `json:"id"`
	Amount             int64    `json:"amount"`
	Currency           string   `json:"currency"`
	PaymentMethodTypes []string `json:"payment_method_types"`
}

type subscriptionPayload struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	CanceledAt         int64  `json:"canceled_at"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	Items              struct {
		Data []struct {
			Price struct {
				UnitAmount int64  `json:"unit_amount"`
				Currency   string `json:"currency"`
				Product    string `json:"product"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
	Metadata map[string]string `json:"metadata"`
}

type invoicePayload struct {
	ID            string `json:"id"`
	Customer      string `json:"customer"`
	Subscription  string `json:"subscription"`
	PaymentIntent string `json:"payment_intent"`
	AmountPaid    int64  `json:"amount_paid"`
	AmountDue     int64  `json:"amount_due"`
	Currency      string `json:"currency"`
}

func (p *Processor) handleCheckoutCompleted(ctx context.Context, session checkoutSessionPayload, eventTime time.Time) error {
	email := session.CustomerDetails.Email
	if email == "" {
		email = session.CustomerEmail
	}
	if email == "" {
		p.log.Warn().Str("session_id", session.ID).Msg("checkout completed without customer email; skipping client linkage")
		return nil
	}
	// Client rows are keyed by a case-sensitive unique email column.
	email = strings.TrimSpace(strings.ToLower(email))

	name := session.CustomerDetails.Name
	if name == "" {
		name = email
	}
	client, err := p.clients.EnsureByEmail(ctx, ids.New(), email, name)
	if err != nil {
		return fmt.Errorf("ensure client: %w", err)
	}

	// Subscription-mode sessions have no payment intent; the subscription
	// and invoice events carry the financial records.
	if session.PaymentIntent == "" {
		return nil
	}

	status := models.PaymentStatusProcessing
	var paidAt *time.Time
	if session.PaymentStatus == "paid" {
		status = models.PaymentStatusSucceeded
		paidAt = &eventTime
	}

	matched, err := p.payments.AttachIntentBySession(ctx, session.ID, session.PaymentIntent)
	if err != nil {
		return fmt.Errorf("attach intent to session: %w", err)
	}
	if matched && status == models.PaymentStatusSucceeded {
		if _, err := p.payments.TransitionIntentStatus(ctx, session.PaymentIntent, status, paidAt, nil); err != nil {
			return fmt.Errorf("transition payment status: %w", err)
		}
		return nil
	}
	if matched {
		return nil
	}

	// Checkout initiated outside the back office (marketing site flow):
	// record the payment from scratch, keyed by the intent.
	paymentType := models.PaymentTypeOneTime
	if t, ok := session.Metadata["payment_type"]; ok && t != "" {
		paymentType = models.PaymentType(t)
	}

	// The upsert arbitrates conflicts on the intent ID only; writing the
	// session ID into its own unique column would make a replayed insert
	// raise instead of upserting. The session ID rides in metadata.
	meta := make(map[string]string, len(session.Metadata)+1)
	for k, v := range session.Metadata {
		meta[k] = v
	}
	meta["checkout_session_id"] = session.ID

	payment := models.Payment{
		ID:                    ids.New(),
		ClientID:              client.ID,
		StripePaymentIntentID: &session.PaymentIntent,
		AmountCents:           session.AmountTotal,
		Currency:              session.Currency,
		PaymentType:           paymentType,
		Status:                status,
		Metadata:              meta,
		PaidAt:                paidAt,
	}
	if err := p.payments.UpsertByIntentID(ctx, payment); err != nil {
		return fmt.Errorf("upsert checkout payment: %w", err)
	}
	return nil
}

func (p *Processor) handlePaymentIntent(ctx context.Context, intent paymentIntentPayload, to models.PaymentStatus, eventTime time.Time) error {
	var paidAt *time.Time
	if to == models.PaymentStatusSucceeded {
		paidAt = &eventTime
	}

	var method *string
	if len(intent.PaymentMethodTypes) > 0 {
		method = &intent.PaymentMethodTypes[0]
	}

	applied, err := p.payments.TransitionIntentStatus(ctx, intent.ID, to, paidAt, method)
	if err != nil {
		return fmt.Errorf("transition payment status: %w", err)
	}
	if !applied {
		// Either an intent this system never recorded, or a replayed event
		// against an already-settled row. Both are non-errors.
		p.log.Debug().Str("payment_intent", intent.ID).Str("status", string(to)).Msg("payment intent transition was a no-op")
	}
	return nil
}

func (p *Processor) handleSubscriptionUpserted(ctx context.Context, payload subscriptionPayload) error {
	existing, err := p.subscriptions.GetByStripeID(ctx, payload.ID)
	clientID := existing.ClientID
	subID := existing.ID
	if err != nil {
		if !errors.Is(err, repository.ErrSubscriptionNotFound) {
			return fmt.Errorf("load subscription: %w", err)
		}
		// New subscription: linkage must come from server-owned metadata.
		// Webhook payloads never create clients here.
		email := payload.Metadata["client_email"]
		if email == "" {
			p.log.Warn().Str("subscription_id", payload.ID).Msg("subscription event without local record or client linkage; skipping")
			return nil
		}
		client, err := p.clients.FindByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, repository.ErrClientNotFound) {
				p.log.Warn().Str("subscription_id", payload.ID).Str("email", email).Msg("subscription event for unknown client; skipping")
				return nil
			}
			return fmt.Errorf("find client: %w", err)
		}
		clientID = client.ID
		subID = ids.New()
	}

	sub := models.Subscription{
		ID:                   subID,
		ClientID:             clientID,
		StripeSubscriptionID: payload.ID,
		ProductType:          payload.Metadata["product_type"],
		Status:               mapSubscriptionStatus(payload.Status),
		CancelAtPeriodEnd:    payload.CancelAtPeriodEnd,
	}
	if sub.ProductType == "" {
		sub.ProductType = existing.ProductType
	}
	if len(payload.Items.Data) > 0 {
		sub.AmountCents = payload.Items.Data[0].Price.UnitAmount
		sub.Currency = payload.Items.Data[0].Price.Currency
	}
	if payload.CanceledAt > 0 {
		t := time.Unix(payload.CanceledAt, 0)
		sub.CanceledAt = &t
	}
	if payload.CurrentPeriodStart > 0 {
		t := time.Unix(payload.CurrentPeriodStart, 0)
		sub.CurrentPeriodStart = &t
	}
	if payload.CurrentPeriodEnd > 0 {
		t := time.Unix(payload.CurrentPeriodEnd, 0)
		sub.CurrentPeriodEnd = &t
	}

	if err := p.subscriptions.Upsert(ctx, sub); err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

func (p *Processor) handleSubscriptionDeleted(ctx context.Context, payload subscriptionPayload, eventTime time.Time) error {
	canceledAt := eventTime
	if payload.CanceledAt > 0 {
		canceledAt = time.Unix(payload.CanceledAt, 0)
	}
	if err := p.subscriptions.MarkCanceled(ctx, payload.ID, canceledAt); err != nil {
		return fmt.Errorf("mark subscription canceled: %w", err)
	}
	return nil
}

func (p *Processor) handleInvoice(ctx context.Context, invoice invoicePayload, status models.PaymentStatus, eventTime time.Time) error {
	if invoice.Subscription == "" {
		p.log.Debug().Str("invoice_id", invoice.ID).Msg("invoice without subscription; ignoring")
		return nil
	}

	sub, err := p.subscriptions.GetByStripeID(ctx, invoice.Subscription)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			p.log.Warn().Str("invoice_id", invoice.ID).Str("subscription_id", invoice.Subscription).Msg("invoice for unknown subscription; skipping")
			return nil
		}
		return fmt.Errorf("load subscription: %w", err)
	}

	// Recurring charges reconcile through the invoice's payment intent; the
	// invoice ID stands in when Stripe issued none (e.g. zero-amount cycles).
	intentID := invoice.PaymentIntent
	if intentID == "" {
		intentID = "inv_" + invoice.ID
	}

	amount := invoice.AmountPaid
	var paidAt *time.Time
	if status == models.PaymentStatusSucceeded {
		paidAt = &eventTime
	} else {
		amount = invoice.AmountDue
	}

	payment := models.Payment{
		ID:                    ids.New(),
		ClientID:              sub.ClientID,
		SubscriptionID:        &sub.ID,
		StripePaymentIntentID: &intentID,
		AmountCents:           amount,
		Currency:              invoice.Currency,
		PaymentType:           models.PaymentTypeSubscription,
		Status:                status,
		Metadata:              map[string]string{"invoice_id": invoice.ID},
		PaidAt:                paidAt,
	}
	if err := p.payments.UpsertByIntentID(ctx, payment); err != nil {
		return fmt.Errorf("upsert invoice payment: %w", err)
	}
	return nil
}

func mapSubscriptionStatus(status string) models.SubscriptionStatus {
	switch status {
	case "active":
		return models.SubscriptionStatusActive
	case "trialing":
		return models.SubscriptionStatusTrialing
	case "past_due":
		return models.SubscriptionStatusPastDue
	case "canceled", "incomplete_expired":
		return models.SubscriptionStatusCanceled
	default:
		return models.SubscriptionStatusUnpaid
	}
}
