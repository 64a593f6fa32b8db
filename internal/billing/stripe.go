package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"atelier/api/internal/apperr"
	"atelier/api/internal/config"
)

type CheckoutMode string

const (
	CheckoutModeOneTime      CheckoutMode = "one_time"
	CheckoutModeSubscription CheckoutMode = "subscription"
	CheckoutModeQuote        CheckoutMode = "quote"
)

type CheckoutInput struct {
	Mode          CheckoutMode
	AmountCents   int64
	Currency      string
	ProductName   string
	CustomerEmail string
	// Interval applies to subscription mode only; defaults to month.
	Interval string
	// ConnectedAccountID enables a marketplace split: the charge is
	// transferred to the account minus the application fee.
	ConnectedAccountID string
	FeePercentOverride *float64
	Metadata           map[string]string
}

type CheckoutSession struct {
	ID              string
	URL             string
	PaymentIntentID string
	SubscriptionID  string
}

type ConnectedAccount struct {
	ID               string
	Email            string
	Country          string
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
}

type OnboardingLink struct {
	URL       string
	ExpiresAt time.Time
}

type RefundResult struct {
	ID     string
	Status string
}

// StripeGateway is a thin boundary over the Stripe API. It validates input,
// applies the fee rule, and converts Stripe failures into Upstream errors;
// reconciliation of resulting state belongs to the webhook processor.
type StripeGateway struct {
	api               *client.API
	siteBaseURL       string
	defaultFeePercent float64
}

func NewStripeGateway(cfg config.StripeConfig, siteBaseURL string) *StripeGateway {
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)

	return &StripeGateway{
		api:               api,
		siteBaseURL:       siteBaseURL,
		defaultFeePercent: cfg.DefaultFeePercent,
	}
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (CheckoutSession, error) {
	if in.AmountCents <= 0 {
		return CheckoutSession{}, apperr.Validation("amount_cents must be positive")
	}
	if in.ProductName == "" {
		return CheckoutSession{}, apperr.Validation("product name is required")
	}
	currency := in.Currency
	if currency == "" {
		currency = "usd"
	}

	priceData := &stripe.CheckoutSessionLineItemPriceDataParams{
		Currency:   stripe.String(currency),
		UnitAmount: stripe.Int64(in.AmountCents),
		ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(in.ProductName),
		},
	}

	mode := stripe.CheckoutSessionModePayment
	if in.Mode == CheckoutModeSubscription {
		mode = stripe.CheckoutSessionModeSubscription
		interval := in.Interval
		if interval == "" {
			interval = "month"
		}
		priceData.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
			Interval: stripe.String(interval),
		}
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(mode)),
		SuccessURL: stripe.String(g.siteBaseURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(g.siteBaseURL + "/checkout/cancel"),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: priceData,
				Quantity:  stripe.Int64(1),
			},
		},
	}
	params.Context = ctx

	if in.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(in.CustomerEmail)
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}

	if in.ConnectedAccountID != "" {
		if in.Mode == CheckoutModeSubscription {
			return CheckoutSession{}, apperr.Validation("connected-account split is not supported for subscriptions")
		}
		fee := ApplicationFee(in.AmountCents, g.defaultFeePercent, in.FeePercentOverride)
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
			ApplicationFeeAmount: stripe.Int64(fee),
			TransferData: &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
				Destination: stripe.String(in.ConnectedAccountID),
			},
		}
	}

	session, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return CheckoutSession{}, mapStripeError("create checkout session", err)
	}

	out := CheckoutSession{
		ID:  session.ID,
		URL: session.URL,
	}
	if session.PaymentIntent != nil {
		out.PaymentIntentID = session.PaymentIntent.ID
	}
	if session.Subscription != nil {
		out.SubscriptionID = session.Subscription.ID
	}
	return out, nil
}

func (g *StripeGateway) CreateConnectedAccount(ctx context.Context, email string, country string) (ConnectedAccount, error) {
	if email == "" {
		return ConnectedAccount{}, apperr.Validation("email is required")
	}
	if country == "" {
		country = "US"
	}

	params := &stripe.AccountParams{
		Type:    stripe.String(string(stripe.AccountTypeExpress)),
		Email:   stripe.String(email),
		Country: stripe.String(country),
	}
	params.Context = ctx

	account, err := g.api.Accounts.New(params)
	if err != nil {
		return ConnectedAccount{}, mapStripeError("create connected account", err)
	}
	return toConnectedAccount(account), nil
}

func (g *StripeGateway) ListConnectedAccounts(ctx context.Context) ([]ConnectedAccount, error) {
	params := &stripe.AccountListParams{}
	params.Context = ctx

	var accounts []ConnectedAccount
	iter := g.api.Accounts.List(params)
	for iter.Next() {
		accounts = append(accounts, toConnectedAccount(iter.Account()))
	}
	if err := iter.Err(); err != nil {
		return nil, mapStripeError("list connected accounts", err)
	}
	return accounts, nil
}

func (g *StripeGateway) CreateOnboardingLink(ctx context.Context, accountID string) (OnboardingLink, error) {
	if accountID == "" {
		return OnboardingLink{}, apperr.Validation("account id is required")
	}

	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(g.siteBaseURL + "/admin/accounts/onboarding/refresh"),
		ReturnURL:  stripe.String(g.siteBaseURL + "/admin/accounts/onboarding/return"),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx

	link, err := g.api.AccountLinks.New(params)
	if err != nil {
		return OnboardingLink{}, mapStripeError("create onboarding link", err)
	}
	return OnboardingLink{
		URL:       link.URL,
		ExpiresAt: time.Unix(link.ExpiresAt, 0),
	}, nil
}

// CancelSubscription cancels immediately or flags cancel-at-period-end.
func (g *StripeGateway) CancelSubscription(ctx context.Context, stripeSubscriptionID string, atPeriodEnd bool) error {
	if stripeSubscriptionID == "" {
		return apperr.Validation("subscription id is required")
	}

	if atPeriodEnd {
		params := &stripe.SubscriptionParams{
			CancelAtPeriodEnd: stripe.Bool(true),
		}
		params.Context = ctx
		if _, err := g.api.Subscriptions.Update(stripeSubscriptionID, params); err != nil {
			return mapStripeError("cancel subscription at period end", err)
		}
		return nil
	}

	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	if _, err := g.api.Subscriptions.Cancel(stripeSubscriptionID, params); err != nil {
		return mapStripeError("cancel subscription", err)
	}
	return nil
}

// RefundPayment refunds a payment intent; amountCents of 0 refunds in full.
func (g *StripeGateway) RefundPayment(ctx context.Context, paymentIntentID string, amountCents int64) (RefundResult, error) {
	if paymentIntentID == "" {
		return RefundResult{}, apperr.Validation("payment intent id is required")
	}
	if amountCents < 0 {
		return RefundResult{}, apperr.Validation("refund amount must not be negative")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
	}
	params.Context = ctx
	if amountCents > 0 {
		params.Amount = stripe.Int64(amountCents)
	}

	refund, err := g.api.Refunds.New(params)
	if err != nil {
		return RefundResult{}, mapStripeError("refund payment", err)
	}
	return RefundResult{
		ID:     refund.ID,
		Status: string(refund.Status),
	}, nil
}

func toConnectedAccount(account *stripe.Account) ConnectedAccount {
	return ConnectedAccount{
		ID:               account.ID,
		Email:            account.Email,
		Country:          account.Country,
		ChargesEnabled:   account.ChargesEnabled,
		PayoutsEnabled:   account.PayoutsEnabled,
		DetailsSubmitted: account.DetailsSubmitted,
	}
}

// mapStripeError keeps the processor's message for the caller while anything
// non-Stripe stays an internal error.
func mapStripeError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		msg := stripeErr.Msg
		if msg == "" {
			msg = string(stripeErr.Code)
		}
		return apperr.Wrap(apperr.KindUpstream, msg, err)
	}
	return apperr.Wrap(apperr.KindInternal, fmt.Sprintf("%s failed", op), err)
}
