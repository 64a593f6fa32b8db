package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"atelier/api/internal/models"
)

type SubscriptionRepository struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepository(pool *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{pool: pool}
}

const subscriptionColumns = `id, client_id, stripe_subscription_id, product_type, status, amount_cents,
	currency, cancel_at_period_end, canceled_at, current_period_start, current_period_end, created_at, updated_at`

func scanSubscription(row pgx.Row) (models.Subscription, error) {
	var sub models.Subscription
	err := row.Scan(
		&sub.ID,
		&sub.ClientID,
		&sub.StripeSubscriptionID,
		&sub.ProductType,
		&sub.Status,
		&sub.AmountCents,
		&sub.Currency,
		&sub.CancelAtPeriodEnd,
		&sub.CanceledAt,
		&sub.CurrentPeriodStart,
		&sub.CurrentPeriodEnd,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	return sub, err
}

// Upsert creates or updates the row keyed by the Stripe subscription ID.
// A CANCELED row is terminal: the conflict update refuses to touch it, so a
// late out-of-order `subscription.updated` cannot resurrect it.
func (r *SubscriptionRepository) Upsert(ctx context.Context, sub models.Subscription) error {
	const query = `
		INSERT INTO subscriptions (
			id, client_id, stripe_subscription_id, product_type, status, amount_cents,
			currency, cancel_at_period_end, canceled_at, current_period_start, current_period_end,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW()
		)
		ON CONFLICT (stripe_subscription_id)
		DO UPDATE SET
			status = EXCLUDED.status,
			amount_cents = EXCLUDED.amount_cents,
			currency = EXCLUDED.currency,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			canceled_at = COALESCE(subscriptions.canceled_at, EXCLUDED.canceled_at),
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			updated_at = NOW()
		WHERE subscriptions.status <> 'CANCELED'
	`

	_, err := r.pool.Exec(ctx, query,
		sub.ID,
		sub.ClientID,
		sub.StripeSubscriptionID,
		sub.ProductType,
		sub.Status,
		sub.AmountCents,
		sub.Currency,
		sub.CancelAtPeriodEnd,
		sub.CanceledAt,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
	)
	return err
}

// MarkCanceled is idempotent; replaying the event leaves the row CANCELED.
func (r *SubscriptionRepository) MarkCanceled(ctx context.Context, stripeSubscriptionID string, canceledAt time.Time) error {
	const query = `
		UPDATE subscriptions
		SET status = 'CANCELED',
		    canceled_at = COALESCE(canceled_at, $2),
		    updated_at = NOW()
		WHERE stripe_subscription_id = $1
	`
	_, err := r.pool.Exec(ctx, query, stripeSubscriptionID, canceledAt)
	return err
}

func (r *SubscriptionRepository) SetCancelAtPeriodEnd(ctx context.Context, stripeSubscriptionID string, value bool) error {
	const query = `
		UPDATE subscriptions
		SET cancel_at_period_end = $2, updated_at = NOW()
		WHERE stripe_subscription_id = $1 AND status <> 'CANCELED'
	`
	_, err := r.pool.Exec(ctx, query, stripeSubscriptionID, value)
	return err
}

func (r *SubscriptionRepository) GetByID(ctx context.Context, id string) (models.Subscription, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscriptions WHERE id = $1`, subscriptionColumns)

	sub, err := scanSubscription(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Subscription{}, ErrSubscriptionNotFound
		}
		return models.Subscription{}, err
	}
	return sub, nil
}

func (r *SubscriptionRepository) GetByStripeID(ctx context.Context, stripeSubscriptionID string) (models.Subscription, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscriptions WHERE stripe_subscription_id = $1`, subscriptionColumns)

	sub, err := scanSubscription(r.pool.QueryRow(ctx, query, stripeSubscriptionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Subscription{}, ErrSubscriptionNotFound
		}
		return models.Subscription{}, err
	}
	return sub, nil
}

func (r *SubscriptionRepository) List(ctx context.Context, filters *Filters, limit, offset int) ([]models.Subscription, error) {
	where, args := filters.SQL()
	query := fmt.Sprintf(`
		SELECT %s FROM subscriptions
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, subscriptionColumns, where, filters.NextArg(), filters.NextArg()+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (r *SubscriptionRepository) ListByClient(ctx context.Context, clientID string) ([]models.Subscription, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM subscriptions WHERE client_id = $1 ORDER BY created_at DESC
	`, subscriptionColumns)

	rows, err := r.pool.Query(ctx, query, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
