package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"atelier/api/internal/models"
)

type PaymentRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

const paymentColumns = `id, client_id, project_id, subscription_id, stripe_payment_intent_id,
	stripe_checkout_session_id, amount_cents, currency, payment_type, status, payment_method,
	metadata, paid_at, created_at, updated_at`

func scanPayment(row pgx.Row) (models.Payment, error) {
	var (
		payment models.Payment
		rawMeta []byte
	)
	err := row.Scan(
		&payment.ID,
		&payment.ClientID,
		&payment.ProjectID,
		&payment.SubscriptionID,
		&payment.StripePaymentIntentID,
		&payment.StripeCheckoutSessionID,
		&payment.AmountCents,
		&payment.Currency,
		&payment.PaymentType,
		&payment.Status,
		&payment.PaymentMethod,
		&rawMeta,
		&payment.PaidAt,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return models.Payment{}, err
	}
	if len(rawMeta) > 0 {
		if err := json.Unmarshal(rawMeta, &payment.Metadata); err != nil {
			return models.Payment{}, fmt.Errorf("decode payment metadata: %w", err)
		}
	}
	return payment, nil
}

func encodeMetadata(metadata map[string]string) ([]byte, error) {
	if metadata == nil {
		metadata = map[string]string{}
	}
	return json.Marshal(metadata)
}

func (r *PaymentRepository) Create(ctx context.Context, payment models.Payment) error {
	rawMeta, err := encodeMetadata(payment.Metadata)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO payments (
			id, client_id, project_id, subscription_id, stripe_payment_intent_id,
			stripe_checkout_session_id, amount_cents, currency, payment_type, status,
			payment_method, metadata, paid_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW()
		)
	`

	_, err = r.pool.Exec(ctx, query,
		payment.ID,
		payment.ClientID,
		payment.ProjectID,
		payment.SubscriptionID,
		payment.StripePaymentIntentID,
		payment.StripeCheckoutSessionID,
		payment.AmountCents,
		payment.Currency,
		payment.PaymentType,
		payment.Status,
		payment.PaymentMethod,
		rawMeta,
		payment.PaidAt,
	)
	return err
}

// UpsertByIntentID creates or refreshes the row keyed by the Stripe payment
// intent. A REFUNDED row is terminal and is never overwritten, so replayed
// events cannot duplicate a payment or undo refund bookkeeping.
func (r *PaymentRepository) UpsertByIntentID(ctx context.Context, payment models.Payment) error {
	rawMeta, err := encodeMetadata(payment.Metadata)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO payments (
			id, client_id, project_id, subscription_id, stripe_payment_intent_id,
			stripe_checkout_session_id, amount_cents, currency, payment_type, status,
			payment_method, metadata, paid_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW()
		)
		ON CONFLICT (stripe_payment_intent_id)
		DO UPDATE SET
			status = EXCLUDED.status,
			amount_cents = EXCLUDED.amount_cents,
			payment_method = COALESCE(EXCLUDED.payment_method, payments.payment_method),
			paid_at = COALESCE(EXCLUDED.paid_at, payments.paid_at),
			updated_at = NOW()
		WHERE payments.status <> 'REFUNDED'
	`

	_, err = r.pool.Exec(ctx, query,
		payment.ID,
		payment.ClientID,
		payment.ProjectID,
		payment.SubscriptionID,
		payment.StripePaymentIntentID,
		payment.StripeCheckoutSessionID,
		payment.AmountCents,
		payment.Currency,
		payment.PaymentType,
		payment.Status,
		payment.PaymentMethod,
		rawMeta,
		payment.PaidAt,
	)
	return err
}

// AttachIntentBySession links the payment intent produced by a completed
// checkout session to the PENDING row created when the session was opened.
// Returns false when no row matched (already linked, or checkout originated
// outside this system).
func (r *PaymentRepository) AttachIntentBySession(ctx context.Context, sessionID string, intentID string) (bool, error) {
	const query = `
		UPDATE payments
		SET stripe_payment_intent_id = $2,
		    status = 'PROCESSING',
		    updated_at = NOW()
		WHERE stripe_checkout_session_id = $1
		  AND stripe_payment_intent_id IS NULL
		  AND status = 'PENDING'
	`
	cmd, err := r.pool.Exec(ctx, query, sessionID, intentID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

// TransitionIntentStatus applies a PENDING/PROCESSING -> to transition for
// the payment keyed by intentID. Returns false when no row changed, which is
// the idempotent no-op on redelivered events.
func (r *PaymentRepository) TransitionIntentStatus(ctx context.Context, intentID string, to models.PaymentStatus, paidAt *time.Time, paymentMethod *string) (bool, error) {
	const query = `
		UPDATE payments
		SET status = $2,
		    paid_at = COALESCE($3, paid_at),
		    payment_method = COALESCE($4, payment_method),
		    updated_at = NOW()
		WHERE stripe_payment_intent_id = $1
		  AND status IN ('PENDING', 'PROCESSING')
	`
	cmd, err := r.pool.Exec(ctx, query, intentID, to, paidAt, paymentMethod)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id string) (models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE id = $1`, paymentColumns)

	payment, err := scanPayment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Payment{}, ErrPaymentNotFound
		}
		return models.Payment{}, err
	}
	return payment, nil
}

func (r *PaymentRepository) GetByIntentID(ctx context.Context, intentID string) (models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE stripe_payment_intent_id = $1`, paymentColumns)

	payment, err := scanPayment(r.pool.QueryRow(ctx, query, intentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Payment{}, ErrPaymentNotFound
		}
		return models.Payment{}, err
	}
	return payment, nil
}

// SumRefunded returns the already refunded total for a payment as a positive
// number of cents, derived from the negative REFUND rows that reference it.
func (r *PaymentRepository) SumRefunded(ctx context.Context, originalID string) (int64, error) {
	const query = `
		SELECT COALESCE(SUM(-amount_cents), 0)
		FROM payments
		WHERE payment_type = 'REFUND' AND metadata->>'refund_of' = $1
	`
	row := r.pool.QueryRow(ctx, query, originalID)
	var total int64
	if err := row.Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// ApplyFullRefund flips the original row to REFUNDED. The flip only matches
// a SUCCEEDED row; anything else means the state moved underneath us.
func (r *PaymentRepository) ApplyFullRefund(ctx context.Context, id string) error {
	const query = `
		UPDATE payments
		SET status = 'REFUNDED', updated_at = NOW()
		WHERE id = $1 AND status = 'SUCCEEDED'
	`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPaymentNotRefundable
	}
	return nil
}

// ApplyPartialRefund inserts the negative refund row in one transaction with
// a re-check of the cumulative refunded amount under lock, so concurrent
// refunds cannot overshoot the original amount.
func (r *PaymentRepository) ApplyPartialRefund(ctx context.Context, original models.Payment, refund models.Payment) error {
	rawMeta, err := encodeMetadata(refund.Metadata)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT status FROM payments WHERE id = $1 FOR UPDATE`, original.ID)
	var status models.PaymentStatus
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrPaymentNotFound
		}
		return err
	}
	if status != models.PaymentStatusSucceeded {
		return ErrPaymentNotRefundable
	}

	row = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(-amount_cents), 0)
		FROM payments
		WHERE payment_type = 'REFUND' AND metadata->>'refund_of' = $1
	`, original.ID)
	var refunded int64
	if err := row.Scan(&refunded); err != nil {
		return err
	}
	if refunded+(-refund.AmountCents) > original.AmountCents {
		return ErrPaymentNotRefundable
	}

	const insert = `
		INSERT INTO payments (
			id, client_id, project_id, subscription_id, stripe_payment_intent_id,
			stripe_checkout_session_id, amount_cents, currency, payment_type, status,
			payment_method, metadata, paid_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW()
		)
	`
	if _, err := tx.Exec(ctx, insert,
		refund.ID,
		refund.ClientID,
		refund.ProjectID,
		refund.SubscriptionID,
		refund.StripePaymentIntentID,
		refund.StripeCheckoutSessionID,
		refund.AmountCents,
		refund.Currency,
		refund.PaymentType,
		refund.Status,
		refund.PaymentMethod,
		rawMeta,
		refund.PaidAt,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// MarkStalePending cancels PENDING payments created before cutoff. Checkout
// sessions abandoned by the customer expire on Stripe's side; this keeps the
// local books in step.
func (r *PaymentRepository) MarkStalePending(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `
		UPDATE payments
		SET status = 'CANCELED', updated_at = NOW()
		WHERE status = 'PENDING' AND payment_type <> 'REFUND' AND created_at < $1
	`
	cmd, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *PaymentRepository) List(ctx context.Context, filters *Filters, limit, offset int) ([]models.Payment, error) {
	where, args := filters.SQL()
	query := fmt.Sprintf(`
		SELECT %s FROM payments
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, paymentColumns, where, filters.NextArg(), filters.NextArg()+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	return payments, rows.Err()
}

func (r *PaymentRepository) ListByClient(ctx context.Context, clientID string, limit int) ([]models.Payment, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM payments WHERE client_id = $1 ORDER BY created_at DESC LIMIT $2
	`, paymentColumns)

	rows, err := r.pool.Query(ctx, query, clientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	return payments, rows.Err()
}
