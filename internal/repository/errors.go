package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrAdminNotFound        = errors.New("admin not found")
	ErrClientNotFound       = errors.New("client not found")
	ErrProjectNotFound      = errors.New("project not found")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrPaymentNotRefundable is returned when a full-refund flip matches no
	// row, i.e. the payment is not in SUCCEEDED anymore.
	ErrPaymentNotRefundable = errors.New("payment not refundable")
)

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
