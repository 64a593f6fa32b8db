package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"atelier/api/internal/models"
)

type ClientRepository struct {
	pool *pgxpool.Pool
}

func NewClientRepository(pool *pgxpool.Pool) *ClientRepository {
	return &ClientRepository{pool: pool}
}

const clientColumns = `id, email, name, company, phone, notes, status, created_at, updated_at`

func scanClient(row pgx.Row) (models.Client, error) {
	var client models.Client
	err := row.Scan(
		&client.ID,
		&client.Email,
		&client.Name,
		&client.Company,
		&client.Phone,
		&client.Notes,
		&client.Status,
		&client.CreatedAt,
		&client.UpdatedAt,
	)
	return client, err
}

func (r *ClientRepository) Create(ctx context.Context, client models.Client) error {
	const query = `
		INSERT INTO clients (id, email, name, company, phone, notes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	`

	_, err := r.pool.Exec(ctx, query,
		client.ID,
		client.Email,
		client.Name,
		client.Company,
		client.Phone,
		client.Notes,
		client.Status,
	)
	return err
}

func (r *ClientRepository) GetByID(ctx context.Context, id string) (models.Client, error) {
	query := fmt.Sprintf(`SELECT %s FROM clients WHERE id = $1`, clientColumns)

	client, err := scanClient(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Client{}, ErrClientNotFound
		}
		return models.Client{}, err
	}
	return client, nil
}

func (r *ClientRepository) FindByEmail(ctx context.Context, email string) (models.Client, error) {
	query := fmt.Sprintf(`SELECT %s FROM clients WHERE email = $1`, clientColumns)

	client, err := scanClient(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Client{}, ErrClientNotFound
		}
		return models.Client{}, err
	}
	return client, nil
}

// EnsureByEmail inserts a new ACTIVE client for email or returns the existing
// one. Safe under webhook redelivery: the conflict path only touches
// updated_at, never status, so an archived client is not resurrected.
func (r *ClientRepository) EnsureByEmail(ctx context.Context, id string, email string, name string) (models.Client, error) {
	query := fmt.Sprintf(`
		INSERT INTO clients (id, email, name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (email)
		DO UPDATE SET updated_at = NOW()
		RETURNING %s
	`, clientColumns)

	return scanClient(r.pool.QueryRow(ctx, query, id, email, name, models.ClientStatusActive))
}

func (r *ClientRepository) Update(ctx context.Context, client models.Client) error {
	const query = `
		UPDATE clients
		SET name = $2, company = $3, phone = $4, notes = $5, status = $6, updated_at = NOW()
		WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query,
		client.ID,
		client.Name,
		client.Company,
		client.Phone,
		client.Notes,
		client.Status,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrClientNotFound
	}
	return nil
}

func (r *ClientRepository) Archive(ctx context.Context, id string) error {
	const query = `
		UPDATE clients SET status = $2, updated_at = NOW() WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query, id, models.ClientStatusArchived)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrClientNotFound
	}
	return nil
}

func (r *ClientRepository) List(ctx context.Context, filters *Filters, limit, offset int) ([]models.Client, error) {
	where, args := filters.SQL()
	query := fmt.Sprintf(`
		SELECT %s FROM clients
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, clientColumns, where, filters.NextArg(), filters.NextArg()+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []models.Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	return clients, rows.Err()
}
