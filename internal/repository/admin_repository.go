package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"atelier/api/internal/models"
)

type AdminRepository struct {
	pool *pgxpool.Pool
}

func NewAdminRepository(pool *pgxpool.Pool) *AdminRepository {
	return &AdminRepository{pool: pool}
}

func (r *AdminRepository) FindByEmail(ctx context.Context, email string) (models.AdminUser, error) {
	const query = `
		SELECT id, email, password_hash, name, active, last_login, created_at, updated_at
		FROM admin_users WHERE email = $1
	`

	row := r.pool.QueryRow(ctx, query, email)
	var admin models.AdminUser
	if err := row.Scan(
		&admin.ID,
		&admin.Email,
		&admin.PasswordHash,
		&admin.Name,
		&admin.Active,
		&admin.LastLogin,
		&admin.CreatedAt,
		&admin.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.AdminUser{}, ErrAdminNotFound
		}
		return models.AdminUser{}, err
	}
	return admin, nil
}

func (r *AdminRepository) GetByID(ctx context.Context, id string) (models.AdminUser, error) {
	const query = `
		SELECT id, email, password_hash, name, active, last_login, created_at, updated_at
		FROM admin_users WHERE id = $1
	`

	row := r.pool.QueryRow(ctx, query, id)
	var admin models.AdminUser
	if err := row.Scan(
		&admin.ID,
		&admin.Email,
		&admin.PasswordHash,
		&admin.Name,
		&admin.Active,
		&admin.LastLogin,
		&admin.CreatedAt,
		&admin.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.AdminUser{}, ErrAdminNotFound
		}
		return models.AdminUser{}, err
	}
	return admin, nil
}

func (r *AdminRepository) UpdateLastLogin(ctx context.Context, id string) error {
	const query = `
		UPDATE admin_users SET last_login = NOW(), updated_at = NOW() WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAdminNotFound
	}
	return nil
}
