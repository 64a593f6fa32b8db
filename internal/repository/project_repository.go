package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"atelier/api/internal/models"
)

type ProjectRepository struct {
	pool *pgxpool.Pool
}

func NewProjectRepository(pool *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{pool: pool}
}

const projectColumns = `id, client_id, name, description, status, budget_cents, created_at, updated_at`

func scanProject(row pgx.Row) (models.Project, error) {
	var project models.Project
	err := row.Scan(
		&project.ID,
		&project.ClientID,
		&project.Name,
		&project.Description,
		&project.Status,
		&project.BudgetCents,
		&project.CreatedAt,
		&project.UpdatedAt,
	)
	return project, err
}

func (r *ProjectRepository) Create(ctx context.Context, project models.Project) error {
	const query = `
		INSERT INTO projects (id, client_id, name, description, status, budget_cents, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`

	_, err := r.pool.Exec(ctx, query,
		project.ID,
		project.ClientID,
		project.Name,
		project.Description,
		project.Status,
		project.BudgetCents,
	)
	return err
}

func (r *ProjectRepository) GetByID(ctx context.Context, id string) (models.Project, error) {
	query := fmt.Sprintf(`SELECT %s FROM projects WHERE id = $1`, projectColumns)

	project, err := scanProject(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Project{}, ErrProjectNotFound
		}
		return models.Project{}, err
	}
	return project, nil
}

func (r *ProjectRepository) Update(ctx context.Context, project models.Project) error {
	const query = `
		UPDATE projects
		SET name = $2, description = $3, status = $4, budget_cents = $5, updated_at = NOW()
		WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query,
		project.ID,
		project.Name,
		project.Description,
		project.Status,
		project.BudgetCents,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrProjectNotFound
	}
	return nil
}

func (r *ProjectRepository) List(ctx context.Context, filters *Filters, limit, offset int) ([]models.Project, error) {
	where, args := filters.SQL()
	query := fmt.Sprintf(`
		SELECT %s FROM projects
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, projectColumns, where, filters.NextArg(), filters.NextArg()+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

func (r *ProjectRepository) ListByClient(ctx context.Context, clientID string) ([]models.Project, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM projects WHERE client_id = $1 ORDER BY created_at DESC
	`, projectColumns)

	rows, err := r.pool.Query(ctx, query, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}
