package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"atelier/api/internal/models"
)

type ActivityRepository struct {
	pool *pgxpool.Pool
}

func NewActivityRepository(pool *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{pool: pool}
}

// Insert appends one activity entry. ON CONFLICT DO NOTHING makes the write
// safe under at-least-once delivery from the stream worker.
func (r *ActivityRepository) Insert(ctx context.Context, entry models.ActivityEntry) error {
	details := entry.Details
	if details == nil {
		details = map[string]string{}
	}
	rawDetails, err := json.Marshal(details)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO activity_log (
			id, admin_id, action, entity_type, entity_id, client_id, details, ip_address, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
		ON CONFLICT (id) DO NOTHING
	`

	_, err = r.pool.Exec(ctx, query,
		entry.ID,
		entry.AdminID,
		entry.Action,
		entry.EntityType,
		entry.EntityID,
		entry.ClientID,
		rawDetails,
		entry.IPAddress,
		entry.CreatedAt,
	)
	return err
}

const activityColumns = `id, admin_id, action, entity_type, entity_id, client_id, details, ip_address, created_at`

func scanActivity(row pgx.Row) (models.ActivityEntry, error) {
	var (
		entry      models.ActivityEntry
		rawDetails []byte
	)
	err := row.Scan(
		&entry.ID,
		&entry.AdminID,
		&entry.Action,
		&entry.EntityType,
		&entry.EntityID,
		&entry.ClientID,
		&rawDetails,
		&entry.IPAddress,
		&entry.CreatedAt,
	)
	if err != nil {
		return models.ActivityEntry{}, err
	}
	if len(rawDetails) > 0 {
		if err := json.Unmarshal(rawDetails, &entry.Details); err != nil {
			return models.ActivityEntry{}, fmt.Errorf("decode activity details: %w", err)
		}
	}
	return entry, nil
}

func (r *ActivityRepository) List(ctx context.Context, filters *Filters, limit, offset int) ([]models.ActivityEntry, error) {
	where, args := filters.SQL()
	query := fmt.Sprintf(`
		SELECT %s FROM activity_log
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, activityColumns, where, filters.NextArg(), filters.NextArg()+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.ActivityEntry
	for rows.Next() {
		entry, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
