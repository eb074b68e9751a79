package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prudhvinik1/fieldsync/internal/models"
)

type PostgresConflictRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresConflictRepository(pool *pgxpool.Pool) *PostgresConflictRepository {
	return &PostgresConflictRepository{pool: pool}
}

// Create records a detected conflict. A replay of the same stale
// submission lands on the partial unique index over open conflicts and
// refreshes the server-side snapshot instead of inserting a duplicate.
func (r *PostgresConflictRepository) Create(ctx context.Context, conflict *models.Conflict) error {
	query := `INSERT INTO sync_conflicts
	          (org_id, entity_type, client_id, base_version, server_version, client_payload, server_payload, status)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, 'open')
	          ON CONFLICT (org_id, entity_type, client_id, base_version) WHERE status = 'open'
	          DO UPDATE SET server_version = EXCLUDED.server_version,
	                        server_payload = EXCLUDED.server_payload
	          RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query,
		conflict.OrgID,
		conflict.EntityType,
		conflict.ClientID,
		conflict.BaseVersion,
		conflict.ServerVersion,
		conflict.ClientPayload,
		conflict.ServerPayload,
	).Scan(&conflict.ID, &conflict.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create conflict: %w", err)
	}
	conflict.Status = models.ConflictOpen
	return nil
}

const conflictColumns = `id, org_id, entity_type, client_id, base_version, server_version,
	client_payload, server_payload, status, created_at, resolved_at`

func scanConflict(row pgx.Row) (*models.Conflict, error) {
	var c models.Conflict
	err := row.Scan(
		&c.ID,
		&c.OrgID,
		&c.EntityType,
		&c.ClientID,
		&c.BaseVersion,
		&c.ServerVersion,
		&c.ClientPayload,
		&c.ServerPayload,
		&c.Status,
		&c.CreatedAt,
		&c.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PostgresConflictRepository) GetByID(ctx context.Context, orgID uuid.UUID, id int64) (*models.Conflict, error) {
	query := fmt.Sprintf(`SELECT %s FROM sync_conflicts WHERE org_id = $1 AND id = $2`, conflictColumns)

	c, err := scanConflict(r.pool.QueryRow(ctx, query, orgID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conflict: %w", err)
	}
	return c, nil
}

func (r *PostgresConflictRepository) ListOpen(ctx context.Context, orgID uuid.UUID, limit int) ([]*models.Conflict, error) {
	query := fmt.Sprintf(`SELECT %s FROM sync_conflicts
	          WHERE org_id = $1 AND status = 'open'
	          ORDER BY created_at ASC
	          LIMIT $2`, conflictColumns)

	rows, err := r.pool.Query(ctx, query, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list open conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []*models.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conflict: %w", err)
		}
		conflicts = append(conflicts, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conflicts: %w", err)
	}
	return conflicts, nil
}

func (r *PostgresConflictRepository) CountOpen(ctx context.Context, orgID uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM sync_conflicts WHERE org_id = $1 AND status = 'open'`,
		orgID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count open conflicts: %w", err)
	}
	return count, nil
}

func (r *PostgresConflictRepository) MarkResolved(ctx context.Context, orgID uuid.UUID, id int64) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE sync_conflicts
		 SET status = 'resolved', resolved_at = NOW()
		 WHERE org_id = $1 AND id = $2 AND status = 'open'`,
		orgID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve conflict: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
