package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresActivityRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresActivityRepository(pool *pgxpool.Pool) *PostgresActivityRepository {
	return &PostgresActivityRepository{pool: pool}
}

func (r *PostgresActivityRepository) RecordBatch(ctx context.Context, orgID, deviceID uuid.UUID, accepted, conflicts, rejected int) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sync_activity (org_id, device_id, accepted, conflicts, rejected)
		 VALUES ($1, $2, $3, $4, $5)`,
		orgID, deviceID, accepted, conflicts, rejected,
	)
	if err != nil {
		return fmt.Errorf("failed to record batch activity: %w", err)
	}
	return nil
}

func (r *PostgresActivityRepository) RejectedTotal(ctx context.Context, orgID uuid.UUID) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(rejected), 0) FROM sync_activity WHERE org_id = $1`,
		orgID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum rejected entries: %w", err)
	}
	return total, nil
}
