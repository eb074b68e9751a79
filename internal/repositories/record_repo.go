package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prudhvinik1/fieldsync/internal/models"
	"github.com/prudhvinik1/fieldsync/internal/registry"
)

type PostgresRecordRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRecordRepository(pool *pgxpool.Pool) *PostgresRecordRepository {
	return &PostgresRecordRepository{pool: pool}
}

// tableFor resolves the storage table through the registry. Table names
// come from the fixed descriptor set, never from request input, so
// interpolating them into SQL is safe.
func tableFor(entityType models.EntityType) (string, error) {
	desc, ok := registry.Lookup(entityType)
	if !ok {
		return "", fmt.Errorf("unknown entity type %q", entityType)
	}
	return desc.Table(), nil
}

const recordColumns = "id, org_id, client_id, version, payload, created_at, updated_at, deleted_at"

func scanRecord(row pgx.Row, entityType models.EntityType) (*models.ServerRecord, error) {
	rec := models.ServerRecord{EntityType: entityType}
	err := row.Scan(
		&rec.ID,
		&rec.OrgID,
		&rec.ClientID,
		&rec.Version,
		&rec.Payload,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&rec.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetByClientID returns the record including soft-deleted rows; callers
// inspect DeletedAt to distinguish a tombstone from a live record.
func (r *PostgresRecordRepository) GetByClientID(ctx context.Context, orgID uuid.UUID, entityType models.EntityType, clientID uuid.UUID) (*models.ServerRecord, error) {
	table, err := tableFor(entityType)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE org_id = $1 AND client_id = $2`, recordColumns, table)

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, orgID, clientID), entityType)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record by client ID: %w", err)
	}
	return rec, nil
}

// ApplyCreate inserts the record, or returns the already-stored one when
// the (org_id, client_id) unique index reports the create was applied
// before. The replay path is what makes duplicate submissions harmless.
func (r *PostgresRecordRepository) ApplyCreate(ctx context.Context, orgID uuid.UUID, entityType models.EntityType, clientID uuid.UUID, payload json.RawMessage) (*models.ServerRecord, error) {
	table, err := tableFor(entityType)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`INSERT INTO %s (org_id, client_id, version, payload)
	          VALUES ($1, $2, 1, $3)
	          ON CONFLICT (org_id, client_id) DO NOTHING
	          RETURNING %s`, table, recordColumns)

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, orgID, clientID, payload), entityType)
	if errors.Is(err, pgx.ErrNoRows) {
		// Row already exists - duplicate replay, hand back the original.
		return r.GetByClientID(ctx, orgID, entityType, clientID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create record: %w", err)
	}
	return rec, nil
}

// ApplyUpdate replaces the payload with optimistic locking. The WHERE
// clause carries the version check; zero rows updated means the base
// version went stale.
func (r *PostgresRecordRepository) ApplyUpdate(ctx context.Context, orgID uuid.UUID, entityType models.EntityType, clientID uuid.UUID, payload json.RawMessage, baseVersion int64) (*models.ServerRecord, error) {
	table, err := tableFor(entityType)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`UPDATE %s
	          SET payload = $1,
	              version = version + 1,
	              updated_at = NOW()
	          WHERE org_id = $2 AND client_id = $3 AND version = $4 AND deleted_at IS NULL
	          RETURNING %s`, table, recordColumns)

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, payload, orgID, clientID, baseVersion), entityType)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the record does not exist or the version moved on.
		if _, getErr := r.GetByClientID(ctx, orgID, entityType, clientID); getErr != nil {
			return nil, getErr
		}
		return nil, ErrVersionConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update record: %w", err)
	}
	return rec, nil
}

// ApplyDelete soft-deletes with the same version check as ApplyUpdate.
// Deleting an already-deleted record is treated as a replay and returns
// the tombstone.
func (r *PostgresRecordRepository) ApplyDelete(ctx context.Context, orgID uuid.UUID, entityType models.EntityType, clientID uuid.UUID, baseVersion int64) (*models.ServerRecord, error) {
	table, err := tableFor(entityType)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`UPDATE %s
	          SET deleted_at = NOW(),
	              version = version + 1,
	              updated_at = NOW()
	          WHERE org_id = $1 AND client_id = $2 AND version = $3 AND deleted_at IS NULL
	          RETURNING %s`, table, recordColumns)

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, orgID, clientID, baseVersion), entityType)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, getErr := r.GetByClientID(ctx, orgID, entityType, clientID)
		if getErr != nil {
			return nil, getErr
		}
		if existing.DeletedAt != nil {
			return existing, nil
		}
		return nil, ErrVersionConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete record: %w", err)
	}
	return rec, nil
}
