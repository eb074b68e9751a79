package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/fieldsync/internal/models"
)

var (
	// ErrNotFound is returned when no record matches the lookup key
	// within the caller's organization.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict is returned when an update or delete carries a
	// base version older than the stored one.
	ErrVersionConflict = errors.New("version conflict: record was modified since the client's base version")
)

// RecordRepository applies client mutations to the authoritative store.
// Every method is scoped to an organization; a query without an org_id
// filter does not exist in any implementation.
type RecordRepository interface {
	GetByClientID(ctx context.Context, orgID uuid.UUID, entityType models.EntityType, clientID uuid.UUID) (*models.ServerRecord, error)

	// ApplyCreate inserts a record keyed by (org_id, client_id). A
	// replay of an already-applied create returns the existing record
	// unchanged, so the same server id is handed back every time.
	ApplyCreate(ctx context.Context, orgID uuid.UUID, entityType models.EntityType, clientID uuid.UUID, payload json.RawMessage) (*models.ServerRecord, error)

	// ApplyUpdate replaces the payload if baseVersion still matches the
	// stored version, returning ErrVersionConflict otherwise.
	ApplyUpdate(ctx context.Context, orgID uuid.UUID, entityType models.EntityType, clientID uuid.UUID, payload json.RawMessage, baseVersion int64) (*models.ServerRecord, error)

	// ApplyDelete soft-deletes with the same version check. Deleting an
	// already-deleted record is a successful replay.
	ApplyDelete(ctx context.Context, orgID uuid.UUID, entityType models.EntityType, clientID uuid.UUID, baseVersion int64) (*models.ServerRecord, error)
}

// ConflictRepository persists detected conflicts until they are resolved.
type ConflictRepository interface {
	Create(ctx context.Context, conflict *models.Conflict) error
	GetByID(ctx context.Context, orgID uuid.UUID, id int64) (*models.Conflict, error)
	ListOpen(ctx context.Context, orgID uuid.UUID, limit int) ([]*models.Conflict, error)
	CountOpen(ctx context.Context, orgID uuid.UUID) (int64, error)
	MarkResolved(ctx context.Context, orgID uuid.UUID, id int64) error
}

// ActivityRepository records per-batch reconciliation outcomes for the
// status endpoint's failure counters.
type ActivityRepository interface {
	RecordBatch(ctx context.Context, orgID, deviceID uuid.UUID, accepted, conflicts, rejected int) error
	RejectedTotal(ctx context.Context, orgID uuid.UUID) (int64, error)
}

// StatusCache holds the per-organization last successful sync timestamp.
type StatusCache interface {
	SetLastSynced(ctx context.Context, orgID uuid.UUID, at time.Time) error
	// LastSynced returns nil when the organization has never synced.
	LastSynced(ctx context.Context, orgID uuid.UUID) (*time.Time, error)
}
