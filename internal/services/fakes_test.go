package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prudhvinik1/fieldsync/internal/models"
	"github.com/prudhvinik1/fieldsync/internal/repositories"
)

// In-memory doubles mirroring the postgres repository semantics,
// including idempotent create replays and version-checked updates.

type fakeRecordRepo struct {
	mu      sync.Mutex
	nextID  int64
	records map[string]*models.ServerRecord
}

func newFakeRecordRepo() *fakeRecordRepo {
	return &fakeRecordRepo{records: make(map[string]*models.ServerRecord)}
}

func recordKey(orgID uuid.UUID, entityType models.EntityType, clientID uuid.UUID) string {
	return fmt.Sprintf("%s|%s|%s", orgID, entityType, clientID)
}

func (f *fakeRecordRepo) GetByClientID(_ context.Context, orgID uuid.UUID, entityType models.EntityType, clientID uuid.UUID) (*models.ServerRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[recordKey(orgID, entityType, clientID)]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *rec
	return &copied, nil
}

func (f *fakeRecordRepo) ApplyCreate(_ context.Context, orgID uuid.UUID, entityType models.EntityType, clientID uuid.UUID, payload json.RawMessage) (*models.ServerRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := recordKey(orgID, entityType, clientID)
	if rec, ok := f.records[key]; ok {
		copied := *rec
		return &copied, nil
	}

	f.nextID++
	now := time.Now()
	rec := &models.ServerRecord{
		ID:         f.nextID,
		OrgID:      orgID,
		ClientID:   clientID,
		EntityType: entityType,
		Version:    1,
		Payload:    payload,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	f.records[key] = rec
	copied := *rec
	return &copied, nil
}

func (f *fakeRecordRepo) ApplyUpdate(_ context.Context, orgID uuid.UUID, entityType models.EntityType, clientID uuid.UUID, payload json.RawMessage, baseVersion int64) (*models.ServerRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[recordKey(orgID, entityType, clientID)]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if rec.DeletedAt != nil || rec.Version != baseVersion {
		return nil, repositories.ErrVersionConflict
	}

	rec.Payload = payload
	rec.Version++
	rec.UpdatedAt = time.Now()
	copied := *rec
	return &copied, nil
}

func (f *fakeRecordRepo) ApplyDelete(_ context.Context, orgID uuid.UUID, entityType models.EntityType, clientID uuid.UUID, baseVersion int64) (*models.ServerRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[recordKey(orgID, entityType, clientID)]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if rec.DeletedAt != nil {
		copied := *rec
		return &copied, nil
	}
	if rec.Version != baseVersion {
		return nil, repositories.ErrVersionConflict
	}

	now := time.Now()
	rec.DeletedAt = &now
	rec.Version++
	rec.UpdatedAt = now
	copied := *rec
	return &copied, nil
}

type fakeConflictRepo struct {
	mu        sync.Mutex
	nextID    int64
	conflicts []*models.Conflict
}

func newFakeConflictRepo() *fakeConflictRepo { return &fakeConflictRepo{} }

func (f *fakeConflictRepo) Create(_ context.Context, conflict *models.Conflict) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, c := range f.conflicts {
		if c.Status == models.ConflictOpen &&
			c.OrgID == conflict.OrgID &&
			c.EntityType == conflict.EntityType &&
			c.ClientID == conflict.ClientID &&
			c.BaseVersion == conflict.BaseVersion {
			c.ServerVersion = conflict.ServerVersion
			c.ServerPayload = conflict.ServerPayload
			conflict.ID = c.ID
			conflict.CreatedAt = c.CreatedAt
			conflict.Status = models.ConflictOpen
			return nil
		}
	}

	f.nextID++
	conflict.ID = f.nextID
	conflict.Status = models.ConflictOpen
	conflict.CreatedAt = time.Now()
	copied := *conflict
	f.conflicts = append(f.conflicts, &copied)
	return nil
}

func (f *fakeConflictRepo) GetByID(_ context.Context, orgID uuid.UUID, id int64) (*models.Conflict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, c := range f.conflicts {
		if c.ID == id && c.OrgID == orgID {
			copied := *c
			return &copied, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (f *fakeConflictRepo) ListOpen(_ context.Context, orgID uuid.UUID, limit int) ([]*models.Conflict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*models.Conflict
	for _, c := range f.conflicts {
		if c.OrgID == orgID && c.Status == models.ConflictOpen && len(out) < limit {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeConflictRepo) CountOpen(_ context.Context, orgID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var n int64
	for _, c := range f.conflicts {
		if c.OrgID == orgID && c.Status == models.ConflictOpen {
			n++
		}
	}
	return n, nil
}

func (f *fakeConflictRepo) MarkResolved(_ context.Context, orgID uuid.UUID, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, c := range f.conflicts {
		if c.ID == id && c.OrgID == orgID && c.Status == models.ConflictOpen {
			now := time.Now()
			c.Status = models.ConflictResolved
			c.ResolvedAt = &now
			return nil
		}
	}
	return repositories.ErrNotFound
}

type activityRow struct {
	orgID    uuid.UUID
	deviceID uuid.UUID
	accepted int
	conflict int
	rejected int
}

type fakeActivityRepo struct {
	mu   sync.Mutex
	rows []activityRow
}

func newFakeActivityRepo() *fakeActivityRepo { return &fakeActivityRepo{} }

func (f *fakeActivityRepo) RecordBatch(_ context.Context, orgID, deviceID uuid.UUID, accepted, conflicts, rejected int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, activityRow{orgID, deviceID, accepted, conflicts, rejected})
	return nil
}

func (f *fakeActivityRepo) RejectedTotal(_ context.Context, orgID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var total int64
	for _, r := range f.rows {
		if r.orgID == orgID {
			total += int64(r.rejected)
		}
	}
	return total, nil
}

type fakeStatusCache struct {
	mu    sync.Mutex
	times map[uuid.UUID]time.Time
}

func newFakeStatusCache() *fakeStatusCache {
	return &fakeStatusCache{times: make(map[uuid.UUID]time.Time)}
}

func (f *fakeStatusCache) SetLastSynced(_ context.Context, orgID uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.times[orgID] = at
	return nil
}

func (f *fakeStatusCache) LastSynced(_ context.Context, orgID uuid.UUID) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	at, ok := f.times[orgID]
	if !ok {
		return nil, nil
	}
	return &at, nil
}
