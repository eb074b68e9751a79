package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prudhvinik1/fieldsync/internal/models"
	"github.com/prudhvinik1/fieldsync/internal/syncerr"
)

type serviceFixture struct {
	service   *ReconcileService
	records   *fakeRecordRepo
	conflicts *fakeConflictRepo
	activity  *fakeActivityRepo
	cache     *fakeStatusCache
	principal *Principal
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	records := newFakeRecordRepo()
	conflicts := newFakeConflictRepo()
	activity := newFakeActivityRepo()
	cache := newFakeStatusCache()

	return &serviceFixture{
		service:   NewReconcileService(records, conflicts, activity, cache, zap.NewNop()),
		records:   records,
		conflicts: conflicts,
		activity:  activity,
		cache:     cache,
		principal: &Principal{OrgID: uuid.New(), DeviceID: uuid.New()},
	}
}

func jobEntry(clientID uuid.UUID, op models.Operation, title string, baseVersion int64) models.SyncEntry {
	return models.SyncEntry{
		ClientID:    clientID,
		EntityType:  models.EntityJob,
		Operation:   op,
		Payload:     json.RawMessage(`{"title":"` + title + `","status":"scheduled"}`),
		BaseVersion: baseVersion,
	}
}

func TestReconcileService_ApplyBatch_EmptyBatchRejected(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.service.ApplyBatch(context.Background(), f.principal, nil)
	require.Error(t, err)
	assert.Equal(t, syncerr.KindValidation, syncerr.KindOf(err))
}

func TestReconcileService_ApplyBatch_OversizedBatchRejected(t *testing.T) {
	f := newServiceFixture(t)

	entries := make([]models.SyncEntry, models.MaxBatchSize+1)
	for i := range entries {
		entries[i] = jobEntry(uuid.New(), models.OpCreate, "job", 0)
	}

	_, err := f.service.ApplyBatch(context.Background(), f.principal, entries)
	require.Error(t, err)
	assert.Equal(t, syncerr.KindValidation, syncerr.KindOf(err))
}

// The same create submitted twice must yield the same server identity:
// retries after a lost response are indistinguishable from first sends.
func TestReconcileService_ApplyBatch_CreateReplayIsIdempotent(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	clientID := uuid.New()

	first, err := f.service.ApplyBatch(ctx, f.principal, []models.SyncEntry{
		jobEntry(clientID, models.OpCreate, "fix fence", 0),
	})
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Equal(t, models.ResultAccepted, first[0].Status)
	require.NotNil(t, first[0].ServerID)

	second, err := f.service.ApplyBatch(ctx, f.principal, []models.SyncEntry{
		jobEntry(clientID, models.OpCreate, "fix fence", 0),
	})
	require.NoError(t, err)
	require.Equal(t, models.ResultAccepted, second[0].Status)

	assert.Equal(t, *first[0].ServerID, *second[0].ServerID)
	assert.Equal(t, first[0].ServerVersion, second[0].ServerVersion)
}

func TestReconcileService_ApplyBatch_StaleUpdateBecomesConflict(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	clientID := uuid.New()

	_, err := f.service.ApplyBatch(ctx, f.principal, []models.SyncEntry{
		jobEntry(clientID, models.OpCreate, "fix fence", 0),
	})
	require.NoError(t, err)

	// Another device moves the record to version 2.
	_, err = f.service.ApplyBatch(ctx, f.principal, []models.SyncEntry{
		jobEntry(clientID, models.OpUpdate, "dispatcher edit", 1),
	})
	require.NoError(t, err)

	// This device still thinks version 1 is current.
	results, err := f.service.ApplyBatch(ctx, f.principal, []models.SyncEntry{
		jobEntry(clientID, models.OpUpdate, "field edit", 1),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, models.ResultConflict, res.Status)
	assert.Equal(t, int64(2), res.ServerVersion)
	assert.JSONEq(t, `{"title":"dispatcher edit","status":"scheduled"}`, string(res.ServerState))
	require.NotNil(t, res.ConflictID)

	open, err := f.conflicts.CountOpen(ctx, f.principal.OrgID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), open)

	// Retrying the same stale submission refreshes the existing conflict
	// instead of piling up duplicates.
	retry, err := f.service.ApplyBatch(ctx, f.principal, []models.SyncEntry{
		jobEntry(clientID, models.OpUpdate, "field edit", 1),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ResultConflict, retry[0].Status)
	assert.Equal(t, *res.ConflictID, *retry[0].ConflictID)

	open, err = f.conflicts.CountOpen(ctx, f.principal.OrgID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), open)
}

func TestReconcileService_ApplyBatch_UpdateOnImmutableTypeRejected(t *testing.T) {
	f := newServiceFixture(t)

	results, err := f.service.ApplyBatch(context.Background(), f.principal, []models.SyncEntry{{
		ClientID:   uuid.New(),
		EntityType: models.EntityTrackingLog,
		Operation:  models.OpUpdate,
		Payload:    json.RawMessage(`{"fixes":[{"lat":1,"lng":2,"recorded_at":"2026-01-02T10:00:00Z"}]}`),
	}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.ResultRejected, results[0].Status)
	assert.Contains(t, results[0].Reason, "immutable")
}

// One bad entry never blocks the rest of the batch.
func TestReconcileService_ApplyBatch_MixedOutcomes(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	good := jobEntry(uuid.New(), models.OpCreate, "fix fence", 0)
	bad := models.SyncEntry{
		ClientID:   uuid.New(),
		EntityType: models.EntityJob,
		Operation:  models.OpCreate,
		Payload:    json.RawMessage(`{"title":"","status":"scheduled"}`),
	}

	results, err := f.service.ApplyBatch(ctx, f.principal, []models.SyncEntry{bad, good})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, models.ResultRejected, results[0].Status)
	assert.Equal(t, models.ResultAccepted, results[1].Status)

	// The rejection lands in the activity log that feeds failed_count.
	total, err := f.activity.RejectedTotal(ctx, f.principal.OrgID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	last, err := f.cache.LastSynced(ctx, f.principal.OrgID)
	require.NoError(t, err)
	assert.NotNil(t, last)
}

func TestReconcileService_ApplyBatch_DeleteReplayAccepted(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	clientID := uuid.New()

	_, err := f.service.ApplyBatch(ctx, f.principal, []models.SyncEntry{
		jobEntry(clientID, models.OpCreate, "fix fence", 0),
	})
	require.NoError(t, err)

	del := models.SyncEntry{
		ClientID:    clientID,
		EntityType:  models.EntityJob,
		Operation:   models.OpDelete,
		BaseVersion: 1,
	}

	first, err := f.service.ApplyBatch(ctx, f.principal, []models.SyncEntry{del})
	require.NoError(t, err)
	require.Equal(t, models.ResultAccepted, first[0].Status)

	replay, err := f.service.ApplyBatch(ctx, f.principal, []models.SyncEntry{del})
	require.NoError(t, err)
	assert.Equal(t, models.ResultAccepted, replay[0].Status)
}

// Two organizations using the same client_id must never see each other's
// records.
func TestReconcileService_ApplyBatch_TenantIsolation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	clientID := uuid.New()
	otherOrg := &Principal{OrgID: uuid.New(), DeviceID: uuid.New()}

	mine, err := f.service.ApplyBatch(ctx, f.principal, []models.SyncEntry{
		jobEntry(clientID, models.OpCreate, "org A job", 0),
	})
	require.NoError(t, err)
	require.Equal(t, models.ResultAccepted, mine[0].Status)

	theirs, err := f.service.ApplyBatch(ctx, otherOrg, []models.SyncEntry{
		jobEntry(clientID, models.OpCreate, "org B job", 0),
	})
	require.NoError(t, err)
	require.Equal(t, models.ResultAccepted, theirs[0].Status)
	assert.NotEqual(t, *mine[0].ServerID, *theirs[0].ServerID)

	rec, err := f.records.GetByClientID(ctx, f.principal.OrgID, models.EntityJob, clientID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"org A job","status":"scheduled"}`, string(rec.Payload))
}

func openConflict(t *testing.T, f *serviceFixture) (uuid.UUID, int64) {
	t.Helper()
	ctx := context.Background()
	clientID := uuid.New()

	_, err := f.service.ApplyBatch(ctx, f.principal, []models.SyncEntry{
		jobEntry(clientID, models.OpCreate, "original", 0),
	})
	require.NoError(t, err)
	_, err = f.service.ApplyBatch(ctx, f.principal, []models.SyncEntry{
		jobEntry(clientID, models.OpUpdate, "dispatcher edit", 1),
	})
	require.NoError(t, err)

	results, err := f.service.ApplyBatch(ctx, f.principal, []models.SyncEntry{
		jobEntry(clientID, models.OpUpdate, "field edit", 1),
	})
	require.NoError(t, err)
	require.Equal(t, models.ResultConflict, results[0].Status)
	require.NotNil(t, results[0].ConflictID)
	return clientID, *results[0].ConflictID
}

func TestReconcileService_ResolveConflict_KeepServer(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	clientID, conflictID := openConflict(t, f)

	resp, err := f.service.ResolveConflict(ctx, f.principal, conflictID, models.ResolveConflictRequest{
		Resolution: models.ResolveKeepServer,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ConflictResolved, resp.Status)
	assert.Equal(t, int64(2), resp.ServerVersion, "keeping the server side moves nothing")
	assert.JSONEq(t, `{"title":"dispatcher edit","status":"scheduled"}`, string(resp.ServerState))

	rec, err := f.records.GetByClientID(ctx, f.principal.OrgID, models.EntityJob, clientID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.Version)

	open, err := f.conflicts.CountOpen(ctx, f.principal.OrgID)
	require.NoError(t, err)
	assert.Zero(t, open)
}

func TestReconcileService_ResolveConflict_KeepClientRewritesRecord(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	clientID, conflictID := openConflict(t, f)

	resp, err := f.service.ResolveConflict(ctx, f.principal, conflictID, models.ResolveConflictRequest{
		Resolution: models.ResolveKeepClient,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ConflictResolved, resp.Status)
	assert.Equal(t, int64(3), resp.ServerVersion)
	assert.JSONEq(t, `{"title":"field edit","status":"scheduled"}`, string(resp.ServerState))

	rec, err := f.records.GetByClientID(ctx, f.principal.OrgID, models.EntityJob, clientID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"field edit","status":"scheduled"}`, string(rec.Payload))
}

func TestReconcileService_ResolveConflict_MergeRequiresPayload(t *testing.T) {
	f := newServiceFixture(t)
	_, conflictID := openConflict(t, f)

	_, err := f.service.ResolveConflict(context.Background(), f.principal, conflictID, models.ResolveConflictRequest{
		Resolution: models.ResolveMerge,
	})
	require.Error(t, err)
	assert.Equal(t, syncerr.KindValidation, syncerr.KindOf(err))
}

func TestReconcileService_ResolveConflict_MergeAppliesMergedPayload(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	clientID, conflictID := openConflict(t, f)

	merged := json.RawMessage(`{"title":"merged edit","status":"in_progress"}`)
	resp, err := f.service.ResolveConflict(ctx, f.principal, conflictID, models.ResolveConflictRequest{
		Resolution:    models.ResolveMerge,
		MergedPayload: merged,
	})
	require.NoError(t, err)
	assert.JSONEq(t, string(merged), string(resp.ServerState))

	rec, err := f.records.GetByClientID(ctx, f.principal.OrgID, models.EntityJob, clientID)
	require.NoError(t, err)
	assert.JSONEq(t, string(merged), string(rec.Payload))
}

// Resolving twice is a replay: the second call reports the settled state
// without touching the record again.
func TestReconcileService_ResolveConflict_ReplayIsHarmless(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	clientID, conflictID := openConflict(t, f)

	_, err := f.service.ResolveConflict(ctx, f.principal, conflictID, models.ResolveConflictRequest{
		Resolution: models.ResolveKeepClient,
	})
	require.NoError(t, err)

	resp, err := f.service.ResolveConflict(ctx, f.principal, conflictID, models.ResolveConflictRequest{
		Resolution: models.ResolveKeepClient,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ConflictResolved, resp.Status)

	rec, err := f.records.GetByClientID(ctx, f.principal.OrgID, models.EntityJob, clientID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rec.Version, "the replay must not bump the version again")
}

func TestReconcileService_ResolveConflict_UnknownIDFromOtherOrg(t *testing.T) {
	f := newServiceFixture(t)
	_, conflictID := openConflict(t, f)

	stranger := &Principal{OrgID: uuid.New(), DeviceID: uuid.New()}
	_, err := f.service.ResolveConflict(context.Background(), stranger, conflictID, models.ResolveConflictRequest{
		Resolution: models.ResolveKeepServer,
	})
	assert.Error(t, err, "a conflict id is only addressable within its own organization")
}
