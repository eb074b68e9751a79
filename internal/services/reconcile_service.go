package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prudhvinik1/fieldsync/internal/models"
	"github.com/prudhvinik1/fieldsync/internal/registry"
	"github.com/prudhvinik1/fieldsync/internal/repositories"
	"github.com/prudhvinik1/fieldsync/internal/syncerr"
)

// ReconcileService applies client mutation batches to the authoritative
// store. Each entry is applied idempotently and independently: a
// rejected or conflicting entry never prevents the rest of the batch
// from being applied. Storage failures abort the whole batch instead,
// so the client retries rather than treating the entries as terminal.
type ReconcileService struct {
	records   repositories.RecordRepository
	conflicts repositories.ConflictRepository
	activity  repositories.ActivityRepository
	cache     repositories.StatusCache
	logger    *zap.Logger
}

func NewReconcileService(
	records repositories.RecordRepository,
	conflicts repositories.ConflictRepository,
	activity repositories.ActivityRepository,
	cache repositories.StatusCache,
	logger *zap.Logger,
) *ReconcileService {
	return &ReconcileService{
		records:   records,
		conflicts: conflicts,
		activity:  activity,
		cache:     cache,
		logger:    logger,
	}
}

// ApplyBatch applies up to models.MaxBatchSize entries for the caller's
// organization and returns one result per entry, in submission order.
func (s *ReconcileService) ApplyBatch(ctx context.Context, principal *Principal, entries []models.SyncEntry) ([]models.SyncResult, error) {
	if len(entries) == 0 {
		return nil, syncerr.Validation("apply_batch", errors.New("batch is empty"))
	}
	if len(entries) > models.MaxBatchSize {
		return nil, syncerr.Validation("apply_batch",
			fmt.Errorf("batch of %d exceeds the limit of %d entries", len(entries), models.MaxBatchSize))
	}

	results := make([]models.SyncResult, 0, len(entries))
	var accepted, conflicted, rejected int

	for _, entry := range entries {
		result, err := s.applyEntry(ctx, principal.OrgID, entry)
		if err != nil {
			return nil, err
		}
		switch result.Status {
		case models.ResultAccepted:
			accepted++
		case models.ResultConflict:
			conflicted++
		case models.ResultRejected:
			rejected++
		}
		results = append(results, result)
	}

	// Bookkeeping failures are logged, not surfaced: the mutations are
	// already durably applied and the client must receive its results.
	if err := s.activity.RecordBatch(ctx, principal.OrgID, principal.DeviceID, accepted, conflicted, rejected); err != nil {
		s.logger.Warn("failed to record batch activity", zap.Error(err))
	}
	if err := s.cache.SetLastSynced(ctx, principal.OrgID, time.Now()); err != nil {
		s.logger.Warn("failed to update last synced timestamp", zap.Error(err))
	}

	s.logger.Info("batch applied",
		zap.String("org_id", principal.OrgID.String()),
		zap.String("device_id", principal.DeviceID.String()),
		zap.Int("accepted", accepted),
		zap.Int("conflicts", conflicted),
		zap.Int("rejected", rejected),
	)

	return results, nil
}

func (s *ReconcileService) applyEntry(ctx context.Context, orgID uuid.UUID, entry models.SyncEntry) (models.SyncResult, error) {
	result := models.SyncResult{ClientID: entry.ClientID, Status: models.ResultRejected}

	desc, ok := registry.Lookup(entry.EntityType)
	if !ok {
		result.Reason = fmt.Sprintf("unknown entity type %q", entry.EntityType)
		return result, nil
	}
	if !entry.Operation.Valid() {
		result.Reason = fmt.Sprintf("unknown operation %q", entry.Operation)
		return result, nil
	}
	if entry.ClientID == uuid.Nil {
		result.Reason = "client_id is required"
		return result, nil
	}
	if entry.Operation == models.OpUpdate && !desc.Mutable() {
		result.Reason = fmt.Sprintf("%s records are immutable", entry.EntityType)
		return result, nil
	}
	if entry.Operation != models.OpDelete {
		if err := desc.Validate(entry.Payload); err != nil {
			result.Reason = err.Error()
			return result, nil
		}
	}

	switch entry.Operation {
	case models.OpCreate:
		rec, err := s.records.ApplyCreate(ctx, orgID, entry.EntityType, entry.ClientID, entry.Payload)
		if err != nil {
			return result, syncerr.Storage("apply_create", err)
		}
		return acceptedResult(entry.ClientID, rec), nil

	case models.OpUpdate:
		rec, err := s.records.ApplyUpdate(ctx, orgID, entry.EntityType, entry.ClientID, entry.Payload, entry.BaseVersion)
		switch {
		case errors.Is(err, repositories.ErrNotFound):
			result.Reason = "record does not exist"
			return result, nil
		case errors.Is(err, repositories.ErrVersionConflict):
			return s.conflictResult(ctx, orgID, entry)
		case err != nil:
			return result, syncerr.Storage("apply_update", err)
		}
		return acceptedResult(entry.ClientID, rec), nil

	default: // models.OpDelete
		rec, err := s.records.ApplyDelete(ctx, orgID, entry.EntityType, entry.ClientID, entry.BaseVersion)
		switch {
		case errors.Is(err, repositories.ErrNotFound):
			result.Reason = "record does not exist"
			return result, nil
		case errors.Is(err, repositories.ErrVersionConflict):
			return s.conflictResult(ctx, orgID, entry)
		case err != nil:
			return result, syncerr.Storage("apply_delete", err)
		}
		return acceptedResult(entry.ClientID, rec), nil
	}
}

// conflictResult persists the divergence and hands the canonical server
// state back so the client can resolve without another round trip.
func (s *ReconcileService) conflictResult(ctx context.Context, orgID uuid.UUID, entry models.SyncEntry) (models.SyncResult, error) {
	result := models.SyncResult{ClientID: entry.ClientID}

	server, err := s.records.GetByClientID(ctx, orgID, entry.EntityType, entry.ClientID)
	if err != nil {
		return result, syncerr.Storage("load_server_state", err)
	}

	conflict := &models.Conflict{
		OrgID:         orgID,
		EntityType:    entry.EntityType,
		ClientID:      entry.ClientID,
		BaseVersion:   entry.BaseVersion,
		ServerVersion: server.Version,
		ClientPayload: entry.Payload,
		ServerPayload: server.Payload,
	}
	if err := s.conflicts.Create(ctx, conflict); err != nil {
		return result, syncerr.Storage("record_conflict", err)
	}

	result.Status = models.ResultConflict
	result.ConflictID = &conflict.ID
	result.ServerID = &server.ID
	result.ServerVersion = server.Version
	result.ServerState = server.Payload
	result.ServerUpdatedAt = &server.UpdatedAt
	return result, nil
}

// ResolveConflict settles an open conflict. Resolving an already
// resolved conflict is a harmless replay that reports the current state.
func (s *ReconcileService) ResolveConflict(ctx context.Context, principal *Principal, conflictID int64, req models.ResolveConflictRequest) (*models.ResolveConflictResponse, error) {
	conflict, err := s.conflicts.GetByID(ctx, principal.OrgID, conflictID)
	if err != nil {
		return nil, err
	}

	server, err := s.records.GetByClientID(ctx, principal.OrgID, conflict.EntityType, conflict.ClientID)
	if err != nil {
		return nil, syncerr.Storage("load_server_state", err)
	}

	if conflict.Status == models.ConflictResolved {
		return resolveResponse(conflict, server), nil
	}

	var payload = conflict.ClientPayload
	switch req.Resolution {
	case models.ResolveKeepServer:
		if err := s.conflicts.MarkResolved(ctx, principal.OrgID, conflictID); err != nil {
			return nil, syncerr.Storage("resolve_conflict", err)
		}
		conflict.Status = models.ConflictResolved
		return resolveResponse(conflict, server), nil

	case models.ResolveMerge:
		if len(req.MergedPayload) == 0 {
			return nil, syncerr.Validation("resolve_conflict", errors.New("merged_payload is required for merge resolution"))
		}
		payload = req.MergedPayload
		fallthrough

	case models.ResolveKeepClient:
		desc, ok := registry.Lookup(conflict.EntityType)
		if !ok || !desc.Mutable() {
			return nil, syncerr.Validation("resolve_conflict",
				fmt.Errorf("%s records cannot be rewritten", conflict.EntityType))
		}
		if err := desc.Validate(payload); err != nil {
			return nil, syncerr.Validation("resolve_conflict", err)
		}

		updated, err := s.records.ApplyUpdate(ctx, principal.OrgID, conflict.EntityType, conflict.ClientID, payload, server.Version)
		if errors.Is(err, repositories.ErrVersionConflict) {
			// Someone moved the record while this resolution was in
			// flight; the caller must look at the fresh state first.
			return nil, syncerr.Conflict("resolve_conflict", err)
		}
		if err != nil {
			return nil, syncerr.Storage("resolve_conflict", err)
		}
		if err := s.conflicts.MarkResolved(ctx, principal.OrgID, conflictID); err != nil {
			return nil, syncerr.Storage("resolve_conflict", err)
		}
		conflict.Status = models.ConflictResolved
		return resolveResponse(conflict, updated), nil

	default:
		return nil, syncerr.Validation("resolve_conflict",
			fmt.Errorf("unknown resolution %q", req.Resolution))
	}
}

func acceptedResult(clientID uuid.UUID, rec *models.ServerRecord) models.SyncResult {
	return models.SyncResult{
		ClientID:        clientID,
		Status:          models.ResultAccepted,
		ServerID:        &rec.ID,
		ServerVersion:   rec.Version,
		ServerUpdatedAt: &rec.UpdatedAt,
	}
}

func resolveResponse(conflict *models.Conflict, server *models.ServerRecord) *models.ResolveConflictResponse {
	return &models.ResolveConflictResponse{
		ConflictID:    conflict.ID,
		Status:        conflict.Status,
		ServerID:      &server.ID,
		ServerVersion: server.Version,
		ServerState:   server.Payload,
	}
}
