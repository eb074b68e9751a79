package services

import (
	"context"

	"github.com/prudhvinik1/fieldsync/internal/models"
	"github.com/prudhvinik1/fieldsync/internal/repositories"
	"github.com/prudhvinik1/fieldsync/internal/syncerr"
)

// StatusService answers GET /sync/status: how much of the organization's
// data still needs attention. Pending counts open conflicts awaiting
// resolution; failed counts terminally rejected entries.
type StatusService struct {
	conflicts repositories.ConflictRepository
	activity  repositories.ActivityRepository
	cache     repositories.StatusCache
}

func NewStatusService(
	conflicts repositories.ConflictRepository,
	activity repositories.ActivityRepository,
	cache repositories.StatusCache,
) *StatusService {
	return &StatusService{
		conflicts: conflicts,
		activity:  activity,
		cache:     cache,
	}
}

func (s *StatusService) Status(ctx context.Context, principal *Principal) (*models.SyncStatusResponse, error) {
	pending, err := s.conflicts.CountOpen(ctx, principal.OrgID)
	if err != nil {
		return nil, syncerr.Storage("sync_status", err)
	}

	failed, err := s.activity.RejectedTotal(ctx, principal.OrgID)
	if err != nil {
		return nil, syncerr.Storage("sync_status", err)
	}

	lastSynced, err := s.cache.LastSynced(ctx, principal.OrgID)
	if err != nil {
		return nil, syncerr.Storage("sync_status", err)
	}

	return &models.SyncStatusResponse{
		PendingCount: pending,
		FailedCount:  failed,
		LastSyncedAt: lastSynced,
	}, nil
}
