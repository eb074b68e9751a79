// Package reconciler drains the sync queue against the server. It is
// the only component that talks to both the local store and the
// transport, and the only writer of queue acknowledgements.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/prudhvinik1/fieldsync/internal/client/policy"
	"github.com/prudhvinik1/fieldsync/internal/client/store"
	"github.com/prudhvinik1/fieldsync/internal/models"
	"github.com/prudhvinik1/fieldsync/internal/syncerr"
)

// ErrRoundInProgress is returned when a sync round is requested while
// one is already running. Rounds never overlap; overlapping rounds
// could double-send the same queue entries.
var ErrRoundInProgress = errors.New("reconciliation round already in progress")

// Transport submits batches to the server.
type Transport interface {
	SubmitBatch(ctx context.Context, entries []models.SyncEntry) (*models.BulkSyncResponse, error)
}

// EntityStore is the slice of the local store the reconciler needs.
type EntityStore interface {
	Get(ctx context.Context, entityType models.EntityType, clientID uuid.UUID) (*models.Record, error)
	Put(ctx context.Context, rec *models.Record, op models.Operation) error
	MarkStatus(ctx context.Context, entityType models.EntityType, clientID uuid.UUID, status models.SyncStatus) error
	ApplyServerAck(ctx context.Context, entityType models.EntityType, clientID uuid.UUID, serverID, version, ackedEntry int64) error
	RemoveLocal(ctx context.Context, entityType models.EntityType, clientID uuid.UUID) error
	AdoptServerState(ctx context.Context, entityType models.EntityType, clientID uuid.UUID, serverID *int64, version int64, payload []byte) error
}

// MutationQueue is the durable queue being drained.
type MutationQueue interface {
	DequeueBatch(ctx context.Context, maxN int) ([]*models.QueueEntry, error)
	Ack(ctx context.Context, id int64) error
	Nack(ctx context.Context, id int64, cause error, retryable bool, delay time.Duration) (models.QueueStatus, error)
	RebasePending(ctx context.Context, clientID uuid.UUID, version int64) error
	RecoverInFlight(ctx context.Context) (int64, error)
}

type Config struct {
	BatchSize   int
	Interval    time.Duration
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// RoundResult summarizes one reconciliation round.
type RoundResult struct {
	Drained   int
	Accepted  int
	Conflicts int
	Rejected  int
	Retried   int
}

type Reconciler struct {
	store     EntityStore
	queue     MutationQueue
	transport Transport
	policies  policy.Set
	cfg       Config
	logger    *zap.Logger
	backoff   *backoff

	running atomic.Bool
	syncNow chan struct{}

	mu        sync.Mutex
	notBefore time.Time
}

func New(store EntityStore, queue MutationQueue, transport Transport, policies policy.Set, cfg Config, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		store:     store,
		queue:     queue,
		transport: transport,
		policies:  policies,
		cfg:       cfg,
		logger:    logger,
		backoff:   newBackoff(cfg.BackoffBase, cfg.BackoffCap),
		syncNow:   make(chan struct{}, 1),
	}
}

// Run drives reconciliation until ctx is cancelled: periodic rounds on
// the configured interval, immediate rounds on SyncNow. In-flight
// entries left over from a crash are recovered first.
func (r *Reconciler) Run(ctx context.Context) error {
	if _, err := r.queue.RecoverInFlight(ctx); err != nil {
		return fmt.Errorf("failed to recover queue: %w", err)
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if r.backingOff() {
				continue
			}
			r.round(ctx)
		case <-r.syncNow:
			// Explicit user action bypasses the backoff window.
			r.round(ctx)
		}
	}
}

// SyncNow requests an immediate round. Non-blocking; requests during an
// active round coalesce into at most one follow-up round.
func (r *Reconciler) SyncNow() {
	select {
	case r.syncNow <- struct{}{}:
	default:
	}
}

func (r *Reconciler) backingOff() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Now().Before(r.notBefore)
}

func (r *Reconciler) round(ctx context.Context) {
	result, err := r.SyncOnce(ctx)
	if errors.Is(err, ErrRoundInProgress) {
		return
	}
	if err != nil {
		r.logger.Warn("reconciliation round failed", zap.Error(err))
		return
	}
	if result.Drained > 0 {
		r.logger.Info("reconciliation round finished",
			zap.Int("drained", result.Drained),
			zap.Int("accepted", result.Accepted),
			zap.Int("conflicts", result.Conflicts),
			zap.Int("rejected", result.Rejected),
			zap.Int("retried", result.Retried),
		)
	}
}

// SyncOnce runs a single reconciliation round: drain up to BatchSize
// entries, submit them grouped by entity type, and apply the per-entry
// outcomes. Batches for different entity types run concurrently; the
// queue already guarantees at most one in-flight mutation per record.
func (r *Reconciler) SyncOnce(ctx context.Context) (*RoundResult, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRoundInProgress
	}
	defer r.running.Store(false)

	entries, err := r.queue.DequeueBatch(ctx, r.cfg.BatchSize)
	if err != nil {
		return nil, syncerr.Storage("sync_once", err)
	}

	result := &RoundResult{Drained: len(entries)}
	if len(entries) == 0 {
		return result, nil
	}

	groups := make(map[models.EntityType][]*models.QueueEntry)
	for _, e := range entries {
		groups[e.EntityType] = append(groups[e.EntityType], e)
	}

	// Outcome application must run even when ctx is cancelled
	// mid-round: an unacknowledged batch has to be nacked back to
	// pending, never left in flight.
	cleanupCtx := context.WithoutCancel(ctx)

	var (
		mu             sync.Mutex
		transportDown  bool
		tally          = func(fn func(*RoundResult)) { mu.Lock(); fn(result); mu.Unlock() }
		markTransport  = func() { mu.Lock(); transportDown = true; mu.Unlock() }
	)

	g, gctx := errgroup.WithContext(ctx)
	for entityType, group := range groups {
		g.Go(func() error {
			resp, err := r.transport.SubmitBatch(gctx, toWire(group))
			if err != nil {
				retryable := syncerr.IsRetryable(err)
				if retryable {
					markTransport()
				}
				for _, e := range group {
					r.nackEntry(cleanupCtx, e, err, retryable)
					tally(func(res *RoundResult) { res.Retried++ })
				}
				return nil
			}

			byClient := make(map[uuid.UUID]models.SyncResult, len(resp.Results))
			for _, res := range resp.Results {
				byClient[res.ClientID] = res
			}

			for _, e := range group {
				res, ok := byClient[e.ClientID]
				if !ok {
					r.nackEntry(cleanupCtx, e,
						fmt.Errorf("server response missing result for %s", e.ClientID), true)
					tally(func(res *RoundResult) { res.Retried++ })
					continue
				}
				if err := r.applyOutcome(cleanupCtx, e, res, tally); err != nil {
					r.logger.Error("failed to apply sync outcome",
						zap.String("entity_type", string(entityType)),
						zap.String("client_id", e.ClientID.String()),
						zap.Error(err),
					)
				}
			}
			return nil
		})
	}
	g.Wait()

	if transportDown {
		delay := r.backoff.Next()
		r.mu.Lock()
		r.notBefore = time.Now().Add(delay)
		r.mu.Unlock()
		r.logger.Info("transport unavailable, backing off", zap.Duration("delay", delay))
	} else {
		r.backoff.Reset()
		r.mu.Lock()
		r.notBefore = time.Time{}
		r.mu.Unlock()
	}

	return result, nil
}

func toWire(entries []*models.QueueEntry) []models.SyncEntry {
	wire := make([]models.SyncEntry, 0, len(entries))
	for _, e := range entries {
		wire = append(wire, models.SyncEntry{
			ClientID:    e.ClientID,
			EntityType:  e.EntityType,
			Operation:   e.Operation,
			Payload:     e.Payload,
			BaseVersion: e.BaseVersion,
		})
	}
	return wire
}

// nackEntry returns an entry to the queue (or fails it terminally) and
// keeps the entity's visible status in step with the queue.
func (r *Reconciler) nackEntry(ctx context.Context, e *models.QueueEntry, cause error, retryable bool) {
	status, err := r.queue.Nack(ctx, e.ID, cause, retryable, r.backoff.Peek())
	if err != nil {
		r.logger.Error("failed to nack queue entry", zap.Int64("entry_id", e.ID), zap.Error(err))
		return
	}
	if status == models.QueueFailed {
		if err := r.store.MarkStatus(ctx, e.EntityType, e.ClientID, models.StatusFailed); err != nil {
			r.logger.Warn("failed to mark record failed",
				zap.String("client_id", e.ClientID.String()), zap.Error(err))
		}
	}
}

func (r *Reconciler) applyOutcome(ctx context.Context, e *models.QueueEntry, res models.SyncResult, tally func(func(*RoundResult))) error {
	switch res.Status {
	case models.ResultAccepted:
		tally(func(r *RoundResult) { r.Accepted++ })
		return r.applyAccepted(ctx, e, res)

	case models.ResultConflict:
		tally(func(r *RoundResult) { r.Conflicts++ })
		return r.applyConflict(ctx, e, res)

	case models.ResultRejected:
		tally(func(r *RoundResult) { r.Rejected++ })
		r.nackEntry(ctx, e, syncerr.Validation("sync", errors.New(res.Reason)), false)
		return nil

	default:
		r.nackEntry(ctx, e, fmt.Errorf("unknown result status %q", res.Status), true)
		tally(func(r *RoundResult) { r.Retried++ })
		return nil
	}
}

func (r *Reconciler) applyAccepted(ctx context.Context, e *models.QueueEntry, res models.SyncResult) error {
	if e.Operation == models.OpDelete {
		if err := r.store.RemoveLocal(ctx, e.EntityType, e.ClientID); err != nil {
			return err
		}
		return r.queue.Ack(ctx, e.ID)
	}

	if res.ServerID == nil {
		r.nackEntry(ctx, e, errors.New("accepted result carries no server_id"), true)
		return nil
	}
	if err := r.store.ApplyServerAck(ctx, e.EntityType, e.ClientID, *res.ServerID, res.ServerVersion, e.ID); err != nil {
		return err
	}
	if err := r.queue.Ack(ctx, e.ID); err != nil {
		return err
	}
	// A mutation queued behind this one now applies on top of the
	// acknowledged version.
	return r.queue.RebasePending(ctx, e.ClientID, res.ServerVersion)
}

func (r *Reconciler) applyConflict(ctx context.Context, e *models.QueueEntry, res models.SyncResult) error {
	// A locally deleted record shows up as an absent local side; any
	// other lookup failure aborts so the entry stays in flight for the
	// crash-recovery path instead of being resolved on bad data.
	local, err := r.store.Get(ctx, e.EntityType, e.ClientID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	conflict := policy.Conflict{
		EntityType:    e.EntityType,
		Local:         local,
		ServerState:   res.ServerState,
		ServerVersion: res.ServerVersion,
	}
	if res.ServerUpdatedAt != nil {
		conflict.ServerUpdatedAt = *res.ServerUpdatedAt
	}

	decision, err := r.policies.Resolve(ctx, conflict)
	if err != nil {
		r.logger.Error("conflict policy failed, surfacing to user",
			zap.String("client_id", e.ClientID.String()), zap.Error(err))
		decision = policy.Manual
	}

	switch decision {
	case policy.KeepServer:
		if err := r.store.AdoptServerState(ctx, e.EntityType, e.ClientID, res.ServerID, res.ServerVersion, res.ServerState); err != nil {
			return err
		}
		return r.queue.Ack(ctx, e.ID)

	case policy.KeepLocal:
		// Rebase the local copy onto the server version, then queue the
		// same payload as a fresh update on the new base.
		if local == nil {
			// The record is gone locally; nothing to re-submit.
			if err := r.store.AdoptServerState(ctx, e.EntityType, e.ClientID, res.ServerID, res.ServerVersion, res.ServerState); err != nil {
				return err
			}
			return r.queue.Ack(ctx, e.ID)
		}
		if err := r.store.AdoptServerState(ctx, e.EntityType, e.ClientID, res.ServerID, res.ServerVersion, local.Payload); err != nil {
			return err
		}
		if err := r.queue.Ack(ctx, e.ID); err != nil {
			return err
		}
		resubmit := &models.Record{
			ClientID:   e.ClientID,
			EntityType: e.EntityType,
			Payload:    local.Payload,
		}
		return r.store.Put(ctx, resubmit, models.OpUpdate)

	default: // policy.Manual
		if local == nil {
			if err := r.store.AdoptServerState(ctx, e.EntityType, e.ClientID, res.ServerID, res.ServerVersion, res.ServerState); err != nil {
				return err
			}
		}
		if err := r.store.MarkStatus(ctx, e.EntityType, e.ClientID, models.StatusConflict); err != nil {
			return err
		}
		return r.queue.Ack(ctx, e.ID)
	}
}
