// Package queue owns the durable mutation log on the client. The domain
// layer only appends (through the store's transaction); draining,
// acknowledgement and retry accounting all happen here, driven by the
// reconciler.
package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prudhvinik1/fieldsync/internal/models"
)

type Queue struct {
	db          *sql.DB
	maxAttempts int
	logger      *zap.Logger
	clock       func() time.Time
}

func New(db *sql.DB, maxAttempts int, logger *zap.Logger) *Queue {
	return &Queue{
		db:          db,
		maxAttempts: maxAttempts,
		logger:      logger,
		clock:       time.Now,
	}
}

const entryColumns = `id, entity_type, client_id, operation, payload, fingerprint,
	base_version, attempt_count, last_error, status, next_attempt_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.QueueEntry, error) {
	var (
		e           models.QueueEntry
		clientID    string
		payload     []byte // deletes carry a NULL payload
		fingerprint int64
		nextAttempt int64
		createdAt   int64
		updatedAt   int64
	)
	err := row.Scan(
		&e.ID,
		&e.EntityType,
		&clientID,
		&e.Operation,
		&payload,
		&fingerprint,
		&e.BaseVersion,
		&e.AttemptCount,
		&e.LastError,
		&e.Status,
		&nextAttempt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(clientID)
	if err != nil {
		return nil, fmt.Errorf("corrupt client_id in queue: %w", err)
	}
	e.ClientID = id
	e.Payload = payload
	e.Fingerprint = uint64(fingerprint)
	e.NextAttemptAt = time.Unix(nextAttempt, 0)
	e.CreatedAt = time.Unix(createdAt, 0)
	e.UpdatedAt = time.Unix(updatedAt, 0)
	return &e, nil
}

// InsertTx appends an entry inside the caller's transaction. The store
// uses this so an entity write and its queue entry commit atomically.
func InsertTx(tx *sql.Tx, e *models.QueueEntry, now time.Time) error {
	res, err := tx.Exec(
		`INSERT INTO sync_queue
		 (entity_type, client_id, operation, payload, fingerprint, base_version,
		  attempt_count, last_error, status, next_attempt_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, '', ?, ?, ?, ?)`,
		string(e.EntityType),
		e.ClientID.String(),
		string(e.Operation),
		[]byte(e.Payload),
		int64(e.Fingerprint),
		e.BaseVersion,
		string(models.QueuePending),
		now.Unix(),
		now.Unix(),
		now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read entry id: %w", err)
	}
	e.ID = id
	e.Status = models.QueuePending
	return nil
}

// LatestPendingTx returns the newest pending (not in-flight) entry for
// the entity, or nil. The store consults it to coalesce successive local
// edits into one queued mutation.
func LatestPendingTx(tx *sql.Tx, clientID uuid.UUID) (*models.QueueEntry, error) {
	row := tx.QueryRow(
		fmt.Sprintf(`SELECT %s FROM sync_queue
		 WHERE client_id = ? AND status = ?
		 ORDER BY id DESC LIMIT 1`, entryColumns),
		clientID.String(), string(models.QueuePending),
	)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pending entry: %w", err)
	}
	return e, nil
}

// UpdatePendingTx rewrites a still-pending entry in place (coalescing).
func UpdatePendingTx(tx *sql.Tx, e *models.QueueEntry, now time.Time) error {
	res, err := tx.Exec(
		`UPDATE sync_queue
		 SET operation = ?, payload = ?, fingerprint = ?, base_version = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(e.Operation),
		[]byte(e.Payload),
		int64(e.Fingerprint),
		e.BaseVersion,
		now.Unix(),
		e.ID,
		string(models.QueuePending),
	)
	if err != nil {
		return fmt.Errorf("failed to coalesce entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("entry %d is no longer pending", e.ID)
	}
	return nil
}

// DeleteTx removes an entry inside the caller's transaction (used when a
// queued create is annihilated by a local delete).
func DeleteTx(tx *sql.Tx, id int64) error {
	if _, err := tx.Exec(`DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return nil
}

// DequeueBatch atomically claims up to maxN entries and marks them
// in-flight. Only the oldest pending entry per entity qualifies, and an
// entity with an in-flight entry is skipped entirely: mutations on the
// same record are strictly serialized while different records proceed
// in parallel.
func (q *Queue) DequeueBatch(ctx context.Context, maxN int) ([]*models.QueueEntry, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin dequeue: %w", err)
	}
	defer tx.Rollback()

	now := q.clock()

	rows, err := tx.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM sync_queue AS e
		 WHERE e.status = 'pending'
		   AND e.next_attempt_at <= ?
		   AND NOT EXISTS (
		       SELECT 1 FROM sync_queue AS s
		       WHERE s.client_id = e.client_id AND s.status = 'syncing')
		   AND e.id = (
		       SELECT MIN(p.id) FROM sync_queue AS p
		       WHERE p.client_id = e.client_id AND p.status = 'pending')
		 ORDER BY e.id
		 LIMIT ?`, entryColumns),
		now.Unix(), maxN,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending entries: %w", err)
	}

	var entries []*models.QueueEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}
	rows.Close()

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx,
			`UPDATE sync_queue SET status = 'syncing', updated_at = ? WHERE id = ?`,
			now.Unix(), e.ID,
		); err != nil {
			return nil, fmt.Errorf("failed to mark entry in flight: %w", err)
		}
		e.Status = models.QueueSyncing
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit dequeue: %w", err)
	}
	return entries, nil
}

// Ack deletes a durably acknowledged entry. Acking twice is harmless.
func (q *Queue) Ack(ctx context.Context, id int64) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to ack entry: %w", err)
	}
	return nil
}

// Nack records a failed attempt. Retryable failures schedule the entry
// for another attempt after delay until the attempt cap is reached;
// terminal failures and capped entries go straight to failed, excluded
// from automatic retries. Returns the entry's resulting status.
func (q *Queue) Nack(ctx context.Context, id int64, cause error, retryable bool, delay time.Duration) (models.QueueStatus, error) {
	now := q.clock()
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	// RETURNING makes the update and the status read one statement, so
	// the reported status cannot race a concurrent writer.
	var status string
	if retryable {
		err := q.db.QueryRowContext(ctx,
			`UPDATE sync_queue
			 SET attempt_count = attempt_count + 1,
			     last_error = ?,
			     status = CASE WHEN attempt_count + 1 >= ? THEN 'failed' ELSE 'pending' END,
			     next_attempt_at = ?,
			     updated_at = ?
			 WHERE id = ?
			 RETURNING status`,
			msg, q.maxAttempts, now.Add(delay).Unix(), now.Unix(), id,
		).Scan(&status)
		if err != nil {
			return "", fmt.Errorf("failed to nack entry: %w", err)
		}
	} else {
		err := q.db.QueryRowContext(ctx,
			`UPDATE sync_queue
			 SET attempt_count = attempt_count + 1,
			     last_error = ?,
			     status = 'failed',
			     updated_at = ?
			 WHERE id = ?
			 RETURNING status`,
			msg, now.Unix(), id,
		).Scan(&status)
		if err != nil {
			return "", fmt.Errorf("failed to fail entry: %w", err)
		}
	}
	if models.QueueStatus(status) == models.QueueFailed {
		q.logger.Warn("queue entry exhausted retries",
			zap.Int64("entry_id", id),
			zap.String("error", msg),
		)
	}
	return models.QueueStatus(status), nil
}

// RebasePending moves waiting entries for an entity onto a freshly
// acknowledged server version. Without this, a mutation queued behind an
// in-flight one would still carry the base version observed before the
// ack and would always come back as a conflict.
func (q *Queue) RebasePending(ctx context.Context, clientID uuid.UUID, version int64) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE sync_queue SET base_version = ?, updated_at = ?
		 WHERE client_id = ? AND status = 'pending'`,
		version, q.clock().Unix(), clientID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to rebase pending entries: %w", err)
	}
	return nil
}

// RecoverInFlight returns entries stranded in syncing (a crash between
// send and acknowledgement) to pending so they are retried. Their
// server-side application is idempotent, so the retry is safe.
func (q *Queue) RecoverInFlight(ctx context.Context) (int64, error) {
	now := q.clock()
	res, err := q.db.ExecContext(ctx,
		`UPDATE sync_queue
		 SET status = 'pending', next_attempt_at = ?, updated_at = ?
		 WHERE status = 'syncing'`,
		now.Unix(), now.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to recover in-flight entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		q.logger.Info("recovered in-flight queue entries", zap.Int64("count", n))
	}
	return n, nil
}

// Counts reports how many entries are waiting and how many failed
// terminally, for the user-visible sync badge.
func (q *Queue) Counts(ctx context.Context) (pending, failed int64, err error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT
		   COUNT(*) FILTER (WHERE status IN ('pending', 'syncing')),
		   COUNT(*) FILTER (WHERE status = 'failed')
		 FROM sync_queue`,
	)
	if err := row.Scan(&pending, &failed); err != nil {
		return 0, 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return pending, failed, nil
}

// ListFailed returns terminally failed entries for error drill-down.
func (q *Queue) ListFailed(ctx context.Context, limit int) ([]*models.QueueEntry, error) {
	rows, err := q.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM sync_queue
		 WHERE status = 'failed'
		 ORDER BY updated_at DESC
		 LIMIT ?`, entryColumns),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.QueueEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
