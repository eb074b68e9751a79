// Package store is the client's embedded local store. Every user action
// lands here first and always succeeds locally; the server catches up
// later through the sync queue.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prudhvinik1/fieldsync/internal/client/queue"
	"github.com/prudhvinik1/fieldsync/internal/database"
	"github.com/prudhvinik1/fieldsync/internal/models"
	"github.com/prudhvinik1/fieldsync/internal/registry"
	"github.com/prudhvinik1/fieldsync/internal/syncerr"
)

var (
	ErrNotFound  = errors.New("record not found locally")
	ErrDuplicate = errors.New("record already exists")
)

type Store struct {
	db     *sql.DB
	logger *zap.Logger
	clock  func() time.Time

	// writes are serialized; SQLite allows one writer and the
	// put-plus-enqueue transaction must never deadlock on itself
	mu sync.Mutex
}

// Open opens (creating if needed) the local database at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := database.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, logger: logger, clock: time.Now}, nil
}

// DB exposes the underlying handle so the sync queue shares the same
// transactional resource.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// Put applies a local mutation: the entity row and its queue entry are
// written in one transaction, so the queue can never diverge from the
// store. Successive edits to the same not-yet-sent record are coalesced
// into the queued mutation instead of growing the queue, and a delete of
// a record the server has never seen cancels the queued create outright.
func (s *Store) Put(ctx context.Context, rec *models.Record, op models.Operation) error {
	desc, ok := registry.Lookup(rec.EntityType)
	if !ok {
		return syncerr.Validation("put", fmt.Errorf("unknown entity type %q", rec.EntityType))
	}
	if rec.ClientID == uuid.Nil {
		return syncerr.Validation("put", errors.New("client_id is required"))
	}
	if !op.Valid() {
		return syncerr.Validation("put", fmt.Errorf("unknown operation %q", op))
	}
	if op == models.OpUpdate && !desc.Mutable() {
		return syncerr.Validation("put", fmt.Errorf("%s records are immutable", rec.EntityType))
	}
	if op != models.OpDelete {
		if err := desc.Validate(rec.Payload); err != nil {
			return syncerr.Validation("put", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return syncerr.Storage("put", err)
	}
	defer tx.Rollback()

	now := s.clock()
	table := desc.Table()

	switch op {
	case models.OpCreate:
		err = s.putCreate(tx, table, rec, now)
	case models.OpUpdate:
		err = s.putUpdate(tx, table, rec, now)
	default:
		err = s.putDelete(tx, table, rec, now)
	}
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return syncerr.Storage("put", err)
	}
	return nil
}

func (s *Store) putCreate(tx *sql.Tx, table string, rec *models.Record, now time.Time) error {
	res, err := tx.Exec(
		fmt.Sprintf(`INSERT OR IGNORE INTO %s
		 (client_id, sync_status, version, payload, created_at, updated_at)
		 VALUES (?, ?, 0, ?, ?, ?)`, table),
		rec.ClientID.String(), string(models.StatusPending), []byte(rec.Payload), now.Unix(), now.Unix(),
	)
	if err != nil {
		return syncerr.Storage("put", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return syncerr.Validation("put", fmt.Errorf("%w: %s", ErrDuplicate, rec.ClientID))
	}

	entry := &models.QueueEntry{
		EntityType:  rec.EntityType,
		ClientID:    rec.ClientID,
		Operation:   models.OpCreate,
		Payload:     rec.Payload,
		Fingerprint: xxhash.Sum64(rec.Payload),
		BaseVersion: 0,
	}
	if err := queue.InsertTx(tx, entry, now); err != nil {
		return syncerr.Storage("put", err)
	}
	rec.SyncStatus = models.StatusPending
	rec.Version = 0
	return nil
}

func (s *Store) putUpdate(tx *sql.Tx, table string, rec *models.Record, now time.Time) error {
	var version int64
	err := tx.QueryRow(
		fmt.Sprintf(`SELECT version FROM %s WHERE client_id = ?`, table),
		rec.ClientID.String(),
	).Scan(&version)
	if err == sql.ErrNoRows {
		return syncerr.Validation("put", fmt.Errorf("%w: %s", ErrNotFound, rec.ClientID))
	}
	if err != nil {
		return syncerr.Storage("put", err)
	}

	if _, err := tx.Exec(
		fmt.Sprintf(`UPDATE %s SET payload = ?, sync_status = ?, updated_at = ? WHERE client_id = ?`, table),
		[]byte(rec.Payload), string(models.StatusPending), now.Unix(), rec.ClientID.String(),
	); err != nil {
		return syncerr.Storage("put", err)
	}

	fingerprint := xxhash.Sum64(rec.Payload)
	pending, err := queue.LatestPendingTx(tx, rec.ClientID)
	if err != nil {
		return syncerr.Storage("put", err)
	}

	switch {
	case pending == nil:
		entry := &models.QueueEntry{
			EntityType:  rec.EntityType,
			ClientID:    rec.ClientID,
			Operation:   models.OpUpdate,
			Payload:     rec.Payload,
			Fingerprint: fingerprint,
			BaseVersion: version,
		}
		if err := queue.InsertTx(tx, entry, now); err != nil {
			return syncerr.Storage("put", err)
		}
	case pending.Operation == models.OpDelete:
		return syncerr.Validation("put", fmt.Errorf("record %s has a pending delete", rec.ClientID))
	case pending.Fingerprint == fingerprint:
		// Identical to what is already queued; nothing to coalesce.
	default:
		// Fold the edit into the queued create or update.
		pending.Payload = rec.Payload
		pending.Fingerprint = fingerprint
		if err := queue.UpdatePendingTx(tx, pending, now); err != nil {
			return syncerr.Storage("put", err)
		}
	}

	rec.SyncStatus = models.StatusPending
	rec.Version = version
	return nil
}

func (s *Store) putDelete(tx *sql.Tx, table string, rec *models.Record, now time.Time) error {
	var version int64
	err := tx.QueryRow(
		fmt.Sprintf(`SELECT version FROM %s WHERE client_id = ?`, table),
		rec.ClientID.String(),
	).Scan(&version)
	if err == sql.ErrNoRows {
		return syncerr.Validation("put", fmt.Errorf("%w: %s", ErrNotFound, rec.ClientID))
	}
	if err != nil {
		return syncerr.Storage("put", err)
	}

	pending, err := queue.LatestPendingTx(tx, rec.ClientID)
	if err != nil {
		return syncerr.Storage("put", err)
	}

	switch {
	case pending != nil && pending.Operation == models.OpCreate:
		// The server never saw this record: the create and the delete
		// annihilate, nothing is sent.
		if err := queue.DeleteTx(tx, pending.ID); err != nil {
			return syncerr.Storage("put", err)
		}
	case pending != nil:
		pending.Operation = models.OpDelete
		pending.Payload = nil
		pending.Fingerprint = 0
		if err := queue.UpdatePendingTx(tx, pending, now); err != nil {
			return syncerr.Storage("put", err)
		}
	default:
		entry := &models.QueueEntry{
			EntityType:  rec.EntityType,
			ClientID:    rec.ClientID,
			Operation:   models.OpDelete,
			BaseVersion: version,
		}
		if err := queue.InsertTx(tx, entry, now); err != nil {
			return syncerr.Storage("put", err)
		}
	}

	if _, err := tx.Exec(
		fmt.Sprintf(`DELETE FROM %s WHERE client_id = ?`, table),
		rec.ClientID.String(),
	); err != nil {
		return syncerr.Storage("put", err)
	}
	return nil
}

func scanRecord(row *sql.Row, entityType models.EntityType) (*models.Record, error) {
	var (
		rec       models.Record
		clientID  string
		serverID  sql.NullInt64
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(&clientID, &serverID, &rec.SyncStatus, &rec.Version, &rec.Payload, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(clientID)
	if err != nil {
		return nil, fmt.Errorf("corrupt client_id: %w", err)
	}
	rec.ClientID = id
	rec.EntityType = entityType
	if serverID.Valid {
		rec.ServerID = &serverID.Int64
	}
	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.UpdatedAt = time.Unix(updatedAt, 0)
	return &rec, nil
}

const recordColumns = "client_id, server_id, sync_status, version, payload, created_at, updated_at"

func (s *Store) Get(ctx context.Context, entityType models.EntityType, clientID uuid.UUID) (*models.Record, error) {
	desc, ok := registry.Lookup(entityType)
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q", entityType)
	}

	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE client_id = ?`, recordColumns, desc.Table()),
		clientID.String(),
	)
	rec, err := scanRecord(row, entityType)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, syncerr.Storage("get", err)
	}
	return rec, nil
}

// ListBySyncStatus returns every record in the given state across all
// entity types, e.g. everything still pending or everything in conflict.
func (s *Store) ListBySyncStatus(ctx context.Context, status models.SyncStatus) ([]*models.Record, error) {
	var records []*models.Record
	for _, desc := range registry.All() {
		rows, err := s.db.QueryContext(ctx,
			fmt.Sprintf(`SELECT %s FROM %s WHERE sync_status = ? ORDER BY created_at`, recordColumns, desc.Table()),
			string(status),
		)
		if err != nil {
			return nil, syncerr.Storage("list_by_sync_status", err)
		}
		for rows.Next() {
			var (
				rec       models.Record
				clientID  string
				serverID  sql.NullInt64
				createdAt int64
				updatedAt int64
			)
			if err := rows.Scan(&clientID, &serverID, &rec.SyncStatus, &rec.Version, &rec.Payload, &createdAt, &updatedAt); err != nil {
				rows.Close()
				return nil, syncerr.Storage("list_by_sync_status", err)
			}
			id, err := uuid.Parse(clientID)
			if err != nil {
				rows.Close()
				return nil, syncerr.Storage("list_by_sync_status", err)
			}
			rec.ClientID = id
			rec.EntityType = desc.Type()
			if serverID.Valid {
				rec.ServerID = &serverID.Int64
			}
			rec.CreatedAt = time.Unix(createdAt, 0)
			rec.UpdatedAt = time.Unix(updatedAt, 0)
			records = append(records, &rec)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, syncerr.Storage("list_by_sync_status", err)
		}
		rows.Close()
	}
	return records, nil
}

func (s *Store) MarkStatus(ctx context.Context, entityType models.EntityType, clientID uuid.UUID, status models.SyncStatus) error {
	desc, ok := registry.Lookup(entityType)
	if !ok {
		return fmt.Errorf("unknown entity type %q", entityType)
	}

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET sync_status = ?, updated_at = ? WHERE client_id = ?`, desc.Table()),
		string(status), s.clock().Unix(), clientID.String(),
	)
	if err != nil {
		return syncerr.Storage("mark_status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ApplyServerAck records a server acknowledgement: the server identifier
// is adopted at most once (a replayed ack never overwrites it) and the
// record becomes synced unless a newer local mutation is still queued.
// ackedEntry is the queue entry being acknowledged; it is still in
// flight at this point and must not count as queued work.
func (s *Store) ApplyServerAck(ctx context.Context, entityType models.EntityType, clientID uuid.UUID, serverID int64, version int64, ackedEntry int64) error {
	desc, ok := registry.Lookup(entityType)
	if !ok {
		return fmt.Errorf("unknown entity type %q", entityType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s
		 SET server_id = COALESCE(server_id, ?),
		     version = ?,
		     sync_status = CASE
		         WHEN EXISTS (SELECT 1 FROM sync_queue
		                      WHERE client_id = ? AND id != ? AND status IN ('pending', 'syncing'))
		         THEN sync_status
		         ELSE ? END,
		     updated_at = ?
		 WHERE client_id = ?`, desc.Table()),
		serverID, version,
		clientID.String(), ackedEntry, string(models.StatusSynced),
		s.clock().Unix(), clientID.String(),
	)
	if err != nil {
		return syncerr.Storage("apply_server_ack", err)
	}
	return nil
}

// RemoveLocal drops the local row after the server acknowledged its
// deletion. Missing rows are fine; the row may already be gone.
func (s *Store) RemoveLocal(ctx context.Context, entityType models.EntityType, clientID uuid.UUID) error {
	desc, ok := registry.Lookup(entityType)
	if !ok {
		return fmt.Errorf("unknown entity type %q", entityType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE client_id = ?`, desc.Table()),
		clientID.String(),
	); err != nil {
		return syncerr.Storage("remove_local", err)
	}
	return nil
}

// AdoptServerState replaces the local copy with the canonical server
// state, re-creating the row if the record was deleted locally. A nil
// serverID leaves the stored identifier untouched.
func (s *Store) AdoptServerState(ctx context.Context, entityType models.EntityType, clientID uuid.UUID, serverID *int64, version int64, payload []byte) error {
	desc, ok := registry.Lookup(entityType)
	if !ok {
		return fmt.Errorf("unknown entity type %q", entityType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var sid any
	if serverID != nil {
		sid = *serverID
	}

	now := s.clock().Unix()
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (client_id, server_id, sync_status, version, payload, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (client_id) DO UPDATE SET
		     server_id = COALESCE(%s.server_id, excluded.server_id),
		     sync_status = excluded.sync_status,
		     version = excluded.version,
		     payload = excluded.payload,
		     updated_at = excluded.updated_at`, desc.Table(), desc.Table()),
		clientID.String(), sid, string(models.StatusSynced), version, payload, now, now,
	)
	if err != nil {
		return syncerr.Storage("adopt_server_state", err)
	}
	return nil
}
