package store

import (
	"database/sql"
	"fmt"

	"github.com/prudhvinik1/fieldsync/internal/registry"
)

// Entity tables and the sync queue live in one SQLite file on purpose:
// sharing the database is what makes "entity write + queue append" a
// single transaction.

const entityTableTemplate = `
CREATE TABLE IF NOT EXISTS %[1]s (
	client_id   TEXT PRIMARY KEY,
	server_id   INTEGER UNIQUE,
	sync_status TEXT NOT NULL DEFAULT 'pending',
	version     INTEGER NOT NULL DEFAULT 0,
	payload     TEXT,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_sync_status ON %[1]s (sync_status);
`

const queueTable = `
CREATE TABLE IF NOT EXISTS sync_queue (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_type     TEXT NOT NULL,
	client_id       TEXT NOT NULL,
	operation       TEXT NOT NULL,
	payload         TEXT,
	fingerprint     INTEGER NOT NULL DEFAULT 0,
	base_version    INTEGER NOT NULL DEFAULT 0,
	attempt_count   INTEGER NOT NULL DEFAULT 0,
	last_error      TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'pending',
	next_attempt_at INTEGER NOT NULL DEFAULT 0,
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sync_queue_client ON sync_queue (client_id, status);
CREATE INDEX IF NOT EXISTS idx_sync_queue_ready ON sync_queue (status, next_attempt_at);
`

func createSchema(db *sql.DB) error {
	for _, desc := range registry.All() {
		if _, err := db.Exec(fmt.Sprintf(entityTableTemplate, desc.Table())); err != nil {
			return fmt.Errorf("failed to create table %s: %w", desc.Table(), err)
		}
	}
	if _, err := db.Exec(queueTable); err != nil {
		return fmt.Errorf("failed to create sync_queue table: %w", err)
	}
	return nil
}
