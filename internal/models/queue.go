package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// QueueStatus is the state of a queued mutation. Acknowledged entries are
// deleted, so there is no "completed" status.
type QueueStatus string

const (
	QueuePending QueueStatus = "pending"
	QueueSyncing QueueStatus = "syncing"
	QueueFailed  QueueStatus = "failed"
)

// QueueEntry is one durable pending mutation. Entries reference their
// entity by ClientID only; the entity row carries its own SyncStatus.
type QueueEntry struct {
	ID            int64           `json:"id"`
	EntityType    EntityType      `json:"entity_type"`
	ClientID      uuid.UUID       `json:"client_id"`
	Operation     Operation       `json:"operation"`
	Payload       json.RawMessage `json:"payload"`
	Fingerprint   uint64          `json:"fingerprint"`
	BaseVersion   int64           `json:"base_version"`
	AttemptCount  int             `json:"attempt_count"`
	LastError     string          `json:"last_error,omitempty"`
	Status        QueueStatus     `json:"status"`
	NextAttemptAt time.Time       `json:"next_attempt_at"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
