package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type ConflictStatus string

const (
	ConflictOpen     ConflictStatus = "open"
	ConflictResolved ConflictStatus = "resolved"
)

// Conflict is recorded by the server when a client submits an update or
// delete against a base version older than the stored one. Conflicts are
// never dropped silently; they stay open until resolved by policy or by
// an explicit resolution request.
type Conflict struct {
	ID            int64           `json:"id"`
	OrgID         uuid.UUID       `json:"org_id"`
	EntityType    EntityType      `json:"entity_type"`
	ClientID      uuid.UUID       `json:"client_id"`
	BaseVersion   int64           `json:"base_version"`
	ServerVersion int64           `json:"server_version"`
	ClientPayload json.RawMessage `json:"client_payload"`
	ServerPayload json.RawMessage `json:"server_payload"`
	Status        ConflictStatus  `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	ResolvedAt    *time.Time      `json:"resolved_at,omitempty"`
}
