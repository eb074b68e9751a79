package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ServerRecord is the authoritative copy of an entity held by the server.
// ID is the server-assigned identifier (BIGSERIAL); (OrgID, ClientID) is
// unique, which is what makes create replays idempotent.
type ServerRecord struct {
	ID         int64           `json:"id"`
	OrgID      uuid.UUID       `json:"org_id"`
	ClientID   uuid.UUID       `json:"client_id"`
	EntityType EntityType      `json:"entity_type"`
	Version    int64           `json:"version"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	DeletedAt  *time.Time      `json:"deleted_at,omitempty"`
}
