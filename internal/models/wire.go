package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MaxBatchSize bounds one bulk sync request. The client never sends more
// entries than this and the server rejects larger batches outright.
const MaxBatchSize = 100

// SyncEntry is one mutation on the wire.
type SyncEntry struct {
	ClientID    uuid.UUID       `json:"client_id"`
	EntityType  EntityType      `json:"entity_type"`
	Operation   Operation       `json:"operation"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	BaseVersion int64           `json:"base_version"`
}

// BulkSyncRequest is the body of POST /sync/bulk.
type BulkSyncRequest struct {
	Entries []SyncEntry `json:"entries"`
}

// ResultStatus is the per-item outcome of a bulk sync.
type ResultStatus string

const (
	ResultAccepted ResultStatus = "accepted"
	ResultConflict ResultStatus = "conflict"
	ResultRejected ResultStatus = "rejected"
)

// SyncResult reports the outcome for a single submitted entry.
//
// Accepted results carry the server identifier and the canonical version
// the client must adopt as its new base. Conflict results carry the full
// server-side state so the client's conflict policy can decide without a
// second round trip.
type SyncResult struct {
	ClientID        uuid.UUID       `json:"client_id"`
	Status          ResultStatus    `json:"status"`
	ServerID        *int64          `json:"server_id,omitempty"`
	ServerVersion   int64           `json:"server_version,omitempty"`
	ServerState     json.RawMessage `json:"server_state,omitempty"`
	ServerUpdatedAt *time.Time      `json:"server_updated_at,omitempty"`
	ConflictID      *int64          `json:"conflict_id,omitempty"`
	Reason          string          `json:"reason,omitempty"`
}

// BulkSyncResponse is the body returned by POST /sync/bulk.
type BulkSyncResponse struct {
	Results []SyncResult `json:"results"`
}

// SyncStatusResponse is returned by GET /sync/status.
type SyncStatusResponse struct {
	PendingCount int64      `json:"pending_count"`
	FailedCount  int64      `json:"failed_count"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

// ConflictResolution selects how an open conflict should be settled.
type ConflictResolution string

const (
	ResolveKeepClient ConflictResolution = "keep_client"
	ResolveKeepServer ConflictResolution = "keep_server"
	ResolveMerge      ConflictResolution = "merge"
)

// ResolveConflictRequest is the body of POST /sync/conflicts/{id}/resolve.
type ResolveConflictRequest struct {
	Resolution    ConflictResolution `json:"resolution"`
	MergedPayload json.RawMessage    `json:"merged_payload,omitempty"`
}

// ResolveConflictResponse returns the canonical record after resolution.
type ResolveConflictResponse struct {
	ConflictID    int64           `json:"conflict_id"`
	Status        ConflictStatus  `json:"status"`
	ServerID      *int64          `json:"server_id,omitempty"`
	ServerVersion int64           `json:"server_version,omitempty"`
	ServerState   json.RawMessage `json:"server_state,omitempty"`
}
