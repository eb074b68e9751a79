package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EntityType identifies which domain table a record belongs to.
type EntityType string

const (
	EntityLand        EntityType = "land"
	EntityJob         EntityType = "job"
	EntityInvoice     EntityType = "invoice"
	EntityTrackingLog EntityType = "tracking_log"
	EntityExpense     EntityType = "expense"
	EntityPayment     EntityType = "payment"
)

// EntityTypes lists every syncable entity type in a stable order.
var EntityTypes = []EntityType{
	EntityLand,
	EntityJob,
	EntityInvoice,
	EntityTrackingLog,
	EntityExpense,
	EntityPayment,
}

func (t EntityType) Valid() bool {
	switch t {
	case EntityLand, EntityJob, EntityInvoice, EntityTrackingLog, EntityExpense, EntityPayment:
		return true
	}
	return false
}

// Operation is the kind of mutation recorded against an entity.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

func (o Operation) Valid() bool {
	switch o {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// SyncStatus is the client-side lifecycle state of an entity record.
// It is a tagged state, not a boolean pair: every consumer of a record
// can tell local-only data from acknowledged data.
type SyncStatus string

const (
	StatusPending  SyncStatus = "pending"
	StatusSyncing  SyncStatus = "syncing"
	StatusSynced   SyncStatus = "synced"
	StatusFailed   SyncStatus = "failed"
	StatusConflict SyncStatus = "conflict"
)

// Record is the client-side envelope around a domain payload.
//
// ClientID is generated on the device, never changes, and is the sole
// correlation key with the server. ServerID is assigned by the server
// exactly once, after the first accepted create. Version is the last
// server version this client has seen for the record; it is sent as
// base_version on updates so the server can detect divergence.
type Record struct {
	ClientID   uuid.UUID       `json:"client_id"`
	EntityType EntityType      `json:"entity_type"`
	ServerID   *int64          `json:"server_id,omitempty"`
	SyncStatus SyncStatus      `json:"sync_status"`
	Version    int64           `json:"version"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
