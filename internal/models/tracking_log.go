package models

import (
	"time"

	"github.com/google/uuid"
)

// GPSFix is a single recorded position.
type GPSFix struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	AccuracyM  float64   `json:"accuracy_m,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// TrackingLog is a batch of GPS fixes captured in the field. Tracking logs
// are append-only; once created they are never edited.
type TrackingLog struct {
	JobClientID *uuid.UUID `json:"job_client_id,omitempty"`
	DeviceName  string     `json:"device_name,omitempty"`
	Fixes       []GPSFix   `json:"fixes"`
}
