package models

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobScheduled  JobStatus = "scheduled"
	JobInProgress JobStatus = "in_progress"
	JobDone       JobStatus = "done"
	JobCancelled  JobStatus = "cancelled"
)

func (s JobStatus) Valid() bool {
	switch s {
	case JobScheduled, JobInProgress, JobDone, JobCancelled:
		return true
	}
	return false
}

// Job is a dispatched unit of field work, optionally tied to a land parcel
// by its client identifier.
type Job struct {
	LandClientID *uuid.UUID `json:"land_client_id,omitempty"`
	Title        string     `json:"title"`
	Status       JobStatus  `json:"status"`
	AssignedTo   string     `json:"assigned_to,omitempty"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	Notes        string     `json:"notes,omitempty"`
}
