package models

import (
	"time"

	"github.com/google/uuid"
)

// Expense is a cost logged against a job.
type Expense struct {
	JobClientID *uuid.UUID `json:"job_client_id,omitempty"`
	Category    string     `json:"category"`
	AmountCents int64      `json:"amount_cents"`
	Note        string     `json:"note,omitempty"`
	SpentAt     *time.Time `json:"spent_at,omitempty"`
}
