package models

import (
	"time"

	"github.com/google/uuid"
)

// Payment settles part or all of an invoice.
type Payment struct {
	InvoiceClientID *uuid.UUID `json:"invoice_client_id,omitempty"`
	AmountCents     int64      `json:"amount_cents"`
	Method          string     `json:"method"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
}
