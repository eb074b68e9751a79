package models

import (
	"time"

	"github.com/google/uuid"
)

type InvoiceStatus string

const (
	InvoiceDraft  InvoiceStatus = "draft"
	InvoiceIssued InvoiceStatus = "issued"
	InvoicePaid   InvoiceStatus = "paid"
	InvoiceVoid   InvoiceStatus = "void"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceDraft, InvoiceIssued, InvoicePaid, InvoiceVoid:
		return true
	}
	return false
}

// Invoice bills a job. Amounts are integer cents.
type Invoice struct {
	JobClientID *uuid.UUID    `json:"job_client_id,omitempty"`
	Number      string        `json:"number"`
	AmountCents int64         `json:"amount_cents"`
	Currency    string        `json:"currency"`
	Status      InvoiceStatus `json:"status"`
	IssuedAt    *time.Time    `json:"issued_at,omitempty"`
	DueAt       *time.Time    `json:"due_at,omitempty"`
}
