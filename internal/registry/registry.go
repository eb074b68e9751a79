// Package registry maps entity types to their sync capabilities: storage
// table, mutability, and payload validation. Both the server reconciler
// and the client store dispatch through descriptors instead of switching
// on type strings.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/prudhvinik1/fieldsync/internal/models"
)

// Descriptor describes how one entity type participates in sync.
type Descriptor interface {
	Type() models.EntityType
	// Table is the storage table name, identical on client and server.
	Table() string
	// Mutable reports whether updates are accepted after creation.
	// Immutable types (lands, tracking logs) are append-only, which
	// makes version conflicts structurally impossible for them.
	Mutable() bool
	// Validate checks a payload for the semantic errors the server
	// would reject. Used on both sides so bad payloads fail fast.
	Validate(payload json.RawMessage) error
}

var descriptors = map[models.EntityType]Descriptor{
	models.EntityLand:        landDescriptor{},
	models.EntityJob:         jobDescriptor{},
	models.EntityInvoice:     invoiceDescriptor{},
	models.EntityTrackingLog: trackingLogDescriptor{},
	models.EntityExpense:     expenseDescriptor{},
	models.EntityPayment:     paymentDescriptor{},
}

// Lookup returns the descriptor for t.
func Lookup(t models.EntityType) (Descriptor, bool) {
	d, ok := descriptors[t]
	return d, ok
}

// All returns every descriptor in models.EntityTypes order.
func All() []Descriptor {
	out := make([]Descriptor, 0, len(models.EntityTypes))
	for _, t := range models.EntityTypes {
		out = append(out, descriptors[t])
	}
	return out
}

func decodeStrict(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return errors.New("empty payload")
	}
	return json.Unmarshal(payload, v)
}

type landDescriptor struct{}

func (landDescriptor) Type() models.EntityType { return models.EntityLand }
func (landDescriptor) Table() string           { return "lands" }
func (landDescriptor) Mutable() bool           { return false }

func (landDescriptor) Validate(payload json.RawMessage) error {
	var land models.Land
	if err := decodeStrict(payload, &land); err != nil {
		return err
	}
	if land.Name == "" {
		return errors.New("land name is required")
	}
	if land.AreaHectares < 0 {
		return errors.New("land area must not be negative")
	}
	if len(land.Polygon) > 0 && len(land.Polygon) < 3 {
		return errors.New("land polygon needs at least 3 points")
	}
	for i, p := range land.Polygon {
		if err := checkCoordinates(p.Lat, p.Lng); err != nil {
			return fmt.Errorf("polygon point %d: %w", i, err)
		}
	}
	return nil
}

type jobDescriptor struct{}

func (jobDescriptor) Type() models.EntityType { return models.EntityJob }
func (jobDescriptor) Table() string           { return "jobs" }
func (jobDescriptor) Mutable() bool           { return true }

func (jobDescriptor) Validate(payload json.RawMessage) error {
	var job models.Job
	if err := decodeStrict(payload, &job); err != nil {
		return err
	}
	if job.Title == "" {
		return errors.New("job title is required")
	}
	if !job.Status.Valid() {
		return fmt.Errorf("unknown job status %q", job.Status)
	}
	return nil
}

type invoiceDescriptor struct{}

func (invoiceDescriptor) Type() models.EntityType { return models.EntityInvoice }
func (invoiceDescriptor) Table() string           { return "invoices" }
func (invoiceDescriptor) Mutable() bool           { return true }

func (invoiceDescriptor) Validate(payload json.RawMessage) error {
	var inv models.Invoice
	if err := decodeStrict(payload, &inv); err != nil {
		return err
	}
	if inv.Number == "" {
		return errors.New("invoice number is required")
	}
	if inv.AmountCents < 0 {
		return errors.New("invoice amount must not be negative")
	}
	if len(inv.Currency) != 3 {
		return errors.New("invoice currency must be a 3-letter code")
	}
	if !inv.Status.Valid() {
		return fmt.Errorf("unknown invoice status %q", inv.Status)
	}
	return nil
}

type trackingLogDescriptor struct{}

func (trackingLogDescriptor) Type() models.EntityType { return models.EntityTrackingLog }
func (trackingLogDescriptor) Table() string           { return "tracking_logs" }
func (trackingLogDescriptor) Mutable() bool           { return false }

func (trackingLogDescriptor) Validate(payload json.RawMessage) error {
	var tl models.TrackingLog
	if err := decodeStrict(payload, &tl); err != nil {
		return err
	}
	if len(tl.Fixes) == 0 {
		return errors.New("tracking log needs at least one fix")
	}
	for i, f := range tl.Fixes {
		if err := checkCoordinates(f.Lat, f.Lng); err != nil {
			return fmt.Errorf("fix %d: %w", i, err)
		}
		if f.RecordedAt.IsZero() {
			return fmt.Errorf("fix %d: recorded_at is required", i)
		}
	}
	return nil
}

type expenseDescriptor struct{}

func (expenseDescriptor) Type() models.EntityType { return models.EntityExpense }
func (expenseDescriptor) Table() string           { return "expenses" }
func (expenseDescriptor) Mutable() bool           { return true }

func (expenseDescriptor) Validate(payload json.RawMessage) error {
	var exp models.Expense
	if err := decodeStrict(payload, &exp); err != nil {
		return err
	}
	if exp.Category == "" {
		return errors.New("expense category is required")
	}
	if exp.AmountCents < 0 {
		return errors.New("expense amount must not be negative")
	}
	return nil
}

type paymentDescriptor struct{}

func (paymentDescriptor) Type() models.EntityType { return models.EntityPayment }
func (paymentDescriptor) Table() string           { return "payments" }
func (paymentDescriptor) Mutable() bool           { return true }

func (paymentDescriptor) Validate(payload json.RawMessage) error {
	var pay models.Payment
	if err := decodeStrict(payload, &pay); err != nil {
		return err
	}
	if pay.AmountCents <= 0 {
		return errors.New("payment amount must be positive")
	}
	if pay.Method == "" {
		return errors.New("payment method is required")
	}
	return nil
}

func checkCoordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude %v out of range", lat)
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("longitude %v out of range", lng)
	}
	return nil
}
