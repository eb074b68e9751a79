package registry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prudhvinik1/fieldsync/internal/models"
)

func TestLookupCoversAllTypes(t *testing.T) {
	for _, et := range models.EntityTypes {
		d, ok := Lookup(et)
		require.True(t, ok, "no descriptor for %s", et)
		assert.Equal(t, et, d.Type())
		assert.NotEmpty(t, d.Table())
	}
	_, ok := Lookup(models.EntityType("customer"))
	assert.False(t, ok)
}

func TestGeometryTypesAreImmutable(t *testing.T) {
	for _, et := range []models.EntityType{models.EntityLand, models.EntityTrackingLog} {
		d, _ := Lookup(et)
		assert.False(t, d.Mutable(), "%s must be append-only", et)
	}
	for _, et := range []models.EntityType{models.EntityJob, models.EntityInvoice, models.EntityExpense, models.EntityPayment} {
		d, _ := Lookup(et)
		assert.True(t, d.Mutable(), "%s must accept updates", et)
	}
}

func TestValidate(t *testing.T) {
	mustJSON := func(v any) json.RawMessage {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		return b
	}

	tests := []struct {
		name    string
		et      models.EntityType
		payload json.RawMessage
		wantErr string
	}{
		{
			name: "valid land",
			et:   models.EntityLand,
			payload: mustJSON(models.Land{Name: "North paddock", AreaHectares: 2.4, Polygon: []models.GeoPoint{
				{Lat: 1, Lng: 1}, {Lat: 1, Lng: 2}, {Lat: 2, Lng: 2},
			}}),
		},
		{
			name:    "land missing name",
			et:      models.EntityLand,
			payload: mustJSON(models.Land{AreaHectares: 1}),
			wantErr: "name is required",
		},
		{
			name:    "land degenerate polygon",
			et:      models.EntityLand,
			payload: mustJSON(models.Land{Name: "x", Polygon: []models.GeoPoint{{Lat: 1, Lng: 1}}}),
			wantErr: "at least 3 points",
		},
		{
			name:    "land bad latitude",
			et:      models.EntityLand,
			payload: mustJSON(models.Land{Name: "x", Polygon: []models.GeoPoint{{Lat: 95, Lng: 1}, {Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}}}),
			wantErr: "latitude",
		},
		{
			name:    "valid job",
			et:      models.EntityJob,
			payload: mustJSON(models.Job{Title: "Survey", Status: models.JobScheduled}),
		},
		{
			name:    "job bad status",
			et:      models.EntityJob,
			payload: mustJSON(models.Job{Title: "Survey", Status: "paused"}),
			wantErr: "job status",
		},
		{
			name:    "invoice bad currency",
			et:      models.EntityInvoice,
			payload: mustJSON(models.Invoice{Number: "INV-1", AmountCents: 100, Currency: "EURO", Status: models.InvoiceDraft}),
			wantErr: "currency",
		},
		{
			name:    "tracking log empty",
			et:      models.EntityTrackingLog,
			payload: mustJSON(models.TrackingLog{}),
			wantErr: "at least one fix",
		},
		{
			name: "valid tracking log",
			et:   models.EntityTrackingLog,
			payload: mustJSON(models.TrackingLog{Fixes: []models.GPSFix{
				{Lat: 48.2, Lng: 16.3, RecordedAt: time.Now()},
			}}),
		},
		{
			name:    "payment zero amount",
			et:      models.EntityPayment,
			payload: mustJSON(models.Payment{Method: "cash"}),
			wantErr: "positive",
		},
		{
			name:    "expense missing category",
			et:      models.EntityExpense,
			payload: mustJSON(models.Expense{AmountCents: 10}),
			wantErr: "category",
		},
		{
			name:    "empty payload",
			et:      models.EntityJob,
			payload: nil,
			wantErr: "empty payload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := Lookup(tt.et)
			require.True(t, ok)
			err := d.Validate(tt.payload)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
