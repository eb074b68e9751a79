package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prudhvinik1/fieldsync/internal/models"
)

func TestLastWriteWins_NewerLocalWins(t *testing.T) {
	serverTime := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	decision, err := LastWriteWins{}.Resolve(context.Background(), Conflict{
		EntityType:      models.EntityJob,
		Local:           &models.Record{UpdatedAt: serverTime.Add(time.Minute)},
		ServerUpdatedAt: serverTime,
	})
	require.NoError(t, err)
	assert.Equal(t, KeepLocal, decision)
}

func TestLastWriteWins_TieGoesToServer(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	decision, err := LastWriteWins{}.Resolve(context.Background(), Conflict{
		EntityType:      models.EntityJob,
		Local:           &models.Record{UpdatedAt: now},
		ServerUpdatedAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, KeepServer, decision)
}

func TestLastWriteWins_MissingLocalAdoptsServer(t *testing.T) {
	decision, err := LastWriteWins{}.Resolve(context.Background(), Conflict{
		EntityType:      models.EntityJob,
		ServerUpdatedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, KeepServer, decision)
}

func TestDefaultSet_InvoicesGoToManualReview(t *testing.T) {
	decision, err := Default().Resolve(context.Background(), Conflict{
		EntityType: models.EntityInvoice,
		Local:      &models.Record{UpdatedAt: time.Now()},
	})
	require.NoError(t, err)
	assert.Equal(t, Manual, decision)
}

// Append-only types have no resolver on purpose; a conflict on one means
// something upstream is broken, so it surfaces instead of auto-resolving.
func TestSet_UnknownTypeSurfacesToUser(t *testing.T) {
	decision, err := Default().Resolve(context.Background(), Conflict{
		EntityType: models.EntityLand,
	})
	require.Error(t, err)
	assert.Equal(t, Manual, decision)
}
