// Package policy decides which side wins when the server reports that a
// record diverged. The policy is explicit per entity type; anything not
// safely mergeable goes to the user instead of being auto-merged.
package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/prudhvinik1/fieldsync/internal/models"
)

// Decision is the outcome of conflict resolution.
type Decision int

const (
	// KeepServer adopts the server copy and drops the local mutation.
	KeepServer Decision = iota
	// KeepLocal re-submits the local payload on top of the server
	// version.
	KeepLocal
	// Manual parks the record in conflict state for the user.
	Manual
)

// Conflict carries both sides of a divergence.
type Conflict struct {
	EntityType      models.EntityType
	Local           *models.Record
	ServerState     []byte
	ServerVersion   int64
	ServerUpdatedAt time.Time
}

// Resolver is the per-entity-type strategy.
type Resolver interface {
	Resolve(ctx context.Context, c Conflict) (Decision, error)
}

// LastWriteWins compares timestamps: the strictly newer local copy is
// re-submitted, otherwise the server copy is adopted. Ties go to the
// server; it is the authoritative store.
type LastWriteWins struct{}

func (LastWriteWins) Resolve(_ context.Context, c Conflict) (Decision, error) {
	if c.Local == nil {
		return KeepServer, nil
	}
	if c.Local.UpdatedAt.After(c.ServerUpdatedAt) {
		return KeepLocal, nil
	}
	return KeepServer, nil
}

// ManualReview never auto-merges.
type ManualReview struct{}

func (ManualReview) Resolve(context.Context, Conflict) (Decision, error) {
	return Manual, nil
}

// Set maps entity types to their resolver.
type Set map[models.EntityType]Resolver

// Default returns the canonical policy table. Job status, expenses and
// payments resolve last-writer-wins. Invoices carry money fields whose
// merge intent a timestamp cannot express, so they always surface to the
// user. Lands and tracking logs are append-only and have no resolver: a
// conflict on them indicates a bug, not a policy question.
func Default() Set {
	return Set{
		models.EntityJob:     LastWriteWins{},
		models.EntityExpense: LastWriteWins{},
		models.EntityPayment: LastWriteWins{},
		models.EntityInvoice: ManualReview{},
	}
}

func (s Set) Resolve(ctx context.Context, c Conflict) (Decision, error) {
	resolver, ok := s[c.EntityType]
	if !ok {
		return Manual, fmt.Errorf("no conflict policy for entity type %q", c.EntityType)
	}
	return resolver.Resolve(ctx, c)
}
