package store

import (
	"context"
	"time"
)

// Store is the persistence interface for signals, tier state, and the shared
// promotion/demotion audit log.
// Implementations: the SQLite store returned by Open (local/dev/tests) and
// *postgres.Store (production).
type Store interface {
	// Signals (append-only; never updated or deleted)
	CreateSignal(ctx context.Context, sig Signal) (string, error)
	ListSignalsSince(ctx context.Context, userID, orgID, actionType string, since time.Time) ([]Signal, error)

	// Tier state
	GetTierState(ctx context.Context, userID, actionType string) (*TierState, error)
	PutTierState(ctx context.Context, ts TierState) error
	DemoteTier(ctx context.Context, p DemoteParams) (*TierState, error)
	ListAutonomousPairs(ctx context.Context) ([]EvalTarget, error)

	// Audit log (shared with the promotion path; write-only from this engine)
	CreateAuditEvent(ctx context.Context, ev AuditEvent) error
	ListAuditEvents(ctx context.Context, orgID, userID string, limit int) ([]AuditEvent, error)

	// Lifecycle
	Close() error
}
