// Package store defines the persistence interface and shared models for
// signals, tier state, and audit events.
package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrTierConflict is returned by DemoteTier when the conditional update
// matched no row because current_tier no longer equals FromTier. Another
// execution already demoted the pair; callers log and return without
// retrying or writing a duplicate audit event.
var ErrTierConflict = errors.New("tier state changed concurrently")

// Signal is one recorded human-or-system response to a proposed or executed
// action. Rows are append-only.
type Signal struct {
	ID                   string
	UserID               string
	OrgID                string
	ActionType           string
	AgentName            string
	Signal               string
	EditDistance         *int
	EditFields           *string
	TimeToRespondMs      *int64
	ConfidenceAtProposal *float64
	DealID               *string
	ContactID            *string
	MeetingID            *string
	AutonomyTierAtTime   string // tier active when the event occurred; immutable historical fact
	IsBackfill           bool
	RubberStamp          bool // computed at write time, never recomputed
	CreatedAt            time.Time
}

// TierState is the current autonomy policy for a (user, action type) pair.
// Primary key (user_id, action_type).
type TierState struct {
	UserID               string
	ActionType           string
	OrgID                string
	CurrentTier          string
	CooldownUntil        *time.Time // while in the future, re-promotion is blocked
	ExtraRequiredSignals int        // accrued penalty; only ever raised by demotions
	PromotionEligible    bool
	UpdatedAt            time.Time
}

// AuditEvent is one immutable entry on the shared promotion/demotion timeline.
type AuditEvent struct {
	OrgID         string
	UserID        string
	ActionType    string
	EventType     string
	FromTier      string
	ToTier        string
	TriggerReason *string
	CooldownUntil *time.Time
	CreatedAt     time.Time
}

// EvalTarget identifies a (user, action type) pair the background sweep
// should re-evaluate. Only pairs currently in the autonomous tier are
// candidates.
type EvalTarget struct {
	UserID     string
	OrgID      string
	ActionType string
}

// DemoteParams describes the conditional tier mutation performed by the
// demotion executor. The update is keyed on FromTier (compare-and-swap on the
// previously observed tier) and the penalty is applied additively in the same
// statement, so concurrent executions cannot stack from a stale base.
type DemoteParams struct {
	UserID        string
	ActionType    string
	FromTier      string
	ToTier        string
	CooldownUntil time.Time
	Penalty       int
	Now           time.Time
}
