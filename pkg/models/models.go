// Package models provides shared types for the Autopilot HTTP API and external tools.
// These types mirror the API JSON and are stable for use by pkg/client and other consumers.
package models

import "time"

// Signal is one recorded human-or-system response to a proposed or executed action.
type Signal struct {
	ID                   string     `json:"id,omitempty"`
	UserID               string     `json:"user_id"`
	OrgID                string     `json:"org_id"`
	ActionType           string     `json:"action_type"`
	AgentName            string     `json:"agent_name,omitempty"`
	Signal               string     `json:"signal"`
	EditDistance         *int       `json:"edit_distance,omitempty"`
	EditFields           *string    `json:"edit_fields,omitempty"`
	TimeToRespondMs      *int64     `json:"time_to_respond_ms,omitempty"`
	ConfidenceAtProposal *float64   `json:"confidence_at_proposal,omitempty"`
	DealID               *string    `json:"deal_id,omitempty"`
	ContactID            *string    `json:"contact_id,omitempty"`
	MeetingID            *string    `json:"meeting_id,omitempty"`
	AutonomyTierAtTime   string     `json:"autonomy_tier_at_time"`
	IsBackfill           bool       `json:"is_backfill,omitempty"`
	RubberStamp          bool       `json:"rubber_stamp,omitempty"`
	CreatedAt            time.Time  `json:"created_at,omitempty"`
}

// TierState is the current autonomy policy for a (user, action type) pair.
type TierState struct {
	UserID               string     `json:"user_id"`
	ActionType           string     `json:"action_type"`
	OrgID                string     `json:"org_id"`
	CurrentTier          string     `json:"current_tier"`
	CooldownUntil        *time.Time `json:"cooldown_until,omitempty"`
	ExtraRequiredSignals int        `json:"extra_required_signals"`
	PromotionEligible    bool       `json:"promotion_eligible"`
	UpdatedAt            time.Time  `json:"updated_at,omitempty"`
}

// AuditEvent is one immutable entry on the shared promotion/demotion timeline.
type AuditEvent struct {
	OrgID         string     `json:"org_id"`
	UserID        string     `json:"user_id"`
	ActionType    string     `json:"action_type"`
	EventType     string     `json:"event_type"`
	FromTier      string     `json:"from_tier"`
	ToTier        string     `json:"to_tier"`
	TriggerReason *string    `json:"trigger_reason,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
	CreatedAt     time.Time  `json:"created_at,omitempty"`
}

// TriggerResult is the verdict of one demotion-trigger evaluation.
type TriggerResult struct {
	Triggered   bool    `json:"triggered"`
	Severity    string  `json:"severity,omitempty"`
	TriggerName string  `json:"trigger_name,omitempty"`
	Reason      string  `json:"reason,omitempty"`
	WindowDays  int     `json:"window_days,omitempty"`
	UndoCount   int     `json:"undo_count,omitempty"`
	UndoRate    float64 `json:"undo_rate,omitempty"`
}

// EvaluationRequest asks the engine to evaluate (and, if triggered, execute)
// demotion for one (user, org, action type) pair.
type EvaluationRequest struct {
	UserID     string `json:"user_id"`
	OrgID      string `json:"org_id"`
	ActionType string `json:"action_type"`
}

// EvaluationResponse is the verdict plus whether a demotion was executed.
type EvaluationResponse struct {
	Result   TriggerResult `json:"result"`
	Executed bool          `json:"executed"`
}
