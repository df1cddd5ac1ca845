package models

// Signal kinds recorded by the HITL workflows.
const (
	SignalApproved             = "approved"
	SignalApprovedEdited       = "approved_edited"
	SignalRejected             = "rejected"
	SignalExpired              = "expired"
	SignalReversed             = "reversed"
	SignalAutoExecuted         = "auto_executed"
	SignalAutoExecutedReversed = "auto_executed_reversed"
)

// Autonomy tiers for a (user, action type) pair.
const (
	TierManualApproval = "manual_approval"
	TierAutonomous     = "autonomous"
)

// Demotion severities, highest first.
const (
	SeverityEmergency = "emergency"
	SeverityDemote    = "demote"
	SeverityWarn      = "warn"
)

// Trigger names produced by the evaluator.
const (
	TriggerEmailUndoAny      = "email_undo_any"
	TriggerUndoSpike         = "undo_spike"
	TriggerSustainedUndoRate = "sustained_undo_rate"
	TriggerRisingUndoRate    = "rising_undo_rate"
)

// Audit event types shared with the promotion path. Both writers use one
// taxonomy so a single timeline can be rendered per user.
const (
	EventAutonomyWarning   = "autonomy_warning"
	EventAutonomyDemoted   = "autonomy_demoted"
	EventAutonomyEmergency = "autonomy_emergency_revert"
	EventAutonomyPromoted  = "autonomy_promoted"
	EventAutonomyProposed  = "autonomy_proposed"
)

// Well-known action type slugs.
const (
	ActionSendEmail       = "send-email"
	ActionDealStageChange = "crm.deal_stage_change"
	ActionActivityLog     = "crm.activity_log"
	ActionCreateContact   = "crm.create_contact"
	ActionScheduleMeeting = "calendar.schedule_meeting"
	ActionCreateTask      = "crm.create_task"
)

// IsReversal reports whether the signal kind is a human reversing a decision,
// either after approval or after autonomous execution.
func IsReversal(signal string) bool {
	return signal == SignalReversed || signal == SignalAutoExecutedReversed
}

// ValidSignal reports whether s is one of the seven recorded signal kinds.
func ValidSignal(s string) bool {
	switch s {
	case SignalApproved, SignalApprovedEdited, SignalRejected, SignalExpired,
		SignalReversed, SignalAutoExecuted, SignalAutoExecutedReversed:
		return true
	}
	return false
}

// Default limits.
const (
	DefaultMaxRequestBodyBytes = 1 << 20 // 1 MiB
	DefaultAuditListLimit      = 200
	DefaultSSEChannelBuffer    = 256
	DefaultNotifyQueueSize     = 64
)
