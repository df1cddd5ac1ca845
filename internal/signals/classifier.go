package signals

import (
	"github.com/salesloop/autopilot/pkg/models"
)

// Per-action-type response-time thresholds in milliseconds. An approval faster
// than its threshold is judged too fast to reflect genuine review. High-stakes
// actions that require reading generated content (an email draft) carry high
// thresholds; trivial confirmations carry low ones.
var rubberStampThresholdMs = map[string]int64{
	models.ActionSendEmail:       5000,
	models.ActionDealStageChange: 2500,
	models.ActionScheduleMeeting: 2500,
	models.ActionCreateContact:   1500,
	models.ActionActivityLog:     1000,
	models.ActionCreateTask:      1000,
}

// defaultRubberStampThresholdMs applies to action types not in the table.
const defaultRubberStampThresholdMs = 2000

// IsRubberStamp reports whether a response was suspiciously fast. Only
// approvals can be rubber-stamped; an absent response time gets the benefit
// of the doubt and is never flagged.
func IsRubberStamp(actionType, signal string, timeToRespondMs *int64) bool {
	if signal != models.SignalApproved && signal != models.SignalApprovedEdited {
		return false
	}
	if timeToRespondMs == nil {
		return false
	}
	threshold, ok := rubberStampThresholdMs[actionType]
	if !ok {
		threshold = defaultRubberStampThresholdMs
	}
	return *timeToRespondMs < threshold
}
