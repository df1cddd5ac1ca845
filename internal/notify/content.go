package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/salesloop/autopilot/pkg/models"
)

// actionDisplayNames translates internal action-type slugs to user-facing
// phrases. Unknown slugs fall back to a humanized version of the slug.
var actionDisplayNames = map[string]string{
	models.ActionSendEmail:       "sending emails",
	models.ActionDealStageChange: "deal stage changes",
	models.ActionActivityLog:     "activity logging",
	models.ActionCreateContact:   "creating contacts",
	models.ActionScheduleMeeting: "scheduling meetings",
	models.ActionCreateTask:      "creating tasks",
}

// ActionDisplayName returns the user-facing phrase for an action-type slug.
func ActionDisplayName(actionType string) string {
	if name, ok := actionDisplayNames[actionType]; ok {
		return name
	}
	return humanizeSlug(actionType)
}

func humanizeSlug(slug string) string {
	s := strings.NewReplacer(".", " ", "_", " ", "-", " ").Replace(slug)
	return strings.Join(strings.Fields(s), " ")
}

// BuildDemotionNotice renders the severity-tailored message for one demotion.
//
// warn is the only severity that solicits a user decision; demote and
// emergency announce an already-executed change.
func BuildDemotionNotice(userID, orgID string, res models.TriggerResult, actionType string, cooldownUntil, now time.Time) Notification {
	display := ActionDisplayName(actionType)
	n := Notification{
		UserID:     userID,
		OrgID:      orgID,
		ActionType: actionType,
		Severity:   res.Severity,
		CreatedAt:  now,
	}
	switch res.Severity {
	case models.SeverityWarn:
		n.Title = fmt.Sprintf("Heads up: undos are trending up for %s", display)
		n.Body = fmt.Sprintf(
			"You've undone %d automated %s in the last %d days. Want me to switch back to asking first?\n"+
				"• Reply \"revert now\" to require approval again\n"+
				"• Reply \"keep autonomous\" and I'll keep going — I'll be more careful",
			res.UndoCount, display, res.WindowDays)
	case models.SeverityDemote:
		n.Title = fmt.Sprintf("Autopilot paused for %s", display)
		n.Body = fmt.Sprintf(
			"I've switched %s back to approval-required: %.0f%% of the last %d days' actions were undone. "+
				"I'll propose going autonomous again after %s once accuracy recovers.",
			display, res.UndoRate*100, res.WindowDays, cooldownUntil.Format("Jan 2"))
	case models.SeverityEmergency:
		n.Title = fmt.Sprintf("Autopilot reverted for %s", display)
		n.Body = fmt.Sprintf(
			"I've immediately switched %s back to approval-required because this is a high-stakes action. "+
				"Every one of these will come to you for review from now on.",
			display)
	default:
		n.Title = fmt.Sprintf("Autonomy change for %s", display)
		n.Body = res.Reason
	}
	return n
}
