// Package autonomy decides when an automation loses the right to act without
// approval, and executes that demotion.
package autonomy

import (
	"fmt"

	"github.com/salesloop/autopilot/pkg/models"
)

// SeverityPolicy holds the severity-indexed constants for one demotion:
// how long re-promotion is blocked, how much the evidence bar rises, and
// which audit event type the demotion writes.
type SeverityPolicy struct {
	CooldownDays int
	Penalty      int // added to extra_required_signals
	EventType    string
}

var severityPolicies = map[string]SeverityPolicy{
	models.SeverityWarn:      {CooldownDays: 14, Penalty: 10, EventType: models.EventAutonomyWarning},
	models.SeverityDemote:    {CooldownDays: 30, Penalty: 15, EventType: models.EventAutonomyDemoted},
	models.SeverityEmergency: {CooldownDays: 60, Penalty: 25, EventType: models.EventAutonomyEmergency},
}

// PolicyFor returns the policy for a severity. An unknown severity is a code
// defect (the evaluator only emits the three known values), so it panics
// rather than degrading silently.
func PolicyFor(severity string) SeverityPolicy {
	p, ok := severityPolicies[severity]
	if !ok {
		panic(fmt.Sprintf("autonomy: no policy for severity %q", severity))
	}
	return p
}

// ValidatePolicies checks at startup that every severity has a policy with
// sane constants. Run from serve so a gap is a boot error, not a runtime
// surprise.
func ValidatePolicies() error {
	for _, sev := range []string{models.SeverityWarn, models.SeverityDemote, models.SeverityEmergency} {
		p, ok := severityPolicies[sev]
		if !ok {
			return fmt.Errorf("missing severity policy for %q", sev)
		}
		if p.CooldownDays <= 0 || p.Penalty <= 0 || p.EventType == "" {
			return fmt.Errorf("invalid severity policy for %q: %+v", sev, p)
		}
	}
	return nil
}
