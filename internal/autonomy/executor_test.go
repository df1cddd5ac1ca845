package autonomy

import (
	"context"
	"testing"
	"time"

	"github.com/salesloop/autopilot/internal/store"
	"github.com/salesloop/autopilot/pkg/models"
)

func testExecutor(t *testing.T, st store.Store) *Executor {
	t.Helper()
	x := NewExecutor(st, nil, nil)
	x.Now = func() time.Time { return testNow }
	return x
}

func emergencyVerdict() models.TriggerResult {
	return models.TriggerResult{
		Triggered:   true,
		Severity:    models.SeverityEmergency,
		TriggerName: models.TriggerEmailUndoAny,
		Reason:      "1 undo(s) of sent emails in the last 7 days; a sent email cannot be recalled",
		WindowDays:  7,
		UndoCount:   1,
	}
}

func TestExecute_demotesAndAudits(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	x := testExecutor(t, st)
	ctx := context.Background()
	seedTier(t, st, "u1", models.ActionSendEmail, models.TierAutonomous)

	if !x.Execute(ctx, "u1", "org1", models.ActionSendEmail, emergencyVerdict()) {
		t.Fatal("Execute: expected demotion to apply")
	}

	ts, err := st.GetTierState(ctx, "u1", models.ActionSendEmail)
	if err != nil {
		t.Fatalf("GetTierState: %v", err)
	}
	if ts.CurrentTier != models.TierManualApproval {
		t.Errorf("tier = %q, want manual_approval", ts.CurrentTier)
	}
	if ts.ExtraRequiredSignals != 25 {
		t.Errorf("extra_required_signals = %d, want 25", ts.ExtraRequiredSignals)
	}
	wantCooldown := testNow.AddDate(0, 0, 60)
	if ts.CooldownUntil == nil || !ts.CooldownUntil.Equal(wantCooldown) {
		t.Errorf("cooldown_until = %v, want %v", ts.CooldownUntil, wantCooldown)
	}

	events, err := st.ListAuditEvents(ctx, "org1", "u1", 0)
	if err != nil {
		t.Fatalf("ListAuditEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("audit events = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.EventType != models.EventAutonomyEmergency {
		t.Errorf("event_type = %q, want %q", ev.EventType, models.EventAutonomyEmergency)
	}
	if ev.FromTier != models.TierAutonomous || ev.ToTier != models.TierManualApproval {
		t.Errorf("tiers = %q -> %q", ev.FromTier, ev.ToTier)
	}
	if ev.TriggerReason == nil || *ev.TriggerReason == "" {
		t.Error("trigger_reason missing")
	}
}

func TestExecute_untriggeredVerdictIsNoop(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	x := testExecutor(t, st)
	seedTier(t, st, "u1", models.ActionSendEmail, models.TierAutonomous)

	if x.Execute(context.Background(), "u1", "org1", models.ActionSendEmail, models.TriggerResult{}) {
		t.Fatal("untriggered verdict executed a demotion")
	}
}

func TestExecute_missingTierStateIsNoop(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	x := testExecutor(t, st)

	if x.Execute(context.Background(), "u1", "org1", models.ActionSendEmail, emergencyVerdict()) {
		t.Fatal("Execute without tier state: expected no-op")
	}
	events, _ := st.ListAuditEvents(context.Background(), "org1", "u1", 0)
	if len(events) != 0 {
		t.Fatalf("no-op wrote %d audit events", len(events))
	}
}

func TestExecute_warnThenDemoteStacks(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	x := testExecutor(t, st)
	ctx := context.Background()
	seedTier(t, st, "u1", models.ActionDealStageChange, models.TierAutonomous)

	warn := models.TriggerResult{
		Triggered: true, Severity: models.SeverityWarn,
		TriggerName: models.TriggerRisingUndoRate, Reason: "undo rate 20.0% over the last 7 days (1 of 5 actions undone)",
	}
	if !x.Execute(ctx, "u1", "org1", models.ActionDealStageChange, warn) {
		t.Fatal("warn demotion did not apply")
	}

	// A later, harsher verdict on the already-demoted pair still lands:
	// penalty accrues and the cooldown is replaced with the longer one.
	demote := models.TriggerResult{
		Triggered: true, Severity: models.SeverityDemote,
		TriggerName: models.TriggerSustainedUndoRate, Reason: "undo rate 12.0% over the last 14 days (3 of 25 actions undone)",
	}
	if !x.Execute(ctx, "u1", "org1", models.ActionDealStageChange, demote) {
		t.Fatal("second demotion did not apply")
	}

	ts, err := st.GetTierState(ctx, "u1", models.ActionDealStageChange)
	if err != nil {
		t.Fatalf("GetTierState: %v", err)
	}
	if ts.ExtraRequiredSignals != 25 {
		t.Errorf("extra_required_signals = %d, want 10+15", ts.ExtraRequiredSignals)
	}
	wantCooldown := testNow.AddDate(0, 0, 30)
	if ts.CooldownUntil == nil || !ts.CooldownUntil.Equal(wantCooldown) {
		t.Errorf("cooldown_until = %v, want %v", ts.CooldownUntil, wantCooldown)
	}

	events, _ := st.ListAuditEvents(ctx, "org1", "u1", 0)
	if len(events) != 2 {
		t.Fatalf("audit events = %d, want 2", len(events))
	}
	if events[0].EventType != models.EventAutonomyDemoted || events[1].EventType != models.EventAutonomyWarning {
		t.Errorf("event types = %q, %q", events[0].EventType, events[1].EventType)
	}
}

func TestPolicyFor_unknownSeverityPanics(t *testing.T) {
	t.Parallel()
	defer func() {
		if recover() == nil {
			t.Fatal("PolicyFor on unknown severity did not panic")
		}
	}()
	PolicyFor("catastrophic")
}

func TestValidatePolicies(t *testing.T) {
	t.Parallel()
	if err := ValidatePolicies(); err != nil {
		t.Fatalf("ValidatePolicies: %v", err)
	}
}
