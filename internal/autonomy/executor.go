package autonomy

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/salesloop/autopilot/internal/notify"
	"github.com/salesloop/autopilot/internal/otel"
	"github.com/salesloop/autopilot/internal/store"
	"github.com/salesloop/autopilot/pkg/models"
)

// Executor applies a triggered verdict: conditional tier mutation, penalty
// accrual, audit event, and a detached user notification. Every step is
// independently failure-tolerant; nothing here propagates to the reversal
// workflow that invoked it.
type Executor struct {
	Store      store.Store
	Dispatcher *notify.Dispatcher // optional; nil skips notification
	Logger     *slog.Logger
	Now        func() time.Time // nil means time.Now
}

func NewExecutor(st store.Store, d *notify.Dispatcher, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{Store: st, Dispatcher: d, Logger: logger}
}

func (x *Executor) now() time.Time {
	if x.Now != nil {
		return x.Now()
	}
	return time.Now().UTC()
}

// Execute demotes the pair to approval-required per the verdict's severity.
// Returns true when this call performed the mutation; false when there was
// nothing to demote or another execution won the race. The cooldown is
// overwritten (not summed) while the penalty accrues additively inside the
// conditional update, so a concurrent loser cannot double-apply either.
func (x *Executor) Execute(ctx context.Context, userID, orgID, actionType string, res models.TriggerResult) bool {
	if !res.Triggered {
		return false
	}
	policy := PolicyFor(res.Severity)

	prior, err := x.Store.GetTierState(ctx, userID, actionType)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			x.Logger.Warn("no tier state to demote",
				"user_id", userID, "action_type", actionType)
		} else {
			x.Logger.Error("tier state read failed, demotion skipped",
				"err", err, "user_id", userID, "action_type", actionType)
		}
		return false
	}

	now := x.now()
	cooldownUntil := now.AddDate(0, 0, policy.CooldownDays)

	updated, err := x.Store.DemoteTier(ctx, store.DemoteParams{
		UserID:        userID,
		ActionType:    actionType,
		FromTier:      prior.CurrentTier,
		ToTier:        models.TierManualApproval,
		CooldownUntil: cooldownUntil,
		Penalty:       policy.Penalty,
		Now:           now,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrTierConflict):
			x.Logger.Info("pair already demoted by a concurrent execution",
				"user_id", userID, "action_type", actionType)
		case errors.Is(err, store.ErrNotFound):
			x.Logger.Warn("tier state disappeared before demotion",
				"user_id", userID, "action_type", actionType)
		default:
			x.Logger.Error("demotion write failed",
				"err", err, "user_id", userID, "action_type", actionType)
		}
		return false
	}

	reason := res.Reason
	if err := x.Store.CreateAuditEvent(ctx, store.AuditEvent{
		OrgID:         orgID,
		UserID:        userID,
		ActionType:    actionType,
		EventType:     policy.EventType,
		FromTier:      prior.CurrentTier,
		ToTier:        models.TierManualApproval,
		TriggerReason: &reason,
		CooldownUntil: updated.CooldownUntil,
		CreatedAt:     now,
	}); err != nil {
		// The mutation is already durable; a missing audit row is logged,
		// not unwound.
		x.Logger.Error("demotion audit write failed",
			"err", err, "user_id", userID, "action_type", actionType)
	}

	otel.RecordDemotion(ctx, actionType, res.Severity)
	x.Logger.Info("autonomy demoted",
		"user_id", userID, "org_id", orgID, "action_type", actionType,
		"severity", res.Severity, "trigger", res.TriggerName,
		"cooldown_until", cooldownUntil, "extra_required_signals", updated.ExtraRequiredSignals)

	if x.Dispatcher != nil {
		x.Dispatcher.Dispatch(notify.BuildDemotionNotice(userID, orgID, res, actionType, cooldownUntil, now))
	}
	return true
}
