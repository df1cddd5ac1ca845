package autonomy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/salesloop/autopilot/internal/otel"
	"github.com/salesloop/autopilot/internal/store"
	"github.com/salesloop/autopilot/pkg/models"
)

// Trigger thresholds. Rates compare with strict >, counts with >=.
const (
	signalWindowDays = 14

	emailUndoWindowDays = 7
	emailUndoMin        = 1

	spikeWindowDays = 3
	spikeUndoMin    = 3

	sustainedWindowDays = 14
	sustainedRateOver   = 0.08
	sustainedMinTotal   = 10

	risingWindowDays = 7
	risingRateOver   = 0.10
	risingMinTotal   = 5
)

// Evaluator is a stateless decision function over the trailing 14 days of
// signals plus the pair's current tier. All store failures
// degrade to "not triggered": a missed demotion is re-attempted on the next
// reversal, while an error surfaced here would break the reversal flow.
type Evaluator struct {
	Store  store.Store
	Logger *slog.Logger
	Now    func() time.Time // nil means time.Now
}

func NewEvaluator(st store.Store, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{Store: st, Logger: logger}
}

func (e *Evaluator) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

// windowStats are the aggregates the decision ladder consumes, derived in
// memory from one 14-day read.
type windowStats struct {
	undos3d, undos7d, undos14d int
	total7d, total14d          int
	undoRate7d, undoRate14d    float64
}

func computeStats(sigs []store.Signal, now time.Time) windowStats {
	cut3 := now.AddDate(0, 0, -spikeWindowDays)
	cut7 := now.AddDate(0, 0, -risingWindowDays)

	var st windowStats
	for _, s := range sigs {
		// Events at exactly the cutoff instant count as inside the window.
		in7 := !s.CreatedAt.Before(cut7)
		st.total14d++
		if in7 {
			st.total7d++
		}
		if models.IsReversal(s.Signal) {
			st.undos14d++
			if in7 {
				st.undos7d++
			}
			if !s.CreatedAt.Before(cut3) {
				st.undos3d++
			}
		}
	}
	if st.total7d > 0 {
		st.undoRate7d = float64(st.undos7d) / float64(st.total7d)
	}
	if st.total14d > 0 {
		st.undoRate14d = float64(st.undos14d) / float64(st.total14d)
	}
	return st
}

// Evaluate reads the pair's tier and trailing signals and runs the decision
// ladder, highest severity first; the first matching rule wins. Pairs that
// are not autonomous are never at risk and short-circuit immediately.
func (e *Evaluator) Evaluate(ctx context.Context, userID, orgID, actionType string) models.TriggerResult {
	started := e.now()
	res := e.evaluate(ctx, userID, orgID, actionType, started)
	result := "not_triggered"
	if res.Triggered {
		result = res.TriggerName
	}
	otel.RecordEvaluation(ctx, actionType, result, time.Since(started))
	return res
}

func (e *Evaluator) evaluate(ctx context.Context, userID, orgID, actionType string, now time.Time) models.TriggerResult {
	ts, err := e.Store.GetTierState(ctx, userID, actionType)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			e.Logger.Error("tier state read failed, skipping evaluation",
				"err", err, "user_id", userID, "action_type", actionType)
		}
		return models.TriggerResult{}
	}
	if ts.CurrentTier != models.TierAutonomous {
		return models.TriggerResult{}
	}

	since := now.AddDate(0, 0, -signalWindowDays)
	sigs, err := e.Store.ListSignalsSince(ctx, userID, orgID, actionType, since)
	if err != nil {
		e.Logger.Error("signal window read failed, skipping evaluation",
			"err", err, "user_id", userID, "action_type", actionType)
		return models.TriggerResult{}
	}
	st := computeStats(sigs, now)

	// An undone sent email cannot be recalled; one reversal in a week is
	// disqualifying for that action type alone.
	if actionType == models.ActionSendEmail && st.undos7d >= emailUndoMin {
		return models.TriggerResult{
			Triggered:   true,
			Severity:    models.SeverityEmergency,
			TriggerName: models.TriggerEmailUndoAny,
			Reason:      fmt.Sprintf("%d undo(s) of sent emails in the last %d days; a sent email cannot be recalled", st.undos7d, emailUndoWindowDays),
			WindowDays:  emailUndoWindowDays,
			UndoCount:   st.undos7d,
			UndoRate:    st.undoRate7d,
		}
	}

	// A burst of reversals in 72 hours means visible mistakes right now.
	if st.undos3d >= spikeUndoMin {
		return models.TriggerResult{
			Triggered:   true,
			Severity:    models.SeverityEmergency,
			TriggerName: models.TriggerUndoSpike,
			Reason:      fmt.Sprintf("%d undos in the last %d days", st.undos3d, spikeWindowDays),
			WindowDays:  spikeWindowDays,
			UndoCount:   st.undos3d,
		}
	}

	// The minimum sample size guards against overreacting to 1-of-9 noise.
	if st.undoRate14d > sustainedRateOver && st.total14d >= sustainedMinTotal {
		return models.TriggerResult{
			Triggered:   true,
			Severity:    models.SeverityDemote,
			TriggerName: models.TriggerSustainedUndoRate,
			Reason:      fmt.Sprintf("undo rate %.1f%% over the last %d days (%d of %d actions undone)", st.undoRate14d*100, sustainedWindowDays, st.undos14d, st.total14d),
			WindowDays:  sustainedWindowDays,
			UndoCount:   st.undos14d,
			UndoRate:    st.undoRate14d,
		}
	}

	if st.undoRate7d > risingRateOver && st.total7d >= risingMinTotal {
		return models.TriggerResult{
			Triggered:   true,
			Severity:    models.SeverityWarn,
			TriggerName: models.TriggerRisingUndoRate,
			Reason:      fmt.Sprintf("undo rate %.1f%% over the last %d days (%d of %d actions undone)", st.undoRate7d*100, risingWindowDays, st.undos7d, st.total7d),
			WindowDays:  risingWindowDays,
			UndoCount:   st.undos7d,
			UndoRate:    st.undoRate7d,
		}
	}

	return models.TriggerResult{}
}
