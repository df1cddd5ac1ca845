// Package signals records human responses to automated actions and tags
// suspiciously fast approvals.
package signals

import (
	"context"
	"log/slog"
	"time"

	"github.com/salesloop/autopilot/internal/otel"
	"github.com/salesloop/autopilot/internal/store"
	"github.com/salesloop/autopilot/pkg/models"
)

// Recorder appends signals to the store. Recording never fails the caller:
// a reversal workflow must complete even when signal persistence is down, so
// storage errors are logged and swallowed. Losing a signal only degrades a
// future autonomy decision slightly.
type Recorder struct {
	Store  store.Store
	Logger *slog.Logger
	Now    func() time.Time // nil means time.Now
}

func NewRecorder(st store.Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{Store: st, Logger: logger}
}

func (r *Recorder) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

// Record classifies and persists one signal. All required fields are expected
// from the caller; rubber_stamp is computed here at write time and never
// recomputed.
func (r *Recorder) Record(ctx context.Context, sig store.Signal) {
	if !models.ValidSignal(sig.Signal) {
		r.Logger.Warn("dropping signal with unknown kind",
			"signal", sig.Signal, "user_id", sig.UserID, "action_type", sig.ActionType)
		return
	}
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = r.now()
	}
	sig.RubberStamp = IsRubberStamp(sig.ActionType, sig.Signal, sig.TimeToRespondMs)

	id, err := r.Store.CreateSignal(ctx, sig)
	if err != nil {
		r.Logger.Error("signal not recorded",
			"err", err, "user_id", sig.UserID, "org_id", sig.OrgID,
			"action_type", sig.ActionType, "signal", sig.Signal)
		return
	}
	otel.RecordSignal(ctx, sig.ActionType, sig.Signal)
	r.Logger.Debug("signal recorded",
		"id", id, "user_id", sig.UserID, "action_type", sig.ActionType,
		"signal", sig.Signal, "rubber_stamp", sig.RubberStamp)
}
