package signals

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/salesloop/autopilot/internal/store"
	"github.com/salesloop/autopilot/pkg/models"
)

func openTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "home"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestRecord_persistsWithRubberStamp(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	rec := NewRecorder(st, nil)
	ctx := context.Background()

	ttr := int64(800)
	rec.Record(ctx, store.Signal{
		UserID:             "u1",
		OrgID:              "org1",
		ActionType:         models.ActionSendEmail,
		Signal:             models.SignalApproved,
		TimeToRespondMs:    &ttr,
		AutonomyTierAtTime: models.TierManualApproval,
	})

	got, err := st.ListSignalsSince(ctx, "u1", "org1", models.ActionSendEmail, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ListSignalsSince: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d signals, want 1", len(got))
	}
	if !got[0].RubberStamp {
		t.Error("800ms email approval should be flagged rubber_stamp")
	}
	if got[0].CreatedAt.IsZero() {
		t.Error("created_at should be defaulted")
	}
}

func TestRecord_dropsUnknownKind(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	rec := NewRecorder(st, nil)
	ctx := context.Background()

	rec.Record(ctx, store.Signal{
		UserID:             "u1",
		OrgID:              "org1",
		ActionType:         models.ActionSendEmail,
		Signal:             "snoozed",
		AutonomyTierAtTime: models.TierManualApproval,
	})

	got, err := st.ListSignalsSince(ctx, "u1", "org1", models.ActionSendEmail, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ListSignalsSince: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("unknown kind persisted: %+v", got)
	}
}

func TestRecord_swallowsStoreErrors(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	rec := NewRecorder(st, nil)
	_ = st.Close()

	// Recording against a closed store must not panic or surface the error;
	// the reversal workflow on the caller's side has already happened.
	rec.Record(context.Background(), store.Signal{
		UserID:             "u1",
		OrgID:              "org1",
		ActionType:         models.ActionSendEmail,
		Signal:             models.SignalReversed,
		AutonomyTierAtTime: models.TierAutonomous,
	})
}
