package daemon

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/salesloop/autopilot/internal/httpapi"
	"github.com/salesloop/autopilot/internal/store"
	"github.com/salesloop/autopilot/pkg/models"
)

func TestStartForeground_emptyHome(t *testing.T) {
	ctx := context.Background()
	err := StartForeground(ctx, StartOptions{Home: ""})
	if err == nil {
		t.Fatal("StartForeground empty home: expected error")
	}
}

func TestStatus_notRunning(t *testing.T) {
	t.Parallel()
	st, err := Status(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Running {
		t.Error("Status on fresh home: reported running")
	}
}

func testApp(t *testing.T) (*httpapi.App, context.Context) {
	t.Helper()
	home := filepath.Join(t.TempDir(), "home")
	app, err := httpapi.NewApp(httpapi.ServerOptions{Home: home, Addr: ":0"})
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	t.Cleanup(func() { _ = app.Store.Close() })
	return app, context.Background()
}

func TestSweepOnce_demotesTriggeredPair(t *testing.T) {
	app, ctx := testApp(t)

	if err := app.Store.PutTierState(ctx, store.TierState{
		UserID:      "u1",
		ActionType:  models.ActionDealStageChange,
		OrgID:       "org1",
		CurrentTier: models.TierAutonomous,
	}); err != nil {
		t.Fatalf("PutTierState: %v", err)
	}
	// Three reversals inside three days: the spike trigger fires.
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		_, err := app.Store.CreateSignal(ctx, store.Signal{
			UserID:             "u1",
			OrgID:              "org1",
			ActionType:         models.ActionDealStageChange,
			Signal:             models.SignalAutoExecutedReversed,
			AutonomyTierAtTime: models.TierAutonomous,
			CreatedAt:          now.Add(-time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("CreateSignal: %v", err)
		}
	}

	sweepOnce(ctx, app)

	ts, err := app.Store.GetTierState(ctx, "u1", models.ActionDealStageChange)
	if err != nil {
		t.Fatalf("GetTierState: %v", err)
	}
	if ts.CurrentTier != models.TierManualApproval {
		t.Errorf("after sweep: tier = %q, want %q", ts.CurrentTier, models.TierManualApproval)
	}
}

func TestSweepOnce_leavesQuietPairAlone(t *testing.T) {
	app, ctx := testApp(t)

	if err := app.Store.PutTierState(ctx, store.TierState{
		UserID:      "u2",
		ActionType:  models.ActionCreateContact,
		OrgID:       "org1",
		CurrentTier: models.TierAutonomous,
	}); err != nil {
		t.Fatalf("PutTierState: %v", err)
	}

	sweepOnce(ctx, app)

	ts, err := app.Store.GetTierState(ctx, "u2", models.ActionCreateContact)
	if err != nil {
		t.Fatalf("GetTierState: %v", err)
	}
	if ts.CurrentTier != models.TierAutonomous {
		t.Errorf("after sweep: tier = %q, want %q", ts.CurrentTier, models.TierAutonomous)
	}
}

func TestChildEnv_forwardsAPIKey(t *testing.T) {
	t.Parallel()
	base := []string{"HOME=/tmp", "PATH=/bin"}

	if got := childEnv(base, ""); len(got) != len(base) {
		t.Fatalf("no key: env grew to %v", got)
	}

	got := childEnv(base, "secret123")
	want := "AUTOPILOT_API_KEY=secret123"
	if got[len(got)-1] != want {
		t.Fatalf("env = %v, want last entry %q", got, want)
	}
	if len(base) != 2 || base[1] != "PATH=/bin" {
		t.Errorf("base mutated: %v", base)
	}
}
