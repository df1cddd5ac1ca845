package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/salesloop/autopilot/internal/store"
	"github.com/salesloop/autopilot/pkg/models"
)

func newTestApp(t *testing.T, opts ServerOptions) *App {
	t.Helper()
	if opts.Home == "" {
		opts.Home = filepath.Join(t.TempDir(), "home")
	}
	if opts.Addr == "" {
		opts.Addr = ":0"
	}
	app, err := NewApp(opts)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	t.Cleanup(func() { _ = app.Store.Close() })
	return app
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, ServerOptions{})
	rec := doJSON(t, app.Server.Handler, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("/health: status %d", rec.Code)
	}
	var out struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil || !out.OK {
		t.Fatalf("/health body: %s", rec.Body.String())
	}
}

func TestSignals_recordsAndAccepts(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, ServerOptions{})

	body := `{"user_id":"u1","org_id":"org1","action_type":"send-email","signal":"approved","time_to_respond_ms":900,"autonomy_tier_at_time":"manual_approval"}`
	rec := doJSON(t, app.Server.Handler, http.MethodPost, "/v1/signals", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST /v1/signals: status %d, body %s", rec.Code, rec.Body.String())
	}

	sigs, err := app.Store.ListSignalsSince(context.Background(), "u1", "org1", models.ActionSendEmail, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ListSignalsSince: %v", err)
	}
	if len(sigs) != 1 {
		t.Fatalf("got %d signals, want 1", len(sigs))
	}
	if !sigs[0].RubberStamp {
		t.Error("900ms email approval should be flagged rubber_stamp")
	}
}

func TestSignals_validation(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, ServerOptions{})
	h := app.Server.Handler

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"missing fields", `{"user_id":"u1"}`, http.StatusBadRequest},
		{"missing tier at time", `{"user_id":"u1","org_id":"o","action_type":"send-email","signal":"approved"}`, http.StatusBadRequest},
		{"unknown kind", `{"user_id":"u1","org_id":"o","action_type":"send-email","signal":"snoozed","autonomy_tier_at_time":"autonomous"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/v1/signals", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	if rec := doJSON(t, h, http.MethodGet, "/v1/signals", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /v1/signals: status %d", rec.Code)
	}
}

func TestSignals_acceptsDespiteStoreFailure(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, ServerOptions{})
	_ = app.Store.Close()

	body := `{"user_id":"u1","org_id":"org1","action_type":"send-email","signal":"reversed","autonomy_tier_at_time":"autonomous"}`
	rec := doJSON(t, app.Server.Handler, http.MethodPost, "/v1/signals", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("storage down must still 202: got %d", rec.Code)
	}
}

func TestEvaluations_flow(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, ServerOptions{})
	ctx := context.Background()

	if err := app.Store.PutTierState(ctx, store.TierState{
		UserID: "u1", ActionType: models.ActionSendEmail, OrgID: "org1",
		CurrentTier: models.TierAutonomous,
	}); err != nil {
		t.Fatalf("PutTierState: %v", err)
	}
	if _, err := app.Store.CreateSignal(ctx, store.Signal{
		UserID: "u1", OrgID: "org1", ActionType: models.ActionSendEmail,
		Signal: models.SignalAutoExecutedReversed, AutonomyTierAtTime: models.TierAutonomous,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("CreateSignal: %v", err)
	}

	body := `{"user_id":"u1","org_id":"org1","action_type":"send-email"}`
	rec := doJSON(t, app.Server.Handler, http.MethodPost, "/v1/evaluations", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /v1/evaluations: status %d, body %s", rec.Code, rec.Body.String())
	}
	var out models.EvaluationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Result.Triggered || out.Result.TriggerName != models.TriggerEmailUndoAny {
		t.Fatalf("result: %+v", out.Result)
	}
	if !out.Executed {
		t.Fatal("expected demotion to execute")
	}

	// The pair is no longer autonomous, so a second evaluation is a no-op.
	rec = doJSON(t, app.Server.Handler, http.MethodPost, "/v1/evaluations", body)
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode second: %v", err)
	}
	if out.Result.Triggered || out.Executed {
		t.Fatalf("second evaluation: %+v executed=%t", out.Result, out.Executed)
	}
}

func TestEvaluations_validation(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, ServerOptions{})
	if rec := doJSON(t, app.Server.Handler, http.MethodPost, "/v1/evaluations", `{"user_id":"u1"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing fields: status %d", rec.Code)
	}
}

func TestTiers_getAndNotFound(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, ServerOptions{})
	ctx := context.Background()

	if err := app.Store.PutTierState(ctx, store.TierState{
		UserID: "u1", ActionType: models.ActionDealStageChange, OrgID: "org1",
		CurrentTier: models.TierAutonomous, PromotionEligible: true,
	}); err != nil {
		t.Fatalf("PutTierState: %v", err)
	}

	rec := doJSON(t, app.Server.Handler, http.MethodGet, "/v1/tiers/u1/crm.deal_stage_change", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET tier: status %d, body %s", rec.Code, rec.Body.String())
	}
	var ts models.TierState
	if err := json.Unmarshal(rec.Body.Bytes(), &ts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ts.CurrentTier != models.TierAutonomous || !ts.PromotionEligible {
		t.Errorf("tier state: %+v", ts)
	}

	if rec := doJSON(t, app.Server.Handler, http.MethodGet, "/v1/tiers/nobody/send-email", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing pair: status %d", rec.Code)
	}
	if rec := doJSON(t, app.Server.Handler, http.MethodGet, "/v1/tiers/justuser", ""); rec.Code != http.StatusNotFound {
		t.Errorf("malformed path: status %d", rec.Code)
	}
}

func TestAudit_queryValidation(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, ServerOptions{})
	h := app.Server.Handler

	if rec := doJSON(t, h, http.MethodGet, "/v1/audit", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("missing query: status %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodGet, "/v1/audit?org_id=o&user_id=u&limit=abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status %d", rec.Code)
	}
	rec := doJSON(t, h, http.MethodGet, "/v1/audit?org_id=o&user_id=u", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("empty audit: status %d", rec.Code)
	}
	var out []models.AuditEvent
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected empty list, got %d", len(out))
	}
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, ServerOptions{APIKey: "sekret"})
	h := app.Server.Handler

	if rec := doJSON(t, h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("/health should not require a key: status %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodGet, "/v1/audit?org_id=o&user_id=u", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("no key: status %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/audit?org_id=o&user_id=u", nil)
	req.Header.Set("X-API-Key", "sekret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("with key: status %d", rec.Code)
	}

	if rec := doJSON(t, h, http.MethodGet, "/v1/audit?org_id=o&user_id=u&api_key=sekret", ""); rec.Code != http.StatusOK {
		t.Errorf("query key: status %d", rec.Code)
	}
}

func TestSSEHub_publishAndDrop(t *testing.T) {
	t.Parallel()
	hub := NewSSEHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	hub.PublishJSON(map[string]string{"type": "demotion_notice"})
	select {
	case b := <-ch:
		if !strings.Contains(string(b), "demotion_notice") {
			t.Errorf("payload: %s", b)
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}

	// A full subscriber is skipped, not blocked on.
	slow := hub.Subscribe()
	defer hub.Unsubscribe(slow)
	for i := 0; i < models.DefaultSSEChannelBuffer+10; i++ {
		hub.PublishJSON(map[string]int{"i": i})
	}
}

func TestDemotionPublishesInAppNotice(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, ServerOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app.Start(ctx)

	ch := app.Hub.Subscribe()
	defer app.Hub.Unsubscribe(ch)

	if err := app.Store.PutTierState(ctx, store.TierState{
		UserID: "u1", ActionType: models.ActionSendEmail, OrgID: "org1",
		CurrentTier: models.TierAutonomous,
	}); err != nil {
		t.Fatalf("PutTierState: %v", err)
	}
	if _, err := app.Store.CreateSignal(ctx, store.Signal{
		UserID: "u1", OrgID: "org1", ActionType: models.ActionSendEmail,
		Signal: models.SignalReversed, AutonomyTierAtTime: models.TierAutonomous,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("CreateSignal: %v", err)
	}

	body := `{"user_id":"u1","org_id":"org1","action_type":"send-email"}`
	rec := doJSON(t, app.Server.Handler, http.MethodPost, "/v1/evaluations", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /v1/evaluations: status %d", rec.Code)
	}

	select {
	case b := <-ch:
		if !strings.Contains(string(b), "demotion_notice") {
			t.Errorf("stream payload: %s", b)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("demotion did not reach the in-app stream")
	}
}
