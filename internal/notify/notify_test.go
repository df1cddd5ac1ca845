package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/salesloop/autopilot/pkg/models"
)

func TestRegistry_registerAndGet(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	reg.Register(FuncNotifier{ChannelName: "in_app"})
	reg.Register(FuncNotifier{ChannelName: "slack"})

	if got := reg.Get("in_app"); got == nil || got.Name() != "in_app" {
		t.Errorf("Get(in_app): got %v", got)
	}
	if got := reg.Get("missing"); got != nil {
		t.Errorf("Get(missing): got %v", got)
	}
	if n := len(reg.All()); n != 2 {
		t.Errorf("All: got %d notifiers, want 2", n)
	}
}

func TestSlackWebhook_postsPayload(t *testing.T) {
	t.Parallel()
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := SlackWebhook{WebhookURL: srv.URL, Username: "autopilot"}
	err := s.Notify(context.Background(), Notification{
		Title: "Autopilot paused for sending emails",
		Body:  "details",
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	text, _ := got["text"].(string)
	if !strings.Contains(text, "Autopilot paused for sending emails") {
		t.Errorf("payload text: got %q", text)
	}
	if got["username"] != "autopilot" {
		t.Errorf("payload username: got %v", got["username"])
	}
}

func TestSlackWebhook_non2xxIsError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := SlackWebhook{WebhookURL: srv.URL}
	if err := s.Notify(context.Background(), Notification{Title: "t"}); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestActionDisplayName(t *testing.T) {
	t.Parallel()
	if got := ActionDisplayName(models.ActionSendEmail); got != "sending emails" {
		t.Errorf("known slug: got %q", got)
	}
	if got := ActionDisplayName("crm.merge_duplicate-accounts"); got != "crm merge duplicate accounts" {
		t.Errorf("humanized slug: got %q", got)
	}
}

func TestBuildDemotionNotice_perSeverity(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	cooldown := now.AddDate(0, 0, 30)

	warn := BuildDemotionNotice("u1", "org1", models.TriggerResult{
		Triggered: true, Severity: models.SeverityWarn,
		TriggerName: models.TriggerRisingUndoRate,
		WindowDays:  7, UndoCount: 2, UndoRate: 0.25,
	}, models.ActionDealStageChange, now.AddDate(0, 0, 14), now)
	if !strings.Contains(warn.Body, "revert now") || !strings.Contains(warn.Body, "keep autonomous") {
		t.Errorf("warn body must offer both choices; got:\n%s", warn.Body)
	}
	if !strings.Contains(warn.Body, "deal stage changes") {
		t.Errorf("warn body missing action name; got:\n%s", warn.Body)
	}

	demote := BuildDemotionNotice("u1", "org1", models.TriggerResult{
		Triggered: true, Severity: models.SeverityDemote,
		TriggerName: models.TriggerSustainedUndoRate,
		WindowDays:  14, UndoCount: 3, UndoRate: 0.12,
	}, models.ActionDealStageChange, cooldown, now)
	if !strings.Contains(demote.Body, "12%") {
		t.Errorf("demote body missing undo rate; got:\n%s", demote.Body)
	}
	if !strings.Contains(demote.Body, cooldown.Format("Jan 2")) {
		t.Errorf("demote body missing cooldown date; got:\n%s", demote.Body)
	}
	if strings.Contains(demote.Body, "revert now") {
		t.Error("demote body must not solicit a decision")
	}

	emergency := BuildDemotionNotice("u1", "org1", models.TriggerResult{
		Triggered: true, Severity: models.SeverityEmergency,
		TriggerName: models.TriggerEmailUndoAny,
		WindowDays:  7, UndoCount: 1, UndoRate: 0.03,
	}, models.ActionSendEmail, now.AddDate(0, 0, 60), now)
	if !strings.Contains(emergency.Body, "high-stakes") {
		t.Errorf("emergency body missing high-stakes framing; got:\n%s", emergency.Body)
	}
	if strings.Contains(emergency.Body, "%") {
		t.Errorf("emergency body must not cite a rate; got:\n%s", emergency.Body)
	}
}

func TestDispatcher_deliversToAllChannels(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	got := make(chan string, 4)
	reg.Register(FuncNotifier{ChannelName: "a", Fn: func(ctx context.Context, n Notification) error {
		got <- "a:" + n.UserID
		return nil
	}})
	reg.Register(FuncNotifier{ChannelName: "b", Fn: func(ctx context.Context, n Notification) error {
		got <- "b:" + n.UserID
		return nil
	}})

	d := NewDispatcher(reg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	if !d.Dispatch(Notification{UserID: "u1"}) {
		t.Fatal("Dispatch returned false on empty queue")
	}

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case s := <-got:
			seen[s] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for deliveries")
		}
	}
	if !seen["a:u1"] || !seen["b:u1"] {
		t.Errorf("deliveries: %v", seen)
	}

	cancel()
	d.Wait()
}

func TestDispatcher_failedChannelDoesNotBlockOthers(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	got := make(chan string, 2)
	reg.Register(FuncNotifier{ChannelName: "broken", Fn: func(ctx context.Context, n Notification) error {
		return context.DeadlineExceeded
	}})
	reg.Register(FuncNotifier{ChannelName: "ok", Fn: func(ctx context.Context, n Notification) error {
		got <- n.UserID
		return nil
	}})

	d := NewDispatcher(reg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	d.Dispatch(Notification{UserID: "u1"})
	select {
	case u := <-got:
		if u != "u1" {
			t.Errorf("delivered user: %q", u)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("healthy channel never delivered")
	}
}

func TestDispatcher_fullQueueDrops(t *testing.T) {
	t.Parallel()
	// Never started, so the queue only fills.
	d := NewDispatcher(NewRegistry(), nil)
	for i := 0; i < models.DefaultNotifyQueueSize; i++ {
		if !d.Dispatch(Notification{UserID: "u"}) {
			t.Fatalf("queue filled early at %d", i)
		}
	}
	if d.Dispatch(Notification{UserID: "overflow"}) {
		t.Fatal("expected drop on full queue")
	}
}
