// Package notify delivers demotion notices to users. Delivery is always
// best-effort: the engine's state mutation is durable before any notification
// is attempted, and channel failures are logged, never propagated.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Notification is severity-tagged, action-type-tagged content for one user.
type Notification struct {
	UserID     string    `json:"user_id"`
	OrgID      string    `json:"org_id"`
	ActionType string    `json:"action_type"`
	Severity   string    `json:"severity"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// Notifier is a channel that can deliver a notification (e.g. Slack DM, in-app feed).
type Notifier interface {
	Name() string
	Notify(ctx context.Context, n Notification) error
}

// Registry holds loaded notifiers by name.
type Registry struct {
	mu   sync.RWMutex
	caps map[string]Notifier
}

func NewRegistry() *Registry {
	return &Registry{caps: make(map[string]Notifier)}
}

func (r *Registry) Register(n Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caps[n.Name()] = n
}

func (r *Registry) Get(name string) Notifier {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.caps[name]
}

// All returns the registered notifiers in no particular order.
func (r *Registry) All() []Notifier {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Notifier, 0, len(r.caps))
	for _, n := range r.caps {
		out = append(out, n)
	}
	return out
}

// SlackWebhook delivers notifications via a Slack incoming webhook URL.
type SlackWebhook struct {
	WebhookURL string
	Channel    string // optional override
	Username   string // optional
}

func (s SlackWebhook) Name() string { return "slack" }

func (s SlackWebhook) Notify(ctx context.Context, n Notification) error {
	if s.WebhookURL == "" {
		return fmt.Errorf("slack webhook URL not set")
	}
	payload := map[string]any{"text": fmt.Sprintf("*%s*\n%s", n.Title, n.Body)}
	if s.Channel != "" {
		payload["channel"] = s.Channel
	}
	if s.Username != "" {
		payload["username"] = s.Username
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned %d", resp.StatusCode)
	}
	return nil
}

// FuncNotifier adapts a function to the Notifier interface (used for the
// in-app feed and in tests).
type FuncNotifier struct {
	ChannelName string
	Fn          func(ctx context.Context, n Notification) error
}

func (f FuncNotifier) Name() string { return f.ChannelName }

func (f FuncNotifier) Notify(ctx context.Context, n Notification) error {
	if f.Fn == nil {
		return nil
	}
	return f.Fn(ctx, n)
}
