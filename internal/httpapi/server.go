// Package httpapi exposes the engine to the upstream HITL workflows:
// signal recording, demotion evaluation, tier reads, and the audit timeline.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/salesloop/autopilot/internal/autonomy"
	"github.com/salesloop/autopilot/internal/notify"
	"github.com/salesloop/autopilot/internal/signals"
	"github.com/salesloop/autopilot/internal/store"
	"github.com/salesloop/autopilot/internal/store/postgres"
	"github.com/salesloop/autopilot/pkg/models"
)

// limitBody wraps r.Body with http.MaxBytesReader so handlers cannot read more than maxBytes.
func limitBody(w http.ResponseWriter, r *http.Request, maxBytes int64) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
}

// bodyLimitMiddleware limits request body size for POST, PUT, PATCH to prevent OOM.
func bodyLimitMiddleware(maxBytes int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			limitBody(w, r, maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// ServerOptions configures the HTTP server (home dir, listen addr, API key, DB, metrics).
type ServerOptions struct {
	Home           string
	Addr           string
	APIKey         string       // if set, require X-API-Key header or query api_key
	DBDriver       string       // "sqlite" (default) or "postgres"
	DBURL          string       // for postgres: connection string (or set DATABASE_URL env)
	MetricsHandler http.Handler // if set, used for /metrics (e.g. OTel Prometheus handler)
	UseOtelHTTP    bool         // if true, wrap handler with otelhttp for request metrics
	Logger         *slog.Logger
}

// App holds the HTTP server, SSE hub, store, and the engine components.
type App struct {
	Server     *http.Server
	Hub        *SSEHub
	Store      store.Store
	Recorder   *signals.Recorder
	Evaluator  *autonomy.Evaluator
	Executor   *autonomy.Executor
	Dispatcher *notify.Dispatcher
	Registry   *notify.Registry
}

// NewApp creates the HTTP app (server, hub, store, engine) and registers all routes.
func NewApp(opts ServerOptions) (*App, error) {
	if err := autonomy.ValidatePolicies(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var st store.Store
	var err error
	if opts.DBDriver == "postgres" {
		st, err = postgres.Open(opts.DBURL)
	} else {
		st, err = store.Open(opts.Home)
	}
	if err != nil {
		return nil, err
	}

	hub := NewSSEHub()
	reg := notify.NewRegistry()
	if u := os.Getenv("SLACK_WEBHOOK_URL"); u != "" {
		reg.Register(notify.SlackWebhook{WebhookURL: u})
	}
	reg.Register(notify.FuncNotifier{
		ChannelName: "in_app",
		Fn: func(ctx context.Context, n notify.Notification) error {
			hub.PublishJSON(map[string]any{"type": "demotion_notice", "notification": n})
			return nil
		},
	})
	dispatcher := notify.NewDispatcher(reg, logger)

	app := &App{
		Hub:        hub,
		Store:      st,
		Recorder:   signals.NewRecorder(st, logger),
		Evaluator:  autonomy.NewEvaluator(st, logger),
		Executor:   autonomy.NewExecutor(st, dispatcher, logger),
		Dispatcher: dispatcher,
		Registry:   reg,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": true})
	})

	if opts.MetricsHandler != nil {
		mux.Handle("/metrics", opts.MetricsHandler)
	} else {
		mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = fmt.Fprintf(w, "# TYPE autopilot_up gauge\nautopilot_up 1\n")
		})
	}

	mux.HandleFunc("/stream", hub.Handler())

	mux.HandleFunc("/v1/signals", app.handleSignals)
	mux.HandleFunc("/v1/evaluations", app.handleEvaluations)
	mux.HandleFunc("/v1/tiers/", app.handleTiers)
	mux.HandleFunc("/v1/audit", app.handleAudit)

	var handler http.Handler = mux
	handler = bodyLimitMiddleware(models.DefaultMaxRequestBodyBytes, handler)
	if opts.APIKey != "" {
		handler = apiKeyMiddleware(opts.APIKey, handler)
	}
	handler = requestLogMiddleware(handler)
	if opts.UseOtelHTTP {
		handler = otelhttp.NewHandler(handler, "autopilot")
	}
	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	srv.RegisterOnShutdown(func() {
		_ = st.Close()
	})
	app.Server = srv
	return app, nil
}

// Start launches the notification worker. Call once before serving.
func (a *App) Start(ctx context.Context) {
	a.Dispatcher.Start(ctx)
}

// handleSignals records one signal. This endpoint never reports a storage
// failure: recording trouble must not block the caller's workflow, so the
// response is 202 whenever the request itself is well-formed.
func (a *App) handleSignals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body models.Signal
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.UserID == "" || body.OrgID == "" || body.ActionType == "" || body.Signal == "" || body.AutonomyTierAtTime == "" {
		writeJSONError(w, http.StatusBadRequest, "user_id, org_id, action_type, signal, and autonomy_tier_at_time required")
		return
	}
	if !models.ValidSignal(body.Signal) {
		writeJSONError(w, http.StatusBadRequest, "unknown signal kind")
		return
	}
	a.Recorder.Record(r.Context(), signalFromAPI(body))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
}

// handleEvaluations runs the evaluate-then-conditionally-execute sequence the
// reversal workflow invokes right after recording a reversal signal.
func (a *App) handleEvaluations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body models.EvaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.UserID == "" || body.OrgID == "" || body.ActionType == "" {
		writeJSONError(w, http.StatusBadRequest, "user_id, org_id, and action_type required")
		return
	}
	res := a.Evaluator.Evaluate(r.Context(), body.UserID, body.OrgID, body.ActionType)
	executed := false
	if res.Triggered {
		executed = a.Executor.Execute(r.Context(), body.UserID, body.OrgID, body.ActionType, res)
	}
	writeJSON(w, models.EvaluationResponse{Result: res, Executed: executed})
}

// handleTiers serves GET /v1/tiers/{user_id}/{action_type}.
func (a *App) handleTiers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/tiers/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		writeJSONError(w, http.StatusNotFound, "not found")
		return
	}
	ts, err := a.Store.GetTierState(r.Context(), parts[0], parts[1])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "tier state not found")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, tierStateToAPI(*ts))
}

// handleAudit serves GET /v1/audit?org_id=&user_id=&limit=.
func (a *App) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	orgID := r.URL.Query().Get("org_id")
	userID := r.URL.Query().Get("user_id")
	if orgID == "" || userID == "" {
		writeJSONError(w, http.StatusBadRequest, "org_id and user_id required")
		return
	}
	limit := models.DefaultAuditListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		if _, err := fmt.Sscanf(s, "%d", &limit); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}
	events, err := a.Store.ListAuditEvents(r.Context(), orgID, userID, limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]models.AuditEvent, 0, len(events))
	for _, ev := range events {
		out = append(out, auditEventToAPI(ev))
	}
	writeJSON(w, out)
}

func signalFromAPI(s models.Signal) store.Signal {
	return store.Signal{
		ID:                   s.ID,
		UserID:               s.UserID,
		OrgID:                s.OrgID,
		ActionType:           s.ActionType,
		AgentName:            s.AgentName,
		Signal:               s.Signal,
		EditDistance:         s.EditDistance,
		EditFields:           s.EditFields,
		TimeToRespondMs:      s.TimeToRespondMs,
		ConfidenceAtProposal: s.ConfidenceAtProposal,
		DealID:               s.DealID,
		ContactID:            s.ContactID,
		MeetingID:            s.MeetingID,
		AutonomyTierAtTime:   s.AutonomyTierAtTime,
		IsBackfill:           s.IsBackfill,
		CreatedAt:            s.CreatedAt,
	}
}

func tierStateToAPI(ts store.TierState) models.TierState {
	return models.TierState{
		UserID:               ts.UserID,
		ActionType:           ts.ActionType,
		OrgID:                ts.OrgID,
		CurrentTier:          ts.CurrentTier,
		CooldownUntil:        ts.CooldownUntil,
		ExtraRequiredSignals: ts.ExtraRequiredSignals,
		PromotionEligible:    ts.PromotionEligible,
		UpdatedAt:            ts.UpdatedAt,
	}
}

func auditEventToAPI(ev store.AuditEvent) models.AuditEvent {
	return models.AuditEvent{
		OrgID:         ev.OrgID,
		UserID:        ev.UserID,
		ActionType:    ev.ActionType,
		EventType:     ev.EventType,
		FromTier:      ev.FromTier,
		ToTier:        ev.ToTier,
		TriggerReason: ev.TriggerReason,
		CooldownUntil: ev.CooldownUntil,
		CreatedAt:     ev.CreatedAt,
	}
}

// responseRecorder captures status code for logging and forwards Flusher if supported.
type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func apiKeyMiddleware(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/health" || path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("X-API-Key")
		if key == "" {
			key = r.URL.Query().Get("api_key")
		}
		if key != apiKey {
			writeJSONError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, req)
		slog.Info("request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// writeJSONError sends a JSON body {"error": "message"} with the given status code.
func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message})
}
