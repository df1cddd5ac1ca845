package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/salesloop/autopilot/internal/httpapi"
)

const sweepMaxConcurrent = 8

// runSweep periodically re-evaluates every pair in the autonomous tier and
// executes any triggered demotion. The POST /v1/evaluations path stays the
// primary trigger; the sweep is a backstop for reversals whose callers never
// asked for an evaluation.
func runSweep(ctx context.Context, opts StartOptions, app *httpapi.App) {
	interval := time.Duration(opts.IntervalSec * float64(time.Second))
	if opts.IntervalSec <= 0 {
		return
	}
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepOnce(ctx, app)
		}
	}
}

func sweepOnce(ctx context.Context, app *httpapi.App) {
	targets, err := app.Store.ListAutonomousPairs(ctx)
	if err != nil {
		slog.Error("sweep list autonomous pairs failed", "err", err)
		return
	}
	if len(targets) == 0 {
		return
	}

	sem := make(chan struct{}, sweepMaxConcurrent)
	var wg sync.WaitGroup
	for _, t := range targets {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return
		}
		wg.Add(1)
		go func(userID, orgID, actionType string) {
			defer wg.Done()
			defer func() { <-sem }()
			res := app.Evaluator.Evaluate(ctx, userID, orgID, actionType)
			if !res.Triggered {
				return
			}
			if app.Executor.Execute(ctx, userID, orgID, actionType, res) {
				slog.Info("sweep demotion executed",
					"user_id", userID, "action_type", actionType,
					"trigger", res.TriggerName, "severity", res.Severity)
			}
		}(t.UserID, t.OrgID, t.ActionType)
	}
	wg.Wait()
}
