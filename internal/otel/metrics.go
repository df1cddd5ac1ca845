package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

var (
	initMetricsOnce      sync.Once
	signalsCounter       metric.Int64Counter
	evaluationsCounter   metric.Int64Counter
	evaluationDuration   metric.Float64Histogram
	demotionsCounter     metric.Int64Counter
	notificationsCounter metric.Int64Counter
	streamEventsCounter  metric.Int64Counter
	streamConnsGauge     metric.Int64ObservableGauge
	streamConns          int64
	streamConnsMu        sync.Mutex
)

// InitMetrics creates the meter instruments. Safe to call multiple times; only runs once.
// Call after InitMeterProvider.
func InitMetrics(ctx context.Context) error {
	var err error
	initMetricsOnce.Do(func() {
		m := Meter()
		signalsCounter, err = m.Int64Counter("autopilot_signals_recorded_total", metric.WithDescription("Total signals recorded, by action type and signal kind"))
		if err != nil {
			return
		}
		evaluationsCounter, err = m.Int64Counter("autopilot_evaluations_total", metric.WithDescription("Total demotion-trigger evaluations, by result"))
		if err != nil {
			return
		}
		evaluationDuration, err = m.Float64Histogram("autopilot_evaluation_duration_seconds", metric.WithDescription("Demotion-trigger evaluation duration in seconds"))
		if err != nil {
			return
		}
		demotionsCounter, err = m.Int64Counter("autopilot_demotions_total", metric.WithDescription("Total demotions executed, by severity"))
		if err != nil {
			return
		}
		notificationsCounter, err = m.Int64Counter("autopilot_notifications_total", metric.WithDescription("Total notification dispatch attempts, by channel and status"))
		if err != nil {
			return
		}
		streamEventsCounter, err = m.Int64Counter("autopilot_stream_events_total", metric.WithDescription("Total events published to the in-app stream"))
		if err != nil {
			return
		}
		streamConnsGauge, err = m.Int64ObservableGauge("autopilot_stream_connections", metric.WithDescription("Current in-app stream subscriber count"))
		if err != nil {
			return
		}
		_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
			streamConnsMu.Lock()
			n := streamConns
			streamConnsMu.Unlock()
			o.ObserveInt64(streamConnsGauge, n)
			return nil
		}, streamConnsGauge)
		if err != nil {
			return
		}
	})
	return err
}

// RecordSignal records one persisted signal.
func RecordSignal(ctx context.Context, actionType, signal string) {
	if signalsCounter == nil {
		return
	}
	signalsCounter.Add(ctx, 1, metric.WithAttributes(
		AttrActionType.String(actionType),
		AttrSignal.String(signal),
	))
}

// RecordEvaluation records one trigger evaluation and its duration.
// result is the trigger name, or "not_triggered" / "error".
func RecordEvaluation(ctx context.Context, actionType, result string, duration time.Duration) {
	if evaluationsCounter != nil {
		evaluationsCounter.Add(ctx, 1, metric.WithAttributes(AttrActionType.String(actionType), AttrResult.String(result)))
	}
	if evaluationDuration != nil {
		evaluationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(AttrActionType.String(actionType)))
	}
}

// RecordDemotion records one executed demotion.
func RecordDemotion(ctx context.Context, actionType, severity string) {
	if demotionsCounter == nil {
		return
	}
	demotionsCounter.Add(ctx, 1, metric.WithAttributes(
		AttrActionType.String(actionType),
		AttrSeverity.String(severity),
	))
}

// RecordNotification records one notification dispatch attempt.
func RecordNotification(ctx context.Context, channel, status string) {
	if notificationsCounter == nil {
		return
	}
	notificationsCounter.Add(ctx, 1, metric.WithAttributes(
		AttrChannel.String(channel),
		AttrStatus.String(status),
	))
}

// RecordStreamEvent records one event published to the in-app stream.
func RecordStreamEvent(ctx context.Context) {
	if streamEventsCounter != nil {
		streamEventsCounter.Add(ctx, 1)
	}
}

// AddStreamConnection adds 1 to the stream connection gauge (call on subscribe).
func AddStreamConnection() {
	streamConnsMu.Lock()
	streamConns++
	streamConnsMu.Unlock()
}

// RemoveStreamConnection subtracts 1 from the stream connection gauge (call on unsubscribe).
func RemoveStreamConnection() {
	streamConnsMu.Lock()
	streamConns--
	if streamConns < 0 {
		streamConns = 0
	}
	streamConnsMu.Unlock()
}
