package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/salesloop/autopilot/internal/otel"
	"github.com/salesloop/autopilot/pkg/models"
)

// deliverTimeout bounds one delivery attempt so a slow channel cannot hold a
// worker (the demotion it announces is already durable).
const deliverTimeout = 5 * time.Second

// Dispatcher decouples notification delivery from the demotion transaction.
// Dispatch enqueues and returns immediately; a background worker fans each
// notification out to every registered notifier with its own short timeout.
// A full queue drops the notification rather than blocking the caller.
type Dispatcher struct {
	Registry *Registry
	Logger   *slog.Logger

	queue chan Notification
	once  sync.Once
	wg    sync.WaitGroup
}

func NewDispatcher(reg *Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		Registry: reg,
		Logger:   logger,
		queue:    make(chan Notification, models.DefaultNotifyQueueSize),
	}
}

// Start launches the delivery worker. It runs until ctx is cancelled, then
// drains whatever is already queued.
func (d *Dispatcher) Start(ctx context.Context) {
	d.once.Do(func() {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					d.drain()
					return
				case n, ok := <-d.queue:
					if !ok {
						return
					}
					d.deliver(n)
				}
			}
		}()
	})
}

// Dispatch enqueues a notification without blocking. Returns false if the
// queue is full and the notification was dropped.
func (d *Dispatcher) Dispatch(n Notification) bool {
	select {
	case d.queue <- n:
		return true
	default:
		d.Logger.Warn("notification queue full, dropping",
			"user_id", n.UserID, "action_type", n.ActionType, "severity", n.Severity)
		otel.RecordNotification(context.Background(), "queue", "dropped")
		return false
	}
}

// Wait blocks until the worker has exited (after ctx cancellation).
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) drain() {
	for {
		select {
		case n := <-d.queue:
			d.deliver(n)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(n Notification) {
	if d.Registry == nil {
		return
	}
	for _, notifier := range d.Registry.All() {
		ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
		err := notifier.Notify(ctx, n)
		cancel()
		if err != nil {
			d.Logger.Warn("notification delivery failed",
				"channel", notifier.Name(), "user_id", n.UserID, "err", err)
			otel.RecordNotification(context.Background(), notifier.Name(), "error")
			continue
		}
		otel.RecordNotification(context.Background(), notifier.Name(), "ok")
	}
}
