package notify

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"signal-risk-bot/internal/metrics"
)

// Dispatcher delivers alerts on a background goroutine so callers never
// wait on the notification channel. When the queue is full the alert is
// dropped.
type Dispatcher struct {
	notifier Notifier
	queue    chan Alert
	logger   *zap.Logger

	entries  atomic.Bool
	outcomes atomic.Bool

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher with a queue of size alerts. Both
// broadcast flags start enabled.
func NewDispatcher(notifier Notifier, size int, logger *zap.Logger) *Dispatcher {
	if size <= 0 {
		size = 100
	}
	d := &Dispatcher{
		notifier: notifier,
		queue:    make(chan Alert, size),
		logger:   logger.Named("dispatcher"),
	}
	d.entries.Store(true)
	d.outcomes.Store(true)
	return d
}

// SetBroadcast enables or disables entry and outcome alerts.
func (d *Dispatcher) SetBroadcast(entries, outcomes bool) {
	d.entries.Store(entries)
	d.outcomes.Store(outcomes)
}

// Dispatch queues alert unless its kind is muted.
func (d *Dispatcher) Dispatch(alert Alert) {
	if d.muted(alert.Kind) {
		return
	}

	select {
	case d.queue <- alert:
	default:
		metrics.Notifications.WithLabelValues(string(alert.Kind), "dropped").Inc()
		d.logger.Warn("Notification queue full, dropping alert",
			zap.String("kind", string(alert.Kind)),
			zap.String("signal_id", alert.Signal.ID),
		)
	}
}

func (d *Dispatcher) muted(k Kind) bool {
	if k.IsOutcome() {
		return !d.outcomes.Load()
	}
	return !d.entries.Load()
}

// Start runs the delivery loop until ctx is done. Queued alerts are
// delivered before it returns.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case alert := <-d.queue:
				d.deliver(ctx, alert)
			case <-ctx.Done():
				d.drain()
				return
			}
		}
	}()
}

// Wait blocks until the delivery loop has exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) drain() {
	for {
		select {
		case alert := <-d.queue:
			d.deliver(context.Background(), alert)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, alert Alert) {
	if err := d.notifier.Notify(ctx, alert); err != nil {
		metrics.Notifications.WithLabelValues(string(alert.Kind), "failed").Inc()
		d.logger.Error("Failed to deliver alert",
			zap.String("kind", string(alert.Kind)),
			zap.String("signal_id", alert.Signal.ID),
			zap.Error(err),
		)
		return
	}
	metrics.Notifications.WithLabelValues(string(alert.Kind), "sent").Inc()
}
