package chatwatch

import (
	"context"
	"errors"
	"sync"
)

// DefaultAlertQueue is the number of alerts buffered for delivery.
const DefaultAlertQueue = 32

// Notifier delivers alerts over one channel.
type Notifier interface {
	// Name labels the channel in logs and metrics.
	Name() string

	// RequestPermission asks whether alerts may be delivered. A refusal is
	// reported as ErrPermissionDenied.
	RequestPermission(ctx context.Context) error

	Notify(ctx context.Context, title, body string) error
}

// NotificationCenter queues alerts raised on the dispatch loop and delivers
// them from its own goroutine. Alerts go to the native notifier when one is
// configured and to the in-page fallback otherwise, or when native delivery
// fails. Permission is requested from the native notifier once, before the
// first delivery; if it is refused, alerts are dropped silently.
type NotificationCenter struct {
	native   Notifier
	fallback Notifier
	queue    chan Alert

	permission sync.Once
	allowed    bool
}

// NewNotificationCenter returns a center with a queue of size alerts. Either
// notifier may be nil.
func NewNotificationCenter(native, fallback Notifier, size int) *NotificationCenter {
	if size <= 0 {
		size = DefaultAlertQueue
	}
	return &NotificationCenter{
		native:   native,
		fallback: fallback,
		queue:    make(chan Alert, size),
	}
}

// Alert queues a for delivery. It never blocks; when the queue is full the
// alert is dropped.
func (c *NotificationCenter) Alert(a Alert) {
	select {
	case c.queue <- a:
	default:
		alertsDropped.WithLabelValues("queue_full").Inc()
		logger.Warn("alert_dropped", "reason", "queue_full", "title", a.Title)
	}
}

// Run delivers queued alerts until ctx is done.
func (c *NotificationCenter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a := <-c.queue:
			c.deliver(ctx, a)
		}
	}
}

func (c *NotificationCenter) deliver(ctx context.Context, a Alert) {
	if c.native != nil {
		c.permission.Do(func() {
			err := c.native.RequestPermission(ctx)
			c.allowed = err == nil
			if err != nil && !errors.Is(err, ErrPermissionDenied) {
				logger.Warn("notification_permission_failed", "notifier", c.native.Name(), "error", err)
			}
			logger.Info("notification_permission", "notifier", c.native.Name(), "granted", c.allowed)
		})
		if !c.allowed {
			alertsDropped.WithLabelValues("permission_denied").Inc()
			return
		}
		err := c.native.Notify(ctx, a.Title, a.Body)
		if err == nil {
			alertsDelivered.WithLabelValues(c.native.Name()).Inc()
			return
		}
		logger.Warn("native_notification_failed", "notifier", c.native.Name(), "error", err)
	}
	if c.fallback == nil {
		alertsDropped.WithLabelValues("no_channel").Inc()
		return
	}
	if err := c.fallback.Notify(ctx, a.Title, a.Body); err != nil {
		alertsDropped.WithLabelValues("delivery_failed").Inc()
		logger.Debug("fallback_notification_failed", "notifier", c.fallback.Name(), "error", err)
		return
	}
	alertsDelivered.WithLabelValues(c.fallback.Name()).Inc()
}
