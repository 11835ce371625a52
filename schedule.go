package chatwatch

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
)

// PinClearer is the part of the dispatcher the schedule drives.
type PinClearer interface {
	ClearPins(ctx context.Context) error
}

// RunPinSchedule clears every pin on each tick of the cron expression until
// ctx is done.
func RunPinSchedule(ctx context.Context, expr string, pins PinClearer) error {
	if !gronx.IsValid(expr) {
		return fmt.Errorf("invalid cron expression: %q", expr)
	}
	logger.Info("pin_schedule_started", "cron", expr)
	for {
		next, err := gronx.NextTickAfter(expr, time.Now(), false)
		if err != nil {
			logger.Error("pin_schedule_nexttick_failed", "cron", expr, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(30 * time.Second):
				continue
			}
		}
		select {
		case <-ctx.Done():
			logger.Info("pin_schedule_stopping")
			return ctx.Err()
		case <-time.After(time.Until(next)):
		}
		if err := pins.ClearPins(ctx); err != nil {
			logger.Warn("scheduled_pin_clear_failed", "error", err)
			continue
		}
		logger.Info("scheduled_pin_clear", "at", next.Format(time.RFC3339))
	}
}
