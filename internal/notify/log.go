package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogDispatcher writes lifecycle events to the structured log. Useful on its
// own in development and as the fallback when no transport is configured.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher creates a log-backed dispatcher
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

// Dispatch implements Dispatcher
func (d *LogDispatcher) Dispatch(_ context.Context, ev Event) error {
	d.logger.Info("alert transition",
		zap.String("event_id", ev.ID),
		zap.String("slo_id", ev.SLOID),
		zap.String("tenant_id", ev.TenantID),
		zap.String("transition", string(ev.Transition)),
		zap.Float64("fast_burn_rate", ev.FastBurnRate),
		zap.Float64("slow_burn_rate", ev.SlowBurnRate),
		zap.Float64("budget_remaining_pct", ev.BudgetRemainingPct),
	)
	return nil
}
