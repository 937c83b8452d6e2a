package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/pratik-mahalle/bibleplan/internal/domain/entitlement"
	"github.com/pratik-mahalle/bibleplan/internal/pkg/logger"
	"github.com/pratik-mahalle/bibleplan/internal/pkg/metrics"
	"github.com/robfig/cron/v3"
)

// UsageRollup periodically folds the previous day's credit events into
// usage_daily and publishes the totals as gauges. It never touches balances:
// resets and expiries happen lazily on the request path.
type UsageRollup struct {
	audit    entitlement.AuditLog
	schedule string
	now      func() time.Time
	logger   *logger.Logger

	scheduler *cron.Cron
}

// NewUsageRollup creates a new usage rollup worker. schedule is a standard
// five-field cron expression evaluated in UTC.
func NewUsageRollup(audit entitlement.AuditLog, schedule string, log *logger.Logger) *UsageRollup {
	return &UsageRollup{
		audit:    audit,
		schedule: schedule,
		now:      time.Now,
		logger:   log.With("worker", "usage_rollup"),
	}
}

// Start schedules the rollup and blocks until ctx is done. Yesterday is
// rolled up once immediately so a restart never leaves a gap.
func (w *UsageRollup) Start(ctx context.Context) error {
	w.scheduler = cron.New(cron.WithLocation(time.UTC))
	_, err := w.scheduler.AddFunc(w.schedule, func() {
		if err := w.RunOnce(ctx, w.yesterday()); err != nil {
			w.logger.ErrorWithErr(err, "Usage rollup failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid rollup schedule %q: %w", w.schedule, err)
	}

	w.logger.With("schedule", w.schedule).Info("Starting usage rollup worker")
	if err := w.RunOnce(ctx, w.yesterday()); err != nil {
		w.logger.ErrorWithErr(err, "Initial usage rollup failed")
	}

	w.scheduler.Start()
	<-ctx.Done()

	// wait for a rollup already in progress
	<-w.scheduler.Stop().Done()
	w.logger.Info("Usage rollup worker stopped")
	return nil
}

// RunOnce aggregates day and stores the result. Re-running a day
// overwrites its counts.
func (w *UsageRollup) RunOnce(ctx context.Context, day time.Time) error {
	start := time.Now()
	day = entitlement.Day(day)

	counts, err := w.audit.CountByDay(ctx, day)
	if err != nil {
		return fmt.Errorf("count credit events: %w", err)
	}
	if err := w.audit.SaveDailyUsage(ctx, counts); err != nil {
		return fmt.Errorf("save daily usage: %w", err)
	}

	var total int64
	for _, c := range counts {
		metrics.SetUsageDaily(string(c.ActionType), string(c.Outcome), float64(c.Count))
		total += c.Count
	}
	metrics.RecordUsageRollup(time.Since(start))

	w.logger.WithFields(map[string]interface{}{
		"day":    day.Format(entitlement.DateLayout),
		"rows":   len(counts),
		"events": total,
	}).Info("Usage rollup complete")
	return nil
}

func (w *UsageRollup) yesterday() time.Time {
	return entitlement.Day(w.now()).AddDate(0, 0, -1)
}
