package gc

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"meshnode/pkg/confirm"
	"meshnode/pkg/logger"
)

// Start runs the periodic sweep job: expiring buffered confirmation events
// whose message never arrived. Returns a cancel func. An empty cron maps
// to every five minutes.
func Start(ctx context.Context, tracker *confirm.Tracker, cronExpr string) (context.CancelFunc, error) {
	if cronExpr == "" {
		cronExpr = "*/5 * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("gc_invalid_cron", "cron", cronExpr)
		return nil, fmt.Errorf("invalid sweep cron expression: %s", cronExpr)
	}

	logger.Info("gc_enabled", "cron", cronExpr)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, tracker, cronExpr)
	return cancel, nil
}

func runScheduler(ctx context.Context, tracker *confirm.Tracker, cronExpr string) {
	g := gronx.New()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("gc_scheduler_stopped")
			return
		case now := <-ticker.C:
			due, err := g.IsDue(cronExpr, now)
			if err != nil {
				logger.Error("gc_cron_check_failed", "error", err)
				continue
			}
			if !due {
				continue
			}
			before := tracker.PendingCount()
			tracker.Sweep(now)
			logger.Info("gc_sweep_done", "buffered_before", before, "buffered_after", tracker.PendingCount())
		}
	}
}
