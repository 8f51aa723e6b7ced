// Package jobs runs the service's periodic background work.
package jobs

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/suteetoe/coopregistry/prometheus"
	"go.uber.org/zap"
)

// PendingCounter reports actionable applications per tenant.
type PendingCounter interface {
	CountPendingByTenant(ctx context.Context) (map[uint]int64, error)
}

// RefreshPendingGauge recomputes the pending-applications gauge.
func RefreshPendingGauge(ctx context.Context, counter PendingCounter, log *zap.Logger) error {
	counts, err := counter.CountPendingByTenant(ctx)
	if err != nil {
		log.Warn("Failed to refresh pending applications gauge", zap.Error(err))
		prometheus.RecordError("gauge_refresh")
		return err
	}

	// tenants that drained to zero drop out of the query result
	prometheus.ResetPendingApplications()
	for tenantID, n := range counts {
		prometheus.UpdatePendingApplications(tenantID, n)
	}
	return nil
}

// NewScheduler registers the gauge refresh every interval. The caller
// starts the scheduler and shuts it down on exit.
func NewScheduler(counter PendingCounter, interval time.Duration, log *zap.Logger) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			_ = RefreshPendingGauge(ctx, counter, log)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, err
	}
	return s, nil
}
