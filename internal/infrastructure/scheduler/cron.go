// Package scheduler adapts robfig/cron as the cadence driver.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"ReviewRadar/internal/ports"
)

// CronDriver fires registered jobs on a fixed interval. Each job runs in its
// own goroutine, so a slow run never delays other businesses' ticks.
type CronDriver struct {
	cron *cron.Cron
}

var _ ports.CadenceDriver = (*CronDriver)(nil)

// NewCronDriver builds an idle driver; jobs fire only after Start.
func NewCronDriver() *CronDriver {
	return &CronDriver{cron: cron.New()}
}

// Add arms a recurring job with the given interval.
func (d *CronDriver) Add(every time.Duration, job func()) error {
	if job == nil {
		return fmt.Errorf("job is required")
	}
	if every <= 0 {
		return fmt.Errorf("interval must be positive, got %s", every)
	}

	if _, err := d.cron.AddFunc(fmt.Sprintf("@every %s", every), job); err != nil {
		return fmt.Errorf("add cadence entry: %w", err)
	}
	return nil
}

// Start begins firing ticks.
func (d *CronDriver) Start() {
	d.cron.Start()
}

// Stop halts future ticks and waits for running jobs, bounded by ctx.
func (d *CronDriver) Stop(ctx context.Context) error {
	stopped := d.cron.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
