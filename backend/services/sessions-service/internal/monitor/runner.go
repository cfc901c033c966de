package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Runner drives every sweep on its own ticker.
type Runner struct {
	monitors  *Monitors
	intervals map[string]time.Duration
	logger    *zap.Logger
}

// NewRunner returns runner for m using the cadence from its config.
func NewRunner(m *Monitors) *Runner {
	return &Runner{
		monitors: m,
		intervals: map[string]time.Duration{
			NoShow:        m.cfg.NoShowInterval,
			TargetBattery: m.cfg.TargetInterval,
			Parking:       m.cfg.ParkingInterval,
			Stuck:         m.cfg.StuckInterval,
			Cleanup:       m.cfg.CleanupInterval,
		},
		logger: m.logger,
	}
}

// Run blocks until ctx is done. Sweep errors are logged and never stop the loop.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range Names() {
		name, interval := name, r.intervals[name]
		g.Go(func() error {
			r.loop(ctx, name, interval)
			return nil
		})
	}
	r.logger.Info("monitors started")
	err := g.Wait()
	r.logger.Info("monitors stopped")
	return err
}

// RunOnce runs a single sweep.
func (r *Runner) RunOnce(ctx context.Context, name string) (Result, error) {
	return r.monitors.Sweep(ctx, name)
}

func (r *Runner) loop(ctx context.Context, name string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = r.monitors.Sweep(ctx, name)
		}
	}
}
