// Package monitor runs the periodic sweeps that drive time based transitions:
// no-shows, target battery completion, parking escalation and stuck sessions.
package monitor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"chargepark/backend/services/sessions-service/internal/metrics"
	"chargepark/backend/services/sessions-service/internal/models"
	"chargepark/backend/services/sessions-service/internal/service"
)

// Sweep names.
const (
	NoShow        = "no-show"
	TargetBattery = "target-battery"
	Parking       = "parking"
	Stuck         = "stuck"
	Cleanup       = "cleanup"
)

// OrderLister finds orders eligible for sweeps. Results are ordered by id and
// start after afterID.
type OrderLister interface {
	ListBookedStartingBefore(ctx context.Context, cutoff time.Time, afterID int64, limit int) ([]models.Order, error)
}

// SessionLister finds sessions eligible for sweeps. Results are ordered by id
// and start after afterID.
type SessionLister interface {
	ListByStatus(ctx context.Context, status models.SessionStatus, afterID int64, limit int) ([]models.Session, error)
	ListChargingStartedBefore(ctx context.Context, cutoff time.Time, afterID int64, limit int) ([]models.Session, error)
	ListParkingStartedBefore(ctx context.Context, cutoff time.Time, afterID int64, limit int) ([]models.Session, error)
}

// Config tunes sweep cadence and batch sizes.
type Config struct {
	NoShowInterval  time.Duration
	TargetInterval  time.Duration
	ParkingInterval time.Duration
	StuckInterval   time.Duration
	CleanupInterval time.Duration
	BatchSize       int
	CacheSize       int
	CacheTTL        time.Duration
}

// DefaultConfig returns the production cadence.
func DefaultConfig() Config {
	return Config{
		NoShowInterval:  time.Minute,
		TargetInterval:  30 * time.Second,
		ParkingInterval: time.Minute,
		StuckInterval:   30 * time.Minute,
		CleanupInterval: 10 * time.Minute,
		BatchSize:       200,
		CacheSize:       10000,
		CacheTTL:        24 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.NoShowInterval <= 0 {
		c.NoShowInterval = d.NoShowInterval
	}
	if c.TargetInterval <= 0 {
		c.TargetInterval = d.TargetInterval
	}
	if c.ParkingInterval <= 0 {
		c.ParkingInterval = d.ParkingInterval
	}
	if c.StuckInterval <= 0 {
		c.StuckInterval = d.StuckInterval
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.CacheSize <= 0 {
		c.CacheSize = d.CacheSize
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = d.CacheTTL
	}
	return c
}

// Deps groups the collaborators of Monitors.
type Deps struct {
	Orders     OrderLister
	Sessions   SessionLister
	Lifecycle  *service.SessionsService
	Penalties  *service.PenaltyService
	Dispatcher *service.NotificationDispatcher
	Clock      service.Clock
	Rules      service.Rules
	Config     Config
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Result summarizes one sweep.
type Result struct {
	Scanned int
	Acted   int
	Failed  int
}

// Monitors holds the sweeps and their suppression state.
type Monitors struct {
	orders     OrderLister
	sessions   SessionLister
	lifecycle  *service.SessionsService
	penalties  *service.PenaltyService
	dispatcher *service.NotificationDispatcher
	clock      service.Clock
	rules      service.Rules
	cfg        Config
	graceOver  *SuppressionCache
	escalated  *SuppressionCache
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// New builds the monitors.
func New(deps Deps) *Monitors {
	cfg := deps.Config.withDefaults()
	rules := deps.Rules.WithDefaults()
	now := deps.Clock.Now
	return &Monitors{
		orders:     deps.Orders,
		sessions:   deps.Sessions,
		lifecycle:  deps.Lifecycle,
		penalties:  deps.Penalties,
		dispatcher: deps.Dispatcher,
		clock:      deps.Clock,
		rules:      rules,
		cfg:        cfg,
		graceOver:  NewSuppressionCache(cfg.CacheTTL, cfg.CacheSize, now),
		escalated:  NewSuppressionCache(cfg.CacheTTL, cfg.CacheSize, now),
		logger:     deps.Logger.Named("monitor"),
		metrics:    deps.Metrics,
	}
}

// Names lists every sweep.
func Names() []string {
	return []string{NoShow, TargetBattery, Parking, Stuck, Cleanup}
}

// Sweep runs the named sweep once.
func (m *Monitors) Sweep(ctx context.Context, name string) (Result, error) {
	var fn func(context.Context) (Result, error)
	switch name {
	case NoShow:
		fn = m.sweepNoShows
	case TargetBattery:
		fn = m.sweepTargetBattery
	case Parking:
		fn = m.sweepParking
	case Stuck:
		fn = m.sweepStuck
	case Cleanup:
		fn = m.sweepCleanup
	default:
		return Result{}, fmt.Errorf("monitor: unknown sweep %q", name)
	}

	started := time.Now()
	res, err := fn(ctx)
	m.metrics.Sweep(name, time.Since(started).Seconds(), res.Failed)
	if err != nil {
		m.logger.Error("sweep failed", zap.String("monitor", name), zap.Error(err))
		return res, err
	}
	if res.Acted > 0 || res.Failed > 0 {
		m.logger.Info("sweep finished",
			zap.String("monitor", name),
			zap.Int("scanned", res.Scanned),
			zap.Int("acted", res.Acted),
			zap.Int("failed", res.Failed),
		)
	}
	return res, nil
}

func (m *Monitors) sweepNoShows(ctx context.Context) (Result, error) {
	cutoff := m.clock.Now().Add(-m.rules.NoShowThreshold)
	var res Result
	err := eachPage(ctx, m.cfg.BatchSize,
		func(ctx context.Context, afterID int64, limit int) ([]models.Order, error) {
			return m.orders.ListBookedStartingBefore(ctx, cutoff, afterID, limit)
		},
		func(o models.Order) int64 { return o.ID },
		func(o models.Order) {
			res.Scanned++
			fee, err := m.penalties.HandleNoShow(ctx, o.ID)
			if err != nil {
				res.Failed++
				m.logger.Warn("no-show handling failed", zap.Int64("order_id", o.ID), zap.Error(err))
				return
			}
			if fee != nil {
				res.Acted++
			}
		})
	if err != nil {
		return res, fmt.Errorf("list booked orders: %w", err)
	}
	return res, nil
}

func (m *Monitors) sweepTargetBattery(ctx context.Context) (Result, error) {
	var res Result
	err := eachPage(ctx, m.cfg.BatchSize,
		func(ctx context.Context, afterID int64, limit int) ([]models.Session, error) {
			return m.sessions.ListByStatus(ctx, models.SessionStatusCharging, afterID, limit)
		},
		sessionID,
		func(s models.Session) {
			res.Scanned++
			progress, err := m.lifecycle.ReportProgress(ctx, s.ID)
			if err != nil {
				res.Failed++
				m.logger.Warn("progress derivation failed", zap.Int64("session_id", s.ID), zap.Error(err))
				return
			}
			if !progress.BatteryKnown {
				m.logger.Warn("battery capacity unknown, skipping", zap.Int64("session_id", s.ID), zap.Int64("vehicle_id", s.VehicleID))
				return
			}
			if !progress.TargetReached {
				return
			}
			if _, err := m.lifecycle.CompleteToParking(ctx, s.ID, service.CompletionTargetReached); err != nil {
				res.Failed++
				m.logger.Warn("auto completion failed", zap.Int64("session_id", s.ID), zap.Error(err))
				return
			}
			res.Acted++
		})
	if err != nil {
		return res, fmt.Errorf("list charging sessions: %w", err)
	}
	return res, nil
}

// sweepParking sends the one-time grace notice and, past the escalation
// threshold, accrues the parking fee and sends the escalation notice.
func (m *Monitors) sweepParking(ctx context.Context) (Result, error) {
	now := m.clock.Now()
	graceCutoff := now.Add(-m.rules.ParkingGrace)
	escalateBefore := now.Add(-m.rules.ParkingEscalation)

	var res Result
	err := eachPage(ctx, m.cfg.BatchSize,
		func(ctx context.Context, afterID int64, limit int) ([]models.Session, error) {
			return m.sessions.ListParkingStartedBefore(ctx, graceCutoff, afterID, limit)
		},
		sessionID,
		func(s models.Session) {
			res.Scanned++
			if m.graceOver.MarkIfAbsent(s.ID) {
				m.dispatcher.Dispatch(ctx, models.Notification{
					UserID:   s.UserID,
					Category: models.NotificationSession,
					Title:    "Parking grace period over",
					Body: fmt.Sprintf("Session #%d: parking is now charged per minute. Please move your vehicle.",
						s.ID),
				})
				res.Acted++
			}

			if s.ParkingStartTime == nil || !s.ParkingStartTime.Before(escalateBefore) {
				return
			}
			if !m.escalated.MarkIfAbsent(s.ID) {
				return
			}
			fee, err := m.penalties.HandleParkingOverstay(ctx, s.ID)
			if err != nil {
				m.escalated.Forget(s.ID)
				res.Failed++
				m.logger.Warn("parking escalation failed", zap.Int64("session_id", s.ID), zap.Error(err))
				return
			}
			body := fmt.Sprintf("Session #%d has occupied the charging point for over %d minutes after charging ended.",
				s.ID, int(m.rules.ParkingEscalation.Minutes()))
			if fee != nil {
				body += fmt.Sprintf(" Parking fees so far: %.0f.", fee.Amount)
			}
			m.dispatcher.Dispatch(ctx, models.Notification{
				UserID:   s.UserID,
				Category: models.NotificationPenalty,
				Title:    "Parking overstay escalation",
				Body:     body,
			})
			res.Acted++
		})
	if err != nil {
		return res, fmt.Errorf("list parked sessions: %w", err)
	}
	return res, nil
}

func (m *Monitors) sweepStuck(ctx context.Context) (Result, error) {
	cutoff := m.clock.Now().Add(-m.rules.MaxChargingDuration)
	var res Result
	err := eachPage(ctx, m.cfg.BatchSize,
		func(ctx context.Context, afterID int64, limit int) ([]models.Session, error) {
			return m.sessions.ListChargingStartedBefore(ctx, cutoff, afterID, limit)
		},
		sessionID,
		func(s models.Session) {
			res.Scanned++
			if _, err := m.lifecycle.CompleteToParking(ctx, s.ID, service.CompletionStuck); err != nil {
				res.Failed++
				m.logger.Warn("stuck session recovery failed", zap.Int64("session_id", s.ID), zap.Error(err))
				return
			}
			m.logger.Warn("stuck session forced to parking", zap.Int64("session_id", s.ID), zap.Time("start_time", s.StartTime))
			res.Acted++
		})
	if err != nil {
		return res, fmt.Errorf("list stuck sessions: %w", err)
	}
	return res, nil
}

// sweepCleanup drops suppression entries of sessions that left PARKING.
func (m *Monitors) sweepCleanup(ctx context.Context) (Result, error) {
	keep := make(map[int64]struct{})
	err := eachPage(ctx, m.cfg.BatchSize,
		func(ctx context.Context, afterID int64, limit int) ([]models.Session, error) {
			return m.sessions.ListByStatus(ctx, models.SessionStatusParking, afterID, limit)
		},
		sessionID,
		func(s models.Session) { keep[s.ID] = struct{}{} })
	if err != nil {
		// A partial keep set would drop live entries.
		return Result{}, fmt.Errorf("list parked sessions: %w", err)
	}
	stillParked := func(id int64) bool {
		_, ok := keep[id]
		return ok
	}

	removed := m.graceOver.Reconcile(stillParked) + m.escalated.Reconcile(stillParked)
	return Result{Scanned: len(keep), Acted: removed}, nil
}

func sessionID(s models.Session) int64 { return s.ID }

// eachPage walks every eligible record in id order, batch rows at a time,
// until a short page comes back or ctx is done.
func eachPage[T any](
	ctx context.Context,
	batch int,
	fetch func(ctx context.Context, afterID int64, limit int) ([]T, error),
	id func(T) int64,
	visit func(T),
) error {
	var afterID int64
	for {
		items, err := fetch(ctx, afterID, batch)
		if err != nil {
			return err
		}
		for _, item := range items {
			visit(item)
		}
		if len(items) < batch || len(items) == 0 {
			return nil
		}
		afterID = id(items[len(items)-1])
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}
