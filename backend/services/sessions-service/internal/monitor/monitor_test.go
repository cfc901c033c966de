package monitor_test

import (
	"context"
	"strings"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chargepark/backend/services/sessions-service/internal/models"
	"chargepark/backend/services/sessions-service/internal/monitor"
	"chargepark/backend/services/sessions-service/internal/service"
	"chargepark/backend/services/sessions-service/internal/testutil"
)

func newMonitors(env *testutil.Env, cfg monitor.Config) *monitor.Monitors {
	return monitor.New(monitor.Deps{
		Orders:     env.Store.Orders(),
		Sessions:   env.Store.Sessions(),
		Lifecycle:  env.Sessions,
		Penalties:  env.Penalties,
		Dispatcher: env.Dispatcher,
		Clock:      env.Clock,
		Rules:      env.Rules,
		Config:     cfg,
		Logger:     env.Logger,
		Metrics:    env.Metrics,
	})
}

func TestNoShowSweep(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	m := newMonitors(env, monitor.Config{})
	driver := env.SeedDriver("absent@example.com")
	point := env.SeedPoint()
	late := env.Book(t, driver, point, time.Minute, time.Hour)
	later := env.Book(t, driver, point, 2*time.Hour, time.Hour)

	env.Clock.Advance(10 * time.Minute)
	res, err := m.Sweep(ctx, monitor.NoShow)
	require.NoError(t, err)
	assert.Zero(t, res.Scanned)

	env.Clock.Advance(10 * time.Minute)
	res, err = m.Sweep(ctx, monitor.NoShow)
	require.NoError(t, err)
	assert.Equal(t, monitor.Result{Scanned: 1, Acted: 1}, res)
	assert.Equal(t, models.OrderStatusCanceled, env.Order(t, late.ID).Status)
	assert.Equal(t, models.OrderStatusBooked, env.Order(t, later.ID).Status)

	res, err = m.Sweep(ctx, monitor.NoShow)
	require.NoError(t, err)
	assert.Zero(t, res.Scanned)
	assert.Equal(t, 1, env.User(t, driver.User.ID).ViolationCount)
}

func TestTargetBatterySweepCompletesAndSkips(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	m := newMonitors(env, monitor.Config{})
	point := env.SeedPoint()

	full := env.SeedDriver("full@example.com")
	fullSession := env.Start(t, full, env.Book(t, full, point, time.Minute, 3*time.Hour))

	unknown := env.SeedDriver("unknown@example.com")
	unknown.Vehicle = env.Store.AddVehicle(models.Vehicle{UserID: unknown.User.ID, Model: "Unlisted"})
	unknownSession := env.Start(t, unknown, env.Book(t, unknown, env.SeedPoint(), time.Minute, 3*time.Hour))

	env.Clock.Advance(20 * time.Minute)
	res, err := m.Sweep(ctx, monitor.TargetBattery)
	require.NoError(t, err)
	assert.Equal(t, monitor.Result{Scanned: 2}, res)

	env.Clock.Advance(20 * time.Minute)
	res, err = m.Sweep(ctx, monitor.TargetBattery)
	require.NoError(t, err)
	assert.Equal(t, monitor.Result{Scanned: 2, Acted: 1}, res)

	assert.Equal(t, models.SessionStatusParking, env.Session(t, fullSession.ID).Status)
	assert.Equal(t, models.SessionStatusCharging, env.Session(t, unknownSession.ID).Status)
	assert.Equal(t, 1, env.Notifier.Count(full.User.ID, "Charging complete"))
}

func TestTargetBatterySweepIsolatesBrokenRecords(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	m := newMonitors(env, monitor.Config{})

	broken := &models.Order{UserID: 1, ChargingPointID: 999, Status: models.OrderStatusCharging,
		StartTime: env.Clock.Now(), EndTime: env.Clock.Now().Add(time.Hour), ExpectedBattery: 80}
	require.NoError(t, env.Store.Orders().Create(ctx, broken))
	require.NoError(t, env.Store.Sessions().Create(ctx, &models.Session{
		OrderID: broken.ID, UserID: 1, Status: models.SessionStatusCharging, StartTime: env.Clock.Now(),
	}))

	driver := env.SeedDriver("ok@example.com")
	good := env.Start(t, driver, env.Book(t, driver, env.SeedPoint(), time.Minute, 3*time.Hour))

	env.Clock.Advance(time.Hour)
	res, err := m.Sweep(ctx, monitor.TargetBattery)
	require.NoError(t, err)
	assert.Equal(t, monitor.Result{Scanned: 2, Acted: 1, Failed: 1}, res)
	assert.Equal(t, models.SessionStatusParking, env.Session(t, good.ID).Status)

	expected := `
# HELP monitor_record_errors_total Records that failed inside a monitor sweep
# TYPE monitor_record_errors_total counter
monitor_record_errors_total{monitor="target-battery"} 1
`
	require.NoError(t, promtestutil.GatherAndCompare(env.Registry, strings.NewReader(expected), "monitor_record_errors_total"))
}

func TestParkingSweepNotifiesOnceAndEscalates(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	m := newMonitors(env, monitor.Config{})
	driver := env.SeedDriver("parked@example.com")
	session := env.Start(t, driver, env.Book(t, driver, env.SeedPoint(), time.Minute, 3*time.Hour))

	env.Clock.Advance(10 * time.Minute)
	_, err := env.Sessions.StopCharging(ctx, driver.User.ID, session.ID)
	require.NoError(t, err)

	env.Clock.Advance(10 * time.Minute)
	res, err := m.Sweep(ctx, monitor.Parking)
	require.NoError(t, err)
	assert.Zero(t, res.Scanned, "inside grace period")

	env.Clock.Advance(6 * time.Minute)
	res, err = m.Sweep(ctx, monitor.Parking)
	require.NoError(t, err)
	assert.Equal(t, monitor.Result{Scanned: 1, Acted: 1}, res)

	env.Clock.Advance(10 * time.Minute)
	res, err = m.Sweep(ctx, monitor.Parking)
	require.NoError(t, err)
	assert.Equal(t, monitor.Result{Scanned: 1}, res)
	assert.Equal(t, 1, env.Notifier.Count(driver.User.ID, "Parking grace period over"))

	env.Clock.Advance(40 * time.Minute)
	res, err = m.Sweep(ctx, monitor.Parking)
	require.NoError(t, err)
	assert.Equal(t, monitor.Result{Scanned: 1, Acted: 1}, res)
	assert.Equal(t, 1, env.Notifier.Count(driver.User.ID, "Parking overstay escalation"))

	fees, err := env.Store.Fees().ListBySession(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, fees, 1)
	assert.Equal(t, float64(51000), fees[0].Amount)

	env.Clock.Advance(20 * time.Minute)
	res, err = m.Sweep(ctx, monitor.Parking)
	require.NoError(t, err)
	assert.Zero(t, res.Acted)
	assert.Equal(t, 1, env.Notifier.Count(driver.User.ID, "Parking overstay escalation"))

	result, err := env.Sessions.ConfirmDeparture(ctx, driver.User.ID, session.ID)
	require.NoError(t, err)
	require.NotNil(t, result.ParkingFee)
	assert.Equal(t, float64(20000), result.ParkingFee.Amount, "departure charges only the remainder")

	res, err = m.Sweep(ctx, monitor.Cleanup)
	require.NoError(t, err)
	assert.Equal(t, monitor.Result{Scanned: 0, Acted: 2}, res)
}

func parkDrivers(t *testing.T, env *testutil.Env, emails ...string) []testutil.Driver {
	t.Helper()
	drivers := make([]testutil.Driver, 0, len(emails))
	sessions := make([]*models.Session, 0, len(emails))
	for _, email := range emails {
		d := env.SeedDriver(email)
		drivers = append(drivers, d)
		sessions = append(sessions, env.Start(t, d, env.Book(t, d, env.SeedPoint(), time.Minute, 3*time.Hour)))
	}
	env.Clock.Advance(10 * time.Minute)
	for i, s := range sessions {
		_, err := env.Sessions.StopCharging(context.Background(), drivers[i].User.ID, s.ID)
		require.NoError(t, err)
	}
	return drivers
}

func TestParkingSweepReachesRecordsBeyondBatch(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	m := newMonitors(env, monitor.Config{BatchSize: 2})
	drivers := parkDrivers(t, env, "p1@example.com", "p2@example.com", "p3@example.com")

	env.Clock.Advance(2 * time.Hour)
	res, err := m.Sweep(ctx, monitor.Parking)
	require.NoError(t, err)
	assert.Equal(t, monitor.Result{Scanned: 3, Acted: 6}, res)

	for i := 0; i < 4; i++ {
		res, err = m.Sweep(ctx, monitor.Parking)
		require.NoError(t, err)
		assert.Equal(t, monitor.Result{Scanned: 3}, res)
	}
	for _, d := range drivers {
		assert.Equal(t, 1, env.Notifier.Count(d.User.ID, "Parking grace period over"), d.User.Email)
		assert.Equal(t, 1, env.Notifier.Count(d.User.ID, "Parking overstay escalation"), d.User.Email)
	}
}

func TestCleanupKeepsParkedRecordsBeyondBatch(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	m := newMonitors(env, monitor.Config{BatchSize: 2})
	drivers := parkDrivers(t, env, "c1@example.com", "c2@example.com", "c3@example.com")

	env.Clock.Advance(20 * time.Minute)
	res, err := m.Sweep(ctx, monitor.Parking)
	require.NoError(t, err)
	assert.Equal(t, monitor.Result{Scanned: 3, Acted: 3}, res)

	res, err = m.Sweep(ctx, monitor.Cleanup)
	require.NoError(t, err)
	assert.Equal(t, monitor.Result{Scanned: 3}, res)

	res, err = m.Sweep(ctx, monitor.Parking)
	require.NoError(t, err)
	assert.Zero(t, res.Acted)
	for _, d := range drivers {
		assert.Equal(t, 1, env.Notifier.Count(d.User.ID, "Parking grace period over"), d.User.Email)
	}
}

func TestTargetBatterySweepReachesRecordsBeyondBatch(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	m := newMonitors(env, monitor.Config{BatchSize: 2})

	for _, email := range []string{"u1@example.com", "u2@example.com"} {
		d := env.SeedDriver(email)
		d.Vehicle = env.Store.AddVehicle(models.Vehicle{UserID: d.User.ID, Model: "Unlisted"})
		env.Start(t, d, env.Book(t, d, env.SeedPoint(), time.Minute, 3*time.Hour))
	}
	full := env.SeedDriver("newest@example.com")
	fullSession := env.Start(t, full, env.Book(t, full, env.SeedPoint(), time.Minute, 3*time.Hour))

	env.Clock.Advance(40 * time.Minute)
	res, err := m.Sweep(ctx, monitor.TargetBattery)
	require.NoError(t, err)
	assert.Equal(t, monitor.Result{Scanned: 3, Acted: 1}, res)
	assert.Equal(t, models.SessionStatusParking, env.Session(t, fullSession.ID).Status)
}

func TestStuckSweepForcesParking(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	m := newMonitors(env, monitor.Config{})
	driver := env.SeedDriver("stuck@example.com")
	session := env.Start(t, driver, env.Book(t, driver, env.SeedPoint(), time.Minute, 14*time.Hour))

	env.Clock.Advance(11 * time.Hour)
	res, err := m.Sweep(ctx, monitor.Stuck)
	require.NoError(t, err)
	assert.Zero(t, res.Scanned)

	env.Clock.Advance(2 * time.Hour)
	res, err = m.Sweep(ctx, monitor.Stuck)
	require.NoError(t, err)
	assert.Equal(t, monitor.Result{Scanned: 1, Acted: 1}, res)

	stored := env.Session(t, session.ID)
	assert.Equal(t, models.SessionStatusParking, stored.Status)
	require.NotNil(t, stored.PowerConsumed)
	assert.InDelta(t, 48, *stored.PowerConsumed, 1e-9, "energy capped at battery room")
	assert.False(t, stored.Overtime)
}

func TestSweepRacingUserStopIsNoop(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	m := newMonitors(env, monitor.Config{})
	driver := env.SeedDriver("racer@example.com")
	session := env.Start(t, driver, env.Book(t, driver, env.SeedPoint(), time.Minute, 14*time.Hour))

	env.Clock.Advance(13 * time.Hour)
	_, err := env.Sessions.StopCharging(ctx, driver.User.ID, session.ID)
	require.NoError(t, err)

	_, err = env.Sessions.CompleteToParking(ctx, session.ID, service.CompletionStuck)
	require.NoError(t, err)
	res, err := m.Sweep(ctx, monitor.Stuck)
	require.NoError(t, err)
	assert.Zero(t, res.Scanned)
	assert.Equal(t, 1, env.Notifier.Count(driver.User.ID, "Charging complete"))
}

func TestUnknownSweep(t *testing.T) {
	env := testutil.NewEnv(t)
	_, err := newMonitors(env, monitor.Config{}).Sweep(context.Background(), "bogus")
	require.Error(t, err)
}

func TestRunnerStopsWithContext(t *testing.T) {
	env := testutil.NewEnv(t)
	runner := monitor.NewRunner(newMonitors(env, monitor.Config{
		NoShowInterval:  5 * time.Millisecond,
		TargetInterval:  5 * time.Millisecond,
		ParkingInterval: 5 * time.Millisecond,
		StuckInterval:   5 * time.Millisecond,
		CleanupInterval: 5 * time.Millisecond,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}

	count, err := promtestutil.GatherAndCount(env.Registry, "monitor_sweeps_total")
	require.NoError(t, err)
	assert.Equal(t, len(monitor.Names()), count)

	res, err := runner.RunOnce(context.Background(), monitor.Cleanup)
	require.NoError(t, err)
	assert.Zero(t, res.Acted)
}
