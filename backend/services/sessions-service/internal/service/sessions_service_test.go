package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chargepark/backend/services/sessions-service/internal/models"
	"chargepark/backend/services/sessions-service/internal/service"
	"chargepark/backend/services/sessions-service/internal/testutil"
)

func TestBookValidation(t *testing.T) {
	env := testutil.NewEnv(t)
	driver := env.SeedDriver("book@example.com")
	point := env.SeedPoint()
	now := env.Clock.Now()

	valid := service.BookInput{
		UserID:          driver.User.ID,
		ChargingPointID: point.ID,
		StartTime:       now.Add(time.Hour),
		EndTime:         now.Add(2 * time.Hour),
		StartedBattery:  20,
		ExpectedBattery: 80,
	}

	cases := []struct {
		name   string
		mutate func(in *service.BookInput)
		want   error
	}{
		{"end before start", func(in *service.BookInput) { in.EndTime = in.StartTime.Add(-time.Minute) }, service.ErrValidation},
		{"start long ago", func(in *service.BookInput) { in.StartTime = now.Add(-time.Hour) }, service.ErrValidation},
		{"target below start", func(in *service.BookInput) { in.ExpectedBattery = 10 }, service.ErrValidation},
		{"target above full", func(in *service.BookInput) { in.ExpectedBattery = 120 }, service.ErrValidation},
		{"missing point", func(in *service.BookInput) { in.ChargingPointID = 0 }, service.ErrValidation},
		{"unknown point", func(in *service.BookInput) { in.ChargingPointID = 5000 }, service.ErrNotFound},
		{"unknown user", func(in *service.BookInput) { in.UserID = 5000 }, service.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := valid
			tc.mutate(&in)
			_, err := env.Sessions.Book(context.Background(), in)
			require.ErrorIs(t, err, tc.want)
		})
	}

	order, err := env.Sessions.Book(context.Background(), valid)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusBooked, order.Status)
	assert.NotZero(t, order.ID)
	assert.Equal(t, 1, env.Notifier.Count(driver.User.ID, "Booking confirmed"))
}

func TestBookRejectsOverlaps(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	first := env.SeedDriver("first@example.com")
	second := env.SeedDriver("second@example.com")
	point := env.SeedPoint()
	otherPoint := env.SeedPoint()

	order := env.Book(t, first, point, time.Hour, time.Hour)

	overlapping := service.BookInput{
		UserID:          second.User.ID,
		ChargingPointID: point.ID,
		StartTime:       order.StartTime.Add(30 * time.Minute),
		EndTime:         order.EndTime.Add(30 * time.Minute),
		StartedBattery:  30,
		ExpectedBattery: 90,
	}
	_, err := env.Sessions.Book(ctx, overlapping)
	require.ErrorIs(t, err, service.ErrConflict)

	sameUser := overlapping
	sameUser.UserID = first.User.ID
	sameUser.ChargingPointID = otherPoint.ID
	_, err = env.Sessions.Book(ctx, sameUser)
	require.ErrorIs(t, err, service.ErrConflict)

	adjacent := overlapping
	adjacent.StartTime = order.EndTime
	adjacent.EndTime = order.EndTime.Add(time.Hour)
	_, err = env.Sessions.Book(ctx, adjacent)
	require.NoError(t, err)

	_, err = env.Sessions.Cancel(ctx, first.User.ID, order.ID, "")
	require.NoError(t, err)
	_, err = env.Sessions.Book(ctx, overlapping)
	require.ErrorIs(t, err, service.ErrConflict, "adjacent booking of second driver still overlaps")
}

func TestStartSessionGuards(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	driver := env.SeedDriver("start@example.com")
	other := env.SeedDriver("intruder@example.com")
	point := env.SeedPoint()
	order := env.Book(t, driver, point, time.Minute, time.Hour)

	in := service.StartSessionInput{
		UserID:    driver.User.ID,
		OrderID:   order.ID,
		VehicleID: driver.Vehicle.ID,
		Location:  testutil.StationLocation,
	}

	forbidden := in
	forbidden.UserID = other.User.ID
	_, err := env.Sessions.StartSession(ctx, forbidden)
	require.ErrorIs(t, err, service.ErrForbidden)

	foreignVehicle := in
	foreignVehicle.VehicleID = other.Vehicle.ID
	_, err = env.Sessions.StartSession(ctx, foreignVehicle)
	require.ErrorIs(t, err, service.ErrForbidden)

	far := in
	far.Location.Latitude += 0.01
	_, err = env.Sessions.StartSession(ctx, far)
	require.ErrorIs(t, err, service.ErrOutOfRange)

	near := in
	near.Location.Latitude += 0.001
	session, err := env.Sessions.StartSession(ctx, near)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCharging, session.Status)
	assert.Equal(t, order.ID, session.OrderID)
	assert.Nil(t, session.PowerConsumed)
	assert.Equal(t, models.OrderStatusCharging, env.Order(t, order.ID).Status)
	assert.Equal(t, 1, env.Notifier.Count(driver.User.ID, "Charging started"))

	_, err = env.Sessions.StartSession(ctx, in)
	require.ErrorIs(t, err, service.ErrInvalidState)

	_, err = env.Sessions.StartSession(ctx, service.StartSessionInput{UserID: driver.User.ID, OrderID: 777})
	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestReportProgressDerivesEnergyCostAndBattery(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	driver := env.SeedDriver("progress@example.com")
	point := env.SeedPoint()
	session := env.Start(t, driver, env.Book(t, driver, point, time.Minute, 2*time.Hour))

	env.Clock.Advance(30 * time.Minute)
	progress, err := env.Sessions.ReportProgress(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, progress.Elapsed)
	assert.InDelta(t, 30, progress.EnergyKWh, 1e-9)
	assert.Equal(t, float64(15000), progress.Cost)
	assert.True(t, progress.BatteryKnown)
	assert.InDelta(t, 70, progress.BatteryPercent, 1e-9)
	assert.False(t, progress.TargetReached)
	assert.Equal(t, float64(80), progress.TargetBattery)

	env.Clock.Advance(10 * time.Minute)
	progress, err = env.Sessions.ReportProgress(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, progress.TargetReached)

	// Still CHARGING: nothing was persisted.
	stored := env.Session(t, session.ID)
	assert.Equal(t, models.SessionStatusCharging, stored.Status)
	assert.Nil(t, stored.PowerConsumed)
}

func TestCompleteToParkingIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	driver := env.SeedDriver("idempotent@example.com")
	point := env.SeedPoint()
	order := env.Book(t, driver, point, time.Minute, 2*time.Hour)
	session := env.Start(t, driver, order)

	env.Clock.Advance(20 * time.Minute)
	first, err := env.Sessions.CompleteToParking(ctx, session.ID, service.CompletionTargetReached)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusParking, first.Status)
	require.NotNil(t, first.PowerConsumed)
	assert.InDelta(t, 20, *first.PowerConsumed, 1e-9)
	assert.Equal(t, float64(10000), first.BaseCostValue())
	require.NotNil(t, first.ParkingStartTime)
	assert.Equal(t, env.Clock.Now(), *first.ParkingStartTime)
	assert.Equal(t, models.OrderStatusCompleted, env.Order(t, order.ID).Status)

	env.Clock.Advance(5 * time.Minute)
	second, err := env.Sessions.CompleteToParking(ctx, session.ID, service.CompletionUser)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, env.Notifier.Count(driver.User.ID, "Charging complete"))

	progress, err := env.Sessions.ReportProgress(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Minute, progress.Elapsed, "finalized sessions stop accruing")
	assert.Equal(t, first.BaseCostValue(), progress.Cost)
}

func TestConcurrentCompletionTransitionsOnce(t *testing.T) {
	env := testutil.NewEnv(t)
	driver := env.SeedDriver("race@example.com")
	point := env.SeedPoint()
	session := env.Start(t, driver, env.Book(t, driver, point, time.Minute, 2*time.Hour))
	env.Clock.Advance(15 * time.Minute)

	var wg sync.WaitGroup
	results := make([]*models.Session, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.Sessions.CompleteToParking(context.Background(), session.ID, service.CompletionStuck)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, models.SessionStatusParking, results[i].Status)
		assert.Equal(t, results[0].BaseCostValue(), results[i].BaseCostValue())
	}
	assert.Equal(t, 1, env.Notifier.Count(driver.User.ID, "Charging complete"))
}

func TestStopChargingPastBookedEndChargesOvertime(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	driver := env.SeedDriver("overtime@example.com")
	other := env.SeedDriver("someone@example.com")
	point := env.SeedPoint()
	session := env.Start(t, driver, env.Book(t, driver, point, time.Minute, 30*time.Minute))

	env.Clock.Advance(41 * time.Minute)
	_, err := env.Sessions.StopCharging(ctx, other.User.ID, session.ID)
	require.ErrorIs(t, err, service.ErrForbidden)

	stopped, err := env.Sessions.StopCharging(ctx, driver.User.ID, session.ID)
	require.NoError(t, err)
	assert.True(t, stopped.Overtime)
	assert.Equal(t, float64(20500), stopped.BaseCostValue())

	fees, err := env.Store.Fees().ListBySession(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, fees, 1)
	assert.Equal(t, models.FeeKindOvertime, fees[0].Kind)
	assert.Equal(t, float64(10000), fees[0].Amount)

	total, err := env.Sessions.SessionTotal(ctx, driver.User.ID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(30500), total)
}

func TestConfirmDeparture(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	driver := env.SeedDriver("depart@example.com")
	other := env.SeedDriver("watcher@example.com")
	point := env.SeedPoint()
	session := env.Start(t, driver, env.Book(t, driver, point, time.Minute, 2*time.Hour))

	_, err := env.Sessions.ConfirmDeparture(ctx, driver.User.ID, session.ID)
	require.ErrorIs(t, err, service.ErrInvalidState)

	env.Clock.Advance(10 * time.Minute)
	_, err = env.Sessions.StopCharging(ctx, driver.User.ID, session.ID)
	require.NoError(t, err)

	env.Clock.Advance(40 * time.Minute)
	_, err = env.Sessions.ConfirmDeparture(ctx, other.User.ID, session.ID)
	require.ErrorIs(t, err, service.ErrForbidden)

	result, err := env.Sessions.ConfirmDeparture(ctx, driver.User.ID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, result.Session.Status)
	require.NotNil(t, result.Session.DepartedAt)
	require.NotNil(t, result.ParkingFee)
	assert.Equal(t, float64(25000), result.ParkingFee.Amount)
	assert.Equal(t, float64(30000), result.Total)
	assert.GreaterOrEqual(t, result.Total, result.Session.BaseCostValue())
	assert.Equal(t, 1, env.Notifier.Count(driver.User.ID, "Session finished"))

	_, err = env.Sessions.ConfirmDeparture(ctx, driver.User.ID, session.ID)
	require.ErrorIs(t, err, service.ErrNothingToDo)
}

func TestDepartureWithinGraceHasNoFees(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	driver := env.SeedDriver("quick@example.com")
	point := env.SeedPoint()
	session := env.Start(t, driver, env.Book(t, driver, point, time.Minute, 2*time.Hour))

	env.Clock.Advance(10 * time.Minute)
	_, err := env.Sessions.StopCharging(ctx, driver.User.ID, session.ID)
	require.NoError(t, err)
	env.Clock.Advance(15 * time.Minute)

	result, err := env.Sessions.ConfirmDeparture(ctx, driver.User.ID, session.ID)
	require.NoError(t, err)
	assert.Nil(t, result.ParkingFee)
	assert.Equal(t, result.Session.BaseCostValue(), result.Total)
}

func TestCanceledOrderCannotStart(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	driver := env.SeedDriver("canceled@example.com")
	point := env.SeedPoint()
	order := env.Book(t, driver, point, time.Hour, time.Hour)

	result, err := env.Sessions.Cancel(ctx, driver.User.ID, order.ID, "")
	require.NoError(t, err)
	assert.Nil(t, result.Fee)

	_, err = env.Sessions.StartSession(ctx, service.StartSessionInput{
		UserID:    driver.User.ID,
		OrderID:   order.ID,
		VehicleID: driver.Vehicle.ID,
		Location:  testutil.StationLocation,
	})
	require.ErrorIs(t, err, service.ErrInvalidState)
}
