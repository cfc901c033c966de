package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chargepark/backend/services/sessions-service/internal/metrics"
	"chargepark/backend/services/sessions-service/internal/models"
	"chargepark/backend/services/sessions-service/internal/repository/memory"
	"chargepark/backend/services/sessions-service/internal/service"
)

// StationLocation is where seeded charging points stand.
var StationLocation = models.Location{Latitude: 55.751244, Longitude: 37.618423}

// Env wires both services over an in-memory store.
type Env struct {
	Store      *memory.Store
	Clock      *Clock
	Notifier   *Notifier
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	Dispatcher *service.NotificationDispatcher
	Penalties  *service.PenaltyService
	Sessions   *service.SessionsService
	Rules      service.Rules
	Logger     *zap.Logger
}

// NewEnv returns an environment using default rules and fees.
func NewEnv(t testing.TB) *Env {
	t.Helper()

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	env := &Env{
		Store:    memory.NewStore(),
		Clock:    NewClock(time.Time{}),
		Notifier: &Notifier{},
		Registry: reg,
		Metrics:  m,
		Rules:    service.DefaultRules(),
		Logger:   zap.NewNop(),
	}
	env.Dispatcher = service.NewNotificationDispatcher(
		env.Notifier,
		service.NewMemoryDedupStore(env.Clock.NowFunc()),
		env.Clock,
		env.Rules,
		env.Logger,
		m,
	)
	env.Penalties = service.NewPenaltyService(service.PenaltyDeps{
		Tx:         env.Store,
		Orders:     env.Store.Orders(),
		Sessions:   env.Store.Sessions(),
		Fees:       env.Store.Fees(),
		Users:      env.Store.Users(),
		Dispatcher: env.Dispatcher,
		Clock:      env.Clock,
		Rules:      env.Rules,
		Schedule:   service.DefaultFeeSchedule(),
		Logger:     env.Logger,
		Metrics:    m,
	})
	env.Sessions = service.NewSessionsService(service.SessionsDeps{
		Tx:         env.Store,
		Orders:     env.Store.Orders(),
		Sessions:   env.Store.Sessions(),
		Users:      env.Store.Users(),
		Catalog:    env.Store.Catalog(),
		Penalties:  env.Penalties,
		Dispatcher: env.Dispatcher,
		Clock:      env.Clock,
		Rules:      env.Rules,
		Logger:     env.Logger,
		Metrics:    m,
	})
	return env
}

// Driver is a seeded user with a vehicle.
type Driver struct {
	User    models.User
	Vehicle models.Vehicle
}

// SeedDriver adds an ACTIVE user owning a 60 kWh vehicle.
func (e *Env) SeedDriver(email string) Driver {
	user := e.Store.AddUser(models.User{Email: email})
	vehicle := e.Store.AddVehicle(models.Vehicle{UserID: user.ID, Model: "Hatchback", BatteryCapacityKWh: 60})
	return Driver{User: user, Vehicle: vehicle}
}

// SeedPoint adds a 60 kW charging point priced at 500 per kWh.
func (e *Env) SeedPoint() models.ChargingPoint {
	return e.Store.AddChargingPoint(models.ChargingPoint{
		StationID:     1,
		StationName:   "Central",
		Latitude:      StationLocation.Latitude,
		Longitude:     StationLocation.Longitude,
		ConnectorType: "CCS2",
		PowerKW:       60,
		PricePerKWh:   500,
	})
}

// Book reserves point for the driver starting after `in` and lasting `length`.
func (e *Env) Book(t testing.TB, d Driver, point models.ChargingPoint, in, length time.Duration) *models.Order {
	t.Helper()
	start := e.Clock.Now().Add(in)
	order, err := e.Sessions.Book(context.Background(), service.BookInput{
		UserID:          d.User.ID,
		ChargingPointID: point.ID,
		StartTime:       start,
		EndTime:         start.Add(length),
		StartedBattery:  20,
		ExpectedBattery: 80,
	})
	require.NoError(t, err)
	return order
}

// Start begins charging an order at the station.
func (e *Env) Start(t testing.TB, d Driver, order *models.Order) *models.Session {
	t.Helper()
	session, err := e.Sessions.StartSession(context.Background(), service.StartSessionInput{
		UserID:    d.User.ID,
		OrderID:   order.ID,
		VehicleID: d.Vehicle.ID,
		Location:  StationLocation,
	})
	require.NoError(t, err)
	return session
}

// User reloads a user.
func (e *Env) User(t testing.TB, id int64) *models.User {
	t.Helper()
	u, err := e.Store.Users().GetByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

// Order reloads an order.
func (e *Env) Order(t testing.TB, id int64) *models.Order {
	t.Helper()
	o, err := e.Store.Orders().GetByID(context.Background(), id)
	require.NoError(t, err)
	return o
}

// Session reloads a session.
func (e *Env) Session(t testing.TB, id int64) *models.Session {
	t.Helper()
	s, err := e.Store.Sessions().GetByID(context.Background(), id)
	require.NoError(t, err)
	return s
}
