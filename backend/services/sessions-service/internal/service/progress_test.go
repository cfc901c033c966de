package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"chargepark/backend/services/sessions-service/internal/models"
	"chargepark/backend/services/sessions-service/internal/service"
)

func TestDeriveProgress(t *testing.T) {
	start := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	base := service.ProgressInput{
		StartTime:      start,
		PowerKW:        22,
		PricePerKWh:    400,
		CapacityKWh:    44,
		StartedBattery: 10,
		TargetBattery:  60,
	}

	t.Run("mid session", func(t *testing.T) {
		in := base
		in.Until = start.Add(30 * time.Minute)
		p := service.DeriveProgress(in)
		assert.Equal(t, 30*time.Minute, p.Elapsed)
		assert.InDelta(t, 11, p.EnergyKWh, 1e-9)
		assert.Equal(t, float64(4400), p.Cost)
		assert.InDelta(t, 35, p.BatteryPercent, 1e-9)
		assert.True(t, p.BatteryKnown)
		assert.False(t, p.TargetReached)
	})

	t.Run("target reached", func(t *testing.T) {
		in := base
		in.Until = start.Add(90 * time.Minute)
		p := service.DeriveProgress(in)
		assert.InDelta(t, 85, p.BatteryPercent, 1e-9)
		assert.True(t, p.TargetReached)
	})

	t.Run("energy capped at battery room", func(t *testing.T) {
		in := base
		in.Until = start.Add(10 * time.Hour)
		p := service.DeriveProgress(in)
		assert.InDelta(t, 39.6, p.EnergyKWh, 1e-9)
		assert.InDelta(t, 100, p.BatteryPercent, 1e-9)
		assert.Equal(t, float64(15840), p.Cost)
	})

	t.Run("unknown capacity", func(t *testing.T) {
		in := base
		in.CapacityKWh = 0
		in.Until = start.Add(time.Hour)
		p := service.DeriveProgress(in)
		assert.False(t, p.BatteryKnown)
		assert.False(t, p.TargetReached)
		assert.InDelta(t, 22, p.EnergyKWh, 1e-9)
		assert.Equal(t, float64(10), p.BatteryPercent)
	})

	t.Run("finalized energy wins", func(t *testing.T) {
		final := 5.5
		in := base
		in.Until = start.Add(3 * time.Hour)
		in.FinalEnergyKWh = &final
		p := service.DeriveProgress(in)
		assert.Equal(t, final, p.EnergyKWh)
		assert.Equal(t, float64(2200), p.Cost)
		assert.InDelta(t, 22.5, p.BatteryPercent, 1e-9)
	})

	t.Run("clock before start", func(t *testing.T) {
		in := base
		in.Until = start.Add(-time.Minute)
		p := service.DeriveProgress(in)
		assert.Zero(t, p.Elapsed)
		assert.Zero(t, p.EnergyKWh)
	})
}

func TestDistanceMeters(t *testing.T) {
	a := models.Location{Latitude: 55.751244, Longitude: 37.618423}
	assert.Zero(t, service.DistanceMeters(a, a))

	b := models.Location{Latitude: a.Latitude + 0.001, Longitude: a.Longitude}
	assert.InDelta(t, 111.2, service.DistanceMeters(a, b), 0.5)

	c := models.Location{Latitude: a.Latitude + 0.01, Longitude: a.Longitude}
	assert.Greater(t, service.DistanceMeters(a, c), 1000.0)
}
