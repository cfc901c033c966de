package service

import (
	"time"
)

// ProgressInput describes a charging session for derivation.
type ProgressInput struct {
	StartTime      time.Time
	Until          time.Time
	PowerKW        float64
	PricePerKWh    float64
	CapacityKWh    float64
	StartedBattery float64
	TargetBattery  float64
	// FinalEnergyKWh overrides the time based energy once the session is finalized.
	FinalEnergyKWh *float64
}

// Progress is the derived state of a charging session.
type Progress struct {
	Elapsed        time.Duration `json:"elapsed"`
	EnergyKWh      float64       `json:"energy_kwh"`
	Cost           float64       `json:"cost"`
	BatteryPercent float64       `json:"battery_percent"`
	BatteryKnown   bool          `json:"battery_known"`
	TargetReached  bool          `json:"target_reached"`
}

// DeriveProgress computes energy, cost and battery level from elapsed time and
// nominal power. When the vehicle capacity is known the energy is capped at
// what the battery can still accept.
func DeriveProgress(in ProgressInput) Progress {
	elapsed := in.Until.Sub(in.StartTime)
	if elapsed < 0 {
		elapsed = 0
	}

	var energy float64
	if in.FinalEnergyKWh != nil {
		energy = *in.FinalEnergyKWh
	} else if in.PowerKW > 0 {
		energy = in.PowerKW * elapsed.Hours()
	}

	p := Progress{Elapsed: elapsed, BatteryPercent: clampPercent(in.StartedBattery)}
	if in.CapacityKWh > 0 {
		if in.FinalEnergyKWh == nil {
			if room := in.CapacityKWh * (100 - p.BatteryPercent) / 100; energy > room {
				energy = room
			}
		}
		p.BatteryKnown = true
		p.BatteryPercent = clampPercent(energy/in.CapacityKWh*100 + in.StartedBattery)
		p.TargetReached = in.TargetBattery > 0 && p.BatteryPercent >= in.TargetBattery
	}

	p.EnergyKWh = energy
	if in.PricePerKWh > 0 {
		p.Cost = roundMoney(energy * in.PricePerKWh)
	}
	return p
}

func clampPercent(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
