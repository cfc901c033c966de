package service

import "time"

// Rules holds the time thresholds of the session lifecycle.
type Rules struct {
	LateCancelThreshold       time.Duration
	NoShowThreshold           time.Duration
	ParkingGrace              time.Duration
	ParkingEscalation         time.Duration
	MaxChargingDuration       time.Duration
	ProximityRadiusMeters     float64
	BanThreshold              int
	PenaltyNotificationWindow time.Duration
	GeneralNotificationWindow time.Duration
}

// DefaultRules returns the production defaults.
func DefaultRules() Rules {
	return Rules{
		LateCancelThreshold:       10 * time.Minute,
		NoShowThreshold:           15 * time.Minute,
		ParkingGrace:              15 * time.Minute,
		ParkingEscalation:         time.Hour,
		MaxChargingDuration:       12 * time.Hour,
		ProximityRadiusMeters:     200,
		BanThreshold:              3,
		PenaltyNotificationWindow: 15 * time.Minute,
		GeneralNotificationWindow: 5 * time.Minute,
	}
}

// WithDefaults fills zero fields from DefaultRules.
func (r Rules) WithDefaults() Rules {
	d := DefaultRules()
	if r.LateCancelThreshold <= 0 {
		r.LateCancelThreshold = d.LateCancelThreshold
	}
	if r.NoShowThreshold <= 0 {
		r.NoShowThreshold = d.NoShowThreshold
	}
	if r.ParkingGrace <= 0 {
		r.ParkingGrace = d.ParkingGrace
	}
	if r.ParkingEscalation <= 0 {
		r.ParkingEscalation = d.ParkingEscalation
	}
	if r.MaxChargingDuration <= 0 {
		r.MaxChargingDuration = d.MaxChargingDuration
	}
	if r.ProximityRadiusMeters <= 0 {
		r.ProximityRadiusMeters = d.ProximityRadiusMeters
	}
	if r.BanThreshold <= 0 {
		r.BanThreshold = d.BanThreshold
	}
	if r.PenaltyNotificationWindow <= 0 {
		r.PenaltyNotificationWindow = d.PenaltyNotificationWindow
	}
	if r.GeneralNotificationWindow <= 0 {
		r.GeneralNotificationWindow = d.GeneralNotificationWindow
	}
	return r
}
