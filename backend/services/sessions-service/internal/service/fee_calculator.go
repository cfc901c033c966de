package service

import (
	"math"
	"time"

	"chargepark/backend/services/sessions-service/internal/models"
)

// FeeSchedule holds the flat and per-minute fee rates.
type FeeSchedule struct {
	CancelFee         float64
	NoShowFee         float64
	OvertimePerMinute float64
	ParkingPerMinute  float64
}

// DefaultFeeSchedule returns the production fee rates.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		CancelFee:         20000,
		NoShowFee:         50000,
		OvertimePerMinute: 1000,
		ParkingPerMinute:  1000,
	}
}

// FeeInput carries the minute counts used by time based fees.
type FeeInput struct {
	ExtraMinutes      int
	ChargeableMinutes int
}

// FeeCalculator turns a violation or overstay into an amount.
type FeeCalculator struct {
	schedule FeeSchedule
}

// NewFeeCalculator returns a calculator for schedule.
func NewFeeCalculator(schedule FeeSchedule) FeeCalculator {
	return FeeCalculator{schedule: schedule}
}

// Calculate returns the fee amount rounded to whole currency units.
// A result <= 0 means no fee applies.
func (c FeeCalculator) Calculate(kind models.FeeKind, in FeeInput) float64 {
	var amount float64
	switch kind {
	case models.FeeKindCancel:
		amount = c.schedule.CancelFee
	case models.FeeKindNoShow:
		amount = c.schedule.NoShowFee
	case models.FeeKindOvertime:
		amount = float64(in.ExtraMinutes) * c.schedule.OvertimePerMinute
	case models.FeeKindParking:
		amount = float64(in.ChargeableMinutes) * c.schedule.ParkingPerMinute
	}
	if amount <= 0 {
		return 0
	}
	return math.Round(amount)
}

// ChargeableParkingMinutes returns whole minutes parked past the grace period.
func ChargeableParkingMinutes(parkingStart, until time.Time, grace time.Duration) int {
	over := until.Sub(parkingStart) - grace
	if over <= 0 {
		return 0
	}
	return int(over / time.Minute)
}

// minutesPast returns whole minutes, rounded up, that t lies after ref.
func minutesPast(ref, t time.Time) int {
	d := t.Sub(ref)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Minutes()))
}
