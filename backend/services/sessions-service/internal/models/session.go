package models

import "time"

// SessionStatus is the charging activity state.
type SessionStatus string

// Session statuses.
const (
	SessionStatusCharging  SessionStatus = "CHARGING"
	SessionStatusParking   SessionStatus = "PARKING"
	SessionStatusCompleted SessionStatus = "COMPLETED"
)

// Session represents a charging session tied 1:1 to an order.
//
// PowerConsumed and BaseCost stay nil while charging and are finalized once
// when the session leaves CHARGING.
type Session struct {
	ID                            int64         `db:"id" json:"id"`
	OrderID                       int64         `db:"order_id" json:"order_id"`
	UserID                        int64         `db:"user_id" json:"user_id"`
	VehicleID                     int64         `db:"vehicle_id" json:"vehicle_id"`
	Status                        SessionStatus `db:"status" json:"status"`
	StartTime                     time.Time     `db:"start_time" json:"start_time"`
	EndTime                       *time.Time    `db:"end_time" json:"end_time,omitempty"`
	PowerConsumed                 *float64      `db:"power_consumed_kwh" json:"power_consumed_kwh,omitempty"`
	BaseCost                      *float64      `db:"base_cost" json:"base_cost,omitempty"`
	ParkingStartTime              *time.Time    `db:"parking_start_time" json:"parking_start_time,omitempty"`
	DepartedAt                    *time.Time    `db:"departed_at" json:"departed_at,omitempty"`
	TargetReachedNotificationSent bool          `db:"target_reached_notification_sent" json:"-"`
	Overtime                      bool          `db:"overtime" json:"overtime"`
	CreatedAt                     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt                     time.Time     `db:"updated_at" json:"updated_at"`
}

// BaseCostValue returns the finalized base cost or zero.
func (s *Session) BaseCostValue() float64 {
	if s.BaseCost == nil {
		return 0
	}
	return *s.BaseCost
}
